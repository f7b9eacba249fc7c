package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"marketing-copilot/internal/domain"
)

const (
	skPrefixTurn       = "TURN#"
	skMeta             = "META#"
	defaultTTLDuration = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client archives transcript turns to a DynamoDB table. It never stores the
// session credential.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Client)

// WithTTL sets how long archived items live before DynamoDB expires them.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, ttl: defaultTTLDuration, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// sessionPK returns the partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK returns the sort key of a turn. Zero padding keeps lexical order
// equal to transcript order.
func turnSK(seq int) string {
	return fmt.Sprintf("%s%06d", skPrefixTurn, seq)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(c.ttl).Unix()
}

// RecordTurn archives turn at position seq and bumps the session metadata.
func (c *Client) RecordTurn(ctx context.Context, sessionID string, turn domain.Turn, seq int) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: RecordTurn: session id is required")
	}
	if seq <= 0 {
		return fmt.Errorf("repository: RecordTurn: invalid sequence %d", seq)
	}
	if err := c.SaveTurn(ctx, c.NewArchivedTurn(sessionID, turn, seq), c.NewSessionMeta(sessionID, seq)); err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// SaveTurn writes the turn and updated metadata in one transaction.
func (c *Client) SaveTurn(ctx context.Context, turn domain.ArchivedTurn, meta domain.SessionMeta) error {
	if turn.PK == "" || turn.SK == "" {
		return errors.New("repository: SaveTurn: turn PK and SK are required")
	}
	if meta.PK == "" || meta.SK == "" {
		return errors.New("repository: SaveTurn: meta PK and SK are required")
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(turn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// NewArchivedTurn builds the archive record of a transcript turn.
func (c *Client) NewArchivedTurn(sessionID string, turn domain.Turn, seq int) domain.ArchivedTurn {
	return domain.ArchivedTurn{
		PK:        sessionPK(sessionID),
		SK:        turnSK(seq),
		SessionID: sessionID,
		Turn:      turn,
		Seq:       seq,
		TTL:       c.ttlValue(),
	}
}

// NewSessionMeta builds the metadata record of a session holding turns turns.
func (c *Client) NewSessionMeta(sessionID string, turns int) domain.SessionMeta {
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		LastActivity: c.now().UTC().Format(time.RFC3339),
		Turns:        turns,
		TTL:          c.ttlValue(),
	}
}

func turnItem(t domain.ArchivedTurn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: t.PK},
		"SK":        &types.AttributeValueMemberS{Value: t.SK},
		"sessionId": &types.AttributeValueMemberS{Value: t.SessionID},
		"turnId":    &types.AttributeValueMemberS{Value: t.Turn.ID},
		"role":      &types.AttributeValueMemberS{Value: string(t.Turn.Role)},
		"content":   &types.AttributeValueMemberS{Value: t.Turn.Content},
		"timestamp": &types.AttributeValueMemberS{Value: t.Turn.Timestamp.UTC().Format(time.RFC3339Nano)},
		"seq":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t.Seq)},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t.TTL)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: meta.PK},
		"SK":           &types.AttributeValueMemberS{Value: meta.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: meta.SessionID},
		"lastActivity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.Turns)},
		"ttl":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
	}
}
