package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketing-copilot/internal/domain"
	"marketing-copilot/internal/integrations/gemini"
)

// Completer sends one prompt to the completion service.
type Completer interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
	Model() string
}

// TurnRecorder receives every turn appended to a transcript. seq is the
// 1-based position of the turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn domain.Turn, seq int) error
}

// Conversation owns the transcript, the pending input buffer and the pending
// flag of one unlocked session. At most one completion call is in flight.
type Conversation struct {
	sessionID  string
	credential string
	completer  Completer
	recorder   TurnRecorder
	preamble   string
	logger     *slog.Logger
	onChange   func()
	now        func() time.Time
	newID      func() string

	mu      sync.Mutex
	turns   []domain.Turn
	input   string
	pending bool
}

type ConversationOption func(*Conversation)

func WithSessionID(id string) ConversationOption {
	return func(c *Conversation) { c.sessionID = id }
}

func WithRecorder(r TurnRecorder) ConversationOption {
	return func(c *Conversation) { c.recorder = r }
}

// WithPreamble overrides the instruction preamble. Blank values are ignored.
func WithPreamble(preamble string) ConversationOption {
	return func(c *Conversation) {
		if strings.TrimSpace(preamble) != "" {
			c.preamble = preamble
		}
	}
}

func WithLogger(l *slog.Logger) ConversationOption {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChangeHook registers fn to run after every state change. fn runs
// without the conversation lock held.
func WithChangeHook(fn func()) ConversationOption {
	return func(c *Conversation) { c.onChange = fn }
}

func withClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// NewConversation creates a conversation bound to credential, seeded with the
// assistant greeting turn.
func NewConversation(completer Completer, credential string, opts ...ConversationOption) (*Conversation, error) {
	c, err := newConversation(completer, credential, opts...)
	if err != nil {
		return nil, err
	}
	c.recordGreeting(context.Background())
	return c, nil
}

// newConversation is NewConversation without archiving the greeting, for
// callers that must not block on the recorder.
func newConversation(completer Completer, credential string, opts ...ConversationOption) (*Conversation, error) {
	if completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if strings.TrimSpace(credential) == "" {
		return nil, newError(ErrorInvalidInput, "credential_required", nil)
	}
	c := &Conversation{
		credential: credential,
		completer:  completer,
		preamble:   DefaultPreamble(),
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", c.sessionID)

	// Not shared yet: no lock and no change notification.
	c.appendLocked(domain.RoleAssistant, greeting())
	return c, nil
}

// Submit appends userText as a user turn, asks the completion service and
// appends its answer, or a formatted warning, as an assistant turn. It returns
// only after the exchange has finished. Completion failures are never
// returned as errors.
func (c *Conversation) Submit(ctx context.Context, userText string) (domain.Turn, error) {
	if strings.TrimSpace(userText) == "" {
		return domain.Turn{}, newError(ErrorInvalidInput, "empty_input", nil)
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return domain.Turn{}, newError(ErrorBusy, "request_in_flight", nil)
	}
	userTurn, seq := c.appendLocked(domain.RoleUser, userText)
	c.input = ""
	c.pending = true
	c.mu.Unlock()
	c.changed()

	// Submitted requests run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	finished := false
	defer func() {
		if !finished {
			c.finish()
		}
	}()

	c.record(ctx, userTurn, seq)

	reply, replySeq := c.append(domain.RoleAssistant, c.complete(ctx, userText))
	c.finish()
	finished = true

	c.record(ctx, reply, replySeq)
	return reply, nil
}

// SubmitInput submits the current contents of the input buffer.
func (c *Conversation) SubmitInput(ctx context.Context) (domain.Turn, error) {
	return c.Submit(ctx, c.Input())
}

// SetInput replaces the pending input buffer.
func (c *Conversation) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.changed()
}

// SelectQuickPrompt copies catalog entry i into the input buffer without
// submitting it.
func (c *Conversation) SelectQuickPrompt(i int) (string, error) {
	if i < 0 || i >= len(quickPrompts) {
		return "", newError(ErrorInvalidInput, "unknown_quick_prompt", nil)
	}
	prompt := quickPrompts[i]
	c.SetInput(prompt)
	return prompt, nil
}

func (c *Conversation) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Transcript returns a copy of the turns in display order.
func (c *Conversation) Transcript() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Turn(nil), c.turns...)
}

// Snapshot returns the presentation view of the conversation.
func (c *Conversation) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.Snapshot{
		SessionID: c.sessionID,
		Unlocked:  true,
		Pending:   c.pending,
		Input:     c.input,
		Turns:     append([]domain.Turn(nil), c.turns...),
	}
	if !hasUserTurn(c.turns) {
		snap.ShowQuickPrompts = true
		snap.QuickPrompts = QuickPrompts()
	}
	return snap
}

func (c *Conversation) complete(ctx context.Context, userText string) string {
	text, err := c.completer.Generate(ctx, c.credential, buildPrompt(c.preamble, userText))
	switch {
	case errors.Is(err, gemini.ErrEmptyResponse):
		return emptyResponse
	case err != nil:
		c.logger.Warn("completion request failed", "err", err)
		return formatFailure(err, c.completer.Model())
	case text == "":
		return emptyResponse
	}
	return text
}

func (c *Conversation) finish() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) append(role domain.Role, content string) (domain.Turn, int) {
	c.mu.Lock()
	turn, seq := c.appendLocked(role, content)
	c.mu.Unlock()
	c.changed()
	return turn, seq
}

func (c *Conversation) appendLocked(role domain.Role, content string) (domain.Turn, int) {
	turn := domain.Turn{
		ID:        c.newID(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().UTC(),
	}
	c.turns = append(c.turns, turn)
	return turn, len(c.turns)
}

func (c *Conversation) record(ctx context.Context, turn domain.Turn, seq int) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordTurn(ctx, c.sessionID, turn, seq); err != nil {
		c.logger.Error("failed to record turn", "turn_id", turn.ID, "seq", seq, "err", err)
	}
}

func (c *Conversation) recordGreeting(ctx context.Context) {
	c.mu.Lock()
	first := c.turns[0]
	c.mu.Unlock()
	c.record(ctx, first, 1)
}

func (c *Conversation) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func hasUserTurn(turns []domain.Turn) bool {
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			return true
		}
	}
	return false
}
