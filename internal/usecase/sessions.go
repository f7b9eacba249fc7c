package usecase

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultIdleTTL = 2 * time.Hour

// Sessions is the in-memory registry of chat sessions served by one process.
type Sessions struct {
	completer Completer
	recorder  TurnRecorder
	preamble  string
	idleTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

type SessionsOption func(*Sessions)

func WithTurnRecorder(r TurnRecorder) SessionsOption {
	return func(s *Sessions) { s.recorder = r }
}

func WithSessionPreamble(preamble string) SessionsOption {
	return func(s *Sessions) { s.preamble = preamble }
}

func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

func WithSessionsLogger(l *slog.Logger) SessionsOption {
	return func(s *Sessions) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSessions(completer Completer, opts ...SessionsOption) (*Sessions, error) {
	if completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	s := &Sessions{
		completer: completer,
		idleTTL:   defaultIdleTTL,
		logger:    slog.Default(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create registers a new session whose gate is still open.
func (r *Sessions) Create() *Session {
	sess := newSession(newUUID(), r.buildConversation, r.now)

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", sess.ID())
	return sess
}

func (r *Sessions) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(ErrorNotFound, "session_not_found", nil)
	}
	return sess, nil
}

// End removes a session and forgets its credential and transcript.
func (r *Sessions) End(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return newError(ErrorNotFound, "session_not_found", nil)
	}
	sess.end()
	r.logger.Info("session ended", "session_id", id)
	return nil
}

// Sweep ends every session idle for longer than the configured TTL and
// returns how many were removed.
func (r *Sessions) Sweep(now time.Time) int {
	r.mu.RLock()
	candidates := make(map[string]*Session, len(r.sessions))
	for id, sess := range r.sessions {
		candidates[id] = sess
	}
	r.mu.RUnlock()

	// idle takes the session lock; keep it out of the registry lock.
	var expired []*Session
	for id, sess := range candidates {
		if !sess.idle(now, r.idleTTL) {
			continue
		}
		r.mu.Lock()
		if r.sessions[id] == sess {
			delete(r.sessions, id)
			expired = append(expired, sess)
		}
		r.mu.Unlock()
	}

	for _, sess := range expired {
		sess.end()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Sessions) buildConversation(sessionID, credential string, onChange func()) (*Conversation, error) {
	return newConversation(r.completer, credential,
		WithSessionID(sessionID),
		WithRecorder(r.recorder),
		WithPreamble(r.preamble),
		WithLogger(r.logger),
		WithChangeHook(onChange),
		withClock(r.now),
	)
}

var newUUID = func() string {
	return uuid.NewString()
}
