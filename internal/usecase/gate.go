package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"marketing-copilot/internal/domain"
)

type conversationFactory func(sessionID, credential string, onChange func()) (*Conversation, error)

// Session gates access to a Conversation behind a user-supplied credential.
// The gate closes once, on the first non-blank credential, and stays closed
// for the lifetime of the session.
type Session struct {
	id      string
	factory conversationFactory
	now     func() time.Time

	mu         sync.Mutex
	conv       *Conversation
	ended      bool
	lastActive time.Time
	subs       map[int]chan domain.Snapshot
	nextSub    int
}

func newSession(id string, factory conversationFactory, now func() time.Time) *Session {
	return &Session{
		id:         id,
		factory:    factory,
		now:        now,
		lastActive: now(),
		subs:       make(map[int]chan domain.Snapshot),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Unlock closes the gate with credential. A blank credential leaves the
// session untouched.
func (s *Session) Unlock(credential string) (domain.Snapshot, error) {
	if strings.TrimSpace(credential) == "" {
		return domain.Snapshot{}, newError(ErrorInvalidInput, "credential_required", nil)
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return domain.Snapshot{}, newError(ErrorNotFound, "session_ended", nil)
	}
	if s.conv != nil {
		s.mu.Unlock()
		return domain.Snapshot{}, newError(ErrorConflict, "already_unlocked", nil)
	}
	conv, err := s.factory(s.id, credential, s.broadcast)
	if err != nil {
		s.mu.Unlock()
		return domain.Snapshot{}, newError(ErrorInternal, "conversation_init_error", err)
	}
	s.conv = conv
	s.lastActive = s.now()
	s.mu.Unlock()

	s.broadcast()
	conv.recordGreeting(context.Background())
	return s.Snapshot(), nil
}

// Conversation returns the engine behind the gate.
func (s *Session) Conversation() (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, newError(ErrorNotFound, "session_ended", nil)
	}
	if s.conv == nil {
		return nil, newError(ErrorLocked, "session_locked", nil)
	}
	s.lastActive = s.now()
	return s.conv, nil
}

func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot and then one
// after every change. Only the latest snapshot is kept for slow readers.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.Snapshot, 1)
	if s.ended {
		close(ch)
		return ch, func() {}
	}
	ch <- s.snapshotLocked()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	if s.conv == nil {
		return domain.Snapshot{SessionID: s.id, Turns: []domain.Turn{}}
	}
	return s.conv.Snapshot()
}

func (s *Session) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// idle reports whether the session has been inactive for longer than ttl.
// Sessions with a call in flight are never idle.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil && s.conv.Pending() {
		return false
	}
	return now.Sub(s.lastActive) > ttl
}

// end drops the conversation, credential included, and closes subscribers.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.conv = nil
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
