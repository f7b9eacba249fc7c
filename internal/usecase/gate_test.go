package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketing-copilot/internal/domain"
)

func newTestSessions(t *testing.T, c Completer, opts ...SessionsOption) *Sessions {
	t.Helper()
	s, err := NewSessions(c, opts...)
	require.NoError(t, err)
	return s
}

func TestUnlock_BlankCredentialKeepsGateOpen(t *testing.T) {
	sess := newTestSessions(t, answering("ok")).Create()

	for _, cred := range []string{"", "   "} {
		_, err := sess.Unlock(cred)
		expectError(t, err, ErrorInvalidInput, "credential_required")
	}
	require.False(t, sess.Snapshot().Unlocked)

	_, err := sess.Conversation()
	expectError(t, err, ErrorLocked, "session_locked")

	snap := sess.Snapshot()
	require.False(t, snap.Unlocked)
	require.Empty(t, snap.Turns)
	require.NotNil(t, snap.Turns)
}

func TestUnlock_ValidCredentialSeedsGreeting(t *testing.T) {
	sess := newTestSessions(t, answering("ok")).Create()

	snap, err := sess.Unlock("VALIDKEY")
	require.NoError(t, err)
	require.True(t, snap.Unlocked)
	require.Equal(t, sess.ID(), snap.SessionID)
	require.Len(t, snap.Turns, 1)
	require.Equal(t, domain.RoleAssistant, snap.Turns[0].Role)
	require.True(t, sess.Snapshot().Unlocked)
}

func TestUnlock_GateClosesPermanently(t *testing.T) {
	llm := answering("ok")
	sess := newTestSessions(t, llm).Create()

	_, err := sess.Unlock("VALIDKEY")
	require.NoError(t, err)

	_, err = sess.Unlock("OTHERKEY")
	expectError(t, err, ErrorConflict, "already_unlocked")

	conv, err := sess.Conversation()
	require.NoError(t, err)
	_, err = conv.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []string{"VALIDKEY"}, llm.keys)
	require.Len(t, conv.Transcript(), 3)
}

func TestSession_SnapshotNeverCarriesCredential(t *testing.T) {
	sess := newTestSessions(t, answering("ok")).Create()
	snap, err := sess.Unlock("SECRET-KEY-123")
	require.NoError(t, err)
	for _, turn := range snap.Turns {
		require.NotContains(t, turn.Content, "SECRET-KEY-123")
	}
	require.NotContains(t, snap.Input, "SECRET-KEY-123")
}

func TestSession_SubscribeReceivesChanges(t *testing.T) {
	sess := newTestSessions(t, answering("ok")).Create()

	events, cancel := sess.Subscribe()
	defer cancel()

	initial := <-events
	require.False(t, initial.Unlocked)

	_, err := sess.Unlock("VALIDKEY")
	require.NoError(t, err)
	unlocked := <-events
	require.True(t, unlocked.Unlocked)
	require.Len(t, unlocked.Turns, 1)

	conv, err := sess.Conversation()
	require.NoError(t, err)
	_, err = conv.Submit(context.Background(), "hello")
	require.NoError(t, err)

	// Slow readers only keep the latest snapshot.
	latest := <-events
	require.False(t, latest.Pending)
	require.Len(t, latest.Turns, 3)
}

func TestSession_CancelSubscriptionClosesChannel(t *testing.T) {
	sess := newTestSessions(t, answering("ok")).Create()
	events, cancel := sess.Subscribe()
	<-events

	cancel()
	cancel()
	_, open := <-events
	require.False(t, open)
}

func TestSession_EndClosesSubscribersAndDropsConversation(t *testing.T) {
	sessions := newTestSessions(t, answering("ok"))
	sess := sessions.Create()
	_, err := sess.Unlock("VALIDKEY")
	require.NoError(t, err)
	events, cancel := sess.Subscribe()
	defer cancel()
	<-events

	require.NoError(t, sessions.End(sess.ID()))

	_, open := <-events
	require.False(t, open)

	_, err = sess.Conversation()
	expectError(t, err, ErrorNotFound, "session_ended")
	_, err = sess.Unlock("VALIDKEY")
	expectError(t, err, ErrorNotFound, "session_ended")

	late, _ := sess.Subscribe()
	_, open = <-late
	require.False(t, open)
}

func TestSession_IdleIgnoresPendingCalls(t *testing.T) {
	llm := answering("ok")
	llm.started = make(chan struct{})
	llm.release = make(chan struct{})
	sess := newTestSessions(t, llm).Create()
	_, err := sess.Unlock("VALIDKEY")
	require.NoError(t, err)
	conv, err := sess.Conversation()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = conv.Submit(context.Background(), "hello")
		close(done)
	}()
	<-llm.started

	require.False(t, sess.idle(time.Now().Add(24*time.Hour), time.Minute))

	close(llm.release)
	<-done
	require.True(t, sess.idle(time.Now().Add(24*time.Hour), time.Minute))
}
