package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"marketing-copilot/internal/domain"
	"marketing-copilot/internal/usecase"
)

const testCredential = "AIza-test-secret-123"

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	keys    []string
	prompts []string
	started chan struct{}
	release chan struct{}
}

func (s *stubCompleter) Generate(_ context.Context, apiKey, prompt string) (string, error) {
	s.mu.Lock()
	s.keys = append(s.keys, apiKey)
	s.prompts = append(s.prompts, prompt)
	started, release := s.started, s.release
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return s.reply, s.err
}

func (s *stubCompleter) Model() string { return "gemini-test" }

func (s *stubCompleter) calls() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...), append([]string(nil), s.prompts...)
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestHandler(t *testing.T, completer usecase.Completer) (*Handler, *logBuffer) {
	t.Helper()
	logs := &logBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sessions, err := usecase.NewSessions(completer, usecase.WithSessionsLogger(logger))
	require.NoError(t, err)
	h, err := NewHandler(sessions, WithLogger(logger))
	require.NoError(t, err)
	return h, logs
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func createSession(t *testing.T, h http.Handler) domain.Snapshot {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	return parseBody[domain.Snapshot](t, rec.Body.String())
}

func unlockedSession(t *testing.T, h http.Handler) string {
	t.Helper()
	id := createSession(t, h).SessionID
	rec := call(t, h, http.MethodPost, "/api/sessions/"+id+"/unlock", `{"credential":"`+testCredential+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	return id
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestWriteError_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_input"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "session_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "already_unlocked"}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "busy", err: &usecase.Error{Code: usecase.ErrorBusy, Reason: "request_in_flight"}, status: http.StatusConflict, code: string(usecase.ErrorBusy)},
		{name: "locked", err: &usecase.Error{Code: usecase.ErrorLocked, Reason: "session_locked"}, status: http.StatusLocked, code: string(usecase.ErrorLocked)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "conversation_init_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	h, _ := newTestHandler(t, &stubCompleter{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			require.Equal(t, tc.status, rec.Code)

			out := parseBody[errorResponse](t, rec.Body.String())
			require.Equal(t, tc.code, out.Error)
		})
	}
}
