package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"marketing-copilot/internal/domain"
	"marketing-copilot/internal/usecase"
)

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func TestHandle_HappyPath(t *testing.T) {
	completer := &stubCompleter{reply: "Try a referral program."}
	h, _ := newTestHandler(t, completer)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	id := parseBody[domain.Snapshot](t, resp.Body).SessionID

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions/"+id+"/unlock", `{"credential":"`+testCredential+`"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"How do I grow signups?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[messageResponse](t, resp.Body)
	require.Equal(t, "Try a referral program.", out.Reply.Content)
	require.Len(t, out.Snapshot.Turns, 3)
	require.NotContains(t, resp.Body, testCredential)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions", ""))
	require.NoError(t, err)
	id := parseBody[domain.Snapshot](t, resp.Body).SessionID

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions/"+id+"/unlock", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})

	event := makeEvent(http.MethodGet, "/api/quick-prompts", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_MultiValueHeaders(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})

	event := makeEvent(http.MethodGet, "/healthz", "")
	event.MultiValueHeaders = map[string][]string{"X-CORRELATION-ID": {"corr-multi"}}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-multi", resp.Headers["X-Correlation-Id"])
	require.Equal(t, []string{"corr-multi"}, resp.MultiValueHeaders["X-Correlation-Id"])
}

func TestHandle_Base64Body(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/sessions", ""))
	require.NoError(t, err)
	id := parseBody[domain.Snapshot](t, resp.Body).SessionID

	event := makeEvent(http.MethodPost, "/api/sessions/"+id+"/unlock", base64.StdEncoding.EncodeToString([]byte(`{"credential":"k"}`)))
	event.IsBase64Encoded = true
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, parseBody[domain.Snapshot](t, resp.Body).Unlocked)
}

func TestHandle_InvalidBase64Body(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})

	event := makeEvent(http.MethodPost, "/api/sessions", "%%%")
	event.IsBase64Encoded = true
	event.Headers["X-Correlation-Id"] = "corr-bad"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "corr-bad", resp.Headers["X-Correlation-Id"])

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_request", out.Reason)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t, &stubCompleter{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/missing", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
