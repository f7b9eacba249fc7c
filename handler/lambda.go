package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"marketing-copilot/internal/usecase"
)

// Handle serves an API Gateway proxy event through the HTTP router. Event
// streams need a hijackable connection and are unavailable here.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp, err := h.proxy.ProxyWithContext(ctx, event)
	if err != nil {
		return h.rejectEvent(event, err), nil
	}

	// The adapter fills only MultiValueHeaders.
	if resp.Headers == nil {
		resp.Headers = make(map[string]string, len(resp.MultiValueHeaders))
	}
	for k, vs := range resp.MultiValueHeaders {
		if _, ok := resp.Headers[k]; !ok && len(vs) > 0 {
			resp.Headers[k] = strings.Join(vs, ",")
		}
	}
	return resp, nil
}

// rejectEvent answers events the adapter cannot turn into a request, such as
// a body flagged base64 that does not decode.
func (h *Handler) rejectEvent(event events.APIGatewayProxyRequest, err error) events.APIGatewayProxyResponse {
	header := http.Header{}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		header.Add(k, v)
	}
	id := strings.TrimSpace(header.Get(correlationHeader))
	if id == "" {
		id = newCorrelationID()
	}
	h.logger.Warn("rejected proxy event", "err", err, "correlation_id", id)

	body, _ := json.Marshal(errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_request"})
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusBadRequest,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: id,
		},
		MultiValueHeaders: map[string][]string{
			"Content-Type":    {"application/json"},
			correlationHeader: {id},
		},
		Body: string(body) + "\n",
	}
}
