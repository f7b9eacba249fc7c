package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"marketing-copilot/internal/usecase"
)

// Registry is the session registry the HTTP surface drives.
// *usecase.Sessions satisfies this interface.
type Registry interface {
	Create() *usecase.Session
	Get(id string) (*usecase.Session, error)
	End(id string) error
	Len() int
}

// Handler exposes chat sessions over HTTP, WebSocket and API Gateway.
type Handler struct {
	sessions     Registry
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	router       *chi.Mux
	proxy        *chiadapter.ChiLambda
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPingInterval sets how often idle event streams are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func NewHandler(sessions Registry, opts ...Option) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("handler: sessions must not be nil")
	}
	h := &Handler{
		sessions:     sessions,
		logger:       slog.Default(),
		pingInterval: defaultPingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	h.proxy = chiadapter.New(h.router)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
