package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketing-copilot/internal/domain"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxInboundBytes     = 512
)

const (
	eventSnapshot     = "snapshot"
	eventSessionEnded = "session_ended"
)

type eventMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Data      *domain.Snapshot `json:"data,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// events streams session snapshots over a WebSocket until the session ends
// or the client goes away. Inbound frames are read only to track liveness.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sess.ID(), "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	defer cancel()

	pongWait := 2 * h.pingInterval
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInboundBytes)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteJSON(eventMessage{Type: eventSessionEnded, SessionID: sess.ID(), Timestamp: time.Now().Unix()})
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			msg := eventMessage{Type: eventSnapshot, SessionID: sess.ID(), Data: &snap, Timestamp: time.Now().Unix()}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "session_id", sess.ID(), "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
