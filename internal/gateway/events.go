package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/printgate/internal/logging"
	"go.uber.org/zap"
)

// Event stream message types
const (
	MessagePrinters = "printers"
	MessagePing     = "ping"
)

const eventWriteTimeout = 10 * time.Second

// EventMessage is sent over the /events WebSocket.
type EventMessage struct {
	Type      string        `json:"type"`
	Printers  []PrinterView `json:"printers,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Events streams the network printer list to a WebSocket client: once on
// connect and again after every registry change. Changes that arrive while
// a write is in progress are coalesced into the next message.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Failed to upgrade to WebSocket",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.EventClientConnected()
	defer h.metrics.EventClientDisconnected()

	logging.Debug("Event stream client connected", zap.String("remote_addr", r.RemoteAddr))

	changes, unsubscribe := h.registry.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	if err := h.sendPrinters(conn); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Event stream client disconnected", zap.String("remote_addr", r.RemoteAddr))
			return
		case <-changes:
			if err := h.sendPrinters(conn); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeMessage(conn, EventMessage{Type: MessagePing, Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendPrinters(conn *websocket.Conn) error {
	printers := networkViews(h.registry.Snapshot())
	err := writeMessage(conn, EventMessage{
		Type:      MessagePrinters,
		Printers:  printers,
		Timestamp: time.Now(),
	})
	if err != nil {
		logging.Debug("Failed to write event message", zap.Error(err))
	}
	return err
}

func writeMessage(conn *websocket.Conn, msg EventMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readUntilClosed drains client frames so control messages are processed,
// and cancels the stream once the connection fails or the client closes it.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin allows requests without an Origin header and those whose
// origin is configured.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn("WebSocket origin not allowed",
		zap.String("origin", origin),
		zap.Strings("allowed_origins", h.opts.AllowedOrigins))
	return false
}
