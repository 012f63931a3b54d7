package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/adashihq/adashi-bot/internal/events"
)

// EventsHandler streams conversation events to operator websocket clients.
// The stream is read-only; client frames are drained and discarded.
type EventsHandler struct {
	hub *events.Hub
}

// NewEventsHandler creates the monitor handler.
func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept monitor websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close monitor websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so pings are processed; any read error ends the
	// stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	ch, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	slog.Info("monitor client connected", "ip", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Warn("failed to marshal monitor event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
				slog.Debug("monitor write failed", "error", err)
				return
			}
		}
	}
}
