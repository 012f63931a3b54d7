// Package api provides HTTP handlers for the webhook surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adashihq/adashi-bot/internal/engine"
	"github.com/adashihq/adashi-bot/internal/gateway"
)

// Handler owns the webhook endpoints.
type Handler struct {
	engine      *engine.Engine
	verifyToken string
}

// NewHandler creates a webhook handler.
func NewHandler(eng *engine.Engine, verifyToken string) *Handler {
	return &Handler{
		engine:      eng,
		verifyToken: verifyToken,
	}
}

// RegisterRoutes mounts the webhook endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.Verify)
	r.Post("/webhook", h.Receive)
}

// Verify answers the gateway's subscription handshake: echo the challenge
// only when the mode and verify token match, otherwise forbid.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Debug("failed to write challenge", "error", err)
		}
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

// Receive handles one webhook delivery. It always acknowledges with a
// success status regardless of internal outcome; an unanswered delivery
// triggers upstream redelivery storms.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload gateway.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("webhook payload decode failed", "error", err)
		JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	for _, msg := range payload.TextMessages() {
		h.engine.HandleMessage(r.Context(), msg)
	}

	JSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
