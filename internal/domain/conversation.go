package domain

import (
	"time"
)

// Turn roles for conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in the short-term conversation window.
// It exists to give the completion request continuity; it is not
// authoritative state.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
