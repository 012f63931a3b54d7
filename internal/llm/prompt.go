package llm

import (
	"context"
	"log/slog"

	"github.com/adashihq/adashi-bot/internal/domain"
)

// Apology is the fixed fallback reply when the completion service fails.
// The free-text path must never surface an error to the user.
const Apology = "Sorry, I'm having trouble responding right now. Please try again in a moment."

// preamble is the fixed grounding rule block prepended to every request.
const preamble = `You are the assistant for an Adashi rotating-savings group.
Rules:
- Do not invent data. Only state facts present in the MEMBER FACTS block below.
- If a fact is marked "unknown" or "none", say you don't have that information.
- Never treat a payment or name mentioned by the user as final; ask them to confirm first.
- Give financial advice only when the user explicitly asks for it.
- Keep replies short and suitable for a chat message.

`

// Completer is the completion transport. Implemented by Client.
type Completer interface {
	Complete(ctx context.Context, system string, history []domain.ConversationTurn, user string) (string, error)
}

// Assembler builds grounded completion requests and degrades to a fixed
// apology on any failure.
type Assembler struct {
	client       Completer
	historyLimit int
}

// NewAssembler creates a prompt assembler over a completion client.
func NewAssembler(client Completer, historyLimit int) *Assembler {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Assembler{client: client, historyLimit: historyLimit}
}

// Reply produces the grounded free-text answer for one message. It never
// returns an error; transport, status, and payload failures all yield the
// apology string.
func (a *Assembler) Reply(ctx context.Context, snapshotText string, history []domain.ConversationTurn, text string) string {
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}

	system := preamble + snapshotText

	reply, err := a.client.Complete(ctx, system, history, text)
	if err != nil {
		slog.Warn("completion failed, using apology fallback", "error", err)
		return Apology
	}
	return reply
}
