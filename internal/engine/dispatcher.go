// Package engine implements the session/intent/confirmation engine that
// turns inbound chat messages into safe backing-store mutations.
package engine

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/adashihq/adashi-bot/internal/convlog"
	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/events"
	"github.com/adashihq/adashi-bot/internal/gateway"
	"github.com/adashihq/adashi-bot/internal/identity"
	"github.com/adashihq/adashi-bot/internal/intent"
	"github.com/adashihq/adashi-bot/internal/session"
	"github.com/adashihq/adashi-bot/internal/snapshot"
	"github.com/adashihq/adashi-bot/internal/store"
)

// storeApology is the fixed reply for transient backing-store failures.
const storeApology = "Sorry, something went wrong on our side. Please try again in a moment."

// Replier produces the grounded free-text answer. Implemented by
// llm.Assembler; it never fails, degrading to a fixed apology internally.
type Replier interface {
	Reply(ctx context.Context, snapshotText string, history []domain.ConversationTurn, text string) string
}

// Deps are the collaborators the engine orchestrates.
type Deps struct {
	Repo     store.Repository
	Sessions *session.Store
	Sender   gateway.Sender
	Replier  Replier
	Events   *events.Hub     // optional
	Audit    *convlog.Logger // optional

	ConfirmTTL   time.Duration
	HistoryLimit int
}

// Engine is the per-identity dispatcher. All session transitions for one
// identity run serialized inside the session store's critical section.
type Engine struct {
	repo         store.Repository
	sessions     *session.Store
	sender       gateway.Sender
	replier      Replier
	snapshots    *snapshot.Builder
	hub          *events.Hub
	audit        *convlog.Logger
	confirmTTL   time.Duration
	historyLimit int
}

// New creates the engine.
func New(d Deps) *Engine {
	confirmTTL := d.ConfirmTTL
	if confirmTTL <= 0 {
		confirmTTL = 10 * time.Minute
	}
	historyLimit := d.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Engine{
		repo:         d.Repo,
		sessions:     d.Sessions,
		sender:       d.Sender,
		replier:      d.Replier,
		snapshots:    snapshot.NewBuilder(d.Repo),
		hub:          d.Events,
		audit:        d.Audit,
		confirmTTL:   confirmTTL,
		historyLimit: historyLimit,
	}
}

var (
	addMemberPattern  = regexp.MustCompile(`(?i)^\s*(?:add|invite)\s+(\+?[\d\s-]{7,20})\s+to\s+(.+?)\s*$`)
	groupEntryPattern = regexp.MustCompile(`(?i)^\s*(?:create|start|open|set\s*up)\s+(?:a\s+|the\s+)?(?:new\s+)?group\s*$`)
	nameEntryPattern  = regexp.MustCompile(`(?i)^\s*(?:set|change|update)\s+(?:my\s+)?name\s*$`)
)

// HandleMessage processes one inbound text message end to end: decide the
// reply inside the identity's critical section, then send exactly one
// outbound message.
func (e *Engine) HandleMessage(ctx context.Context, msg gateway.Inbound) {
	phone := identity.NormalizePhone(msg.From)
	text := strings.TrimSpace(msg.Body)
	if phone == "" || text == "" {
		return
	}

	now := time.Now()
	var reply string
	e.sessions.Do(phone, func(st *session.State) {
		e.rehydrate(ctx, st)
		reply = e.handle(ctx, st, msg.Name, text)
		st.History.Append(domain.ConversationTurn{Role: domain.RoleUser, Content: text, Timestamp: now})
		st.History.Append(domain.ConversationTurn{Role: domain.RoleAssistant, Content: reply, Timestamp: time.Now()})
	})

	e.record(ctx, phone, events.DirectionInbound, text, now)
	e.deliver(ctx, phone, reply)
}

// rehydrate refills a fresh session's turn window from the conversation
// mirror, so an identity evicted between messages keeps its prompt
// context. Mirror failures leave the window empty; the next message
// retries.
func (e *Engine) rehydrate(ctx context.Context, st *session.State) {
	if st.Hydrated {
		return
	}
	turns, err := e.repo.RecentConversation(ctx, st.Phone, e.historyLimit)
	if err != nil {
		slog.Warn("history rehydration failed", "phone", st.Phone, "error", err)
		return
	}
	st.Hydrated = true
	for _, turn := range turns {
		st.History.Append(turn)
	}
}

func (e *Engine) handle(ctx context.Context, st *session.State, profileName, text string) string {
	if _, err := identity.EnsureMember(ctx, e.repo, st.Phone, profileName); err != nil {
		slog.Error("ensure member failed", "phone", st.Phone, "error", err)
		return storeApology
	}

	// An active wizard owns the turn.
	if st.Wizard.Active() {
		return e.wizardStep(ctx, st, text)
	}

	if reply, handled := e.tryConfirm(ctx, st, text); handled {
		return reply
	}

	if m := addMemberPattern.FindStringSubmatch(text); m != nil {
		return e.Invite(ctx, st.Phone, identity.NormalizePhone(m[1]), strings.TrimSpace(m[2]))
	}
	if decision, ok := parseYesNo(text); ok {
		if reply, handled := e.RespondToInvite(ctx, st.Phone, decision); handled {
			return reply
		}
	}

	if groupEntryPattern.MatchString(text) {
		return e.startGroupWizard(st)
	}
	if nameEntryPattern.MatchString(text) {
		return e.startNameWizard(st)
	}

	if it, ok := intent.Classify(text); ok {
		switch it.Kind {
		case intent.Payment, intent.NameUpdate, intent.CreateGroup, intent.JoinGroup:
			return e.propose(st, it)
		case intent.LeaderConfirmPayment:
			return e.resolvePayment(ctx, st.Phone, it.PaymentRef, true)
		case intent.LeaderRejectPayment:
			return e.resolvePayment(ctx, st.Phone, it.PaymentRef, false)
		}
	}

	snap := e.snapshots.Build(ctx, st.Phone)
	history := st.History.Recent(e.historyLimit)
	return e.replier.Reply(ctx, snap.Render(), history, text)
}

// deliver sends the reply to the identity, mirrors it to the backing
// store, and surfaces it on the monitor feed. Send failures are logged and
// swallowed; they never escape to the webhook handler.
func (e *Engine) deliver(ctx context.Context, phone, body string) {
	if body == "" {
		return
	}
	if err := e.sender.Send(ctx, phone, body); err != nil {
		slog.Warn("outbound send failed", "to", phone, "error", err)
	}
	e.record(ctx, phone, events.DirectionOutbound, body, time.Now())
}

// notify sends a side-channel message to a party other than the current
// sender (leader transcripts, invite prompts).
func (e *Engine) notify(ctx context.Context, to, body string) {
	if err := e.sender.Send(ctx, to, body); err != nil {
		slog.Warn("notification send failed", "to", to, "error", err)
	}
	e.record(ctx, to, events.DirectionOutbound, body, time.Now())
}

// record mirrors one turn to the conversation_history table, the monitor
// feed, and the audit log. Mirror failures are logged, never surfaced.
func (e *Engine) record(ctx context.Context, phone, direction, content string, at time.Time) {
	role := domain.RoleUser
	if direction == events.DirectionOutbound {
		role = domain.RoleAssistant
	}
	if err := e.repo.AppendConversationTurn(ctx, phone, domain.ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: at,
	}); err != nil {
		slog.Warn("conversation mirror failed", "phone", phone, "error", err)
	}

	if e.hub != nil {
		e.hub.Publish(events.NewEvent(phone, direction, content))
	}
	if e.audit != nil {
		e.audit.Log(convlog.Event{Phone: phone, Direction: direction, Content: content, At: at})
	}
}

var yesWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "accept": true,
}

var noWords = map[string]bool{
	"no": true, "n": true, "nope": true, "decline": true,
}

func parseYesNo(text string) (accept bool, ok bool) {
	word := strings.ToLower(strings.TrimSpace(text))
	if yesWords[word] {
		return true, true
	}
	if noWords[word] {
		return false, true
	}
	return false, false
}
