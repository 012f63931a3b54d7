package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/intent"
	"github.com/adashihq/adashi-bot/internal/session"
	"github.com/adashihq/adashi-bot/internal/store"
)

// confirmWords is the fixed confirmation vocabulary. Matching is
// case-insensitive and whitespace-tolerant.
var confirmWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "confirm": true,
	"correct": true, "ok": true, "okay": true, "sure": true,
	"proceed": true, "go ahead": true,
}

func isConfirmation(text string) bool {
	return confirmWords[strings.ToLower(strings.TrimSpace(text))]
}

// propose arms the confirmation gate with a new pending action. Any prior
// proposal is overwritten; the last proposal wins.
func (e *Engine) propose(st *session.State, it intent.Intent) string {
	now := time.Now()
	action := &session.PendingAction{
		CreatedAt: now,
		ExpiresAt: now.Add(e.confirmTTL),
	}

	switch it.Kind {
	case intent.Payment:
		action.Kind = session.ActionPayment
		action.Amount = it.Amount
		st.Pending = action
		return fmt.Sprintf("You want to record a payment of ₦%s. Is that right? Reply 'yes' to confirm.", formatAmount(it.Amount))
	case intent.NameUpdate:
		action.Kind = session.ActionNameUpdate
		action.Name = it.Name
		st.Pending = action
		return fmt.Sprintf("You want me to call you %s. Is that right? Reply 'yes' to confirm.", it.Name)
	case intent.CreateGroup:
		action.Kind = session.ActionCreateGroup
		action.GroupName = it.GroupName
		st.Pending = action
		return fmt.Sprintf("You want to create the group %q. Is that right? Reply 'yes' to confirm.", it.GroupName)
	case intent.JoinGroup:
		action.Kind = session.ActionJoinGroup
		action.GroupName = it.GroupName
		st.Pending = action
		return fmt.Sprintf("You want to join the group %q. Is that right? Reply 'yes' to confirm.", it.GroupName)
	default:
		return storeApology
	}
}

// tryConfirm consumes a confirmation reply against the outstanding pending
// action. Non-matching text leaves the action untouched and lets the
// message flow on to the other paths; expired actions are treated as
// absent.
func (e *Engine) tryConfirm(ctx context.Context, st *session.State, text string) (string, bool) {
	action := st.PendingAction(time.Now())
	if action == nil {
		return "", false
	}
	if !isConfirmation(text) {
		return "", false
	}

	st.Pending = nil
	return e.execute(ctx, st, action), true
}

// execute applies a confirmed action against the backing store. Every
// branch ends in a user-visible message; executing silently is not
// acceptable.
func (e *Engine) execute(ctx context.Context, st *session.State, action *session.PendingAction) string {
	switch action.Kind {
	case session.ActionPayment:
		return e.executePayment(ctx, st.Phone, action.Amount)
	case session.ActionNameUpdate:
		if err := e.repo.UpdateMemberName(ctx, st.Phone, action.Name); err != nil {
			slog.Error("confirmed name update failed", "phone", st.Phone, "error", err)
			return "I couldn't save your name just now. Please try again."
		}
		return fmt.Sprintf("Done. I'll call you %s from now on.", action.Name)
	case session.ActionCreateGroup:
		return e.executeCreateGroup(ctx, st.Phone, action.GroupName)
	case session.ActionJoinGroup:
		return e.executeJoinGroup(ctx, st.Phone, action.GroupName)
	default:
		return storeApology
	}
}

// executePayment records a not-yet-applied pending payment addressed to
// the sender's leader and sends the leader the confirm/reject transcript.
func (e *Engine) executePayment(ctx context.Context, phone string, amount float64) string {
	member, err := e.repo.GetMember(ctx, phone)
	if err != nil {
		slog.Error("payment member lookup failed", "phone", phone, "error", err)
		return storeApology
	}
	if member == nil || !member.InGroup() {
		return "You're not linked to a leader yet, so I can't record payments for you. Join a group first: ask your leader to add you, or say 'join group <name>'."
	}

	group, err := e.repo.GetGroup(ctx, member.GroupID)
	if err != nil {
		slog.Error("payment group lookup failed", "phone", phone, "group_id", member.GroupID, "error", err)
		return storeApology
	}
	if group == nil {
		return "You're not linked to a leader yet, so I can't record payments for you. Join a group first: ask your leader to add you, or say 'join group <name>'."
	}

	ref := newPaymentRef()
	payment := &domain.PendingPayment{
		Ref:         ref,
		MemberPhone: phone,
		LeaderPhone: group.LeaderPhone,
		GroupID:     group.ID,
		Amount:      amount,
		Status:      domain.PaymentPending,
		CreatedAt:   time.Now(),
	}
	if err := e.repo.CreatePendingPayment(ctx, payment); err != nil {
		slog.Error("pending payment creation failed", "phone", phone, "ref", ref, "error", err)
		return "I couldn't record your payment just now. Please try again."
	}

	e.notify(ctx, group.LeaderPhone, fmt.Sprintf(
		"%s reports a payment of ₦%s to %q. Reply 'confirm payment %s' or 'reject payment %s'.",
		member.DisplayName(), formatAmount(amount), group.Name, ref, ref))

	return fmt.Sprintf("Got it. Payment of ₦%s recorded, pending your leader's confirmation. Reference: %s",
		formatAmount(amount), ref)
}

// executeCreateGroup creates the named group. A sender who already leads a
// group gets their existing group back instead of an error.
func (e *Engine) executeCreateGroup(ctx context.Context, phone, name string) string {
	existing, err := e.repo.GetGroupByLeader(ctx, phone)
	if err != nil {
		slog.Error("leader group lookup failed", "phone", phone, "error", err)
		return storeApology
	}
	if existing != nil {
		return fmt.Sprintf("You already lead the group %q, and it's one group per leader. You can invite members with: add <phone> to %s", existing.Name, existing.Name)
	}

	group := &domain.Group{
		Name:        name,
		LeaderPhone: phone,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	id, err := e.repo.CreateGroup(ctx, group)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateGroupName) {
			return fmt.Sprintf("A group called %q already exists. Try a different name.", name)
		}
		slog.Error("group creation failed", "phone", phone, "name", name, "error", err)
		return "I couldn't create the group just now. Please try again."
	}

	if err := e.repo.AssignMemberGroup(ctx, phone, id); err != nil {
		slog.Error("leader assignment failed after group creation", "phone", phone, "group_id", id, "error", err)
		return fmt.Sprintf("Your group %q was created, but I couldn't link you to it. Please message me again so I can finish setting you up.", name)
	}
	return fmt.Sprintf("Your group %q is ready! You are the leader. Invite members with: add <phone> to %s", name, name)
}

// executeJoinGroup places the sender directly into the named group and
// notifies the leader.
func (e *Engine) executeJoinGroup(ctx context.Context, phone, name string) string {
	group, err := e.repo.GetGroupByName(ctx, name)
	if err != nil {
		slog.Error("join group lookup failed", "phone", phone, "name", name, "error", err)
		return storeApology
	}
	if group == nil {
		return fmt.Sprintf("I couldn't find a group called %q. Check the name with your leader and try again.", name)
	}

	member, err := e.repo.GetMember(ctx, phone)
	if err != nil {
		slog.Error("join member lookup failed", "phone", phone, "error", err)
		return storeApology
	}
	if member != nil && member.GroupID == group.ID {
		return fmt.Sprintf("You're already a member of %q.", group.Name)
	}
	if member != nil && member.InGroup() {
		return "You're already in a group. Leaving and switching groups isn't supported yet. Talk to your leader."
	}

	if err := e.repo.AssignMemberGroup(ctx, phone, group.ID); err != nil {
		slog.Error("join assignment failed", "phone", phone, "group_id", group.ID, "error", err)
		return "I couldn't add you to the group just now. Please try again."
	}

	e.notify(ctx, group.LeaderPhone, fmt.Sprintf("%s just joined your group %q.", displayOf(member, phone), group.Name))
	return fmt.Sprintf("Welcome to %q! Your leader has been notified.", group.Name)
}

// resolvePayment handles the leader's 'confirm payment <ref>' and
// 'reject payment <ref>' commands.
func (e *Engine) resolvePayment(ctx context.Context, leaderPhone, ref string, approve bool) string {
	payment, err := e.repo.GetPendingPayment(ctx, ref)
	if err != nil {
		slog.Error("pending payment lookup failed", "ref", ref, "error", err)
		return storeApology
	}
	if payment == nil {
		return fmt.Sprintf("I can't find a pending payment with reference %s.", ref)
	}
	if payment.LeaderPhone != leaderPhone {
		return "Only the leader this payment was reported to can confirm or reject it."
	}
	if payment.Status != domain.PaymentPending {
		return fmt.Sprintf("That payment was already %s.", strings.ToLower(string(payment.Status)))
	}

	status := domain.PaymentConfirmed
	if !approve {
		status = domain.PaymentRejected
	}
	if err := e.repo.SetPendingPaymentStatus(ctx, ref, status); err != nil {
		slog.Error("pending payment status update failed", "ref", ref, "error", err)
		return storeApology
	}

	if approve {
		e.notify(ctx, payment.MemberPhone, fmt.Sprintf(
			"Your payment of ₦%s was confirmed by your leader.", formatAmount(payment.Amount)))
		return fmt.Sprintf("Payment %s confirmed. The member has been notified.", ref)
	}
	e.notify(ctx, payment.MemberPhone, fmt.Sprintf(
		"Your payment of ₦%s was rejected by your leader. Please reach out to them directly.", formatAmount(payment.Amount)))
	return fmt.Sprintf("Payment %s rejected. The member has been notified.", ref)
}

// newPaymentRef returns the short opaque handle quoted in leader commands.
func newPaymentRef() string {
	return strings.Split(uuid.NewString(), "-")[0]
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func displayOf(member *domain.Member, phone string) string {
	if member == nil {
		return "member " + phone
	}
	return member.DisplayName()
}
