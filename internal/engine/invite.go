package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/identity"
)

// Invite handles the leader's "add <phone> to <group>" command: validate
// the group and leadership, require the invitee to be a known identity,
// suppress duplicate pending requests, then create the JoinRequest and
// send the invitee a YES/NO prompt.
func (e *Engine) Invite(ctx context.Context, leaderPhone, memberPhone, groupName string) string {
	group, err := e.repo.GetGroupByName(ctx, groupName)
	if err != nil {
		slog.Error("invite group lookup failed", "name", groupName, "error", err)
		return storeApology
	}
	if group == nil {
		return fmt.Sprintf("I couldn't find a group called %q.", groupName)
	}
	if !group.IsLeader(leaderPhone) {
		return fmt.Sprintf("Only the leader of %q can invite members to it.", group.Name)
	}

	if !identity.IsValidPhone(memberPhone) {
		return "That doesn't look like a phone number I can invite."
	}
	if memberPhone == leaderPhone {
		return "You lead this group already, no need to invite yourself."
	}

	member, err := e.repo.GetMember(ctx, memberPhone)
	if err != nil {
		slog.Error("invite member lookup failed", "phone", memberPhone, "error", err)
		return storeApology
	}
	if member == nil {
		return fmt.Sprintf("%s hasn't messaged this bot before, so I can't invite them yet. Ask them to send me a message first.", memberPhone)
	}
	if member.GroupID == group.ID {
		return fmt.Sprintf("%s is already a member of %q.", member.DisplayName(), group.Name)
	}

	existing, err := e.repo.GetPendingJoinRequest(ctx, memberPhone, group.ID)
	if err != nil {
		slog.Error("invite duplicate check failed", "phone", memberPhone, "group_id", group.ID, "error", err)
		return storeApology
	}
	if existing != nil {
		return fmt.Sprintf("%s has already been invited to %q and hasn't replied yet.", member.DisplayName(), group.Name)
	}

	req := &domain.JoinRequest{
		MemberPhone: memberPhone,
		LeaderPhone: leaderPhone,
		GroupID:     group.ID,
		Status:      domain.JoinPending,
		RequestedAt: time.Now(),
	}
	if _, err := e.repo.CreateJoinRequest(ctx, req); err != nil {
		slog.Error("join request creation failed", "phone", memberPhone, "group_id", group.ID, "error", err)
		return "I couldn't send that invitation just now. Please try again."
	}

	e.notify(ctx, memberPhone, fmt.Sprintf(
		"You've been invited to join the Adashi group %q. Reply YES to accept or NO to decline.", group.Name))
	return fmt.Sprintf("Invitation sent to %s. I'll let you know when they reply.", member.DisplayName())
}

// RespondToInvite applies a member's YES/NO to their oldest pending join
// request (FIFO when several exist). Returns handled=false when nothing is
// pending so an ordinary "yes" can flow on to the other paths.
func (e *Engine) RespondToInvite(ctx context.Context, memberPhone string, accept bool) (string, bool) {
	req, err := e.repo.GetOldestPendingJoinRequest(ctx, memberPhone)
	if err != nil {
		slog.Error("pending invite lookup failed", "phone", memberPhone, "error", err)
		return "", false
	}
	if req == nil {
		return "", false
	}

	group, err := e.repo.GetGroup(ctx, req.GroupID)
	if err != nil || group == nil {
		slog.Error("invite group resolve failed", "group_id", req.GroupID, "error", err)
		return storeApology, true
	}

	member, err := e.repo.GetMember(ctx, memberPhone)
	if err != nil {
		slog.Error("invite member resolve failed", "phone", memberPhone, "error", err)
		return storeApology, true
	}

	if !accept {
		if err := e.repo.SetJoinRequestStatus(ctx, req.ID, domain.JoinRejected); err != nil {
			slog.Error("join request rejection failed", "id", req.ID, "error", err)
			return storeApology, true
		}
		e.notify(ctx, req.LeaderPhone, fmt.Sprintf(
			"%s declined your invitation to %q.", displayOf(member, memberPhone), group.Name))
		return fmt.Sprintf("No problem, I've declined the invitation to %q.", group.Name), true
	}

	if err := e.repo.AssignMemberGroup(ctx, memberPhone, group.ID); err != nil {
		slog.Error("invite assignment failed", "phone", memberPhone, "group_id", group.ID, "error", err)
		return "I couldn't add you to the group just now. Please reply YES again to retry.", true
	}
	if err := e.repo.SetJoinRequestStatus(ctx, req.ID, domain.JoinApproved); err != nil {
		// Membership is already in place; the stale request row only costs
		// a duplicate notification if the member replies again.
		slog.Warn("join request approval mark failed", "id", req.ID, "error", err)
	}

	e.notify(ctx, req.LeaderPhone, fmt.Sprintf(
		"%s accepted your invitation and joined %q.", displayOf(member, memberPhone), group.Name))
	return fmt.Sprintf("Welcome to %q! Your leader has been notified.", group.Name), true
}
