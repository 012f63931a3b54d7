package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/session"
	"github.com/adashihq/adashi-bot/internal/store"
)

// Wizard data keys for the group creation form.
const (
	wizName        = "name"
	wizDescription = "description"
	wizStartDate   = "start_date"
	wizEndDate     = "end_date"
)

func (e *Engine) startGroupWizard(st *session.State) string {
	st.Pending = nil
	st.Wizard = session.WizardState{Mode: session.WizardGroupName}
	return "Let's set up your group. What should it be called?"
}

func (e *Engine) startNameWizard(st *session.State) string {
	st.Pending = nil
	st.Wizard = session.WizardState{Mode: session.WizardNameCollect}
	return "What name should I call you?"
}

// wizardStep consumes one message as the value for the current step and
// advances. Steps only ever move forward in the fixed sequence or reset.
func (e *Engine) wizardStep(ctx context.Context, st *session.State, text string) string {
	switch st.Wizard.Mode {
	case session.WizardNameCollect:
		return e.collectName(ctx, st, text)

	case session.WizardGroupName:
		name := strings.TrimSpace(text)
		if name == "" {
			return "I need a name for the group. What should it be called?"
		}
		st.Wizard.Set(wizName, name)
		st.Wizard.Mode = session.WizardGroupDescription
		return fmt.Sprintf("Great, %q it is. What is the group for? (a short description)", name)

	case session.WizardGroupDescription:
		st.Wizard.Set(wizDescription, strings.TrimSpace(text))
		st.Wizard.Mode = session.WizardGroupStartDate
		return "When does the group start? (e.g. 2026-09-01, or 'today')"

	case session.WizardGroupStartDate:
		st.Wizard.Set(wizStartDate, normalizeDate(text))
		st.Wizard.Mode = session.WizardGroupEndDate
		return "When does it end? (a date, or 'none' if open-ended)"

	case session.WizardGroupEndDate:
		st.Wizard.Set(wizEndDate, normalizeEndDate(text))
		st.Wizard.Mode = session.WizardGroupReminder
		return "How often should contribution reminders go out? (e.g. daily, weekly, monthly)"

	case session.WizardGroupReminder:
		return e.finalizeGroup(ctx, st, text)

	default:
		st.Wizard.Reset()
		return storeApology
	}
}

func (e *Engine) collectName(ctx context.Context, st *session.State, text string) string {
	name := strings.TrimSpace(text)
	if len(name) < 2 || len(name) > 40 {
		return "That doesn't look like a name I can use. What should I call you? (2-40 characters)"
	}

	st.Wizard.Reset()
	if err := e.repo.UpdateMemberName(ctx, st.Phone, name); err != nil {
		slog.Error("wizard name update failed", "phone", st.Phone, "error", err)
		return storeApology
	}
	return fmt.Sprintf("Done. I'll call you %s from now on.", name)
}

// finalizeGroup creates the group from the accumulated form data. The
// wizard is reset before any store call so a failure never leaves the user
// stuck mid-form; they simply retry from the start.
func (e *Engine) finalizeGroup(ctx context.Context, st *session.State, text string) string {
	data := st.Wizard.Data
	st.Wizard.Reset()

	existing, err := e.repo.GetGroupByLeader(ctx, st.Phone)
	if err != nil {
		slog.Error("leader group lookup failed", "phone", st.Phone, "error", err)
		return storeApology
	}
	if existing != nil {
		return fmt.Sprintf("You already lead the group %q, and it's one group per leader. You can invite members with: add <phone> to %s", existing.Name, existing.Name)
	}

	group := &domain.Group{
		Name:              data[wizName],
		LeaderPhone:       st.Phone,
		Description:       data[wizDescription],
		StartDate:         data[wizStartDate],
		EndDate:           data[wizEndDate],
		ReminderFrequency: strings.ToLower(strings.TrimSpace(text)),
		Active:            true,
		CreatedAt:         time.Now(),
	}

	id, err := e.repo.CreateGroup(ctx, group)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateGroupName) {
			return fmt.Sprintf("A group called %q already exists. Say 'create group' to start over with a different name.", group.Name)
		}
		slog.Error("wizard group creation failed", "phone", st.Phone, "name", group.Name, "error", err)
		return "I couldn't create the group just now. Say 'create group' to try again."
	}

	if err := e.repo.AssignMemberGroup(ctx, st.Phone, id); err != nil {
		slog.Error("leader assignment failed after group creation", "phone", st.Phone, "group_id", id, "error", err)
		return fmt.Sprintf("Your group %q was created, but I couldn't link you to it. Please message me again so I can finish setting you up.", group.Name)
	}

	return fmt.Sprintf("Your group %q is ready! You are the leader, and reminders will go out %s. Invite members with: add <phone> to %s",
		group.Name, group.ReminderFrequency, group.Name)
}

// normalizeDate applies the wizard's light normalization: "today" becomes
// the current date, anything else is kept as typed.
func normalizeDate(text string) string {
	value := strings.ToLower(strings.TrimSpace(text))
	if value == "today" {
		return time.Now().Format("2006-01-02")
	}
	return strings.TrimSpace(text)
}

func normalizeEndDate(text string) string {
	value := strings.ToLower(strings.TrimSpace(text))
	if value == "none" || value == "no" {
		return ""
	}
	return normalizeDate(text)
}
