// Package snapshot builds the bounded fact projection that grounds
// language-model replies. Everything the model may state about a member
// must come from here.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adashihq/adashi-bot/internal/store"
)

// Unknown marks a fact that could not be resolved; None marks a fact that
// resolved to nothing. The prompt must never have to guess which is which.
const (
	Unknown = "unknown"
	None    = "none"
)

// Snapshot is a read-only, request-scoped projection of backing-store
// facts for one identity. It is rebuilt on every inbound message and never
// persisted.
type Snapshot struct {
	Phone        string
	MemberName   string
	MemberStatus string
	JoinedDate   string

	GroupName         string
	GroupDescription  string
	LeaderPhone       string
	GroupStart        string
	GroupEnd          string
	ReminderFrequency string

	CycleNumber    string
	CycleStart     string
	CycleEnd       string
	CycleRecipient string

	Reminders []string
}

// Builder assembles snapshots from the backing store.
type Builder struct {
	repo store.Repository
}

// NewBuilder creates a snapshot builder.
func NewBuilder(repo store.Repository) *Builder {
	return &Builder{repo: repo}
}

// Build assembles the snapshot for one phone. Each lookup is independently
// fault-tolerant: a failed sub-query degrades its slice to "unknown"
// instead of aborting the whole snapshot.
func (b *Builder) Build(ctx context.Context, phone string) *Snapshot {
	snap := &Snapshot{
		Phone:        phone,
		MemberName:   Unknown,
		MemberStatus: Unknown,
		JoinedDate:   Unknown,

		GroupName:         None,
		GroupDescription:  None,
		LeaderPhone:       None,
		GroupStart:        None,
		GroupEnd:          None,
		ReminderFrequency: None,

		CycleNumber:    None,
		CycleStart:     None,
		CycleEnd:       None,
		CycleRecipient: None,
	}

	var groupID int64

	member, err := b.repo.GetMember(ctx, phone)
	switch {
	case err != nil:
		slog.Warn("snapshot member lookup failed", "phone", phone, "error", err)
	case member == nil:
		snap.MemberName = None
		snap.MemberStatus = None
		snap.JoinedDate = None
	default:
		snap.MemberName = orMarker(member.Name, None)
		snap.MemberStatus = string(member.Status)
		snap.JoinedDate = member.JoinedAt.Format("2006-01-02")
		groupID = member.GroupID
	}

	if groupID != 0 {
		group, err := b.repo.GetGroup(ctx, groupID)
		switch {
		case err != nil:
			slog.Warn("snapshot group lookup failed", "phone", phone, "group_id", groupID, "error", err)
			snap.GroupName = Unknown
		case group == nil:
			// Member references a group row that no longer exists.
		default:
			snap.GroupName = group.Name
			snap.GroupDescription = orMarker(group.Description, None)
			snap.LeaderPhone = group.LeaderPhone
			snap.GroupStart = orMarker(group.StartDate, None)
			snap.GroupEnd = orMarker(group.EndDate, None)
			snap.ReminderFrequency = orMarker(group.ReminderFrequency, None)
		}

		today := time.Now().Format("2006-01-02")
		cycle, err := b.repo.GetCurrentCycle(ctx, groupID, today)
		switch {
		case err != nil:
			slog.Warn("snapshot cycle lookup failed", "phone", phone, "group_id", groupID, "error", err)
			snap.CycleNumber = Unknown
		case cycle == nil:
			// No cycle covers today.
		default:
			snap.CycleNumber = strconv.Itoa(cycle.Number)
			snap.CycleStart = cycle.StartDate
			snap.CycleEnd = cycle.EndDate
			snap.CycleRecipient = orMarker(cycle.RecipientPhone, None)
		}
	}

	reminders, err := b.repo.GetPendingReminders(ctx, phone)
	if err != nil {
		slog.Warn("snapshot reminders lookup failed", "phone", phone, "error", err)
		snap.Reminders = []string{Unknown}
	} else {
		for _, reminder := range reminders {
			snap.Reminders = append(snap.Reminders, fmt.Sprintf("%s (due %s)", reminder.Message, reminder.DueDate))
		}
	}

	return snap
}

// Render serializes the snapshot into the text block fed to the prompt.
func (s *Snapshot) Render() string {
	var b strings.Builder
	b.WriteString("MEMBER FACTS\n")
	fmt.Fprintf(&b, "phone: %s\n", s.Phone)
	fmt.Fprintf(&b, "name: %s\n", s.MemberName)
	fmt.Fprintf(&b, "status: %s\n", s.MemberStatus)
	fmt.Fprintf(&b, "joined: %s\n", s.JoinedDate)
	b.WriteString("GROUP FACTS\n")
	fmt.Fprintf(&b, "group: %s\n", s.GroupName)
	fmt.Fprintf(&b, "description: %s\n", s.GroupDescription)
	fmt.Fprintf(&b, "leader: %s\n", s.LeaderPhone)
	fmt.Fprintf(&b, "start: %s\n", s.GroupStart)
	fmt.Fprintf(&b, "end: %s\n", s.GroupEnd)
	fmt.Fprintf(&b, "reminder frequency: %s\n", s.ReminderFrequency)
	b.WriteString("CURRENT CYCLE\n")
	fmt.Fprintf(&b, "number: %s\n", s.CycleNumber)
	fmt.Fprintf(&b, "window: %s to %s\n", s.CycleStart, s.CycleEnd)
	fmt.Fprintf(&b, "recipient: %s\n", s.CycleRecipient)
	b.WriteString("PENDING REMINDERS\n")
	if len(s.Reminders) == 0 {
		b.WriteString(None + "\n")
	} else {
		for _, reminder := range s.Reminders {
			fmt.Fprintf(&b, "- %s\n", reminder)
		}
	}
	return b.String()
}

func orMarker(value, marker string) string {
	if strings.TrimSpace(value) == "" {
		return marker
	}
	return value
}
