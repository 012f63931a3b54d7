package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo.(*SQLiteStore)
}

func newTestMember(phone string) *domain.Member {
	now := time.Now()
	return &domain.Member{
		Phone:     phone,
		Status:    domain.MemberPending,
		JoinedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemberLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	phone := "+2348012345678"

	got, err := s.GetMember(ctx, phone)
	if err != nil {
		t.Fatalf("GetMember() error: %v", err)
	}
	if got != nil {
		t.Fatalf("GetMember() = %+v, want nil for missing row", got)
	}

	if err := s.CreateMember(ctx, newTestMember(phone)); err != nil {
		t.Fatalf("CreateMember() error: %v", err)
	}
	if err := s.CreateMember(ctx, newTestMember(phone)); err == nil {
		t.Error("duplicate CreateMember() succeeded")
	}

	got, err = s.GetMember(ctx, phone)
	if err != nil || got == nil {
		t.Fatalf("GetMember() = %+v, %v", got, err)
	}
	if got.Status != domain.MemberPending || got.GroupID != 0 {
		t.Errorf("member = %+v", got)
	}

	if err := s.UpdateMemberName(ctx, phone, "Amina"); err != nil {
		t.Fatalf("UpdateMemberName() error: %v", err)
	}
	got, _ = s.GetMember(ctx, phone)
	if got.Name != "Amina" {
		t.Errorf("Name = %q", got.Name)
	}

	if err := s.UpdateMemberName(ctx, "+2348099999999", "Ghost"); err == nil {
		t.Error("UpdateMemberName() on missing member succeeded")
	}
}

func TestGroupNameUniqueness(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	group := &domain.Group{Name: "Savers Circle", LeaderPhone: "+1", Active: true, CreatedAt: time.Now()}
	id, err := s.CreateGroup(ctx, group)
	if err != nil {
		t.Fatalf("CreateGroup() error: %v", err)
	}
	if id == 0 {
		t.Error("CreateGroup() returned id 0")
	}

	// Uniqueness is case-insensitive.
	_, err = s.CreateGroup(ctx, &domain.Group{Name: "savers circle", LeaderPhone: "+2", CreatedAt: time.Now()})
	if !errors.Is(err, ErrDuplicateGroupName) {
		t.Errorf("duplicate CreateGroup() error = %v, want ErrDuplicateGroupName", err)
	}

	got, err := s.GetGroupByName(ctx, "SAVERS CIRCLE")
	if err != nil || got == nil {
		t.Fatalf("GetGroupByName() = %+v, %v", got, err)
	}
	if got.ID != id || !got.Active {
		t.Errorf("group = %+v", got)
	}

	byLeader, err := s.GetGroupByLeader(ctx, "+1")
	if err != nil || byLeader == nil || byLeader.ID != id {
		t.Errorf("GetGroupByLeader() = %+v, %v", byLeader, err)
	}
	if none, _ := s.GetGroupByLeader(ctx, "+404"); none != nil {
		t.Errorf("GetGroupByLeader(unknown) = %+v, want nil", none)
	}
}

func TestAssignMemberGroup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	phone := "+2348012345678"

	if err := s.CreateMember(ctx, newTestMember(phone)); err != nil {
		t.Fatal(err)
	}
	id, err := s.CreateGroup(ctx, &domain.Group{Name: "G", LeaderPhone: "+1", CreatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.AssignMemberGroup(ctx, phone, id); err != nil {
		t.Fatalf("AssignMemberGroup() error: %v", err)
	}
	got, _ := s.GetMember(ctx, phone)
	if got.GroupID != id || got.Status != domain.MemberActive {
		t.Errorf("member = %+v, want group %d and active", got, id)
	}

	if err := s.AssignMemberGroup(ctx, "+404", id); err == nil {
		t.Error("AssignMemberGroup() on missing member succeeded")
	}
}

func TestJoinRequestQueue(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	member := "+2348012345678"

	if none, err := s.GetOldestPendingJoinRequest(ctx, member); err != nil || none != nil {
		t.Fatalf("GetOldestPendingJoinRequest() = %+v, %v, want nil", none, err)
	}

	base := time.Now().Add(-time.Hour)
	first, err := s.CreateJoinRequest(ctx, &domain.JoinRequest{
		MemberPhone: member, LeaderPhone: "+1", GroupID: 1,
		Status: domain.JoinPending, RequestedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJoinRequest(ctx, &domain.JoinRequest{
		MemberPhone: member, LeaderPhone: "+2", GroupID: 2,
		Status: domain.JoinPending, RequestedAt: base.Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	// Oldest pending request wins.
	oldest, err := s.GetOldestPendingJoinRequest(ctx, member)
	if err != nil || oldest == nil {
		t.Fatalf("GetOldestPendingJoinRequest() = %+v, %v", oldest, err)
	}
	if oldest.ID != first || oldest.GroupID != 1 {
		t.Errorf("oldest = %+v, want request %d", oldest, first)
	}

	if err := s.SetJoinRequestStatus(ctx, first, domain.JoinApproved); err != nil {
		t.Fatalf("SetJoinRequestStatus() error: %v", err)
	}

	// Resolving the oldest surfaces the next one.
	next, _ := s.GetOldestPendingJoinRequest(ctx, member)
	if next == nil || next.GroupID != 2 {
		t.Errorf("next = %+v, want group 2", next)
	}

	// The (member, group) pending lookup no longer matches a resolved row.
	if dup, _ := s.GetPendingJoinRequest(ctx, member, 1); dup != nil {
		t.Errorf("GetPendingJoinRequest(resolved) = %+v, want nil", dup)
	}
	if dup, _ := s.GetPendingJoinRequest(ctx, member, 2); dup == nil {
		t.Error("GetPendingJoinRequest(pending) = nil, want the open request")
	}
}

func TestPendingPaymentLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	payment := &domain.PendingPayment{
		Ref:         "ab12cd34",
		MemberPhone: "+2348012345678",
		LeaderPhone: "+2348000000001",
		GroupID:     1,
		Amount:      5000,
		Status:      domain.PaymentPending,
		CreatedAt:   time.Now(),
	}
	if err := s.CreatePendingPayment(ctx, payment); err != nil {
		t.Fatalf("CreatePendingPayment() error: %v", err)
	}

	got, err := s.GetPendingPayment(ctx, "ab12cd34")
	if err != nil || got == nil {
		t.Fatalf("GetPendingPayment() = %+v, %v", got, err)
	}
	if got.Amount != 5000 || got.Status != domain.PaymentPending || got.RespondedAt != nil {
		t.Errorf("payment = %+v", got)
	}

	if err := s.SetPendingPaymentStatus(ctx, "ab12cd34", domain.PaymentConfirmed); err != nil {
		t.Fatalf("SetPendingPaymentStatus() error: %v", err)
	}
	got, _ = s.GetPendingPayment(ctx, "ab12cd34")
	if got.Status != domain.PaymentConfirmed || got.RespondedAt == nil {
		t.Errorf("resolved payment = %+v", got)
	}

	if err := s.SetPendingPaymentStatus(ctx, "missing", domain.PaymentRejected); err == nil {
		t.Error("SetPendingPaymentStatus() on missing ref succeeded")
	}
	if none, _ := s.GetPendingPayment(ctx, "missing"); none != nil {
		t.Errorf("GetPendingPayment(missing) = %+v, want nil", none)
	}
}

func TestGetCurrentCycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	seed := `INSERT INTO cycles (group_id, number, start_date, end_date, recipient_phone) VALUES
		(1, 1, '2026-07-01', '2026-07-31', '+1'),
		(1, 2, '2026-08-01', '2026-08-31', '+2'),
		(2, 1, '2026-08-01', '2026-08-31', '+3')`
	if _, err := s.db.ExecContext(ctx, seed); err != nil {
		t.Fatalf("seed cycles: %v", err)
	}

	cycle, err := s.GetCurrentCycle(ctx, 1, "2026-08-15")
	if err != nil || cycle == nil {
		t.Fatalf("GetCurrentCycle() = %+v, %v", cycle, err)
	}
	if cycle.Number != 2 || cycle.RecipientPhone != "+2" {
		t.Errorf("cycle = %+v", cycle)
	}

	// Window edges are inclusive.
	if edge, _ := s.GetCurrentCycle(ctx, 1, "2026-08-31"); edge == nil || edge.Number != 2 {
		t.Errorf("edge cycle = %+v", edge)
	}
	if gap, _ := s.GetCurrentCycle(ctx, 1, "2026-09-01"); gap != nil {
		t.Errorf("GetCurrentCycle(gap) = %+v, want nil", gap)
	}
}

func TestGetPendingReminders(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	phone := "+2348012345678"

	seed := `INSERT INTO reminders (phone, group_id, message, due_date, sent) VALUES
		(?, 1, 'Second contribution', '2026-09-08', 0),
		(?, 1, 'First contribution', '2026-09-01', 0),
		(?, 1, 'Old reminder', '2026-08-01', 1),
		('+404', 1, 'Someone else', '2026-09-01', 0)`
	if _, err := s.db.ExecContext(ctx, seed, phone, phone, phone); err != nil {
		t.Fatalf("seed reminders: %v", err)
	}

	reminders, err := s.GetPendingReminders(ctx, phone)
	if err != nil {
		t.Fatalf("GetPendingReminders() error: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("reminders = %d, want 2 unsent for this phone", len(reminders))
	}
	// Ordered by due date.
	if reminders[0].Message != "First contribution" || reminders[1].Message != "Second contribution" {
		t.Errorf("order = %q, %q", reminders[0].Message, reminders[1].Message)
	}
}

func TestConversationHistoryOrdering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	phone := "+2348012345678"
	now := time.Now()

	turns := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "m1", Timestamp: now},
		{Role: domain.RoleAssistant, Content: "m2", Timestamp: now},
		{Role: domain.RoleUser, Content: "m3", Timestamp: now},
		{Role: domain.RoleAssistant, Content: "m4", Timestamp: now},
	}
	for _, turn := range turns {
		if err := s.AppendConversationTurn(ctx, phone, turn); err != nil {
			t.Fatalf("AppendConversationTurn() error: %v", err)
		}
	}

	got, err := s.RecentConversation(ctx, phone, 3)
	if err != nil {
		t.Fatalf("RecentConversation() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("turns = %d, want 3", len(got))
	}
	// Most recent three, oldest first.
	if got[0].Content != "m2" || got[2].Content != "m4" {
		t.Errorf("turns = %v", got)
	}

	if other, _ := s.RecentConversation(ctx, "+404", 10); len(other) != 0 {
		t.Errorf("foreign history = %v, want empty", other)
	}
}

func TestExecWithRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("busy then clear", func(t *testing.T) {
		calls := 0
		err := execWithRetry(ctx, "test write", func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("execWithRetry() error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("non-busy error is not retried", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("UNIQUE constraint failed: groups.name")
		err := execWithRetry(ctx, "test write", func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("execWithRetry() error = %v, want %v", err, wantErr)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		calls := 0
		err := execWithRetry(ctx, "test write", func() error {
			calls++
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		})
		if err == nil {
			t.Fatal("execWithRetry() expected error after exhausting retries")
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})
}
