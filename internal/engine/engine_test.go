package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/session"
	"github.com/adashihq/adashi-bot/internal/store"
)

// memRepo is an in-memory Repository for engine tests.
type memRepo struct {
	mu         sync.Mutex
	members    map[string]*domain.Member
	groups     map[int64]*domain.Group
	nextGroup  int64
	joins      []*domain.JoinRequest
	nextJoin   int64
	payments   map[string]*domain.PendingPayment
	cycles     []*domain.Cycle
	reminders  []*domain.Reminder
	turns      map[string][]domain.ConversationTurn
	failMember bool // inject member lookup failures
}

func newMemRepo() *memRepo {
	return &memRepo{
		members:  make(map[string]*domain.Member),
		groups:   make(map[int64]*domain.Group),
		payments: make(map[string]*domain.PendingPayment),
		turns:    make(map[string][]domain.ConversationTurn),
	}
}

func (r *memRepo) GetMember(_ context.Context, phone string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMember {
		return nil, fmt.Errorf("member lookup unavailable")
	}
	if m, ok := r.members[phone]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) CreateMember(_ context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[member.Phone]; ok {
		return fmt.Errorf("UNIQUE constraint failed: members.phone")
	}
	cp := *member
	r.members[member.Phone] = &cp
	return nil
}

func (r *memRepo) UpdateMemberName(_ context.Context, phone, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[phone]
	if !ok {
		return fmt.Errorf("member not found: %s", phone)
	}
	m.Name = name
	return nil
}

func (r *memRepo) AssignMemberGroup(_ context.Context, phone string, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[phone]
	if !ok {
		return fmt.Errorf("member not found: %s", phone)
	}
	m.GroupID = groupID
	m.Status = domain.MemberActive
	return nil
}

func (r *memRepo) GetGroup(_ context.Context, id int64) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) GetGroupByName(_ context.Context, name string) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if equalFold(g.Name, name) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetGroupByLeader(_ context.Context, leaderPhone string) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.LeaderPhone == leaderPhone {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateGroup(_ context.Context, group *domain.Group) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if equalFold(g.Name, group.Name) {
			return 0, store.ErrDuplicateGroupName
		}
	}
	r.nextGroup++
	group.ID = r.nextGroup
	cp := *group
	r.groups[group.ID] = &cp
	return group.ID, nil
}

func (r *memRepo) GetPendingJoinRequest(_ context.Context, memberPhone string, groupID int64) (*domain.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.joins {
		if req.MemberPhone == memberPhone && req.GroupID == groupID && req.Status == domain.JoinPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetOldestPendingJoinRequest(_ context.Context, memberPhone string) (*domain.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.joins {
		if req.MemberPhone == memberPhone && req.Status == domain.JoinPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateJoinRequest(_ context.Context, req *domain.JoinRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextJoin++
	req.ID = r.nextJoin
	cp := *req
	r.joins = append(r.joins, &cp)
	return req.ID, nil
}

func (r *memRepo) SetJoinRequestStatus(_ context.Context, id int64, status domain.JoinRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.joins {
		if req.ID == id {
			now := time.Now()
			req.Status = status
			req.RespondedAt = &now
			return nil
		}
	}
	return fmt.Errorf("join request not found: %d", id)
}

func (r *memRepo) CreatePendingPayment(_ context.Context, payment *domain.PendingPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *payment
	r.payments[payment.Ref] = &cp
	return nil
}

func (r *memRepo) GetPendingPayment(_ context.Context, ref string) (*domain.PendingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[ref]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) SetPendingPaymentStatus(_ context.Context, ref string, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[ref]
	if !ok {
		return fmt.Errorf("pending payment not found: %s", ref)
	}
	now := time.Now()
	p.Status = status
	p.RespondedAt = &now
	return nil
}

func (r *memRepo) GetCurrentCycle(_ context.Context, groupID int64, date string) (*domain.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cycles {
		if c.GroupID == groupID && c.StartDate <= date && date <= c.EndDate {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetPendingReminders(_ context.Context, phone string) ([]*domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Reminder
	for _, rem := range r.reminders {
		if rem.Phone == phone && !rem.Sent {
			cp := *rem
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) AppendConversationTurn(_ context.Context, phone string, turn domain.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[phone] = append(r.turns[phone], turn)
	return nil
}

func (r *memRepo) RecentConversation(_ context.Context, phone string, limit int) ([]domain.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.turns[phone]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

func (r *memRepo) memberSnapshot(phone string) domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[phone]; ok {
		return *m
	}
	return domain.Member{}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// fakeSender records outbound messages.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	To   string
	Body string
}

func (s *fakeSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSender) lastTo(to string) (sentMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].To == to {
			return s.sent[i], true
		}
	}
	return sentMessage{}, false
}

// fakeReplier returns a canned free-text reply and records inputs.
type fakeReplier struct {
	mu           sync.Mutex
	reply        string
	lastSnapshot string
	lastHistory  []domain.ConversationTurn
	lastText     string
	calls        int
}

func (f *fakeReplier) Reply(_ context.Context, snapshotText string, history []domain.ConversationTurn, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSnapshot = snapshotText
	f.lastHistory = append([]domain.ConversationTurn(nil), history...)
	f.lastText = text
	if f.reply == "" {
		return "llm reply"
	}
	return f.reply
}

func newTestEngine(repo *memRepo, sender *fakeSender, replier *fakeReplier) *Engine {
	return New(Deps{
		Repo:         repo,
		Sessions:     session.NewStore(20),
		Sender:       sender,
		Replier:      replier,
		ConfirmTTL:   10 * time.Minute,
		HistoryLimit: 10,
	})
}
