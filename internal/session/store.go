// Package session provides keyed per-identity conversation state: the
// wizard form in progress, the pending confirmable action, and the
// short-term message window. All of it is engine-private; the backing
// store never sees these.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
)

// WizardMode identifies the current step of a multi-turn form.
type WizardMode string

// Wizard step names. Group creation steps advance strictly in the order
// listed; a step can never be entered unless the previous step's field is
// already collected.
const (
	WizardNone             WizardMode = ""
	WizardNameCollect      WizardMode = "name_collect"
	WizardGroupName        WizardMode = "group_name"
	WizardGroupDescription WizardMode = "group_description"
	WizardGroupStartDate   WizardMode = "group_start_date"
	WizardGroupEndDate     WizardMode = "group_end_date"
	WizardGroupReminder    WizardMode = "group_reminder"
)

// WizardState holds the step in progress and the partial record collected
// so far.
type WizardState struct {
	Mode WizardMode
	Data map[string]string
}

// Active reports whether a wizard owns the identity's next turn.
func (w *WizardState) Active() bool {
	return w.Mode != WizardNone
}

// Reset returns the wizard to the idle state, dropping partial input.
func (w *WizardState) Reset() {
	w.Mode = WizardNone
	w.Data = nil
}

// Set stores a collected field value.
func (w *WizardState) Set(key, value string) {
	if w.Data == nil {
		w.Data = make(map[string]string)
	}
	w.Data[key] = value
}

// ActionKind identifies a confirmable state-mutating action.
type ActionKind string

// Confirmable action kinds.
const (
	ActionPayment     ActionKind = "payment"
	ActionNameUpdate  ActionKind = "name_update"
	ActionCreateGroup ActionKind = "create_group"
	ActionJoinGroup   ActionKind = "join_group"
)

// PendingAction is a proposed mutation awaiting an explicit confirmation
// reply. At most one exists per identity; a new proposal overwrites it.
type PendingAction struct {
	Kind      ActionKind
	Amount    float64
	Name      string
	GroupName string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the confirmation window has closed.
func (a *PendingAction) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// State is the mutable per-identity session record. Callers must only
// touch it inside Store.Do for that identity.
type State struct {
	Phone    string
	Wizard   WizardState
	Pending  *PendingAction
	History  *TurnRing
	Hydrated bool
	LastSeen time.Time

	mu sync.Mutex
}

// PendingAction returns the outstanding action, treating an expired one as
// absent and clearing it.
func (st *State) PendingAction(now time.Time) *PendingAction {
	if st.Pending == nil {
		return nil
	}
	if st.Pending.Expired(now) {
		st.Pending = nil
		return nil
	}
	return st.Pending
}

// Store is the keyed session store. Distinct identities proceed fully in
// parallel; all transitions for one identity are serialized through Do.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*State
	historySize int
}

// NewStore creates a session store whose per-identity message window holds
// at most historySize turns.
func NewStore(historySize int) *Store {
	return &Store{
		sessions:    make(map[string]*State),
		historySize: historySize,
	}
}

func (s *Store) get(phone string) *State {
	s.mu.RLock()
	st, ok := s.sessions[phone]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[phone]; ok {
		return st
	}
	st = &State{
		Phone:    phone,
		History:  NewTurnRing(s.historySize),
		LastSeen: time.Now(),
	}
	s.sessions[phone] = st
	return st
}

// Do runs fn holding the identity's session lock. Two concurrent webhook
// deliveries for the same phone cannot interleave wizard steps or consume
// the same pending action twice. A state the sweeper evicted between the
// map fetch and the lock is discarded and fetched again; fn only ever runs
// on the state currently in the map.
func (s *Store) Do(phone string, fn func(*State)) {
	for {
		st := s.get(phone)
		st.mu.Lock()

		s.mu.RLock()
		live := s.sessions[phone] == st
		s.mu.RUnlock()
		if !live {
			st.mu.Unlock()
			continue
		}

		st.LastSeen = time.Now()
		fn(st)
		st.mu.Unlock()
		return
	}
}

// History returns the identity's turn window, oldest first.
func (s *Store) History(phone string) []domain.ConversationTurn {
	return s.get(phone).History.Turns()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

const evictionInterval = 5 * time.Minute

// StartEviction runs a background goroutine that periodically sweeps idle
// sessions out of memory. Backing-store state is untouched; an evicted
// identity simply starts with a fresh window on its next message.
func (s *Store) StartEviction(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(evictionInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("session eviction started", "interval", evictionInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if evicted := s.EvictIdle(ttl); evicted > 0 {
					slog.Info("evicted idle sessions", "count", evicted)
				}
			case <-ctx.Done():
				slog.Info("session eviction shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// EvictIdle removes sessions idle for longer than ttl and reports how
// many were dropped. Sessions mid-wizard are kept regardless of age.
func (s *Store) EvictIdle(ttl time.Duration) int {
	threshold := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for phone, st := range s.sessions {
		// Skip sessions mid-transition; they are picked up next sweep.
		if !st.mu.TryLock() {
			continue
		}
		// Remove while still holding the state lock, so a delivery that
		// fetched this state before the sweep sees the map change when it
		// acquires the lock and re-checks.
		if st.LastSeen.Before(threshold) && !st.Wizard.Active() {
			delete(s.sessions, phone)
			evicted++
		}
		st.mu.Unlock()
	}
	return evicted
}
