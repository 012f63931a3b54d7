package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS members (
		phone TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		group_id INTEGER,
		joined_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL COLLATE NOCASE UNIQUE,
		leader_phone TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		reminder_frequency TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_groups_leader ON groups(leader_phone);

	CREATE TABLE IF NOT EXISTS join_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_phone TEXT NOT NULL,
		leader_phone TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		requested_at INTEGER NOT NULL,
		responded_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_join_requests_member ON join_requests(member_phone, status);

	CREATE TABLE IF NOT EXISTS pending_payments (
		ref TEXT PRIMARY KEY,
		member_phone TEXT NOT NULL,
		leader_phone TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		amount REAL NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		responded_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_pending_payments_leader ON pending_payments(leader_phone, status);

	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		recipient_phone TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_group ON cycles(group_id, start_date);

	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		message TEXT NOT NULL,
		due_date TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_phone ON reminders(phone, sent);

	CREATE TABLE IF NOT EXISTS conversation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_phone ON conversation_history(phone, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// execWithRetry runs a write with exponential backoff on SQLITE_BUSY.
// WAL mode still serializes writers; a brief lock held by a concurrent
// webhook delivery is retried rather than surfaced.
func execWithRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms
		slog.Debug("write hit a busy database, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetMember retrieves a member by phone.
func (s *SQLiteStore) GetMember(ctx context.Context, phone string) (*domain.Member, error) {
	query := `
		SELECT phone, name, status, group_id, joined_at, created_at, updated_at
		FROM members WHERE phone = ?`

	row := s.db.QueryRowContext(ctx, query, phone)

	var member domain.Member
	var groupID sql.NullInt64
	var joinedAt, createdAt, updatedAt int64

	err := row.Scan(
		&member.Phone, &member.Name, &member.Status, &groupID,
		&joinedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan member row: %w", err)
	}

	member.GroupID = groupID.Int64
	member.JoinedAt = time.Unix(joinedAt, 0)
	member.CreatedAt = time.Unix(createdAt, 0)
	member.UpdatedAt = time.Unix(updatedAt, 0)

	return &member, nil
}

// CreateMember inserts a new member record.
func (s *SQLiteStore) CreateMember(ctx context.Context, member *domain.Member) error {
	query := `
	INSERT INTO members (phone, name, status, group_id, joined_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var groupID interface{}
	if member.GroupID != 0 {
		groupID = member.GroupID
	}

	return execWithRetry(ctx, "create member", func() error {
		_, err := s.db.ExecContext(ctx, query,
			member.Phone, member.Name, member.Status, groupID,
			member.JoinedAt.Unix(), member.CreatedAt.Unix(), member.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		return nil
	})
}

// UpdateMemberName sets the display name for a member.
func (s *SQLiteStore) UpdateMemberName(ctx context.Context, phone, name string) error {
	query := `UPDATE members SET name = ?, updated_at = ? WHERE phone = ?`
	return execWithRetry(ctx, "update member name", func() error {
		result, err := s.db.ExecContext(ctx, query, name, time.Now().Unix(), phone)
		if err != nil {
			return fmt.Errorf("update member name: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("member not found: %s", phone)
		}
		return nil
	})
}

// AssignMemberGroup places a member into a group and marks them Active.
func (s *SQLiteStore) AssignMemberGroup(ctx context.Context, phone string, groupID int64) error {
	query := `UPDATE members SET group_id = ?, status = ?, updated_at = ? WHERE phone = ?`
	return execWithRetry(ctx, "assign member group", func() error {
		result, err := s.db.ExecContext(ctx, query, groupID, domain.MemberActive, time.Now().Unix(), phone)
		if err != nil {
			return fmt.Errorf("assign member group: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("member not found: %s", phone)
		}
		return nil
	})
}

func (s *SQLiteStore) scanGroup(row *sql.Row) (*domain.Group, error) {
	var group domain.Group
	var active int
	var createdAt int64

	err := row.Scan(
		&group.ID, &group.Name, &group.LeaderPhone, &group.Description,
		&group.StartDate, &group.EndDate, &group.ReminderFrequency,
		&active, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan group row: %w", err)
	}

	group.Active = active != 0
	group.CreatedAt = time.Unix(createdAt, 0)
	return &group, nil
}

const groupColumns = `id, name, leader_phone, description, start_date, end_date, reminder_frequency, active, created_at`

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = ?`
	return s.scanGroup(s.db.QueryRowContext(ctx, query, id))
}

// GetGroupByName retrieves a group by its unique name.
func (s *SQLiteStore) GetGroupByName(ctx context.Context, name string) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE name = ? COLLATE NOCASE`
	return s.scanGroup(s.db.QueryRowContext(ctx, query, name))
}

// GetGroupByLeader retrieves the group led by the given phone, if any.
func (s *SQLiteStore) GetGroupByLeader(ctx context.Context, leaderPhone string) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE leader_phone = ? ORDER BY id LIMIT 1`
	return s.scanGroup(s.db.QueryRowContext(ctx, query, leaderPhone))
}

// CreateGroup inserts a new group and returns its ID.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *domain.Group) (int64, error) {
	query := `
	INSERT INTO groups (name, leader_phone, description, start_date, end_date, reminder_frequency, active, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	active := 0
	if group.Active {
		active = 1
	}

	var id int64
	err := execWithRetry(ctx, "create group", func() error {
		result, err := s.db.ExecContext(ctx, query,
			group.Name, group.LeaderPhone, group.Description,
			group.StartDate, group.EndDate, group.ReminderFrequency,
			active, group.CreatedAt.Unix(),
		)
		if err != nil {
			if shared.IsUniqueConstraintError(err) {
				return ErrDuplicateGroupName
			}
			return fmt.Errorf("create group: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("group insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	group.ID = id
	return id, nil
}

func scanJoinRequest(row *sql.Row) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	var requestedAt int64
	var respondedAt sql.NullInt64

	err := row.Scan(
		&req.ID, &req.MemberPhone, &req.LeaderPhone, &req.GroupID,
		&req.Status, &requestedAt, &respondedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan join request row: %w", err)
	}

	req.RequestedAt = time.Unix(requestedAt, 0)
	if respondedAt.Valid {
		ts := time.Unix(respondedAt.Int64, 0)
		req.RespondedAt = &ts
	}
	return &req, nil
}

const joinRequestColumns = `id, member_phone, leader_phone, group_id, status, requested_at, responded_at`

// GetPendingJoinRequest finds the Pending request for a (member, group) pair.
func (s *SQLiteStore) GetPendingJoinRequest(ctx context.Context, memberPhone string, groupID int64) (*domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE member_phone = ? AND group_id = ? AND status = ?
		ORDER BY id LIMIT 1`
	return scanJoinRequest(s.db.QueryRowContext(ctx, query, memberPhone, groupID, domain.JoinPending))
}

// GetOldestPendingJoinRequest finds the member's oldest Pending request.
// FIFO: with multiple simultaneous invites the earliest row wins.
func (s *SQLiteStore) GetOldestPendingJoinRequest(ctx context.Context, memberPhone string) (*domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE member_phone = ? AND status = ?
		ORDER BY requested_at, id LIMIT 1`
	return scanJoinRequest(s.db.QueryRowContext(ctx, query, memberPhone, domain.JoinPending))
}

// CreateJoinRequest inserts a new join request and returns its ID.
func (s *SQLiteStore) CreateJoinRequest(ctx context.Context, req *domain.JoinRequest) (int64, error) {
	query := `
	INSERT INTO join_requests (member_phone, leader_phone, group_id, status, requested_at)
	VALUES (?, ?, ?, ?, ?)`

	var id int64
	err := execWithRetry(ctx, "create join request", func() error {
		result, err := s.db.ExecContext(ctx, query,
			req.MemberPhone, req.LeaderPhone, req.GroupID, req.Status, req.RequestedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("create join request: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("join request insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	req.ID = id
	return id, nil
}

// SetJoinRequestStatus resolves a join request.
func (s *SQLiteStore) SetJoinRequestStatus(ctx context.Context, id int64, status domain.JoinRequestStatus) error {
	query := `UPDATE join_requests SET status = ?, responded_at = ? WHERE id = ?`
	return execWithRetry(ctx, "set join request status", func() error {
		result, err := s.db.ExecContext(ctx, query, status, time.Now().Unix(), id)
		if err != nil {
			return fmt.Errorf("set join request status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("join request not found: %d", id)
		}
		return nil
	})
}

// CreatePendingPayment inserts a pending payment record.
func (s *SQLiteStore) CreatePendingPayment(ctx context.Context, payment *domain.PendingPayment) error {
	query := `
	INSERT INTO pending_payments (ref, member_phone, leader_phone, group_id, amount, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return execWithRetry(ctx, "create pending payment", func() error {
		_, err := s.db.ExecContext(ctx, query,
			payment.Ref, payment.MemberPhone, payment.LeaderPhone,
			payment.GroupID, payment.Amount, payment.Status, payment.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("create pending payment: %w", err)
		}
		return nil
	})
}

// GetPendingPayment retrieves a pending payment by its opaque ref.
func (s *SQLiteStore) GetPendingPayment(ctx context.Context, ref string) (*domain.PendingPayment, error) {
	query := `
		SELECT ref, member_phone, leader_phone, group_id, amount, status, created_at, responded_at
		FROM pending_payments WHERE ref = ?`

	row := s.db.QueryRowContext(ctx, query, ref)

	var payment domain.PendingPayment
	var createdAt int64
	var respondedAt sql.NullInt64

	err := row.Scan(
		&payment.Ref, &payment.MemberPhone, &payment.LeaderPhone,
		&payment.GroupID, &payment.Amount, &payment.Status,
		&createdAt, &respondedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending payment row: %w", err)
	}

	payment.CreatedAt = time.Unix(createdAt, 0)
	if respondedAt.Valid {
		ts := time.Unix(respondedAt.Int64, 0)
		payment.RespondedAt = &ts
	}
	return &payment, nil
}

// SetPendingPaymentStatus resolves a pending payment.
func (s *SQLiteStore) SetPendingPaymentStatus(ctx context.Context, ref string, status domain.PaymentStatus) error {
	query := `UPDATE pending_payments SET status = ?, responded_at = ? WHERE ref = ?`
	return execWithRetry(ctx, "set pending payment status", func() error {
		result, err := s.db.ExecContext(ctx, query, status, time.Now().Unix(), ref)
		if err != nil {
			return fmt.Errorf("set pending payment status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("pending payment not found: %s", ref)
		}
		return nil
	})
}

// GetCurrentCycle finds the group's cycle covering the given ISO date.
func (s *SQLiteStore) GetCurrentCycle(ctx context.Context, groupID int64, date string) (*domain.Cycle, error) {
	query := `
		SELECT id, group_id, number, start_date, end_date, recipient_phone
		FROM cycles
		WHERE group_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY number LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, groupID, date, date)

	var cycle domain.Cycle
	err := row.Scan(
		&cycle.ID, &cycle.GroupID, &cycle.Number,
		&cycle.StartDate, &cycle.EndDate, &cycle.RecipientPhone,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cycle row: %w", err)
	}
	return &cycle, nil
}

// GetPendingReminders lists unsent reminders for a phone.
func (s *SQLiteStore) GetPendingReminders(ctx context.Context, phone string) ([]*domain.Reminder, error) {
	query := `
		SELECT id, phone, group_id, message, due_date, sent
		FROM reminders WHERE phone = ? AND sent = 0
		ORDER BY due_date, id`

	rows, err := s.db.QueryContext(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		var reminder domain.Reminder
		var sent int
		if err := rows.Scan(
			&reminder.ID, &reminder.Phone, &reminder.GroupID,
			&reminder.Message, &reminder.DueDate, &sent,
		); err != nil {
			return nil, fmt.Errorf("scan reminder row: %w", err)
		}
		reminder.Sent = sent != 0
		reminders = append(reminders, &reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return reminders, nil
}

// AppendConversationTurn mirrors one conversation turn for a phone.
func (s *SQLiteStore) AppendConversationTurn(ctx context.Context, phone string, turn domain.ConversationTurn) error {
	query := `INSERT INTO conversation_history (phone, role, content, created_at) VALUES (?, ?, ?, ?)`
	return execWithRetry(ctx, "append conversation turn", func() error {
		_, err := s.db.ExecContext(ctx, query, phone, turn.Role, turn.Content, turn.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("append conversation turn: %w", err)
		}
		return nil
	})
}

// RecentConversation returns up to limit most recent turns, oldest first.
func (s *SQLiteStore) RecentConversation(ctx context.Context, phone string, limit int) ([]domain.ConversationTurn, error) {
	query := `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM conversation_history WHERE phone = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation history: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var turn domain.ConversationTurn
		var createdAt int64
		if err := rows.Scan(&turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		turn.Timestamp = time.Unix(createdAt, 0)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation history: %w", err)
	}
	return turns, nil
}
