// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/adashihq/adashi-bot/internal/domain"
)

// ErrDuplicateGroupName is returned when creating a group whose name is taken.
var ErrDuplicateGroupName = errors.New("group name already exists")

// Repository defines the interface for the backing record store. Table and
// field names behind it are part of the deployed contract and must stay
// stable across engine versions.
type Repository interface {
	// GetMember retrieves a member by phone. Returns (nil, nil) if absent.
	GetMember(ctx context.Context, phone string) (*domain.Member, error)

	// CreateMember inserts a new member record.
	CreateMember(ctx context.Context, member *domain.Member) error

	// UpdateMemberName sets the display name for a member.
	UpdateMemberName(ctx context.Context, phone, name string) error

	// AssignMemberGroup places a member into a group and marks them Active.
	AssignMemberGroup(ctx context.Context, phone string, groupID int64) error

	// GetGroup retrieves a group by ID. Returns (nil, nil) if absent.
	GetGroup(ctx context.Context, id int64) (*domain.Group, error)

	// GetGroupByName retrieves a group by its unique name (case-insensitive).
	GetGroupByName(ctx context.Context, name string) (*domain.Group, error)

	// GetGroupByLeader retrieves the group led by the given phone, if any.
	GetGroupByLeader(ctx context.Context, leaderPhone string) (*domain.Group, error)

	// CreateGroup inserts a new group and returns its ID.
	// Returns ErrDuplicateGroupName if the name is already taken.
	CreateGroup(ctx context.Context, group *domain.Group) (int64, error)

	// GetPendingJoinRequest finds the Pending request for a (member, group)
	// pair, if one exists.
	GetPendingJoinRequest(ctx context.Context, memberPhone string, groupID int64) (*domain.JoinRequest, error)

	// GetOldestPendingJoinRequest finds the member's oldest Pending request.
	GetOldestPendingJoinRequest(ctx context.Context, memberPhone string) (*domain.JoinRequest, error)

	// CreateJoinRequest inserts a new join request and returns its ID.
	CreateJoinRequest(ctx context.Context, req *domain.JoinRequest) (int64, error)

	// SetJoinRequestStatus resolves a join request.
	SetJoinRequestStatus(ctx context.Context, id int64, status domain.JoinRequestStatus) error

	// CreatePendingPayment inserts a pending payment record.
	CreatePendingPayment(ctx context.Context, payment *domain.PendingPayment) error

	// GetPendingPayment retrieves a pending payment by its opaque ref.
	GetPendingPayment(ctx context.Context, ref string) (*domain.PendingPayment, error)

	// SetPendingPaymentStatus resolves a pending payment.
	SetPendingPaymentStatus(ctx context.Context, ref string, status domain.PaymentStatus) error

	// GetCurrentCycle finds the group's cycle covering the given ISO date.
	GetCurrentCycle(ctx context.Context, groupID int64, date string) (*domain.Cycle, error)

	// GetPendingReminders lists unsent reminders for a phone.
	GetPendingReminders(ctx context.Context, phone string) ([]*domain.Reminder, error)

	// AppendConversationTurn mirrors one conversation turn for a phone.
	AppendConversationTurn(ctx context.Context, phone string, turn domain.ConversationTurn) error

	// RecentConversation returns up to limit most recent turns, oldest first.
	RecentConversation(ctx context.Context, phone string, limit int) ([]domain.ConversationTurn, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
