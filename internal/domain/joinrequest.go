package domain

import (
	"time"
)

// JoinRequestStatus enumerates join request outcomes.
type JoinRequestStatus string

const (
	// JoinPending is a request awaiting the invitee's YES/NO reply.
	JoinPending JoinRequestStatus = "Pending"
	// JoinApproved is an accepted request.
	JoinApproved JoinRequestStatus = "Approved"
	// JoinRejected is a declined request.
	JoinRejected JoinRequestStatus = "Rejected"
)

// JoinRequest records a leader-initiated invitation of a member into a
// group. At most one Pending request may exist per (member, group) pair.
type JoinRequest struct {
	ID          int64             `json:"id"`
	MemberPhone string            `json:"member_phone"`
	LeaderPhone string            `json:"leader_phone"`
	GroupID     int64             `json:"group_id"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
}
