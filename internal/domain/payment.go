package domain

import (
	"time"
)

// PaymentStatus enumerates pending payment outcomes.
type PaymentStatus string

const (
	// PaymentPending awaits the leader's confirm/reject command.
	PaymentPending PaymentStatus = "Pending"
	// PaymentConfirmed was acknowledged by the leader.
	PaymentConfirmed PaymentStatus = "Confirmed"
	// PaymentRejected was disputed by the leader.
	PaymentRejected PaymentStatus = "Rejected"
)

// PendingPayment is a member-reported contribution awaiting leader
// acknowledgment. Ref is the opaque handle quoted in the leader's
// "confirm payment <ref>" / "reject payment <ref>" commands.
type PendingPayment struct {
	Ref         string        `json:"ref"`
	MemberPhone string        `json:"member_phone"`
	LeaderPhone string        `json:"leader_phone"`
	GroupID     int64         `json:"group_id"`
	Amount      float64       `json:"amount"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}
