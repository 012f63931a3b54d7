// Package domain contains core domain types for the Adashi engine.
package domain

import (
	"time"
)

// MemberStatus enumerates member lifecycle states.
type MemberStatus string

const (
	// MemberActive is a member in good standing.
	MemberActive MemberStatus = "Active"
	// MemberPending is a member awaiting group placement.
	MemberPending MemberStatus = "Pending"
	// MemberInactive is a member that left or was removed.
	MemberInactive MemberStatus = "Inactive"
)

// Member is the profile attached to a phone identity. The phone number is
// the durable key and is immutable once first seen.
type Member struct {
	Phone     string       `json:"phone"`
	Name      string       `json:"name"`
	Status    MemberStatus `json:"status"`
	GroupID   int64        `json:"group_id,omitempty"`
	JoinedAt  time.Time    `json:"joined_at"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// InGroup returns true if the member is assigned to a group.
func (m *Member) InGroup() bool {
	return m.GroupID != 0
}

// DisplayName returns the member's name or a fallback for unnamed members.
func (m *Member) DisplayName() string {
	if m.Name == "" {
		return "member " + m.Phone
	}
	return m.Name
}
