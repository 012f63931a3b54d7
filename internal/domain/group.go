package domain

import (
	"time"
)

// Group is a rotating-savings circle. The name is unique across the system
// and the leader phone is immutable after creation.
type Group struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	LeaderPhone       string    `json:"leader_phone"`
	Description       string    `json:"description"`
	StartDate         string    `json:"start_date"`         // ISO date, may be empty
	EndDate           string    `json:"end_date"`           // ISO date, empty for open-ended
	ReminderFrequency string    `json:"reminder_frequency"` // e.g. "weekly"
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsLeader returns true if the given phone leads this group.
func (g *Group) IsLeader(phone string) bool {
	return g.LeaderPhone == phone
}
