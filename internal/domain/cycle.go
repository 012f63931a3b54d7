package domain

// Cycle is one rotation period of a group: who receives the pool and when.
type Cycle struct {
	ID             int64  `json:"id"`
	GroupID        int64  `json:"group_id"`
	Number         int    `json:"number"`
	StartDate      string `json:"start_date"` // ISO date
	EndDate        string `json:"end_date"`   // ISO date
	RecipientPhone string `json:"recipient_phone"`
}

// Covers reports whether the given ISO date falls inside the cycle window.
func (c *Cycle) Covers(date string) bool {
	return c.StartDate <= date && date <= c.EndDate
}

// Reminder is a scheduled contribution nudge for one member.
type Reminder struct {
	ID      int64  `json:"id"`
	Phone   string `json:"phone"`
	GroupID int64  `json:"group_id"`
	Message string `json:"message"`
	DueDate string `json:"due_date"` // ISO date
	Sent    bool   `json:"sent"`
}
