package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketNote is a staff annotation embedded in the ticket record.
type TicketNote struct {
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticket is the record of one support conversation between a user and a
// guild. At most one ticket per (UserID, GuildID) pair may be open at a time;
// the store enforces this with a partial unique index.
type Ticket struct {
	ID        string
	UserID    string
	GuildID   string
	ChannelID string
	Status    TicketStatus
	Priority  TicketPriority
	Category  *string
	ClaimedBy *string
	ClaimedAt *time.Time
	ClosedBy  *string
	ClosedAt  *time.Time
	Notes     []TicketNote
	CreatedAt time.Time
}

// IsOpen reports whether the ticket still accepts messages.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}
