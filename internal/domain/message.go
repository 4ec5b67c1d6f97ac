package domain

import "time"

// Message is one relayed message inside a ticket thread. Messages are
// append-only; ordering is by CreatedAt with insertion order breaking ties.
type Message struct {
	ID          string
	TicketID    string
	AuthorID    string
	Body        string
	Attachments []string
	IsStaff     bool
	CreatedAt   time.Time
}
