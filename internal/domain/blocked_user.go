package domain

import "time"

// BlockedUser marks a user as barred from opening tickets.
type BlockedUser struct {
	UserID    string
	BlockedBy string
	Reason    string
	CreatedAt time.Time
}
