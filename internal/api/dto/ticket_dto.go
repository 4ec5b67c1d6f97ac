package dto

import (
	"time"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/service"
)

// TicketSummary response.
type TicketSummary struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Username  string                `json:"username"`
	AvatarURL string                `json:"avatar_url,omitempty"`
	GuildID   string                `json:"guild_id"`
	ChannelID string                `json:"channel_id"`
	Status    domain.TicketStatus   `json:"status"`
	Priority  domain.TicketPriority `json:"priority"`
	Category  *string               `json:"category,omitempty"`
	ClaimedBy *string               `json:"claimed_by,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	ClosedAt  *time.Time            `json:"closed_at,omitempty"`
}

// TicketDetail provides full ticket info.
type TicketDetail struct {
	TicketSummary
	ClaimedAt *time.Time        `json:"claimed_at,omitempty"`
	ClosedBy  *string           `json:"closed_by,omitempty"`
	Notes     []TicketNote      `json:"notes"`
	Messages  []MessageResponse `json:"messages"`
}

// TicketNote response.
type TicketNote struct {
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse represents one relayed message.
type MessageResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments"`
	IsStaff     bool      `json:"is_staff"`
	CreatedAt   time.Time `json:"created_at"`
}

// AddNoteRequest payload.
type AddNoteRequest struct {
	Body string `json:"body"`
}

// FromEntry maps a service entry to a summary.
func FromEntry(entry service.TicketEntry) TicketSummary {
	return TicketSummary{
		ID:        entry.Ticket.ID,
		UserID:    entry.Ticket.UserID,
		Username:  entry.User.Username,
		AvatarURL: entry.User.AvatarURL,
		GuildID:   entry.Ticket.GuildID,
		ChannelID: entry.Ticket.ChannelID,
		Status:    entry.Ticket.Status,
		Priority:  entry.Ticket.Priority,
		Category:  entry.Ticket.Category,
		ClaimedBy: entry.Ticket.ClaimedBy,
		CreatedAt: entry.Ticket.CreatedAt,
		ClosedAt:  entry.Ticket.ClosedAt,
	}
}

// FromDetail maps a service detail to the full response.
func FromDetail(detail *service.TicketDetail) TicketDetail {
	out := TicketDetail{
		TicketSummary: FromEntry(service.TicketEntry{Ticket: detail.Ticket, User: detail.User}),
		ClaimedAt:     detail.Ticket.ClaimedAt,
		ClosedBy:      detail.Ticket.ClosedBy,
		Notes:         make([]TicketNote, 0, len(detail.Ticket.Notes)),
		Messages:      make([]MessageResponse, 0, len(detail.Messages)),
	}
	for _, note := range detail.Ticket.Notes {
		out.Notes = append(out.Notes, TicketNote{
			AuthorID:  note.AuthorID,
			Body:      note.Body,
			CreatedAt: note.CreatedAt,
		})
	}
	for _, msg := range detail.Messages {
		out.Messages = append(out.Messages, MessageResponse{
			ID:          msg.ID,
			AuthorID:    msg.AuthorID,
			Body:        msg.Body,
			Attachments: msg.Attachments,
			IsStaff:     msg.IsStaff,
			CreatedAt:   msg.CreatedAt,
		})
	}
	return out
}
