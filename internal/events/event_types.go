package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketClaimed EventType = "ticket_claimed"
	EventTicketClosed  EventType = "ticket_closed"
	EventTicketDeleted EventType = "ticket_deleted"
	EventMessageRelay  EventType = "message_relayed"
	EventUserBlocked   EventType = "user_blocked"
)

// Event represents a lifecycle event emitted by the routing engine.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	GuildID   string    `json:"guild_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	UserID   string `json:"user_id"`
	ClosedBy string `json:"closed_by"`
}

// UserBlockedPayload payload.
type UserBlockedPayload struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// MessageRelayPayload payload.
type MessageRelayPayload struct {
	IsStaff     bool   `json:"is_staff"`
	BodyPreview string `json:"body_preview"`
}
