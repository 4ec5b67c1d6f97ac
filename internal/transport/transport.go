// Package transport defines the messaging-platform contract the bridge
// depends on. The engine, selector, and role resolver are written against
// these interfaces so they can run against the live gateway or a fake.
package transport

import (
	"context"
	"time"
)

// User is platform identity metadata.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	CreatedAt time.Time
	IsBot     bool
}

// Member is a user's membership inside a specific guild.
type Member struct {
	UserID  string
	RoleIDs []string
	IsAdmin bool
}

// Channel is a group channel on the platform. Topic carries the bridge's
// binding metadata (the ticket user id).
type Channel struct {
	ID       string
	GuildID  string
	Name     string
	Topic    string
	ParentID string
}

// Field is a labeled value rendered inside a formatted message.
type Field struct {
	Name  string
	Value string
}

// Button is an interactive control attached to an outbound message.
type Button struct {
	ID    string
	Label string
}

// Outbound is a formatted message payload for either DM or channel delivery.
type Outbound struct {
	Content  string
	Fields   []Field
	ImageURL string
	Buttons  []Button
}

// ChannelCreate describes a channel to be provisioned for a ticket.
type ChannelCreate struct {
	Name        string
	Topic       string
	ParentID    string
	AllowRoles  []string
	AllowUsers  []string
	DenyDefault bool
}

// Selection is a component interaction correlated to a presented choice set.
type Selection struct {
	PromptID  string
	ActorID   string
	ChoiceID  string
	ChannelID string
	MessageID string
}

// InboundMessage is a message received from the platform, either a direct
// message or a staff channel message.
type InboundMessage struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	Author      User
	Body        string
	Attachments []string
	Timestamp   time.Time
}

// Messenger is the full platform surface the bridge consumes. Every call is
// fallible; callers degrade per-call failures rather than aborting.
type Messenger interface {
	// BotUser returns the bridge's own identity.
	BotUser() User

	// GuildIDs lists guilds the bot is currently present in.
	GuildIDs() []string

	FetchUser(ctx context.Context, userID string) (*User, error)
	FetchMember(ctx context.Context, guildID, userID string) (*Member, error)

	SendDirect(ctx context.Context, userID string, msg Outbound) (messageID string, err error)

	CreateChannel(ctx context.Context, guildID string, req ChannelCreate) (*Channel, error)
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID, reason string) error
	SendChannelMessage(ctx context.Context, channelID string, msg Outbound) (messageID string, err error)

	React(ctx context.Context, channelID, messageID, emoji string) error
}

// Handler receives inbound platform events. The gateway dispatches each
// event on its own goroutine.
type Handler interface {
	HandleDirectMessage(ctx context.Context, msg InboundMessage)
	HandleChannelMessage(ctx context.Context, msg InboundMessage)
	HandleSelection(ctx context.Context, sel Selection)
}
