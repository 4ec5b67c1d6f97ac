// Package engine implements the ticket lifecycle and message-routing state
// machine: find-or-create on inbound DMs, bidirectional relay, claim/close/
// delete/note operations, and recovery when a ticket's channel has vanished.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/config"
	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/observability"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/selector"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// Structured failure outcomes surfaced to chat replies and the dashboard API.
var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketClosed   = errors.New("ticket is already closed")
	ErrAlreadyClaimed = errors.New("ticket is already claimed")
	ErrEmptyNote      = errors.New("note text must not be empty")
	ErrNoDestination  = errors.New("no destination guild is configured")
)

// topicPrefix binds a staff channel to its ticket user via the channel topic.
const topicPrefix = "modmail-user:"

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	Tickets   repository.TicketRepository
	Messages  repository.MessageRepository
	Blocked   repository.BlockedUserRepository
	Settings  repository.GuildSettingRepository
	Messenger transport.Messenger
	Selector  *selector.Selector
	Dispatch  events.Dispatcher
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Bridge    config.BridgeConfig
}

// Engine is the single active routing instance.
type Engine struct {
	tickets   repository.TicketRepository
	messages  repository.MessageRepository
	blocked   repository.BlockedUserRepository
	settings  repository.GuildSettingRepository
	messenger transport.Messenger
	selector  *selector.Selector
	dispatch  events.Dispatcher
	metrics   *observability.Metrics
	logger    *zap.Logger
	bridge    config.BridgeConfig
}

// New constructs the engine.
func New(deps Dependencies) *Engine {
	return &Engine{
		tickets:   deps.Tickets,
		messages:  deps.Messages,
		blocked:   deps.Blocked,
		settings:  deps.Settings,
		messenger: deps.Messenger,
		selector:  deps.Selector,
		dispatch:  deps.Dispatch,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
	}
}

// CreateTicket provisions a staff channel and persists an open ticket for the
// user in the resolved guild. It returns nil on any failure; callers inform
// the user and never fabricate a ticket id.
func (e *Engine) CreateTicket(ctx context.Context, user transport.User, setting *domain.GuildSetting) (*domain.Ticket, error) {
	setting, err := e.resolveSetting(ctx, setting)
	if err != nil {
		return nil, err
	}

	channel, err := e.provisionChannel(ctx, user, setting)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		UserID:    user.ID,
		GuildID:   setting.GuildID,
		ChannelID: channel.ID,
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityNormal,
	}
	if err := e.tickets.Create(ctx, ticket); err != nil {
		// The row is durable only once save succeeds; remove the channel so
		// the store and the platform do not drift.
		if delErr := e.messenger.DeleteChannel(ctx, channel.ID, "ticket save failed"); delErr != nil {
			e.logger.Warn("orphan channel cleanup failed", zap.String("channel_id", channel.ID), zap.Error(delErr))
		}
		return nil, err
	}

	e.postIntro(ctx, ticket, user)
	e.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  user.ID,
		Payload:  events.TicketCreatedPayload{UserID: user.ID, ChannelID: channel.ID},
	})
	return ticket, nil
}

// resolveSetting walks the fallback chain: explicit argument, default-flagged
// configuration, any configured guild, process-wide fallback, hard failure.
func (e *Engine) resolveSetting(ctx context.Context, explicit *domain.GuildSetting) (*domain.GuildSetting, error) {
	if explicit != nil {
		return explicit, nil
	}
	if setting, err := e.settings.GetDefault(ctx); err == nil && setting != nil {
		return setting, nil
	}
	if all, err := e.settings.List(ctx); err == nil && len(all) > 0 {
		return &all[0], nil
	}
	if e.bridge.DefaultGuildID != "" {
		fallback := &domain.GuildSetting{GuildID: e.bridge.DefaultGuildID, Name: e.bridge.DefaultGuildID}
		if e.bridge.DefaultStaffRoleID != "" {
			role := e.bridge.DefaultStaffRoleID
			fallback.StaffRoleID = &role
		}
		return fallback, nil
	}
	return nil, ErrNoDestination
}

func (e *Engine) provisionChannel(ctx context.Context, user transport.User, setting *domain.GuildSetting) (*transport.Channel, error) {
	req := transport.ChannelCreate{
		Name:        channelName(user.Username, time.Now()),
		Topic:       topicPrefix + user.ID,
		DenyDefault: true,
		AllowUsers:  []string{e.messenger.BotUser().ID},
	}

	if setting.CategoryID != nil && *setting.CategoryID != "" {
		// Missing container is non-fatal; the channel lands at guild root.
		if _, err := e.messenger.FetchChannel(ctx, *setting.CategoryID); err != nil {
			e.logger.Warn("ticket category unavailable",
				zap.String("guild_id", setting.GuildID),
				zap.String("category_id", *setting.CategoryID),
				zap.Error(err))
		} else {
			req.ParentID = *setting.CategoryID
		}
	}

	staffRole := e.staffRoleFor(setting)
	if staffRole != "" {
		req.AllowRoles = []string{staffRole}
	} else {
		e.logger.Warn("no staff role configured for guild", zap.String("guild_id", setting.GuildID))
	}

	return e.messenger.CreateChannel(ctx, setting.GuildID, req)
}

func (e *Engine) staffRoleFor(setting *domain.GuildSetting) string {
	if setting.StaffRoleID != nil && *setting.StaffRoleID != "" {
		return *setting.StaffRoleID
	}
	return e.bridge.DefaultStaffRoleID
}

// postIntro drops the identity card with claim/close controls into the new
// channel. Delivery failures degrade; the ticket is already durable.
func (e *Engine) postIntro(ctx context.Context, ticket *domain.Ticket, user transport.User) {
	intro := transport.Outbound{
		Content: fmt.Sprintf("New ticket %s", ticket.ID),
		Fields: []transport.Field{
			{Name: "User", Value: fmt.Sprintf("%s (<@%s>)", user.Username, user.ID)},
			{Name: "Account age", Value: accountAge(user.CreatedAt)},
		},
		ImageURL: user.AvatarURL,
		Buttons: []transport.Button{
			{ID: "claim:" + ticket.ID, Label: "Claim"},
			{ID: "close:" + ticket.ID, Label: "Close"},
		},
	}
	if _, err := e.messenger.SendChannelMessage(ctx, ticket.ChannelID, intro); err != nil {
		e.logger.Warn("intro message delivery failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// ensureChannel verifies the ticket's bound channel still exists and
// transparently recreates it when the platform side has drifted. The ticket
// id and message history are preserved; only the channel binding changes.
func (e *Engine) ensureChannel(ctx context.Context, ticket *domain.Ticket, user transport.User) error {
	if _, err := e.messenger.FetchChannel(ctx, ticket.ChannelID); err == nil {
		return nil
	}

	e.logger.Info("ticket channel missing, recreating",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel_id", ticket.ChannelID))

	setting, err := e.settings.GetByGuild(ctx, ticket.GuildID)
	if err != nil || setting == nil {
		setting = &domain.GuildSetting{GuildID: ticket.GuildID, Name: ticket.GuildID}
	}
	channel, err := e.provisionChannel(ctx, user, setting)
	if err != nil {
		return err
	}
	ticket.ChannelID = channel.ID
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.postIntro(ctx, ticket, user)
	return nil
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.dispatch == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = e.dispatch.Publish(ctx, event)
}

// userBinding extracts the bound user id from a channel topic.
func userBinding(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) {
		return "", false
	}
	userID := strings.TrimSpace(strings.TrimPrefix(topic, topicPrefix))
	return userID, userID != ""
}

// channelName derives a unique channel name from the user's handle and the
// creation time.
func channelName(username string, now time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(username) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	handle := b.String()
	if handle == "" {
		handle = "user"
	}
	return fmt.Sprintf("%s-%d", handle, now.Unix())
}

func accountAge(created time.Time) string {
	if created.IsZero() {
		return "unknown"
	}
	days := int(time.Since(created).Hours() / 24)
	if days < 1 {
		return "less than a day"
	}
	if days < 365 {
		return fmt.Sprintf("%d days", days)
	}
	return fmt.Sprintf("%d years, %d days", days/365, days%365)
}

// notFound normalizes a repository miss to the engine's sentinel.
func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
