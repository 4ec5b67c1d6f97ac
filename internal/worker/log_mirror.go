// Package worker hosts background subscribers to routing engine events.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// LogMirror posts concise ticket lifecycle notices into a guild's configured
// log channel. Delivery is best effort; failures are logged and dropped.
type LogMirror struct {
	messenger transport.Messenger
	settings  repository.GuildSettingRepository
	logger    *zap.Logger
}

// NewLogMirror constructs the mirror.
func NewLogMirror(messenger transport.Messenger, settings repository.GuildSettingRepository, logger *zap.Logger) *LogMirror {
	return &LogMirror{messenger: messenger, settings: settings, logger: logger}
}

// Register subscribes the mirror to lifecycle events.
func (w *LogMirror) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, w.handle)
	dispatcher.Subscribe(events.EventTicketClaimed, w.handle)
	dispatcher.Subscribe(events.EventTicketClosed, w.handle)
	dispatcher.Subscribe(events.EventTicketDeleted, w.handle)
	dispatcher.Subscribe(events.EventUserBlocked, w.handle)
}

func (w *LogMirror) handle(ctx context.Context, event events.Event) error {
	if event.GuildID == "" {
		return nil
	}
	setting, err := w.settings.GetByGuild(ctx, event.GuildID)
	if err != nil || setting == nil || setting.LogChannelID == nil || *setting.LogChannelID == "" {
		return nil
	}

	content := describe(event)
	if content == "" {
		return nil
	}
	if _, err := w.messenger.SendChannelMessage(ctx, *setting.LogChannelID, transport.Outbound{Content: content}); err != nil {
		w.logger.Warn("log mirror delivery failed",
			zap.String("guild_id", event.GuildID),
			zap.String("channel_id", *setting.LogChannelID),
			zap.Error(err))
	}
	return nil
}

func describe(event events.Event) string {
	switch event.Type {
	case events.EventTicketCreated:
		return fmt.Sprintf("Ticket %s opened by <@%s>", event.TicketID, event.ActorID)
	case events.EventTicketClaimed:
		return fmt.Sprintf("Ticket %s claimed by <@%s>", event.TicketID, event.ActorID)
	case events.EventTicketClosed:
		return fmt.Sprintf("Ticket %s closed by <@%s>", event.TicketID, event.ActorID)
	case events.EventTicketDeleted:
		return fmt.Sprintf("Ticket %s deleted by <@%s>", event.TicketID, event.ActorID)
	case events.EventUserBlocked:
		if p, ok := event.Payload.(events.UserBlockedPayload); ok {
			return fmt.Sprintf("User <@%s> blocked by <@%s>: %s", p.UserID, event.ActorID, p.Reason)
		}
		return ""
	default:
		return ""
	}
}
