package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// Claim assigns the ticket to a staff member. allowReclaim lets the dashboard
// path treat a repeat claim by the same staff id as a no-op success; the chat
// path passes false and rejects any second attempt.
func (e *Engine) Claim(ctx context.Context, ticketID, staffID string, allowReclaim bool) (*domain.Ticket, error) {
	ticket, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return ticket, ErrTicketClosed
	}
	if ticket.ClaimedBy != nil {
		if *ticket.ClaimedBy == staffID && allowReclaim {
			return ticket, nil
		}
		return ticket, ErrAlreadyClaimed
	}

	now := time.Now()
	ticket.ClaimedBy = &staffID
	ticket.ClaimedAt = &now
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	e.publish(ctx, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  staffID,
	})
	return ticket, nil
}

// Close transitions the ticket to its terminal state. Channel deletion is
// best effort; graceDelete delays it so the closure announcement can render
// before the channel vanishes.
func (e *Engine) Close(ctx context.Context, ticketID, staffID string, graceDelete bool) (*domain.Ticket, error) {
	ticket, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return ticket, ErrTicketClosed
	}

	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedBy = &staffID
	ticket.ClosedAt = &now
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	channelID := ticket.ChannelID
	if graceDelete {
		e.channelReply(ctx, channelID, "This ticket has been closed. The channel will be removed shortly.")
		time.AfterFunc(e.bridge.CloseGrace(), func() {
			if err := e.messenger.DeleteChannel(context.Background(), channelID, "ticket closed"); err != nil {
				e.logger.Warn("channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
			}
		})
	} else {
		if err := e.messenger.DeleteChannel(ctx, channelID, "ticket closed"); err != nil {
			e.logger.Warn("channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	e.directReply(ctx, ticket.UserID, "Your ticket has been closed. Message us again to open a new one.")

	e.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  staffID,
		Payload:  events.TicketClosedPayload{UserID: ticket.UserID, ClosedBy: staffID},
	})
	return ticket, nil
}

// DeleteTicket removes the ticket, its messages, and (best effort) its
// channel. Irreversible; there is no soft delete.
func (e *Engine) DeleteTicket(ctx context.Context, ticketID, actorID string) error {
	ticket, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if err := e.messenger.DeleteChannel(ctx, ticket.ChannelID, "ticket deleted"); err != nil {
		e.logger.Warn("channel delete failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
	}
	if err := e.messages.DeleteByTicket(ctx, ticket.ID); err != nil {
		return err
	}
	if err := e.tickets.Delete(ctx, ticket.ID); err != nil {
		return err
	}

	e.publish(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  actorID,
	})
	return nil
}

// AddNote appends a staff annotation to the ticket record.
func (e *Engine) AddNote(ctx context.Context, ticketID, staffID, text string) (*domain.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyNote
	}

	ticket, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.Notes = append(ticket.Notes, domain.TicketNote{
		AuthorID:  staffID,
		Body:      text,
		CreatedAt: time.Now(),
	})
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// BlockUser adds a user to the blocklist and emits the lifecycle event.
func (e *Engine) BlockUser(ctx context.Context, userID, staffID, reason string) (*domain.BlockedUser, error) {
	blocked := &domain.BlockedUser{UserID: userID, BlockedBy: staffID, Reason: reason}
	if err := e.blocked.Create(ctx, blocked); err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type:    events.EventUserBlocked,
		ActorID: staffID,
		Payload: events.UserBlockedPayload{UserID: userID, Reason: reason},
	})
	return blocked, nil
}

// UnblockUser removes a user from the blocklist.
func (e *Engine) UnblockUser(ctx context.Context, userID string) error {
	return e.blocked.Delete(ctx, userID)
}

func (e *Engine) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if notFound(err) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// TicketUser fetches display identity for a ticket's user, degrading to a
// placeholder when the platform lookup fails.
func (e *Engine) TicketUser(ctx context.Context, userID string) transport.User {
	user, err := e.messenger.FetchUser(ctx, userID)
	if err != nil || user == nil {
		return transport.User{ID: userID, Username: "Unknown User"}
	}
	return *user
}
