package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/selector"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// HandleDirectMessage routes one inbound user DM through the blocklist gate,
// the destination selector, and into its ticket.
func (e *Engine) HandleDirectMessage(ctx context.Context, msg transport.InboundMessage) {
	if msg.Author.IsBot {
		return
	}

	if blocked, err := e.blocked.Get(ctx, msg.Author.ID); err == nil && blocked != nil {
		reply := "You are blocked from opening tickets."
		if blocked.Reason != "" {
			reply += " Reason: " + blocked.Reason
		}
		e.directReply(ctx, msg.Author.ID, reply)
		return
	}

	result := e.selector.Select(ctx, msg.Author)
	switch result.Outcome {
	case selector.OutcomeDenied:
		e.directReply(ctx, msg.Author.ID, "No support destination is configured for you. Please contact an administrator.")
		return
	case selector.OutcomeTimeout:
		// The selector already delivered the timeout notice; this message is
		// dropped without a ticket.
		return
	}

	ticket, created, err := e.findOrCreateTicket(ctx, msg.Author, result.GuildID)
	if err != nil || ticket == nil {
		e.logger.Error("ticket creation failed",
			zap.String("user_id", msg.Author.ID),
			zap.String("guild_id", result.GuildID),
			zap.Error(err))
		e.directReply(ctx, msg.Author.ID, "Your ticket could not be created. Please try again later.")
		return
	}

	if err := e.ensureChannel(ctx, ticket, msg.Author); err != nil {
		e.logger.Error("channel recovery failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		e.directReply(ctx, msg.Author.ID, "Your message could not be delivered. Please try again later.")
		return
	}

	relay := transport.Outbound{
		Content: msg.Body,
		Fields:  []transport.Field{{Name: "From", Value: fmt.Sprintf("%s (<@%s>)", msg.Author.Username, msg.Author.ID)}},
	}
	appendAttachmentFields(&relay, msg.Attachments)
	if _, err := e.messenger.SendChannelMessage(ctx, ticket.ChannelID, relay); err != nil {
		e.logger.Error("inbound relay failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		e.directReply(ctx, msg.Author.ID, "Your message could not be delivered. Please try again later.")
		return
	}

	record := &domain.Message{
		TicketID:    ticket.ID,
		AuthorID:    msg.Author.ID,
		Body:        msg.Body,
		Attachments: msg.Attachments,
		IsStaff:     false,
	}
	if err := e.messages.Create(ctx, record); err != nil {
		e.logger.Error("message persist failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if created {
		e.directReply(ctx, msg.Author.ID, fmt.Sprintf("Ticket %s has been opened. Staff will reply here.", ticket.ID))
	} else {
		e.directReply(ctx, msg.Author.ID, "Message delivered.")
	}

	e.metrics.RecordRelay("inbound")
	e.publish(ctx, events.Event{
		Type:     events.EventMessageRelay,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  msg.Author.ID,
		Payload:  events.MessageRelayPayload{IsStaff: false, BodyPreview: preview(msg.Body, 120)},
	})
}

// findOrCreateTicket reuses the open ticket for the pair when one exists. A
// create that loses the race against a concurrent duplicate refetches and
// reuses the winner's row, so the uniqueness invariant holds end to end.
func (e *Engine) findOrCreateTicket(ctx context.Context, user transport.User, guildID string) (*domain.Ticket, bool, error) {
	ticket, err := e.tickets.GetOpenByPair(ctx, user.ID, guildID)
	if err == nil && ticket != nil {
		return ticket, false, nil
	}
	if err != nil && !notFound(err) {
		return nil, false, err
	}

	setting, err := e.settings.GetByGuild(ctx, guildID)
	if err != nil || setting == nil {
		setting = &domain.GuildSetting{GuildID: guildID, Name: guildID}
	}

	ticket, err = e.CreateTicket(ctx, user, setting)
	if err != nil {
		if ticket, retryErr := e.tickets.GetOpenByPair(ctx, user.ID, guildID); retryErr == nil && ticket != nil {
			return ticket, false, nil
		}
		return nil, false, err
	}
	return ticket, true, nil
}

// HandleChannelMessage routes one staff message posted inside a ticket channel
// back to the ticket's user.
func (e *Engine) HandleChannelMessage(ctx context.Context, msg transport.InboundMessage) {
	if msg.Author.IsBot || msg.Author.ID == e.messenger.BotUser().ID {
		return
	}

	channel, err := e.messenger.FetchChannel(ctx, msg.ChannelID)
	if err != nil || channel == nil {
		e.logger.Debug("channel fetch failed for staff message", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return
	}
	if _, ok := userBinding(channel.Topic); !ok {
		// Not a ticket channel; nothing to do.
		return
	}

	ticket, err := e.tickets.GetOpenByChannel(ctx, msg.ChannelID)
	if err != nil || ticket == nil {
		e.channelReply(ctx, msg.ChannelID, "No open ticket is bound to this channel.")
		return
	}

	user, err := e.messenger.FetchUser(ctx, ticket.UserID)
	if err != nil || user == nil {
		e.channelReply(ctx, msg.ChannelID, "Could not find the ticket user; message not delivered.")
		return
	}

	relay := transport.Outbound{
		Content: msg.Body,
		Fields:  []transport.Field{{Name: "Staff", Value: msg.Author.Username}},
	}
	appendAttachmentFields(&relay, msg.Attachments)
	if _, err := e.messenger.SendDirect(ctx, user.ID, relay); err != nil {
		e.channelReply(ctx, msg.ChannelID, "Could not deliver the message to the user.")
		return
	}

	record := &domain.Message{
		TicketID:    ticket.ID,
		AuthorID:    msg.Author.ID,
		Body:        msg.Body,
		Attachments: msg.Attachments,
		IsStaff:     true,
	}
	if err := e.messages.Create(ctx, record); err != nil {
		e.logger.Error("message persist failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if err := e.messenger.React(ctx, msg.ChannelID, msg.MessageID, "✅"); err != nil {
		e.logger.Debug("ack reaction failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}

	e.metrics.RecordRelay("outbound")
	e.publish(ctx, events.Event{
		Type:     events.EventMessageRelay,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		ActorID:  msg.Author.ID,
		Payload:  events.MessageRelayPayload{IsStaff: true, BodyPreview: preview(msg.Body, 120)},
	})
}

// HandleSelection dispatches component interactions: claim/close controls on
// ticket intro messages, and destination choice prompts.
func (e *Engine) HandleSelection(ctx context.Context, sel transport.Selection) {
	switch {
	case strings.HasPrefix(sel.ChoiceID, "claim:"):
		e.handleClaimButton(ctx, sel, strings.TrimPrefix(sel.ChoiceID, "claim:"))
	case strings.HasPrefix(sel.ChoiceID, "close:"):
		e.handleCloseButton(ctx, sel, strings.TrimPrefix(sel.ChoiceID, "close:"))
	default:
		e.selector.HandleSelection(ctx, sel)
	}
}

func (e *Engine) handleClaimButton(ctx context.Context, sel transport.Selection, ticketID string) {
	// The chat-side path rejects any second claim attempt outright.
	ticket, err := e.Claim(ctx, ticketID, sel.ActorID, false)
	switch {
	case err == nil:
		e.channelReply(ctx, sel.ChannelID, fmt.Sprintf("Ticket claimed by <@%s>.", sel.ActorID))
	case err == ErrAlreadyClaimed && ticket != nil && ticket.ClaimedBy != nil:
		e.channelReply(ctx, sel.ChannelID, fmt.Sprintf("Already claimed by <@%s>.", *ticket.ClaimedBy))
	default:
		e.channelReply(ctx, sel.ChannelID, "Could not claim this ticket: "+err.Error())
	}
}

func (e *Engine) handleCloseButton(ctx context.Context, sel transport.Selection, ticketID string) {
	if _, err := e.Close(ctx, ticketID, sel.ActorID, true); err != nil {
		e.channelReply(ctx, sel.ChannelID, "Could not close this ticket: "+err.Error())
	}
}

func (e *Engine) directReply(ctx context.Context, userID, content string) {
	if _, err := e.messenger.SendDirect(ctx, userID, transport.Outbound{Content: content}); err != nil {
		e.logger.Debug("direct reply failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) channelReply(ctx context.Context, channelID, content string) {
	if _, err := e.messenger.SendChannelMessage(ctx, channelID, transport.Outbound{Content: content}); err != nil {
		e.logger.Debug("channel reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func appendAttachmentFields(msg *transport.Outbound, attachments []string) {
	for i, url := range attachments {
		msg.Fields = append(msg.Fields, transport.Field{
			Name:  fmt.Sprintf("Attachment %d", i+1),
			Value: url,
		})
	}
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
