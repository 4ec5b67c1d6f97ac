// Package service exposes the routing engine's ticket operations to the
// dashboard API, enriching records with best-effort user display info.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/engine"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

const displayCacheTTL = 10 * time.Minute

// UserDisplay is best-effort identity shown in dashboard listings.
type UserDisplay struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// TicketEntry pairs a ticket with its requester's display info.
type TicketEntry struct {
	Ticket domain.Ticket
	User   UserDisplay
}

// TicketDetail is one ticket with its full message sequence.
type TicketDetail struct {
	Ticket   domain.Ticket
	User     UserDisplay
	Messages []domain.Message
}

// Stats aggregates dashboard counters.
type Stats struct {
	Total        int64 `json:"total"`
	Open         int64 `json:"open"`
	Closed       int64 `json:"closed"`
	CreatedToday int64 `json:"created_today"`
	CreatedWeek  int64 `json:"created_this_week"`
	BlockedUsers int64 `json:"blocked_users"`
}

// Dependencies bundles collaborators for the dashboard service.
type Dependencies struct {
	Tickets   repository.TicketRepository
	Messages  repository.MessageRepository
	Blocked   repository.BlockedUserRepository
	Settings  repository.GuildSettingRepository
	Engine    *engine.Engine
	Messenger transport.Messenger
	Cache     *redis.Client
	Logger    *zap.Logger
}

// DashboardService coordinates dashboard reads and mutations. Mutations flow
// through the same engine operations the chat side uses, preserving one
// source of truth.
type DashboardService struct {
	tickets   repository.TicketRepository
	messages  repository.MessageRepository
	blocked   repository.BlockedUserRepository
	settings  repository.GuildSettingRepository
	engine    *engine.Engine
	messenger transport.Messenger
	cache     *redis.Client
	logger    *zap.Logger
}

// NewDashboardService constructs the service.
func NewDashboardService(deps Dependencies) *DashboardService {
	return &DashboardService{
		tickets:   deps.Tickets,
		messages:  deps.Messages,
		blocked:   deps.Blocked,
		settings:  deps.Settings,
		engine:    deps.Engine,
		messenger: deps.Messenger,
		cache:     deps.Cache,
		logger:    deps.Logger,
	}
}

// ListTickets returns paginated tickets matching the filter, enriched.
func (s *DashboardService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]TicketEntry, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	entries := make([]TicketEntry, 0, len(tickets))
	for _, ticket := range tickets {
		entries = append(entries, TicketEntry{
			Ticket: ticket,
			User:   s.displayUser(ctx, ticket.UserID),
		})
	}
	return entries, nil
}

// GetTicket returns one ticket with its messages sorted by timestamp.
func (s *DashboardService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapEngineError(err)
	}
	messages, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	// The user and staff streams carry no global ordering guarantee beyond
	// their timestamps; sort at read time.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return &TicketDetail{
		Ticket:   *ticket,
		User:     s.displayUser(ctx, ticket.UserID),
		Messages: messages,
	}, nil
}

// CloseTicket closes a ticket on behalf of a dashboard staff member.
func (s *DashboardService) CloseTicket(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	ticket, err := s.engine.Close(ctx, ticketID, staffID, false)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return ticket, nil
}

// ClaimTicket claims a ticket; repeat claims by the same staff id are no-ops.
func (s *DashboardService) ClaimTicket(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	ticket, err := s.engine.Claim(ctx, ticketID, staffID, true)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return ticket, nil
}

// DeleteTicket irreversibly removes a ticket and its messages.
func (s *DashboardService) DeleteTicket(ctx context.Context, ticketID, actorID string) error {
	if err := s.engine.DeleteTicket(ctx, ticketID, actorID); err != nil {
		return mapEngineError(err)
	}
	return nil
}

// AddNote appends a staff note to a ticket.
func (s *DashboardService) AddNote(ctx context.Context, ticketID, staffID, text string) (*domain.Ticket, error) {
	ticket, err := s.engine.AddNote(ctx, ticketID, staffID, text)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return ticket, nil
}

// GetStats aggregates counters, optionally scoped to guild ids.
func (s *DashboardService) GetStats(ctx context.Context, guildIDs []string) (*Stats, error) {
	ticketStats, err := s.tickets.Stats(ctx, guildIDs)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	blockedCount, err := s.blocked.Count(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &Stats{
		Total:        ticketStats.Total,
		Open:         ticketStats.Open,
		Closed:       ticketStats.Closed,
		CreatedToday: ticketStats.CreatedToday,
		CreatedWeek:  ticketStats.CreatedWeek,
		BlockedUsers: blockedCount,
	}, nil
}

// ListGuildSettings lists all destination configurations.
func (s *DashboardService) ListGuildSettings(ctx context.Context) ([]domain.GuildSetting, error) {
	settings, err := s.settings.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return settings, nil
}

// UpsertGuildSetting creates or updates a destination configuration and, when
// flagged, atomically moves the default to it.
func (s *DashboardService) UpsertGuildSetting(ctx context.Context, setting *domain.GuildSetting) error {
	makeDefault := setting.IsDefault
	setting.IsDefault = false
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return apperrors.MapError(err)
	}
	if makeDefault {
		if err := s.settings.SetDefault(ctx, setting.GuildID); err != nil {
			return apperrors.MapError(err)
		}
		setting.IsDefault = true
	}
	return nil
}

// DeleteGuildSetting removes a destination configuration.
func (s *DashboardService) DeleteGuildSetting(ctx context.Context, guildID string) error {
	if err := s.settings.Delete(ctx, guildID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// ListBlockedUsers lists the blocklist.
func (s *DashboardService) ListBlockedUsers(ctx context.Context) ([]domain.BlockedUser, error) {
	blocked, err := s.blocked.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return blocked, nil
}

// BlockUser blocks a user from opening tickets.
func (s *DashboardService) BlockUser(ctx context.Context, userID, staffID, reason string) (*domain.BlockedUser, error) {
	blocked, err := s.engine.BlockUser(ctx, userID, staffID, reason)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return blocked, nil
}

// UnblockUser removes a user from the blocklist.
func (s *DashboardService) UnblockUser(ctx context.Context, userID string) error {
	if err := s.engine.UnblockUser(ctx, userID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// displayUser resolves identity through the redis cache, falling back to the
// platform, then to a placeholder. Never fails the surrounding operation.
func (s *DashboardService) displayUser(ctx context.Context, userID string) UserDisplay {
	key := "display:" + userID
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var display UserDisplay
			if json.Unmarshal([]byte(raw), &display) == nil {
				return display
			}
		}
	}

	user, err := s.messenger.FetchUser(ctx, userID)
	if err != nil || user == nil {
		return UserDisplay{ID: userID, Username: "Unknown User"}
	}
	display := UserDisplay{ID: user.ID, Username: user.Username, AvatarURL: user.AvatarURL}

	if s.cache != nil {
		if raw, err := json.Marshal(display); err == nil {
			if err := s.cache.Set(ctx, key, raw, displayCacheTTL).Err(); err != nil {
				s.logger.Debug("display cache write failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return display
}

// mapEngineError translates engine sentinels into the HTTP error taxonomy.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrTicketNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, engine.ErrTicketClosed):
		return apperrors.NewConflict("ticket is already closed", nil)
	case errors.Is(err, engine.ErrAlreadyClaimed):
		return apperrors.NewConflict("ticket is already claimed", nil)
	case errors.Is(err, engine.ErrEmptyNote):
		return apperrors.NewValidationError("note text must not be empty", nil)
	case errors.Is(err, engine.ErrNoDestination):
		return apperrors.NewConflict("no destination guild is configured", nil)
	default:
		return apperrors.MapError(err)
	}
}
