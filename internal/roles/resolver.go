// Package roles resolves a user's access level within a destination guild by
// combining platform membership data with per-guild configuration.
package roles

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/transport"
)

// Resolver decides role membership for staff/admin gating. It is read-only;
// every lookup failure degrades to RoleNone so callers always get an answer.
type Resolver struct {
	messenger        transport.Messenger
	settings         repository.GuildSettingRepository
	defaultStaffRole string
	logger           *zap.Logger
}

// NewResolver constructs the resolver.
func NewResolver(messenger transport.Messenger, settings repository.GuildSettingRepository, defaultStaffRole string, logger *zap.Logger) *Resolver {
	return &Resolver{
		messenger:        messenger,
		settings:         settings,
		defaultStaffRole: defaultStaffRole,
		logger:           logger,
	}
}

// Resolve returns the user's role in the guild. Callers must treat RoleNone
// as "deny access", not as "no information".
func (r *Resolver) Resolve(ctx context.Context, guildID, userID string) domain.Role {
	member, err := r.messenger.FetchMember(ctx, guildID, userID)
	if err != nil || member == nil {
		if err != nil {
			r.logger.Debug("member lookup failed",
				zap.String("guild_id", guildID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return domain.RoleNone
	}

	if member.IsAdmin {
		return domain.RoleAdmin
	}

	staffRoleID := r.staffRoleFor(ctx, guildID)
	if staffRoleID == "" {
		return domain.RoleNone
	}
	for _, roleID := range member.RoleIDs {
		if roleID == staffRoleID {
			return domain.RoleStaff
		}
	}
	return domain.RoleNone
}

func (r *Resolver) staffRoleFor(ctx context.Context, guildID string) string {
	setting, err := r.settings.GetByGuild(ctx, guildID)
	if err == nil && setting != nil && setting.StaffRoleID != nil && *setting.StaffRoleID != "" {
		return *setting.StaffRoleID
	}
	return r.defaultStaffRole
}
