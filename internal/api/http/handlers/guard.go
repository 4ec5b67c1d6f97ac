package handlers

import (
	"context"

	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/roles"
	"github.com/spec-kit/modmail-bridge/internal/transport"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

// AccessGuard gates dashboard operations through the authorization resolver.
// RoleNone always means deny, never "no information".
type AccessGuard struct {
	resolver  *roles.Resolver
	messenger transport.Messenger
}

// NewAccessGuard constructs the guard.
func NewAccessGuard(resolver *roles.Resolver, messenger transport.Messenger) *AccessGuard {
	return &AccessGuard{resolver: resolver, messenger: messenger}
}

// RequireStaff fails unless the user is staff or admin in the guild.
func (g *AccessGuard) RequireStaff(ctx context.Context, guildID, userID string) error {
	if !g.resolver.Resolve(ctx, guildID, userID).AtLeastStaff() {
		return apperrors.NewForbidden("staff access required")
	}
	return nil
}

// RequireAdmin fails unless the user is an admin in the guild.
func (g *AccessGuard) RequireAdmin(ctx context.Context, guildID, userID string) error {
	if g.resolver.Resolve(ctx, guildID, userID) != domain.RoleAdmin {
		return apperrors.NewForbidden("admin access required")
	}
	return nil
}

// StaffGuilds returns the guilds where the user holds at least staff.
func (g *AccessGuard) StaffGuilds(ctx context.Context, userID string) []string {
	var result []string
	for _, guildID := range g.messenger.GuildIDs() {
		if g.resolver.Resolve(ctx, guildID, userID).AtLeastStaff() {
			result = append(result, guildID)
		}
	}
	return result
}
