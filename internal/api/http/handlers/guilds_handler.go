package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-bridge/internal/api/dto"
	"github.com/spec-kit/modmail-bridge/internal/auth"
	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/service"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

// GuildsHandler manages destination configuration endpoints.
type GuildsHandler struct {
	service *service.DashboardService
	guard   *AccessGuard
}

// NewGuildsHandler constructs handler.
func NewGuildsHandler(dashboard *service.DashboardService, guard *AccessGuard) *GuildsHandler {
	return &GuildsHandler{service: dashboard, guard: guard}
}

// List GET /api/guilds — settings for guilds where the caller is staff.
func (h *GuildsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	settings, err := h.service.ListGuildSettings(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.GuildSettingResponse, 0, len(settings))
	for _, setting := range settings {
		if h.guard.RequireStaff(c.UserContext(), setting.GuildID, principal.PlatformUserID) != nil {
			continue
		}
		items = append(items, dto.FromGuildSetting(setting))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Upsert PUT /api/guilds/:id/settings.
func (h *GuildsHandler) Upsert(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	guildID := c.Params("id")
	if err := h.guard.RequireAdmin(c.UserContext(), guildID, principal.PlatformUserID); err != nil {
		return err
	}

	var req dto.GuildSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}

	setting := &domain.GuildSetting{
		GuildID:      guildID,
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		StaffRoleID:  req.StaffRoleID,
		LogChannelID: req.LogChannelID,
		IsDefault:    req.IsDefault,
	}
	if err := h.service.UpsertGuildSetting(c.UserContext(), setting); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromGuildSetting(*setting)})
}

// Delete DELETE /api/guilds/:id/settings.
func (h *GuildsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	guildID := c.Params("id")
	if err := h.guard.RequireAdmin(c.UserContext(), guildID, principal.PlatformUserID); err != nil {
		return err
	}
	if err := h.service.DeleteGuildSetting(c.UserContext(), guildID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
