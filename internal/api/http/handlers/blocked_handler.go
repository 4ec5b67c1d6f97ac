package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-bridge/internal/api/dto"
	"github.com/spec-kit/modmail-bridge/internal/auth"
	"github.com/spec-kit/modmail-bridge/internal/service"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

// BlockedHandler manages blocklist endpoints.
type BlockedHandler struct {
	service *service.DashboardService
	guard   *AccessGuard
}

// NewBlockedHandler constructs handler.
func NewBlockedHandler(dashboard *service.DashboardService, guard *AccessGuard) *BlockedHandler {
	return &BlockedHandler{service: dashboard, guard: guard}
}

// List GET /api/blocked.
func (h *BlockedHandler) List(c *fiber.Ctx) error {
	if err := h.requireAnyStaff(c); err != nil {
		return err
	}
	blocked, err := h.service.ListBlockedUsers(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.BlockedUserResponse, 0, len(blocked))
	for _, entry := range blocked {
		items = append(items, dto.FromBlockedUser(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Block POST /api/blocked.
func (h *BlockedHandler) Block(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.requireAnyStaff(c); err != nil {
		return err
	}

	var req dto.BlockUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}

	blocked, err := h.service.BlockUser(c.UserContext(), req.UserID, principal.PlatformUserID, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromBlockedUser(*blocked)})
}

// Unblock DELETE /api/blocked/:id.
func (h *BlockedHandler) Unblock(c *fiber.Ctx) error {
	if err := h.requireAnyStaff(c); err != nil {
		return err
	}
	if err := h.service.UnblockUser(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *BlockedHandler) requireAnyStaff(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if len(h.guard.StaffGuilds(c.UserContext(), principal.PlatformUserID)) == 0 {
		return apperrors.NewForbidden("staff access required")
	}
	return nil
}
