package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-bridge/internal/api/dto"
	"github.com/spec-kit/modmail-bridge/internal/auth"
	"github.com/spec-kit/modmail-bridge/internal/config"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

// AuthHandler exchanges the dashboard password for a bearer token.
type AuthHandler struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(cfg config.AuthConfig, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, tokens: tokens}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.PlatformUserID == "" || req.Password == "" {
		return apperrors.NewValidationError("platform_user_id and password required", nil)
	}
	if !auth.CheckDashboardPassword(h.cfg.DashboardPasswordHash, req.Password) {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, err := h.tokens.Issue(req.PlatformUserID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{Token: token}})
}
