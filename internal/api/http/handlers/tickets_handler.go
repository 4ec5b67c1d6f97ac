package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-bridge/internal/api/dto"
	"github.com/spec-kit/modmail-bridge/internal/auth"
	"github.com/spec-kit/modmail-bridge/internal/domain"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/service"
	apperrors "github.com/spec-kit/modmail-bridge/pkg/util"
)

// TicketsHandler manages dashboard ticket endpoints.
type TicketsHandler struct {
	service *service.DashboardService
	guard   *AccessGuard
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(dashboard *service.DashboardService, guard *AccessGuard) *TicketsHandler {
	return &TicketsHandler{service: dashboard, guard: guard}
}

// List GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := parseTicketQuery(c)
	if len(filter.GuildIDs) > 0 {
		for _, guildID := range filter.GuildIDs {
			if err := h.guard.RequireStaff(c.UserContext(), guildID, principal.PlatformUserID); err != nil {
				return err
			}
		}
	} else {
		// No explicit scope: restrict to guilds where the caller is staff.
		filter.GuildIDs = h.guard.StaffGuilds(c.UserContext(), principal.PlatformUserID)
		if len(filter.GuildIDs) == 0 {
			return apperrors.NewForbidden("staff access required")
		}
	}

	entries, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.FromEntry(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	detail, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.guard.RequireStaff(c.UserContext(), detail.Ticket.GuildID, principal.PlatformUserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromDetail(detail)})
}

// Close POST /api/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, ticket, err := h.staffTicket(c)
	if err != nil {
		return err
	}
	closed, err := h.service.CloseTicket(c.UserContext(), ticket.Ticket.ID, principal.PlatformUserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromEntry(service.TicketEntry{Ticket: *closed, User: ticket.User})})
}

// Claim POST /api/tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	principal, ticket, err := h.staffTicket(c)
	if err != nil {
		return err
	}
	claimed, err := h.service.ClaimTicket(c.UserContext(), ticket.Ticket.ID, principal.PlatformUserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromEntry(service.TicketEntry{Ticket: *claimed, User: ticket.User})})
}

// AddNote POST /api/tickets/:id/notes.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	principal, ticket, err := h.staffTicket(c)
	if err != nil {
		return err
	}
	var req dto.AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.service.AddNote(c.UserContext(), ticket.Ticket.ID, principal.PlatformUserID, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromEntry(service.TicketEntry{Ticket: *updated, User: ticket.User})})
}

// Delete DELETE /api/tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.guard.RequireAdmin(c.UserContext(), detail.Ticket.GuildID, principal.PlatformUserID); err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), detail.Ticket.ID, principal.PlatformUserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stats GET /api/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	guildIDs := splitParam(c.Query("guild_id"))
	if len(guildIDs) > 0 {
		for _, guildID := range guildIDs {
			if err := h.guard.RequireStaff(c.UserContext(), guildID, principal.PlatformUserID); err != nil {
				return err
			}
		}
	} else {
		guildIDs = h.guard.StaffGuilds(c.UserContext(), principal.PlatformUserID)
		if len(guildIDs) == 0 {
			return apperrors.NewForbidden("staff access required")
		}
	}

	stats, err := h.service.GetStats(c.UserContext(), guildIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func (h *TicketsHandler) staffTicket(c *fiber.Ctx) (*auth.Principal, *service.TicketDetail, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, nil, apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	if err := h.guard.RequireStaff(c.UserContext(), detail.Ticket.GuildID, principal.PlatformUserID); err != nil {
		return nil, nil, err
	}
	return principal, detail, nil
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		GuildIDs: splitParam(c.Query("guild_id")),
	}
	if userID := c.Query("user_id"); userID != "" {
		filter.UserID = &userID
	}
	for _, part := range splitParam(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(part)))
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if page < 1 {
		page = 1
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
