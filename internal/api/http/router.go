package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-bridge/internal/api/http/handlers"
	"github.com/spec-kit/modmail-bridge/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Guilds         *handlers.GuildsHandler
	Blocked        *handlers.BlockedHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	api.Get("/tickets", cfg.Tickets.List)
	api.Get("/tickets/:id", cfg.Tickets.Get)
	api.Post("/tickets/:id/close", cfg.Tickets.Close)
	api.Post("/tickets/:id/claim", cfg.Tickets.Claim)
	api.Post("/tickets/:id/notes", cfg.Tickets.AddNote)
	api.Delete("/tickets/:id", cfg.Tickets.Delete)

	api.Get("/stats", cfg.Tickets.Stats)

	api.Get("/guilds", cfg.Guilds.List)
	api.Put("/guilds/:id/settings", cfg.Guilds.Upsert)
	api.Delete("/guilds/:id/settings", cfg.Guilds.Delete)

	api.Get("/blocked", cfg.Blocked.List)
	api.Post("/blocked", cfg.Blocked.Block)
	api.Delete("/blocked/:id", cfg.Blocked.Unblock)
}
