package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	Connections    *handlers.ConnectionsHandler
	AuthMiddleware *auth.AuthMiddleware
	Hub            *realtime.Hub
	PingInterval   time.Duration
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())

	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets/:id", cfg.Tickets.ShowTicket)
	protected.Put("/tickets/:id", cfg.Tickets.UpdateTicket)
	protected.Delete("/tickets/:id", cfg.Tickets.DeleteTicket)

	protected.Get("/messages/:ticketId", cfg.Messages.ListMessages)
	protected.Post("/messages/:ticketId", cfg.Messages.SendMessage)
	protected.Delete("/messages/:messageId", cfg.Messages.DeleteMessage)

	protected.Post("/contacts/import/:whatsappId",
		auth.RequirePermission(auth.ActionImportContacts), cfg.Connections.ImportContacts)
	protected.Post("/whatsappsession/:whatsappId",
		auth.RequirePermission(auth.ActionManageConnections), cfg.Connections.StartSession)
	protected.Delete("/whatsappsession/:whatsappId",
		auth.RequirePermission(auth.ActionManageConnections), cfg.Connections.Logout)

	if cfg.Hub != nil {
		protected.Get("/socket", realtime.UpgradeGate(socketIdentity), cfg.Hub.Endpoint(cfg.PingInterval))
	}
}

func socketIdentity(c *fiber.Ctx) (int64, bool) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return 0, false
	}
	return principal.UserID(), true
}
