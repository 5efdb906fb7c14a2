package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-hub/ticket-service/internal/api/http/handlers"
	"github.com/helpdesk-hub/ticket-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	SubTickets     *handlers.SubTicketsHandler
	Approvals      *handlers.ApprovalsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	moderator := auth.RequireRole(auth.RoleModerator, auth.RoleAdmin)

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Delete("/:id", moderator, cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/restore", moderator, cfg.Tickets.RestoreTicket)
	tickets.Post("/:id/actions", cfg.Tickets.ApplyAction)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/confirm-review", moderator, cfg.Tickets.ConfirmReview)
	tickets.Patch("/:id/progress", cfg.Tickets.UpdateProgress)
	tickets.Post("/:id/acknowledge", cfg.Tickets.Acknowledge)
	tickets.Patch("/:id/sla", moderator, cfg.Tickets.UpdateSLA)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/sub-tickets", cfg.SubTickets.Create)
	tickets.Get("/:id/sub-tickets", cfg.SubTickets.ListByParent)
	tickets.Get("/:id/approvals", cfg.Approvals.ListByTicket)

	subTickets := api.Group("/sub-tickets")
	subTickets.Get("/:id", cfg.SubTickets.Get)
	subTickets.Post("/:id/actions", cfg.SubTickets.ApplyAction)
	subTickets.Post("/:id/assign", cfg.SubTickets.Assign)
	subTickets.Patch("/:id/progress", cfg.SubTickets.UpdateProgress)
	subTickets.Get("/:id/history", cfg.SubTickets.History)

	approvals := api.Group("/approvals")
	approvals.Post("", cfg.Approvals.Create)
	approvals.Get("/:id", cfg.Approvals.Get)
	approvals.Post("/:id/approve", cfg.Approvals.Approve)
	approvals.Post("/:id/reject", cfg.Approvals.Reject)
}
