package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/helpdesk-sla/sla-service/internal/api/http/handlers"
	"github.com/helpdesk-sla/sla-service/internal/auth"
	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	SLA            *handlers.SLAHandler
	Rules          *handlers.SLARulesHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1/sla", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	managers := auth.RequireStaffRole(domain.StaffRoleAdmin, domain.StaffRoleTeamLead)

	api.Get("/status", cfg.SLA.ListStatuses)
	api.Get("/status/:ticketId", cfg.SLA.GetStatus)
	api.Post("/pause", cfg.SLA.Pause)
	api.Post("/resume", cfg.SLA.Resume)
	api.Get("/pauses/:ticketId", cfg.SLA.ListPauses)
	api.Post("/escalations/sweep", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.SLA.Sweep)
	api.Get("/escalations/:ticketId", cfg.SLA.ListEscalations)
	api.Post("/escalations/:ticketId/check", cfg.SLA.CheckEscalations)
	api.Get("/report", cfg.SLA.Report)

	api.Get("/rules", cfg.Rules.List)
	api.Get("/rules/:id", cfg.Rules.Get)
	api.Post("/rules", managers, cfg.Rules.Create)
	api.Put("/rules/:id", managers, cfg.Rules.Update)
	api.Delete("/rules/:id", managers, cfg.Rules.Delete)
}
