package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plantops/defect-triage/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Defects   *handlers.DefectsHandler
	Teams     *handlers.TeamsHandler
	Analytics *handlers.AnalyticsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")

	api.Post("/defects/report", cfg.Defects.Report)
	api.Post("/defects/report/batch", cfg.Defects.ReportBatch)
	api.Get("/defects", cfg.Defects.List)
	api.Get("/defects/:ticket_id", cfg.Defects.Get)
	api.Get("/defects/:ticket_id/history", cfg.Defects.GetHistory)
	api.Put("/defects/:ticket_id/status", cfg.Defects.UpdateStatus)

	api.Get("/analytics/summary", cfg.Analytics.Summary)
	api.Get("/teams", cfg.Teams.List)
}
