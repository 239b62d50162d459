package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plantops/defect-triage/internal/service"
)

// AnalyticsHandler serves aggregate statistics.
type AnalyticsHandler struct {
	service *service.DefectService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(defectService *service.DefectService) *AnalyticsHandler {
	return &AnalyticsHandler{service: defectService}
}

// Summary GET /api/v1/analytics/summary.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	stats, err := h.service.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
