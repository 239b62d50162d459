package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plantops/defect-triage/internal/api/dto"
	"github.com/plantops/defect-triage/internal/service"
)

// TeamsHandler serves team reference data.
type TeamsHandler struct {
	service *service.DefectService
}

// NewTeamsHandler constructs handler.
func NewTeamsHandler(defectService *service.DefectService) *TeamsHandler {
	return &TeamsHandler{service: defectService}
}

// List GET /api/v1/teams.
func (h *TeamsHandler) List(c *fiber.Ctx) error {
	teams, err := h.service.ListTeams(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TeamResponse, 0, len(teams))
	for _, team := range teams {
		items = append(items, dto.TeamResponse{
			Name:           team.Name,
			ContactEmail:   team.ContactEmail,
			ContactPhone:   team.ContactPhone,
			Specialization: team.Specialization,
		})
	}
	return c.JSON(fiber.Map{"count": len(items), "data": items})
}
