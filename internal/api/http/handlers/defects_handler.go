package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/plantops/defect-triage/internal/api/dto"
	"github.com/plantops/defect-triage/internal/domain"
	"github.com/plantops/defect-triage/internal/service"
	apperrors "github.com/plantops/defect-triage/pkg/util"
)

// DefectsHandler manages defect endpoints.
type DefectsHandler struct {
	service *service.DefectService
}

// NewDefectsHandler constructs handler.
func NewDefectsHandler(defectService *service.DefectService) *DefectsHandler {
	return &DefectsHandler{service: defectService}
}

// Report POST /api/v1/defects/report.
func (h *DefectsHandler) Report(c *fiber.Ctx) error {
	var req dto.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}

	record, result, err := h.service.SubmitReport(c.UserContext(), req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.ReportResponse{
		TicketID:       record.TicketID,
		Classification: result,
	}})
}

// ReportBatch POST /api/v1/defects/report/batch.
func (h *DefectsHandler) ReportBatch(c *fiber.Ctx) error {
	var req dto.BatchReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Descriptions) == 0 {
		return apperrors.NewValidationError("descriptions required", nil)
	}

	items, summary := h.service.SubmitBatch(c.UserContext(), req.Descriptions)
	results := make([]dto.BatchItemResponse, 0, len(items))
	for _, item := range items {
		entry := dto.BatchItemResponse{
			Report:         item.Report,
			TicketID:       item.TicketID,
			Classification: item.Result,
		}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		results = append(results, entry)
	}
	return c.JSON(fiber.Map{"data": dto.BatchReportResponse{Results: results, Summary: summary}})
}

// List GET /api/v1/defects.
func (h *DefectsHandler) List(c *fiber.Ctx) error {
	status, err := parseStatus(c.Query("status"))
	if err != nil {
		return err
	}
	priority, err := parsePriority(c.Query("priority"))
	if err != nil {
		return err
	}

	records, err := h.service.ListDefects(c.UserContext(), status, priority)
	if err != nil {
		return err
	}
	items := make([]dto.DefectResponse, 0, len(records))
	for i := range records {
		items = append(items, defectResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"count": len(items), "data": items})
}

// Get GET /api/v1/defects/:ticket_id.
func (h *DefectsHandler) Get(c *fiber.Ctx) error {
	record, history, notifications, err := h.service.GetDefectDetail(c.UserContext(), c.Params("ticket_id"))
	if err != nil {
		return err
	}

	detail := dto.DefectDetailResponse{
		DefectResponse: defectResponse(record),
		History:        make([]dto.HistoryEntryResponse, 0, len(history)),
		Notifications:  make([]dto.NotificationResponse, 0, len(notifications)),
	}
	for _, entry := range history {
		detail.History = append(detail.History, historyResponse(entry))
	}
	for _, notification := range notifications {
		detail.Notifications = append(detail.Notifications, dto.NotificationResponse{
			TeamName: notification.TeamName,
			Type:     notification.Type,
			Message:  notification.Message,
			SentAt:   notification.SentAt,
			Status:   notification.Status,
		})
	}
	return c.JSON(fiber.Map{"data": detail})
}

// GetHistory GET /api/v1/defects/:ticket_id/history.
func (h *DefectsHandler) GetHistory(c *fiber.Ctx) error {
	history, err := h.service.ListHistory(c.UserContext(), c.Params("ticket_id"))
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(history))
	for _, entry := range history {
		items = append(items, historyResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateStatus PUT /api/v1/defects/:ticket_id/status.
func (h *DefectsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !validStatus(req.Status) {
		return apperrors.NewValidationError("status must be one of OPEN, IN_PROGRESS, RESOLVED", nil)
	}

	record, err := h.service.UpdateStatus(c.UserContext(), c.Params("ticket_id"), req.Status, req.Notes, req.ChangedBy)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": defectResponse(record)})
}

func defectResponse(record *domain.DefectRecord) dto.DefectResponse {
	return dto.DefectResponse{
		TicketID:                record.TicketID,
		CreatedAt:               record.CreatedAt,
		RawText:                 record.RawText,
		Equipment:               record.Equipment,
		Location:                record.Location,
		IssueSummary:            record.IssueSummary,
		Category:                record.Category,
		Priority:                record.Priority,
		PriorityReasoning:       record.PriorityReasoning,
		RecommendedActions:      record.RecommendedActions,
		AssignedTeam:            record.AssignedTeam,
		EstimatedResolutionTime: record.EstimatedResolutionTime,
		Status:                  record.Status,
		ResolutionNotes:         record.ResolutionNotes,
		ResolvedAt:              record.ResolvedAt,
		ResolvedBy:              record.ResolvedBy,
	}
}

func historyResponse(entry domain.StatusHistoryEntry) dto.HistoryEntryResponse {
	return dto.HistoryEntryResponse{
		Timestamp:  entry.Timestamp,
		StatusFrom: entry.StatusFrom,
		StatusTo:   entry.StatusTo,
		Notes:      entry.Notes,
		ChangedBy:  entry.ChangedBy,
	}
}

func validStatus(status domain.DefectStatus) bool {
	switch status {
	case domain.DefectStatusOpen, domain.DefectStatusInProgress, domain.DefectStatusResolved:
		return true
	}
	return false
}

func parseStatus(raw string) (*domain.DefectStatus, error) {
	if raw == "" {
		return nil, nil
	}
	status := domain.DefectStatus(strings.ToUpper(raw))
	if !validStatus(status) {
		return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
	}
	return &status, nil
}

func parsePriority(raw string) (*domain.DefectPriority, error) {
	if raw == "" {
		return nil, nil
	}
	priority := domain.DefectPriority(strings.ToUpper(raw))
	switch priority {
	case domain.DefectPriorityCritical, domain.DefectPriorityHigh, domain.DefectPriorityMedium, domain.DefectPriorityLow:
		return &priority, nil
	}
	return nil, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": raw})
}
