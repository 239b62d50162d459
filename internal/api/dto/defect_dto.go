package dto

import (
	"time"

	"github.com/plantops/defect-triage/internal/domain"
)

// ReportRequest payload for a single defect report.
type ReportRequest struct {
	Description string `json:"description"`
}

// BatchReportRequest payload for batch submission.
type BatchReportRequest struct {
	Descriptions []string `json:"descriptions"`
}

// StatusUpdateRequest payload.
type StatusUpdateRequest struct {
	Status    domain.DefectStatus `json:"status"`
	Notes     string              `json:"notes"`
	ChangedBy string              `json:"changed_by"`
}

// DefectResponse provides full defect info.
type DefectResponse struct {
	TicketID                string                `json:"ticket_id"`
	CreatedAt               time.Time             `json:"created_at"`
	RawText                 string                `json:"raw_text"`
	Equipment               string                `json:"equipment"`
	Location                string                `json:"location"`
	IssueSummary            string                `json:"issue_summary"`
	Category                domain.DefectCategory `json:"category"`
	Priority                domain.DefectPriority `json:"priority"`
	PriorityReasoning       string                `json:"priority_reasoning"`
	RecommendedActions      []string              `json:"recommended_actions"`
	AssignedTeam            string                `json:"assigned_team"`
	EstimatedResolutionTime string                `json:"estimated_resolution_time"`
	Status                  domain.DefectStatus   `json:"status"`
	ResolutionNotes         string                `json:"resolution_notes,omitempty"`
	ResolvedAt              *time.Time            `json:"resolved_at,omitempty"`
	ResolvedBy              *string               `json:"resolved_by,omitempty"`
}

// ReportResponse returned after submitting one report.
type ReportResponse struct {
	TicketID       string                       `json:"ticket_id"`
	Classification *domain.ClassificationResult `json:"classification"`
}

// BatchItemResponse is one entry of a batch submission result.
type BatchItemResponse struct {
	Report         string                       `json:"report"`
	TicketID       string                       `json:"ticket_id,omitempty"`
	Error          string                       `json:"error,omitempty"`
	Classification *domain.ClassificationResult `json:"classification,omitempty"`
}

// BatchReportResponse wraps batch results with their aggregate summary.
type BatchReportResponse struct {
	Results []BatchItemResponse          `json:"results"`
	Summary domain.ClassificationSummary `json:"summary"`
}

// HistoryEntryResponse is one audit trail row.
type HistoryEntryResponse struct {
	Timestamp  time.Time            `json:"timestamp"`
	StatusFrom *domain.DefectStatus `json:"status_from"`
	StatusTo   domain.DefectStatus  `json:"status_to"`
	Notes      string               `json:"notes"`
	ChangedBy  string               `json:"changed_by"`
}

// NotificationResponse is one team notification row.
type NotificationResponse struct {
	TeamName string                    `json:"team_name"`
	Type     domain.NotificationType   `json:"type"`
	Message  string                    `json:"message"`
	SentAt   time.Time                 `json:"sent_at"`
	Status   domain.NotificationStatus `json:"status"`
}

// DefectDetailResponse bundles a defect with its audit trail.
type DefectDetailResponse struct {
	DefectResponse
	History       []HistoryEntryResponse `json:"history"`
	Notifications []NotificationResponse `json:"notifications"`
}

// TeamResponse is team reference data.
type TeamResponse struct {
	Name           string `json:"team_name"`
	ContactEmail   string `json:"contact_email"`
	ContactPhone   string `json:"contact_phone"`
	Specialization string `json:"specialization"`
}
