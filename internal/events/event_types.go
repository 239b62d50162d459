package events

import (
	"time"

	"github.com/plantops/defect-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDefectCreated       EventType = "defect_created"
	EventDefectStatusChanged EventType = "defect_status_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DefectCreatedPayload payload.
type DefectCreatedPayload struct {
	Category     domain.DefectCategory `json:"category"`
	Priority     domain.DefectPriority `json:"priority"`
	AssignedTeam string                `json:"assigned_team"`
	Description  string                `json:"description"`
	Fallback     bool                  `json:"fallback,omitempty"`
}

// DefectStatusChangedPayload payload.
type DefectStatusChangedPayload struct {
	OldStatus       domain.DefectStatus `json:"old_status"`
	NewStatus       domain.DefectStatus `json:"new_status"`
	ResolutionNotes string              `json:"resolution_notes,omitempty"`
}
