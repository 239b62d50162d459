package domain

import "time"

// StatusHistoryEntry is an immutable audit record of one status transition.
// StatusFrom is nil for the creation event.
type StatusHistoryEntry struct {
	ID         int64
	TicketID   string
	Timestamp  time.Time
	StatusFrom *DefectStatus
	StatusTo   DefectStatus
	Notes      string
	ChangedBy  string
}
