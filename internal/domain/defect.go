package domain

import "time"

// DefectStatus enumerates lifecycle states for defect tickets.
type DefectStatus string

const (
	DefectStatusOpen       DefectStatus = "OPEN"
	DefectStatusInProgress DefectStatus = "IN_PROGRESS"
	DefectStatusResolved   DefectStatus = "RESOLVED"
)

// DefectPriority enumerates urgency levels assigned by the classifier.
type DefectPriority string

const (
	DefectPriorityCritical DefectPriority = "CRITICAL"
	DefectPriorityHigh     DefectPriority = "HIGH"
	DefectPriorityMedium   DefectPriority = "MEDIUM"
	DefectPriorityLow      DefectPriority = "LOW"
)

// DefectCategory enumerates the defect taxonomy.
type DefectCategory string

const (
	CategoryMechanical     DefectCategory = "Mechanical"
	CategoryElectrical     DefectCategory = "Electrical"
	CategoryQualityControl DefectCategory = "Quality Control"
	CategorySafety         DefectCategory = "Safety"
	CategoryProcess        DefectCategory = "Process"
	CategoryUnknown        DefectCategory = "Unknown"
)

// categoryCodes maps categories to the short code used in ticket IDs.
var categoryCodes = map[DefectCategory]string{
	CategoryMechanical:     "MECH",
	CategoryElectrical:     "ELEC",
	CategoryQualityControl: "QC",
	CategorySafety:         "SAFE",
	CategoryProcess:        "PROC",
}

// CategoryCode returns the ticket-ID code for a category, "DEF" when unmapped.
func CategoryCode(category DefectCategory) string {
	if code, ok := categoryCodes[category]; ok {
		return code
	}
	return "DEF"
}

// DefectRecord is the aggregate for one reported defect.
type DefectRecord struct {
	ID                      int64
	TicketID                string
	CreatedAt               time.Time
	RawText                 string
	Equipment               string
	Location                string
	IssueSummary            string
	Category                DefectCategory
	Priority                DefectPriority
	PriorityReasoning       string
	RecommendedActions      []string
	AssignedTeam            string
	EstimatedResolutionTime string
	Status                  DefectStatus
	ResolutionNotes         string
	ResolvedAt              *time.Time
	ResolvedBy              *string
}
