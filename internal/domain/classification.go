package domain

import "time"

// ExtractedInfo holds the structured facts the classifier pulled out of a
// free-text report. Raw carries the unparsed model output on fallback.
type ExtractedInfo struct {
	Equipment       string   `json:"equipment"`
	Location        string   `json:"location"`
	Issue           string   `json:"issue"`
	SeveritySignals []string `json:"severity_signals,omitempty"`
	Raw             string   `json:"raw,omitempty"`
}

// SimilarCase is an ephemeral projection of a past defect returned by the
// similarity retriever. Score is in [0,1], higher means more similar.
type SimilarCase struct {
	TicketID    string         `json:"ticket_id"`
	Description string         `json:"description"`
	Category    DefectCategory `json:"category"`
	Priority    DefectPriority `json:"priority"`
	Resolution  string         `json:"resolution"`
	Score       float64        `json:"similarity_score"`
}

// ClassificationResult is the schema-complete outcome of classifying one
// report. A non-empty ParsingError marks a fallback result.
type ClassificationResult struct {
	ExtractedInfo           ExtractedInfo  `json:"extracted_info"`
	Category                DefectCategory `json:"category"`
	Priority                DefectPriority `json:"priority"`
	PriorityReasoning       string         `json:"priority_reasoning"`
	RecommendedActions      []string       `json:"recommended_actions"`
	AssignedTeam            string         `json:"assigned_team"`
	EstimatedResolutionTime string         `json:"estimated_resolution_time"`
	Timestamp               time.Time      `json:"timestamp"`
	RawInput                string         `json:"raw_input"`
	SimilarCases            []SimilarCase  `json:"similar_cases"`
	ParsingError            string         `json:"parsing_error,omitempty"`
}

// IsFallback reports whether the result was synthesized because the model
// output could not be parsed.
func (r *ClassificationResult) IsFallback() bool {
	return r.ParsingError != ""
}

// ClassificationSummary aggregates a batch of classification results.
type ClassificationSummary struct {
	TotalDefects  int                    `json:"total_defects"`
	ByCategory    map[DefectCategory]int `json:"by_category"`
	ByPriority    map[DefectPriority]int `json:"by_priority"`
	ByTeam        map[string]int         `json:"by_team"`
	CriticalCount int                    `json:"critical_count"`
	HighCount     int                    `json:"high_count"`
}
