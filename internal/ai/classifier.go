package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/defect-triage/internal/domain"
	"github.com/plantops/defect-triage/internal/observability"
)

const similarCasesTopK = 3

// Classifier turns a free-text defect report into a structured
// ClassificationResult using the generation service augmented by semantic
// retrieval. Classify always returns a schema-complete result unless the
// generation transport itself fails.
type Classifier struct {
	gen       Generator
	retriever SimilarCaseFinder
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewClassifier constructs the classifier.
func NewClassifier(gen Generator, retriever SimilarCaseFinder, logger *zap.Logger, metrics *observability.Metrics) *Classifier {
	return &Classifier{gen: gen, retriever: retriever, logger: logger, metrics: metrics}
}

// Classify analyzes one report. Retrieval failures degrade to an empty
// similar-cases list; malformed generation output degrades to a fallback
// result flagged via ParsingError.
func (c *Classifier) Classify(ctx context.Context, report string, history []HistoricalExample) (*domain.ClassificationResult, error) {
	var similar []domain.SimilarCase
	if c.retriever != nil {
		found, err := c.retriever.FindSimilar(ctx, report, similarCasesTopK)
		if err != nil {
			c.logger.Warn("similarity retrieval failed; continuing without similar cases", zap.Error(err))
			c.metrics.RecordRetrievalFailure()
		} else {
			similar = found
		}
	}

	prompt := buildAnalysisPrompt(report, history, similar)
	response, err := c.gen.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result := c.parseResponse(response)
	result.Timestamp = time.Now()
	result.RawInput = report
	if similar == nil {
		similar = []domain.SimilarCase{}
	}
	result.SimilarCases = similar

	c.metrics.RecordClassification(result.IsFallback())
	if result.IsFallback() {
		c.logger.Warn("classification fell back to manual-review result",
			zap.String("parsing_error", result.ParsingError))
	}
	return result, nil
}

// BatchOutcome is the per-report result of a batch classification.
type BatchOutcome struct {
	Report string
	Result *domain.ClassificationResult
	Err    error
}

// ClassifyBatch processes reports independently and sequentially; one
// failure does not abort the remaining reports.
func (c *Classifier) ClassifyBatch(ctx context.Context, reports []string, history []HistoricalExample) []BatchOutcome {
	outcomes := make([]BatchOutcome, 0, len(reports))
	for _, report := range reports {
		result, err := c.Classify(ctx, report, history)
		if err != nil {
			c.logger.Error("batch classification item failed", zap.Error(err))
		}
		outcomes = append(outcomes, BatchOutcome{Report: report, Result: result, Err: err})
	}
	return outcomes
}

// Summarize aggregates classification results by category, priority and team.
func Summarize(results []domain.ClassificationResult) domain.ClassificationSummary {
	summary := domain.ClassificationSummary{
		ByCategory: map[domain.DefectCategory]int{},
		ByPriority: map[domain.DefectPriority]int{},
		ByTeam:     map[string]int{},
	}
	for _, result := range results {
		summary.TotalDefects++
		summary.ByCategory[result.Category]++
		summary.ByPriority[result.Priority]++
		summary.ByTeam[result.AssignedTeam]++
	}
	summary.CriticalCount = summary.ByPriority[domain.DefectPriorityCritical]
	summary.HighCount = summary.ByPriority[domain.DefectPriorityHigh]
	return summary
}

var requiredFields = []string{"extracted_info", "category", "priority", "recommended_actions", "assigned_team"}

// parseResponse decodes the model output, validating required fields. Any
// failure yields the fallback result rather than an error.
func (c *Classifier) parseResponse(response string) *domain.ClassificationResult {
	cleaned := stripCodeFences(response)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return fallbackResult(response, err.Error())
	}
	for _, field := range requiredFields {
		if _, ok := fields[field]; !ok {
			return fallbackResult(response, fmt.Sprintf("missing required field: %s", field))
		}
	}

	var result domain.ClassificationResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return fallbackResult(response, err.Error())
	}
	return &result
}

func fallbackResult(response, detail string) *domain.ClassificationResult {
	return &domain.ClassificationResult{
		ExtractedInfo:           domain.ExtractedInfo{Raw: response},
		Category:                domain.CategoryUnknown,
		Priority:                domain.DefectPriorityMedium,
		PriorityReasoning:       "Failed to parse AI response",
		RecommendedActions:      []string{"Review defect manually", "Categorize based on visual inspection"},
		AssignedTeam:            "Engineering",
		EstimatedResolutionTime: "Unknown",
		ParsingError:            detail,
	}
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
