package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/plantops/defect-triage/internal/ai"
	"github.com/plantops/defect-triage/internal/domain"
	"github.com/plantops/defect-triage/internal/events"
	"github.com/plantops/defect-triage/internal/persistence"
	"github.com/plantops/defect-triage/internal/repository"
	apperrors "github.com/plantops/defect-triage/pkg/util"
)

const (
	summaryCacheKey = "analytics:summary"
	summaryCacheTTL = 30 * time.Second

	recentHistoryLimit = 10
	maxIssueSummaryLen = 200
)

// ReportClassifier is the classification contract the service consumes.
type ReportClassifier interface {
	Classify(ctx context.Context, report string, history []ai.HistoricalExample) (*domain.ClassificationResult, error)
	ClassifyBatch(ctx context.Context, reports []string, history []ai.HistoricalExample) []ai.BatchOutcome
}

// DefectService coordinates the report-to-ticket workflow.
type DefectService struct {
	defects       repository.DefectRepository
	history       repository.HistoryRepository
	notifications repository.NotificationRepository
	teams         repository.TeamRepository
	classifier    ReportClassifier
	dispatcher    events.Dispatcher
	cache         *persistence.Redis
	logger        *zap.Logger
	idLocks       keyedMutex
}

// DefectDependencies bundles collaborators for the defect service.
type DefectDependencies struct {
	DefectRepo       repository.DefectRepository
	HistoryRepo      repository.HistoryRepository
	NotificationRepo repository.NotificationRepository
	TeamRepo         repository.TeamRepository
	Classifier       ReportClassifier
	Dispatcher       events.Dispatcher
	Cache            *persistence.Redis
	Logger           *zap.Logger
}

// NewDefectService constructs the service.
func NewDefectService(deps DefectDependencies) *DefectService {
	return &DefectService{
		defects:       deps.DefectRepo,
		history:       deps.HistoryRepo,
		notifications: deps.NotificationRepo,
		teams:         deps.TeamRepo,
		classifier:    deps.Classifier,
		dispatcher:    deps.Dispatcher,
		cache:         deps.Cache,
		logger:        deps.Logger,
	}
}

// SubmitReport classifies one free-text report and persists the resulting
// ticket with its creation history entry and team notification.
func (s *DefectService) SubmitReport(ctx context.Context, description string) (*domain.DefectRecord, *domain.ClassificationResult, error) {
	result, err := s.classifier.Classify(ctx, description, s.recentExamples(ctx))
	if err != nil {
		return nil, nil, apperrors.NewUpstreamUnavailable("generation service", err)
	}

	record, err := s.createTicket(ctx, description, result)
	if err != nil {
		return nil, nil, err
	}
	return record, result, nil
}

// BatchItem is the per-report outcome of a batch submission.
type BatchItem struct {
	Report   string
	TicketID string
	Result   *domain.ClassificationResult
	Err      error
}

// SubmitBatch classifies and persists several reports sequentially. A
// failing report is recorded in its item and does not abort the rest.
func (s *DefectService) SubmitBatch(ctx context.Context, descriptions []string) ([]BatchItem, domain.ClassificationSummary) {
	outcomes := s.classifier.ClassifyBatch(ctx, descriptions, s.recentExamples(ctx))

	items := make([]BatchItem, 0, len(outcomes))
	classified := make([]domain.ClassificationResult, 0, len(outcomes))
	for _, outcome := range outcomes {
		item := BatchItem{Report: outcome.Report, Result: outcome.Result, Err: outcome.Err}
		if outcome.Err == nil {
			classified = append(classified, *outcome.Result)
			record, err := s.createTicket(ctx, outcome.Report, outcome.Result)
			if err != nil {
				item.Err = err
			} else {
				item.TicketID = record.TicketID
			}
		}
		items = append(items, item)
	}
	return items, ai.Summarize(classified)
}

// GetDefect fetches one defect by ticket id.
func (s *DefectService) GetDefect(ctx context.Context, ticketID string) (*domain.DefectRecord, error) {
	record, err := s.defects.GetByTicketID(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("defect", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetDefectDetail fetches a defect together with its audit trail and
// notifications.
func (s *DefectService) GetDefectDetail(ctx context.Context, ticketID string) (*domain.DefectRecord, []domain.StatusHistoryEntry, []domain.Notification, error) {
	record, err := s.GetDefect(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, err
	}
	notifications, err := s.notifications.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, err
	}
	return record, history, notifications, nil
}

// ListHistory returns the status audit trail for a defect, oldest first.
func (s *DefectService) ListHistory(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.GetDefect(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// ListDefects lists defects newest first with optional filters.
func (s *DefectService) ListDefects(ctx context.Context, status *domain.DefectStatus, priority *domain.DefectPriority) ([]domain.DefectRecord, error) {
	return s.defects.ListWithFilter(ctx, repository.DefectFilter{Status: status, Priority: priority})
}

// allowedTransitions enumerates the legal status moves. RESOLVED may be
// reopened; the store itself stays permissive and validation lives here.
var allowedTransitions = map[domain.DefectStatus][]domain.DefectStatus{
	domain.DefectStatusOpen:       {domain.DefectStatusInProgress, domain.DefectStatusResolved},
	domain.DefectStatusInProgress: {domain.DefectStatusOpen, domain.DefectStatusResolved},
	domain.DefectStatusResolved:   {domain.DefectStatusOpen},
}

func isValidTransition(current, next domain.DefectStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// UpdateStatus transitions a defect, stamping resolution fields when the new
// status is RESOLVED and appending the audit and notification rows.
func (s *DefectService) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.DefectStatus, notes, changedBy string) (*domain.DefectRecord, error) {
	current, err := s.GetDefect(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(current.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": current.Status,
			"to":   newStatus,
		})
	}
	if changedBy == "" {
		changedBy = "API User"
	}

	record, oldStatus, err := s.defects.UpdateStatusWithAudit(ctx, ticketID, newStatus, notes, changedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("defect", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, err
	}

	s.cache.Delete(ctx, summaryCacheKey)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventDefectStatusChanged,
		TicketID: ticketID,
		Actor:    changedBy,
		Payload: events.DefectStatusChangedPayload{
			OldStatus:       oldStatus,
			NewStatus:       newStatus,
			ResolutionNotes: notes,
		},
	})
	return record, nil
}

// Summary returns aggregate statistics, served from the Redis cache when
// fresh.
func (s *DefectService) Summary(ctx context.Context) (*repository.SummaryStats, error) {
	if cached, ok := s.cache.GetString(ctx, summaryCacheKey); ok {
		var stats repository.SummaryStats
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
	}

	stats, err := s.defects.SummaryStats(ctx)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(stats); err == nil {
		s.cache.SetString(ctx, summaryCacheKey, string(encoded), summaryCacheTTL)
	}
	return stats, nil
}

// ListTeams returns team reference data.
func (s *DefectService) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.teams.List(ctx)
}

func (s *DefectService) createTicket(ctx context.Context, description string, result *domain.ClassificationResult) (*domain.DefectRecord, error) {
	now := time.Now()
	record := recordFromResult(description, result, now)

	prefix := TicketPrefix(record.Category, now)
	unlock := s.idLocks.Lock(prefix)
	defer unlock()

	last, err := s.defects.LastTicketID(ctx, prefix)
	if err != nil {
		return nil, err
	}
	record.TicketID = NextTicketID(prefix, last)

	notification := &domain.Notification{
		TicketID: record.TicketID,
		TeamName: record.AssignedTeam,
		Type:     domain.NotificationNewDefect,
		Message:  "New " + string(record.Priority) + " priority defect: " + record.TicketID,
		SentAt:   now,
		Status:   domain.NotificationSent,
	}
	if err := s.defects.CreateWithAudit(ctx, record, "Defect reported and categorized by AI", notification); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, apperrors.NewConflict("ticket id already allocated", map[string]any{"ticket_id": record.TicketID})
		}
		return nil, err
	}

	s.cache.Delete(ctx, summaryCacheKey)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventDefectCreated,
		TicketID: record.TicketID,
		Actor:    "System",
		Payload: events.DefectCreatedPayload{
			Category:     record.Category,
			Priority:     record.Priority,
			AssignedTeam: record.AssignedTeam,
			Description:  record.IssueSummary,
			Fallback:     result.IsFallback(),
		},
	})
	return record, nil
}

// recentExamples loads recently resolved defects as prompt context. Failures
// degrade to an empty history rather than failing the classification.
func (s *DefectService) recentExamples(ctx context.Context) []ai.HistoricalExample {
	records, err := s.defects.RecentResolved(ctx, recentHistoryLimit)
	if err != nil {
		s.logger.Warn("loading recent resolved defects failed", zap.Error(err))
		return nil
	}
	examples := make([]ai.HistoricalExample, 0, len(records))
	for _, record := range records {
		examples = append(examples, ai.HistoricalExample{
			Description: record.IssueSummary,
			Category:    string(record.Category),
			Resolution:  record.ResolutionNotes,
		})
	}
	return examples
}

func recordFromResult(description string, result *domain.ClassificationResult, now time.Time) *domain.DefectRecord {
	equipment := result.ExtractedInfo.Equipment
	if equipment == "" {
		equipment = "Unknown"
	}
	location := result.ExtractedInfo.Location
	if location == "" {
		location = "Unknown"
	}
	issue := result.ExtractedInfo.Issue
	if runes := []rune(issue); len(runes) > maxIssueSummaryLen {
		issue = string(runes[:maxIssueSummaryLen])
	}
	team := result.AssignedTeam
	if !domain.KnownTeam(team) {
		team = "Engineering"
	}

	return &domain.DefectRecord{
		CreatedAt:               now,
		RawText:                 description,
		Equipment:               equipment,
		Location:                location,
		IssueSummary:            issue,
		Category:                result.Category,
		Priority:                result.Priority,
		PriorityReasoning:       result.PriorityReasoning,
		RecommendedActions:      result.RecommendedActions,
		AssignedTeam:            team,
		EstimatedResolutionTime: result.EstimatedResolutionTime,
		Status:                  domain.DefectStatusOpen,
	}
}

func (s *DefectService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
