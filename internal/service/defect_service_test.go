package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plantops/defect-triage/internal/ai"
	"github.com/plantops/defect-triage/internal/domain"
	"github.com/plantops/defect-triage/internal/events"
	"github.com/plantops/defect-triage/internal/repository"
	apperrors "github.com/plantops/defect-triage/pkg/util"
)

// fakeDefectStore is an in-memory DefectRepository mirroring the transactional
// contract of the SQL implementation: creates and status updates also append
// history and notification rows.
type fakeDefectStore struct {
	mu            sync.Mutex
	nextID        int64
	defects       map[string]*domain.DefectRecord
	history       []domain.StatusHistoryEntry
	notifications []domain.Notification
}

func newFakeDefectStore() *fakeDefectStore {
	return &fakeDefectStore{defects: map[string]*domain.DefectRecord{}}
}

func (f *fakeDefectStore) CreateWithAudit(_ context.Context, record *domain.DefectRecord, historyNotes string, notification *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.defects[record.TicketID]; exists {
		return fmt.Errorf("duplicate ticket id %s", record.TicketID)
	}
	f.nextID++
	record.ID = f.nextID
	stored := *record
	f.defects[record.TicketID] = &stored
	f.history = append(f.history, domain.StatusHistoryEntry{
		TicketID:  record.TicketID,
		Timestamp: record.CreatedAt,
		StatusTo:  record.Status,
		Notes:     historyNotes,
		ChangedBy: "System",
	})
	f.notifications = append(f.notifications, *notification)
	return nil
}

func (f *fakeDefectStore) LastTicketID(_ context.Context, prefix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.defects {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	sort.Strings(ids)
	return ids[len(ids)-1], nil
}

func (f *fakeDefectStore) GetByTicketID(_ context.Context, ticketID string) (*domain.DefectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.defects[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (f *fakeDefectStore) ListWithFilter(_ context.Context, filter repository.DefectFilter) ([]domain.DefectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.DefectRecord
	for _, record := range f.defects {
		if filter.Status != nil && record.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && record.Priority != *filter.Priority {
			continue
		}
		result = append(result, *record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeDefectStore) UpdateStatusWithAudit(_ context.Context, ticketID string, newStatus domain.DefectStatus, notes, changedBy string) (*domain.DefectRecord, domain.DefectStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.defects[ticketID]
	if !ok {
		return nil, "", pgx.ErrNoRows
	}
	oldStatus := record.Status
	record.Status = newStatus
	now := time.Now()
	if newStatus == domain.DefectStatusResolved {
		record.ResolvedAt = &now
		record.ResolvedBy = &changedBy
	}
	if notes != "" {
		record.ResolutionNotes = notes
	}
	from := oldStatus
	f.history = append(f.history, domain.StatusHistoryEntry{
		TicketID:   ticketID,
		Timestamp:  now,
		StatusFrom: &from,
		StatusTo:   newStatus,
		Notes:      notes,
		ChangedBy:  changedBy,
	})
	f.notifications = append(f.notifications, domain.Notification{
		TicketID: ticketID,
		Type:     domain.NotificationStatusUpdate,
		Message:  fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus),
		SentAt:   now,
		Status:   domain.NotificationSent,
	})
	copied := *record
	return &copied, oldStatus, nil
}

func (f *fakeDefectStore) RecentResolved(_ context.Context, limit int) ([]domain.DefectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.DefectRecord
	for _, record := range f.defects {
		if record.Status == domain.DefectStatusResolved {
			result = append(result, *record)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeDefectStore) SummaryStats(_ context.Context) (*repository.SummaryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &repository.SummaryStats{
		ByStatus:   map[domain.DefectStatus]int{},
		ByPriority: map[domain.DefectPriority]int{},
		ByCategory: map[domain.DefectCategory]int{},
		ByTeam:     map[string]int{},
	}
	for _, record := range f.defects {
		stats.TotalDefects++
		stats.ByStatus[record.Status]++
		stats.ByPriority[record.Priority]++
		stats.ByCategory[record.Category]++
		stats.ByTeam[record.AssignedTeam]++
	}
	stats.OpenCount = stats.ByStatus[domain.DefectStatusOpen]
	stats.InProgressCount = stats.ByStatus[domain.DefectStatusInProgress]
	stats.ResolvedCount = stats.ByStatus[domain.DefectStatusResolved]
	stats.CriticalCount = stats.ByPriority[domain.DefectPriorityCritical]
	stats.HighCount = stats.ByPriority[domain.DefectPriorityHigh]
	return stats, nil
}

func (f *fakeDefectStore) historyFor(ticketID string) []domain.StatusHistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []domain.StatusHistoryEntry
	for _, entry := range f.history {
		if entry.TicketID == ticketID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (f *fakeDefectStore) notificationsFor(ticketID string) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.notifications {
		if n.TicketID == ticketID {
			out = append(out, n)
		}
	}
	return out
}

type fakeHistoryRepo struct{ store *fakeDefectStore }

func (f *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	return f.store.historyFor(ticketID), nil
}

type fakeNotificationRepo struct{ store *fakeDefectStore }

func (f *fakeNotificationRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Notification, error) {
	return f.store.notificationsFor(ticketID), nil
}

type fakeTeamRepo struct{}

func (f *fakeTeamRepo) List(context.Context) ([]domain.Team, error) {
	teams := make([]domain.Team, 0, len(domain.TeamNames))
	for i, name := range domain.TeamNames {
		teams = append(teams, domain.Team{ID: int64(i + 1), Name: name})
	}
	return teams, nil
}

func (f *fakeTeamRepo) GetByName(_ context.Context, name string) (*domain.Team, error) {
	return &domain.Team{Name: name}, nil
}

// stubClassifier returns a canned result or error for every report.
type stubClassifier struct {
	result *domain.ClassificationResult
	err    error
}

func (s *stubClassifier) Classify(context.Context, string, []ai.HistoricalExample) (*domain.ClassificationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.result
	return &copied, nil
}

func (s *stubClassifier) ClassifyBatch(ctx context.Context, reports []string, history []ai.HistoricalExample) []ai.BatchOutcome {
	outcomes := make([]ai.BatchOutcome, 0, len(reports))
	for _, report := range reports {
		result, err := s.Classify(ctx, report, history)
		outcomes = append(outcomes, ai.BatchOutcome{Report: report, Result: result, Err: err})
	}
	return outcomes
}

func safetyResult() *domain.ClassificationResult {
	return &domain.ClassificationResult{
		ExtractedInfo: domain.ExtractedInfo{
			Equipment: "Hydraulic Press #3",
			Location:  "Line 2",
			Issue:     "Hydraulic fluid leaking near operator station",
		},
		Category:                domain.CategorySafety,
		Priority:                domain.DefectPriorityCritical,
		PriorityReasoning:       "Fluid on floor near operators is an immediate hazard",
		RecommendedActions:      []string{"Stop the press", "Cordon off the area", "Replace the failed seal"},
		AssignedTeam:            "Safety",
		EstimatedResolutionTime: "2 hours",
		SimilarCases:            []domain.SimilarCase{},
	}
}

func newTestService(store *fakeDefectStore, classifier ReportClassifier, dispatcher events.Dispatcher) *DefectService {
	return NewDefectService(DefectDependencies{
		DefectRepo:       store,
		HistoryRepo:      &fakeHistoryRepo{store: store},
		NotificationRepo: &fakeNotificationRepo{store: store},
		TeamRepo:         &fakeTeamRepo{},
		Classifier:       classifier,
		Dispatcher:       dispatcher,
		Cache:            nil,
		Logger:           zap.NewNop(),
	})
}

func TestSubmitReportCreatesTicketWithAudit(t *testing.T) {
	store := newFakeDefectStore()
	dispatcher := events.NewInMemoryDispatcher()

	var published []events.Event
	dispatcher.Subscribe(events.EventDefectCreated, func(_ context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})

	svc := newTestService(store, &stubClassifier{result: safetyResult()}, dispatcher)

	record, result, err := svc.SubmitReport(context.Background(), "Hydraulic press 3 is leaking fluid near the operator")
	require.NoError(t, err)
	require.NotNil(t, result)

	wantPrefix := "SAFE-" + time.Now().Format("20060102") + "-"
	assert.Equal(t, wantPrefix+"001", record.TicketID)
	assert.Equal(t, domain.DefectStatusOpen, record.Status)
	assert.Equal(t, domain.CategorySafety, record.Category)
	assert.Equal(t, []string{"Stop the press", "Cordon off the area", "Replace the failed seal"}, record.RecommendedActions)

	history := store.historyFor(record.TicketID)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].StatusFrom)
	assert.Equal(t, domain.DefectStatusOpen, history[0].StatusTo)
	assert.Equal(t, "Defect reported and categorized by AI", history[0].Notes)

	notifications := store.notificationsFor(record.TicketID)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Safety", notifications[0].TeamName)
	assert.Equal(t, domain.NotificationNewDefect, notifications[0].Type)
	assert.Equal(t, "New CRITICAL priority defect: "+record.TicketID, notifications[0].Message)

	require.Len(t, published, 1)
	assert.Equal(t, record.TicketID, published[0].TicketID)
	assert.NotEmpty(t, published[0].ID)
}

func TestSubmitReportDefaultsUnknownFields(t *testing.T) {
	store := newFakeDefectStore()
	result := safetyResult()
	result.ExtractedInfo.Equipment = ""
	result.ExtractedInfo.Location = ""
	result.ExtractedInfo.Issue = strings.Repeat("x", 450)

	svc := newTestService(store, &stubClassifier{result: result}, events.NewInMemoryDispatcher())

	record, _, err := svc.SubmitReport(context.Background(), "something is wrong")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", record.Equipment)
	assert.Equal(t, "Unknown", record.Location)
	assert.Len(t, record.IssueSummary, 200)
}

func TestIssueSummaryTruncatesOnRuneBoundary(t *testing.T) {
	store := newFakeDefectStore()
	result := safetyResult()
	// a multi-byte rune straddles the truncation point
	result.ExtractedInfo.Issue = strings.Repeat("a", 199) + "超音波センサーが断続的に故障"

	svc := newTestService(store, &stubClassifier{result: result}, events.NewInMemoryDispatcher())

	record, _, err := svc.SubmitReport(context.Background(), "sensor fault")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(record.IssueSummary))
	assert.Equal(t, 200, utf8.RuneCountInString(record.IssueSummary))
	assert.True(t, strings.HasSuffix(record.IssueSummary, "超"))
}

func TestSubmitReportNormalizesUnknownTeam(t *testing.T) {
	store := newFakeDefectStore()
	result := safetyResult()
	result.AssignedTeam = "Facilities"

	svc := newTestService(store, &stubClassifier{result: result}, events.NewInMemoryDispatcher())

	record, _, err := svc.SubmitReport(context.Background(), "leak")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", record.AssignedTeam)
}

// duplicateInsertStore simulates a unique-violation on the defect insert.
type duplicateInsertStore struct {
	*fakeDefectStore
}

func (d *duplicateInsertStore) CreateWithAudit(context.Context, *domain.DefectRecord, string, *domain.Notification) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "defects_ticket_id_key"}
}

func TestSubmitReportDuplicateInsertIsConflict(t *testing.T) {
	store := &duplicateInsertStore{fakeDefectStore: newFakeDefectStore()}
	svc := NewDefectService(DefectDependencies{
		DefectRepo:       store,
		HistoryRepo:      &fakeHistoryRepo{store: store.fakeDefectStore},
		NotificationRepo: &fakeNotificationRepo{store: store.fakeDefectStore},
		TeamRepo:         &fakeTeamRepo{},
		Classifier:       &stubClassifier{result: safetyResult()},
		Dispatcher:       events.NewInMemoryDispatcher(),
		Logger:           zap.NewNop(),
	})

	_, _, err := svc.SubmitReport(context.Background(), "leak")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CONFLICT", domainErr.Code)
	assert.Equal(t, 409, domainErr.HTTPStatus)
}

func TestSubmitReportUpstreamFailure(t *testing.T) {
	store := newFakeDefectStore()
	svc := newTestService(store, &stubClassifier{err: errors.New("connection refused")}, events.NewInMemoryDispatcher())

	_, _, err := svc.SubmitReport(context.Background(), "report")
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", domainErr.Code)
	assert.Equal(t, 502, domainErr.HTTPStatus)
	assert.Empty(t, store.defects)
}

func TestConcurrentSubmissionsGetDistinctTicketIDs(t *testing.T) {
	store := newFakeDefectStore()
	svc := newTestService(store, &stubClassifier{result: safetyResult()}, events.NewInMemoryDispatcher())

	const workers = 20
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, _, err := svc.SubmitReport(context.Background(), "leak")
			if assert.NoError(t, err) {
				ids <- record.TicketID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate ticket id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
}

func TestUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.DefectStatus
		to      domain.DefectStatus
		allowed bool
	}{
		{"open to in progress", domain.DefectStatusOpen, domain.DefectStatusInProgress, true},
		{"open to resolved", domain.DefectStatusOpen, domain.DefectStatusResolved, true},
		{"in progress back to open", domain.DefectStatusInProgress, domain.DefectStatusOpen, true},
		{"in progress to resolved", domain.DefectStatusInProgress, domain.DefectStatusResolved, true},
		{"resolved reopened", domain.DefectStatusResolved, domain.DefectStatusOpen, true},
		{"resolved to in progress", domain.DefectStatusResolved, domain.DefectStatusInProgress, false},
		{"open to open", domain.DefectStatusOpen, domain.DefectStatusOpen, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeDefectStore()
			svc := newTestService(store, &stubClassifier{result: safetyResult()}, events.NewInMemoryDispatcher())
			record, _, err := svc.SubmitReport(context.Background(), "leak")
			require.NoError(t, err)
			if tc.from != domain.DefectStatusOpen {
				store.defects[record.TicketID].Status = tc.from
			}

			_, err = svc.UpdateStatus(context.Background(), record.TicketID, tc.to, "", "")
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				var domainErr *apperrors.DomainError
				require.ErrorAs(t, err, &domainErr)
				assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
			}
		})
	}
}

func TestUpdateStatusResolveStampsResolution(t *testing.T) {
	store := newFakeDefectStore()
	dispatcher := events.NewInMemoryDispatcher()

	var published []events.Event
	dispatcher.Subscribe(events.EventDefectStatusChanged, func(_ context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})

	svc := newTestService(store, &stubClassifier{result: safetyResult()}, dispatcher)
	record, _, err := svc.SubmitReport(context.Background(), "leak")
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), record.TicketID, domain.DefectStatusResolved, "Replaced the seal", "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefectStatusResolved, updated.Status)
	assert.Equal(t, "Replaced the seal", updated.ResolutionNotes)
	require.NotNil(t, updated.ResolvedAt)
	require.NotNil(t, updated.ResolvedBy)
	assert.Equal(t, "API User", *updated.ResolvedBy)

	history := store.historyFor(record.TicketID)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].StatusFrom)
	assert.Equal(t, domain.DefectStatusOpen, *history[1].StatusFrom)
	assert.Equal(t, domain.DefectStatusResolved, history[1].StatusTo)
	assert.Equal(t, "API User", history[1].ChangedBy)

	notifications := store.notificationsFor(record.TicketID)
	require.Len(t, notifications, 2)
	assert.Equal(t, "Status changed from OPEN to RESOLVED", notifications[1].Message)

	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.DefectStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.DefectStatusOpen, payload.OldStatus)
	assert.Equal(t, domain.DefectStatusResolved, payload.NewStatus)
}

func TestUpdateStatusUnknownTicket(t *testing.T) {
	store := newFakeDefectStore()
	svc := newTestService(store, &stubClassifier{result: safetyResult()}, events.NewInMemoryDispatcher())

	_, err := svc.UpdateStatus(context.Background(), "MECH-20260831-001", domain.DefectStatusResolved, "", "")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
	assert.Empty(t, store.history)
}

func TestSubmitBatchContinuesPastFailures(t *testing.T) {
	store := newFakeDefectStore()
	classifier := &flakyClassifier{good: safetyResult(), failOn: "bad report"}
	svc := newTestService(store, classifier, events.NewInMemoryDispatcher())

	items, summary := svc.SubmitBatch(context.Background(), []string{"leak one", "bad report", "leak two"})
	require.Len(t, items, 3)
	assert.NoError(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.NoError(t, items[2].Err)
	assert.NotEmpty(t, items[0].TicketID)
	assert.Empty(t, items[1].TicketID)
	assert.NotEqual(t, items[0].TicketID, items[2].TicketID)

	assert.Equal(t, 2, summary.TotalDefects)
	assert.Equal(t, 2, summary.CriticalCount)
	assert.Equal(t, 2, summary.ByTeam["Safety"])
}

// flakyClassifier fails for a specific report text.
type flakyClassifier struct {
	good   *domain.ClassificationResult
	failOn string
}

func (f *flakyClassifier) Classify(_ context.Context, report string, _ []ai.HistoricalExample) (*domain.ClassificationResult, error) {
	if report == f.failOn {
		return nil, errors.New("upstream timeout")
	}
	copied := *f.good
	return &copied, nil
}

func (f *flakyClassifier) ClassifyBatch(ctx context.Context, reports []string, history []ai.HistoricalExample) []ai.BatchOutcome {
	outcomes := make([]ai.BatchOutcome, 0, len(reports))
	for _, report := range reports {
		result, err := f.Classify(ctx, report, history)
		outcomes = append(outcomes, ai.BatchOutcome{Report: report, Result: result, Err: err})
	}
	return outcomes
}

func TestSummaryCountsByPriority(t *testing.T) {
	store := newFakeDefectStore()
	svc := newTestService(store, &stubClassifier{result: safetyResult()}, events.NewInMemoryDispatcher())

	critical := safetyResult()
	high := safetyResult()
	high.Priority = domain.DefectPriorityHigh
	high.Category = domain.CategoryMechanical

	for _, result := range []*domain.ClassificationResult{critical, high, high} {
		svcWith := newTestService(store, &stubClassifier{result: result}, events.NewInMemoryDispatcher())
		_, _, err := svcWith.SubmitReport(context.Background(), "report")
		require.NoError(t, err)
	}

	stats, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDefects)
	assert.Equal(t, 1, stats.CriticalCount)
	assert.Equal(t, 2, stats.HighCount)
	assert.Equal(t, 3, stats.OpenCount)
}

func TestGetDefectNotFound(t *testing.T) {
	store := newFakeDefectStore()
	svc := newTestService(store, &stubClassifier{result: safetyResult()}, events.NewInMemoryDispatcher())

	_, err := svc.GetDefect(context.Background(), "QC-20260831-001")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}
