package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/defect-triage/internal/domain"
)

// DefectFilter captures listing parameters.
type DefectFilter struct {
	Status   *domain.DefectStatus
	Priority *domain.DefectPriority
	Limit    int
}

// DailyCount is one day of the creation trend.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SummaryStats aggregates defect counts for the analytics endpoint.
type SummaryStats struct {
	TotalDefects    int                           `json:"total_defects"`
	ByStatus        map[domain.DefectStatus]int   `json:"by_status"`
	ByPriority      map[domain.DefectPriority]int `json:"by_priority"`
	ByCategory      map[domain.DefectCategory]int `json:"by_category"`
	ByTeam          map[string]int                `json:"by_team"`
	RecentTrend     []DailyCount                  `json:"recent_trend"`
	OpenCount       int                           `json:"open_count"`
	InProgressCount int                           `json:"in_progress_count"`
	ResolvedCount   int                           `json:"resolved_count"`
	CriticalCount   int                           `json:"critical_count"`
	HighCount       int                           `json:"high_count"`
}

// DefectRepository encapsulates defect persistence. Creation and status
// updates write the defect row, its history entry and its notification in one
// transaction.
type DefectRepository interface {
	CreateWithAudit(ctx context.Context, record *domain.DefectRecord, historyNotes string, notification *domain.Notification) error
	LastTicketID(ctx context.Context, prefix string) (string, error)
	GetByTicketID(ctx context.Context, ticketID string) (*domain.DefectRecord, error)
	ListWithFilter(ctx context.Context, filter DefectFilter) ([]domain.DefectRecord, error)
	UpdateStatusWithAudit(ctx context.Context, ticketID string, newStatus domain.DefectStatus, notes, changedBy string) (*domain.DefectRecord, domain.DefectStatus, error)
	RecentResolved(ctx context.Context, limit int) ([]domain.DefectRecord, error)
	SummaryStats(ctx context.Context) (*SummaryStats, error)
}

type defectRepository struct {
	pool *pgxpool.Pool
}

// NewDefectRepository instantiates repository.
func NewDefectRepository(pool *pgxpool.Pool) DefectRepository {
	return &defectRepository{pool: pool}
}

const defectColumns = `
        id, ticket_id, created_at, raw_text, equipment, location, issue_summary,
        category, priority, priority_reasoning, recommended_actions, assigned_team,
        estimated_resolution_time, status, resolution_notes, resolved_at, resolved_by`

func (r *defectRepository) CreateWithAudit(ctx context.Context, record *domain.DefectRecord, historyNotes string, notification *domain.Notification) error {
	actions, err := json.Marshal(record.RecommendedActions)
	if err != nil {
		return fmt.Errorf("marshal recommended actions: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertDefect = `
        INSERT INTO defects (ticket_id, created_at, raw_text, equipment, location, issue_summary,
            category, priority, priority_reasoning, recommended_actions, assigned_team,
            estimated_resolution_time, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id`
	if err := tx.QueryRow(ctx, insertDefect,
		record.TicketID,
		record.CreatedAt,
		record.RawText,
		record.Equipment,
		record.Location,
		record.IssueSummary,
		record.Category,
		record.Priority,
		record.PriorityReasoning,
		actions,
		record.AssignedTeam,
		record.EstimatedResolutionTime,
		record.Status,
	).Scan(&record.ID); err != nil {
		return err
	}

	const insertHistory = `
        INSERT INTO defect_history (ticket_id, changed_at, status_from, status_to, notes, changed_by)
        VALUES ($1,$2,NULL,$3,$4,'System')`
	if _, err := tx.Exec(ctx, insertHistory, record.TicketID, record.CreatedAt, record.Status, historyNotes); err != nil {
		return err
	}

	const insertNotification = `
        INSERT INTO notifications (ticket_id, team_name, notification_type, message, sent_at, status)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.Exec(ctx, insertNotification,
		notification.TicketID,
		notification.TeamName,
		notification.Type,
		notification.Message,
		notification.SentAt,
		notification.Status,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *defectRepository) LastTicketID(ctx context.Context, prefix string) (string, error) {
	const query = `
        SELECT ticket_id FROM defects
        WHERE ticket_id LIKE $1
        ORDER BY ticket_id DESC
        LIMIT 1`
	var ticketID string
	err := r.pool.QueryRow(ctx, query, prefix+"%").Scan(&ticketID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ticketID, nil
}

func (r *defectRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.DefectRecord, error) {
	query := `SELECT` + defectColumns + ` FROM defects WHERE ticket_id=$1`
	row := r.pool.QueryRow(ctx, query, ticketID)
	return scanDefect(row)
}

func (r *defectRepository) ListWithFilter(ctx context.Context, filter DefectFilter) ([]domain.DefectRecord, error) {
	query, args := listQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefects(rows)
}

func listQuery(filter DefectFilter) (string, []any) {
	query := `SELECT` + defectColumns + ` FROM defects`
	clauses := ""
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses += fmt.Sprintf(" WHERE status=$%d", len(args))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		if clauses == "" {
			clauses = fmt.Sprintf(" WHERE priority=$%d", len(args))
		} else {
			clauses += fmt.Sprintf(" AND priority=$%d", len(args))
		}
	}

	query += clauses + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}

func (r *defectRepository) UpdateStatusWithAudit(ctx context.Context, ticketID string, newStatus domain.DefectStatus, notes, changedBy string) (*domain.DefectRecord, domain.DefectStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var oldStatus domain.DefectStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM defects WHERE ticket_id=$1 FOR UPDATE`, ticketID,
	).Scan(&oldStatus); err != nil {
		return nil, "", err
	}

	now := time.Now()
	query, args := statusUpdateQuery(ticketID, newStatus, notes, changedBy, now)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, "", err
	}

	const insertHistory = `
        INSERT INTO defect_history (ticket_id, changed_at, status_from, status_to, notes, changed_by)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.Exec(ctx, insertHistory, ticketID, now, oldStatus, newStatus, notes, changedBy); err != nil {
		return nil, "", err
	}

	const insertNotification = `
        INSERT INTO notifications (ticket_id, team_name, notification_type, message, sent_at, status)
        VALUES ($1,'',$2,$3,$4,$5)`
	message := fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus)
	if _, err := tx.Exec(ctx, insertNotification, ticketID, domain.NotificationStatusUpdate, message, now, domain.NotificationSent); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}

	record, err := r.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	return record, oldStatus, nil
}

func statusUpdateQuery(ticketID string, newStatus domain.DefectStatus, notes, changedBy string, now time.Time) (string, []any) {
	query := `UPDATE defects SET status=$1`
	args := []any{newStatus}
	if newStatus == domain.DefectStatusResolved {
		args = append(args, now, changedBy)
		query += fmt.Sprintf(", resolved_at=$%d, resolved_by=$%d", len(args)-1, len(args))
	}
	if notes != "" {
		args = append(args, notes)
		query += fmt.Sprintf(", resolution_notes=$%d", len(args))
	}
	args = append(args, ticketID)
	query += fmt.Sprintf(" WHERE ticket_id=$%d", len(args))
	return query, args
}

func (r *defectRepository) RecentResolved(ctx context.Context, limit int) ([]domain.DefectRecord, error) {
	query := `SELECT` + defectColumns + `
        FROM defects
        WHERE status=$1
        ORDER BY resolved_at DESC NULLS LAST
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.DefectStatusResolved, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefects(rows)
}

func (r *defectRepository) SummaryStats(ctx context.Context) (*SummaryStats, error) {
	stats := &SummaryStats{
		ByStatus:   map[domain.DefectStatus]int{},
		ByPriority: map[domain.DefectPriority]int{},
		ByCategory: map[domain.DefectCategory]int{},
		ByTeam:     map[string]int{},
	}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM defects`).Scan(&stats.TotalDefects); err != nil {
		return nil, err
	}

	if err := r.countGroup(ctx, `SELECT status, COUNT(*) FROM defects GROUP BY status`, nil, func(key string, count int) {
		stats.ByStatus[domain.DefectStatus(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := r.countGroup(ctx, `SELECT priority, COUNT(*) FROM defects GROUP BY priority`, nil, func(key string, count int) {
		stats.ByPriority[domain.DefectPriority(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := r.countGroup(ctx, `SELECT category, COUNT(*) FROM defects GROUP BY category`, nil, func(key string, count int) {
		stats.ByCategory[domain.DefectCategory(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := r.countGroup(ctx, `SELECT assigned_team, COUNT(*) FROM defects GROUP BY assigned_team`, nil, func(key string, count int) {
		stats.ByTeam[key] = count
	}); err != nil {
		return nil, err
	}

	// Window bounds and day labels come from one clock, bucketed in UTC on
	// both sides, so counts near midnight cannot land on mismatched dates.
	now := time.Now().UTC()
	const trendQuery = `
        SELECT TO_CHAR((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD'), COUNT(*)
        FROM defects
        WHERE created_at >= $1
        GROUP BY 1
        ORDER BY 1`
	counts := map[string]int{}
	if err := r.countGroup(ctx, trendQuery, []any{trendWindowStart(now)}, func(key string, count int) {
		counts[key] = count
	}); err != nil {
		return nil, err
	}
	stats.RecentTrend = FillTrend(counts, now)

	stats.OpenCount = stats.ByStatus[domain.DefectStatusOpen]
	stats.InProgressCount = stats.ByStatus[domain.DefectStatusInProgress]
	stats.ResolvedCount = stats.ByStatus[domain.DefectStatusResolved]
	stats.CriticalCount = stats.ByPriority[domain.DefectPriorityCritical]
	stats.HighCount = stats.ByPriority[domain.DefectPriorityHigh]
	return stats, nil
}

func (r *defectRepository) countGroup(ctx context.Context, query string, args []any, collect func(key string, count int)) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		collect(key, count)
	}
	return rows.Err()
}

// trendWindowStart returns the UTC start of the 7-day trend window ending at
// now.
func trendWindowStart(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -6)
}

// FillTrend expands sparse per-day counts into a dense 7-day series ending at
// now, ascending by date with zeros for inactive days.
func FillTrend(counts map[string]int, now time.Time) []DailyCount {
	trend := make([]DailyCount, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset).Format("2006-01-02")
		trend = append(trend, DailyCount{Date: day, Count: counts[day]})
	}
	return trend
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefect(row rowScanner) (*domain.DefectRecord, error) {
	var record domain.DefectRecord
	var actions []byte
	if err := row.Scan(
		&record.ID,
		&record.TicketID,
		&record.CreatedAt,
		&record.RawText,
		&record.Equipment,
		&record.Location,
		&record.IssueSummary,
		&record.Category,
		&record.Priority,
		&record.PriorityReasoning,
		&actions,
		&record.AssignedTeam,
		&record.EstimatedResolutionTime,
		&record.Status,
		&record.ResolutionNotes,
		&record.ResolvedAt,
		&record.ResolvedBy,
	); err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &record.RecommendedActions); err != nil {
			return nil, fmt.Errorf("unmarshal recommended actions: %w", err)
		}
	}
	return &record, nil
}

func scanDefects(rows pgx.Rows) ([]domain.DefectRecord, error) {
	var result []domain.DefectRecord
	for rows.Next() {
		record, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}
