package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/defect-triage/internal/domain"
)

// HistoryRepository reads the append-only status audit trail. Writes happen
// inside DefectRepository transactions.
type HistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository instantiates repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, changed_at, status_from, status_to, notes, changed_by
        FROM defect_history
        WHERE ticket_id=$1
        ORDER BY changed_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Timestamp,
			&entry.StatusFrom,
			&entry.StatusTo,
			&entry.Notes,
			&entry.ChangedBy,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
