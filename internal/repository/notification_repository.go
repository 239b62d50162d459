package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/defect-triage/internal/domain"
)

// NotificationRepository reads notification rows. Writes happen inside
// DefectRepository transactions.
type NotificationRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository instantiates repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Notification, error) {
	const query = `
        SELECT id, ticket_id, team_name, notification_type, message, sent_at, status
        FROM notifications
        WHERE ticket_id=$1
        ORDER BY sent_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var notification domain.Notification
		if err := rows.Scan(
			&notification.ID,
			&notification.TicketID,
			&notification.TeamName,
			&notification.Type,
			&notification.Message,
			&notification.SentAt,
			&notification.Status,
		); err != nil {
			return nil, err
		}
		result = append(result, notification)
	}
	return result, rows.Err()
}
