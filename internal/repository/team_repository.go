package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/defect-triage/internal/domain"
)

// TeamRepository reads team reference data.
type TeamRepository interface {
	List(ctx context.Context) ([]domain.Team, error)
	GetByName(ctx context.Context, name string) (*domain.Team, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository instantiates repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) List(ctx context.Context) ([]domain.Team, error) {
	const query = `
        SELECT id, team_name, contact_email, contact_phone, specialization
        FROM teams
        ORDER BY team_name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.ContactEmail, &team.ContactPhone, &team.Specialization); err != nil {
			return nil, err
		}
		result = append(result, team)
	}
	return result, rows.Err()
}

func (r *teamRepository) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	const query = `
        SELECT id, team_name, contact_email, contact_phone, specialization
        FROM teams WHERE team_name=$1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, name).Scan(
		&team.ID,
		&team.Name,
		&team.ContactEmail,
		&team.ContactPhone,
		&team.Specialization,
	); err != nil {
		return nil, err
	}
	return &team, nil
}
