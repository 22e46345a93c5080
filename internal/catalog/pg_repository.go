package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/booking-engine/internal/db"
)

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Name,
		&s.DurationMinutes,
		&s.PreparationMinutes,
		&s.CleanupMinutes,
		&s.PriceCents,
		&s.CommissionBps,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, preparation_minutes, cleanup_minutes,
		       price_cents, commission_bps, is_active, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}
