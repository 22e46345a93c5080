package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/booking-engine/internal/db"
)

// PgRepository reads provider schedules. The same SQL serves both the pool
// and an open transaction, depending on the Querier it is built with.
type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Active,
		&p.TotalCompletedBookings,
		&p.TotalRevenueCents,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, is_active, total_completed_bookings, total_revenue_cents, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) WeeklyWindows(ctx context.Context, providerID uuid.UUID, day time.Weekday) ([]Interval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT start_minute, end_minute
		FROM weekly_availability
		WHERE provider_id = $1 AND day_of_week = $2
		ORDER BY start_minute
	`, providerID, int(day))
	if err != nil {
		return nil, fmt.Errorf("query weekly availability: %w", err)
	}
	defer rows.Close()

	var result []Interval
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		result = append(result, Interval{Start: TimeOfDay(start), End: TimeOfDay(end)})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ExceptionFor(ctx context.Context, providerID uuid.UUID, date civil.Date) (*Exception, error) {
	var (
		exc        Exception
		start, end *int
	)

	err := r.q.QueryRow(ctx, `
		SELECT is_unavailable, start_minute, end_minute, reason
		FROM availability_exceptions
		WHERE provider_id = $1 AND exception_date = $2
	`, providerID, db.DateArg(date)).Scan(&exc.Unavailable, &start, &end, &exc.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	exc.ProviderID = providerID
	exc.Date = date
	if start != nil && end != nil {
		exc.Window = &Interval{Start: TimeOfDay(*start), End: TimeOfDay(*end)}
	}

	return &exc, nil
}
