package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type PgRepository struct {
	pool      *pgxpool.Pool
	txRetries int
}

func NewPgRepository(pool *pgxpool.Pool, txRetries int) *PgRepository {
	return &PgRepository{pool: pool, txRetries: txRetries}
}

const bookingColumns = `
	id, provider_id, client_id, service_id, appointment_date, start_minute,
	total_duration_minutes, price_cents, commission_cents, status, notes,
	cancellation_reason, cancelled_by, expires_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b     Booking
		date  time.Time
		start int
	)

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.ClientID,
		&b.ServiceID,
		&date,
		&start,
		&b.TotalDurationMinutes,
		&b.PriceCents,
		&b.CommissionCents,
		&b.Status,
		&b.Notes,
		&b.CancellationReason,
		&b.CancelledBy,
		&b.ExpiresAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Date = db.CivilDate(date)
	b.Start = schedule.TimeOfDay(start)
	return &b, nil
}

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// ActiveIntervals reads committed occupancy outside any transaction.
func (r *PgRepository) ActiveIntervals(ctx context.Context, providerID uuid.UUID, date civil.Date, exclude uuid.UUID) ([]schedule.Interval, error) {
	return activeIntervals(ctx, r.pool, providerID, date, exclude)
}

func activeIntervals(ctx context.Context, q db.Querier, providerID uuid.UUID, date civil.Date, exclude uuid.UUID) ([]schedule.Interval, error) {
	statuses := make([]string, 0, len(OccupyingStatuses))
	for _, s := range OccupyingStatuses {
		statuses = append(statuses, string(s))
	}

	rows, err := q.Query(ctx, `
		SELECT start_minute, total_duration_minutes
		FROM bookings
		WHERE provider_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		  AND id <> $4
		ORDER BY start_minute
	`, providerID, db.DateArg(date), statuses, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Interval
	for rows.Next() {
		var start, duration int
		if err := rows.Scan(&start, &duration); err != nil {
			return nil, err
		}
		result = append(result, schedule.Span(schedule.TimeOfDay(start), duration))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListBookings(ctx context.Context, f ListFilter) ([]Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ClientID != uuid.Nil {
		add("client_id = $%d", f.ClientID)
	}
	if f.ProviderID != uuid.Nil {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("appointment_date >= $%d", db.DateArg(f.From))
	}
	if !f.To.IsZero() {
		add("appointment_date <= $%d", db.DateArg(f.To))
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}
	args = append(args, f.Limit)

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY appointment_date, start_minute, id
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListEvents(ctx context.Context, bookingID uuid.UUID) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, event_type, from_status, to_status, actor_id, actor_role, payload, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY created_at, id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var (
			ev      Event
			payload []byte
		)
		err := rows.Scan(&ev.ID, &ev.BookingID, &ev.Type, &ev.FromStatus, &ev.ToStatus, &ev.ActorID, &ev.ActorRole, &payload, &ev.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// WithSlotTx runs fn in a READ COMMITTED transaction that first takes a
// transaction-scoped advisory lock on (provider, date). Concurrent booking
// attempts for the same day queue on that lock, and every statement after
// it reads a fresh snapshot, so the conflict check inside fn sees bookings
// committed by the previous holder. The exclusion constraint on bookings
// rejects anything that still overlaps.
func (r *PgRepository) WithSlotTx(ctx context.Context, providerID uuid.UUID, date civil.Date, fn func(ctx context.Context, tx Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := db.RunWithRetry(ctx, r.pool, opts, r.txRetries, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID.String()+"|"+date.String()); err != nil {
			return fmt.Errorf("take provider day lock: %w", err)
		}
		return fn(ctx, newPgTx(tx))
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrSerialization):
		return fmt.Errorf("%w: %v", ErrTxContention, err)
	case db.IsExclusionViolation(err):
		return ErrSlotAlreadyBooked
	}
	return err
}

func (r *PgRepository) ApplyTransition(ctx context.Context, id uuid.UUID, decide func(b *Booking) (*Change, error)) (*Booking, error) {
	var updated *Booking

	err := db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		change, err := decide(current)
		if err != nil {
			return err
		}
		if change == nil {
			updated = current
			return nil
		}

		next := *current
		change.Apply(&next)

		updated, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2,
			    cancellation_reason = $3,
			    cancelled_by = $4,
			    updated_at = now()
			WHERE id = $1
			  AND status = $5
			RETURNING `+bookingColumns,
			id, next.Status, next.CancellationReason, next.CancelledBy, change.From))
		if err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}

		if change.AccrueStats {
			if _, err := tx.Exec(ctx, `
				UPDATE providers
				SET total_completed_bookings = total_completed_bookings + 1,
				    total_revenue_cents = total_revenue_cents + $2,
				    updated_at = now()
				WHERE id = $1
			`, current.ProviderID, current.PriceCents); err != nil {
				return fmt.Errorf("accrue provider stats: %w", err)
			}
		}

		return insertEvent(ctx, tx, change.EventFor(updated))
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// pgTx is the Tx view over an open pgx transaction.
type pgTx struct {
	*schedule.PgRepository
	tx pgx.Tx
}

func newPgTx(tx pgx.Tx) *pgTx {
	return &pgTx{PgRepository: schedule.NewPgRepository(tx), tx: tx}
}

func (t *pgTx) ActiveIntervals(ctx context.Context, providerID uuid.UUID, date civil.Date, exclude uuid.UUID) ([]schedule.Interval, error) {
	return activeIntervals(ctx, t.tx, providerID, date, exclude)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *Booking) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO bookings (
			id, provider_id, client_id, service_id, appointment_date, start_minute,
			total_duration_minutes, price_cents, commission_cents, status, notes,
			expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`, b.ID, b.ProviderID, b.ClientID, b.ServiceID, db.DateArg(b.Date), int(b.Start),
		b.TotalDurationMinutes, b.PriceCents, b.CommissionCents, b.Status, b.Notes, b.ExpiresAt)

	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev Event) error {
	return insertEvent(ctx, t.tx, ev)
}

func insertEvent(ctx context.Context, q db.Querier, ev Event) error {
	var payload []byte
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		payload = b
	}

	_, err := q.Exec(ctx, `
		INSERT INTO booking_events (booking_id, event_type, from_status, to_status, actor_id, actor_role, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`, ev.BookingID, ev.Type, ev.FromStatus, ev.ToStatus, ev.ActorID, ev.ActorRole, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
