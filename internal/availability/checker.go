package availability

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/schedule"
)

var (
	ErrOutsideWorkingHours = apperror.New(apperror.OutsideWorkingHours, "requested time is outside working hours")
	ErrExceptionBlocked    = apperror.New(apperror.ExceptionBlocked, "date is blocked by an availability exception")
	ErrSlotAlreadyBooked   = apperror.New(apperror.SlotAlreadyBooked, "slot is already booked")
)

// OccupancyReader lists the intervals held by bookings that occupy the
// calendar (PENDING, CONFIRMED, IN_PROGRESS).
type OccupancyReader interface {
	// ActiveIntervals skips the booking with id exclude; pass uuid.Nil to
	// include every booking.
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, date civil.Date, exclude uuid.UUID) ([]schedule.Interval, error)
}

// Store is everything the conflict check reads. Inside the booking
// transaction it is backed by the transaction itself.
type Store interface {
	schedule.Reader
	OccupancyReader
}

type store struct {
	schedule.Reader
	OccupancyReader
}

func NewStore(schedules schedule.Reader, occupancy OccupancyReader) Store {
	return store{Reader: schedules, OccupancyReader: occupancy}
}

type Query struct {
	ProviderID       uuid.UUID
	Date             civil.Date
	Start            schedule.TimeOfDay
	Duration         int
	ExcludeBookingID uuid.UUID
}

func (q Query) Interval() schedule.Interval {
	return schedule.Span(q.Start, q.Duration)
}

func (q Query) Validate() error {
	switch {
	case q.ProviderID == uuid.Nil:
		return apperror.Invalid("provider id is required")
	case !q.Date.IsValid():
		return apperror.Invalid("invalid date %q", q.Date.String())
	case q.Duration <= 0 || q.Duration > schedule.MinutesPerDay:
		return apperror.Invalid("duration must be between 1 and %d minutes, got %d", schedule.MinutesPerDay, q.Duration)
	case q.Start < 0 || q.Start >= schedule.MinutesPerDay:
		return apperror.Invalid("start time %s out of range", q.Start)
	}
	return nil
}

// Result is the outcome of a conflict check. Reason is empty when the slot
// is available.
type Result struct {
	Available bool
	Reason    apperror.Code
}

// Err returns the sentinel error for an unavailable result, or nil.
func (r Result) Err() error {
	switch r.Reason {
	case apperror.ExceptionBlocked:
		return ErrExceptionBlocked
	case apperror.OutsideWorkingHours:
		return ErrOutsideWorkingHours
	case apperror.SlotAlreadyBooked:
		return ErrSlotAlreadyBooked
	}
	return nil
}

func unavailable(reason apperror.Code) Result {
	return Result{Reason: reason}
}

// Check decides whether q's interval is free against whatever state store
// exposes. Reasons are checked in order: a blocked date, the working
// windows, then occupying bookings.
func Check(ctx context.Context, st Store, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	res, err := schedule.NewResolver(st).Resolve(ctx, q.ProviderID, q.Date)
	if err != nil {
		return Result{}, err
	}

	if res.Blocked() {
		return unavailable(apperror.ExceptionBlocked), nil
	}

	// Windows end at 24:00 at the latest, so a booking running past
	// midnight never fits and is reported as outside working hours.
	iv := q.Interval()
	if !schedule.Fits(res.Windows, iv) {
		if res.Overridden() && schedule.Fits(res.Weekly, iv) {
			return unavailable(apperror.ExceptionBlocked), nil
		}
		return unavailable(apperror.OutsideWorkingHours), nil
	}

	busy, err := st.ActiveIntervals(ctx, q.ProviderID, q.Date, q.ExcludeBookingID)
	if err != nil {
		return Result{}, fmt.Errorf("load active bookings: %w", err)
	}
	for _, b := range busy {
		if iv.Overlaps(b) {
			return unavailable(apperror.SlotAlreadyBooked), nil
		}
	}

	return Result{Available: true}, nil
}
