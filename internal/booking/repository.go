package booking

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/availability"
)

// Tx is the view of the store inside a slot transaction. Reads observe
// committed state plus the transaction's own writes.
type Tx interface {
	availability.Store
	InsertBooking(ctx context.Context, b *Booking) error
	InsertEvent(ctx context.Context, ev Event) error
}

type Repository interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListEvents(ctx context.Context, bookingID uuid.UUID) ([]Event, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Booking, error)
	// ListBookings returns bookings matching every set field of filter in
	// calendar order.
	ListBookings(ctx context.Context, filter ListFilter) ([]Booking, error)

	// WithSlotTx runs fn in one atomic transaction. Transactions for the
	// same provider and date run one after another, and reads inside fn see
	// everything committed by earlier ones, so a check made inside fn still
	// holds when fn's insert commits. An overlapping active booking that
	// slips through is rejected at commit with ErrSlotAlreadyBooked.
	WithSlotTx(ctx context.Context, providerID uuid.UUID, date civil.Date, fn func(ctx context.Context, tx Tx) error) error

	// ApplyTransition locks the booking, passes the current row to decide
	// and persists the returned change together with its history event and
	// stats side effects. A nil change leaves the booking untouched.
	ApplyTransition(ctx context.Context, id uuid.UUID, decide func(b *Booking) (*Change, error)) (*Booking, error)
}
