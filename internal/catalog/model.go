package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Service is a bookable offering. Its values are live and may change at any
// time; bookings copy what they need at creation.
type Service struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	Name               string
	DurationMinutes    int
	PreparationMinutes int
	CleanupMinutes     int
	PriceCents         int64
	CommissionBps      int
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TotalDuration is the time a booking of this service occupies on the
// provider's calendar.
func (s Service) TotalDuration() int {
	return s.DurationMinutes + s.PreparationMinutes + s.CleanupMinutes
}

// Commission is the platform share of the price, rounded half up to the
// nearest minor unit.
func (s Service) Commission() int64 {
	return CommissionFor(s.PriceCents, s.CommissionBps)
}

// CommissionFor computes round-half-up(price * bps / 10000).
func CommissionFor(priceCents int64, bps int) int64 {
	if priceCents <= 0 || bps <= 0 {
		return 0
	}
	return (priceCents*int64(bps) + 5000) / 10000
}

// Snapshot is the set of values frozen onto a booking.
type Snapshot struct {
	ServiceID            uuid.UUID
	TotalDurationMinutes int
	PriceCents           int64
	CommissionCents      int64
}

func (s Service) Snapshot() Snapshot {
	return Snapshot{
		ServiceID:            s.ID,
		TotalDurationMinutes: s.TotalDuration(),
		PriceCents:           s.PriceCents,
		CommissionCents:      s.Commission(),
	}
}
