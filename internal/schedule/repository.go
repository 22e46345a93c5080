package schedule

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/apperror"
)

var ErrProviderNotFound = apperror.New(apperror.NotFound, "provider not found")

// Reader is the read-only view of the provider-owned schedule store.
type Reader interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)

	// WeeklyWindows returns the recurring windows for one day of the week,
	// in no particular order.
	WeeklyWindows(ctx context.Context, providerID uuid.UUID, day time.Weekday) ([]Interval, error)

	// ExceptionFor returns nil, nil when the date has no exception.
	ExceptionFor(ctx context.Context, providerID uuid.UUID, date civil.Date) (*Exception, error)
}
