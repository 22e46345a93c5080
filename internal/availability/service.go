package availability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/catalog"
	"github.com/hackgods/booking-engine/internal/metrics"
	"github.com/hackgods/booking-engine/internal/schedule"
)

// MaxRangeDays bounds how many dates one range query may cover.
const MaxRangeDays = 31

// DaySlots is the slot list for one date of a range query.
type DaySlots struct {
	Date  civil.Date
	Slots []schedule.TimeOfDay
}

// Service answers read-only availability questions. Results reflect
// committed state at the time of the call and may be stale by the time a
// booking is attempted.
type Service struct {
	store       Store
	catalog     catalog.Reader
	granularity int
	leadTime    time.Duration
	log         zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService builds the availability service. Start times on the current
// UTC date are only listed when they begin more than leadTime from now.
func NewService(store Store, services catalog.Reader, granularity int, leadTime time.Duration, log zerolog.Logger, m *metrics.Metrics) *Service {
	if granularity <= 0 {
		granularity = schedule.DefaultGranularity
	}
	return &Service{
		store:       store,
		catalog:     services,
		granularity: granularity,
		leadTime:    max(leadTime, 0),
		log:         log.With().Str("component", "availability").Logger(),
		metrics:     m,
		now:         time.Now,
	}
}

// QueryAvailability lists the start times at which a booking of duration
// minutes could be placed on date. An empty list is a valid answer.
func (s *Service) QueryAvailability(ctx context.Context, providerID uuid.UUID, date civil.Date, duration int) ([]schedule.TimeOfDay, error) {
	switch {
	case providerID == uuid.Nil:
		return nil, apperror.Invalid("provider id is required")
	case !date.IsValid():
		return nil, apperror.Invalid("invalid date %q", date.String())
	case duration <= 0 || duration > schedule.MinutesPerDay:
		return nil, apperror.Invalid("duration must be between 1 and %d minutes", schedule.MinutesPerDay)
	}

	s.metrics.AvailabilityQueries.Inc()

	windows, err := schedule.NewResolver(s.store).EffectiveWindows(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []schedule.TimeOfDay{}, nil
	}

	busy, err := s.store.ActiveIntervals(ctx, providerID, date, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("load active bookings: %w", err)
	}

	slots := s.dropElapsed(date, schedule.GenerateSlots(windows, duration, s.granularity, busy))

	s.log.Debug().
		Str("provider_id", providerID.String()).
		Str("date", date.String()).
		Int("duration", duration).
		Int("slots", len(slots)).
		Msg("availability computed")

	return slots, nil
}

// dropElapsed removes start times on today's date that do not begin
// strictly after now plus the lead time.
func (s *Service) dropElapsed(date civil.Date, slots []schedule.TimeOfDay) []schedule.TimeOfDay {
	now := s.now().UTC()
	if date != civil.DateOf(now) {
		return slots
	}

	cutoff := now.Hour()*60 + now.Minute() + int(s.leadTime/time.Minute)
	return slices.DeleteFunc(slots, func(t schedule.TimeOfDay) bool {
		return int(t) <= cutoff
	})
}

// QueryServiceAvailability is QueryAvailability using the total duration of
// one of the provider's active services. It also returns that duration.
func (s *Service) QueryServiceAvailability(ctx context.Context, providerID, serviceID uuid.UUID, date civil.Date) ([]schedule.TimeOfDay, int, error) {
	duration, err := s.serviceDuration(ctx, providerID, serviceID)
	if err != nil {
		return nil, 0, err
	}

	slots, err := s.QueryAvailability(ctx, providerID, date, duration)
	if err != nil {
		return nil, 0, err
	}
	return slots, duration, nil
}

// QueryRange lists available start times for every date from from to to,
// both inclusive.
func (s *Service) QueryRange(ctx context.Context, providerID uuid.UUID, from, to civil.Date, duration int) ([]DaySlots, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	days := make([]DaySlots, 0, to.DaysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		slots, err := s.QueryAvailability(ctx, providerID, d, duration)
		if err != nil {
			return nil, err
		}
		days = append(days, DaySlots{Date: d, Slots: slots})
	}
	return days, nil
}

// QueryServiceRange is QueryRange using the total duration of one of the
// provider's active services. It also returns that duration.
func (s *Service) QueryServiceRange(ctx context.Context, providerID, serviceID uuid.UUID, from, to civil.Date) ([]DaySlots, int, error) {
	if err := validateRange(from, to); err != nil {
		return nil, 0, err
	}

	duration, err := s.serviceDuration(ctx, providerID, serviceID)
	if err != nil {
		return nil, 0, err
	}

	days, err := s.QueryRange(ctx, providerID, from, to, duration)
	if err != nil {
		return nil, 0, err
	}
	return days, duration, nil
}

func validateRange(from, to civil.Date) error {
	switch {
	case !from.IsValid() || !to.IsValid():
		return apperror.Invalid("from and to must be valid dates")
	case to.Before(from):
		return apperror.Invalid("to must not be before from")
	case to.DaysSince(from) >= MaxRangeDays:
		return apperror.Invalid("a range may cover at most %d days", MaxRangeDays)
	}
	return nil
}

func (s *Service) serviceDuration(ctx context.Context, providerID, serviceID uuid.UUID) (int, error) {
	if serviceID == uuid.Nil {
		return 0, apperror.Invalid("service id is required")
	}
	if providerID == uuid.Nil {
		return 0, apperror.Invalid("provider id is required")
	}

	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	if !svc.Active || svc.ProviderID != providerID {
		return 0, catalog.ErrServiceNotFound
	}
	return svc.TotalDuration(), nil
}

// CheckSlot is the advisory form of the conflict check, run against
// committed state outside any transaction.
func (s *Service) CheckSlot(ctx context.Context, q Query) (Result, error) {
	return Check(ctx, s.store, q)
}
