package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/availability"
	"github.com/hackgods/booking-engine/internal/catalog"
	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/metrics"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

// ReasonPaymentWindowExpired is recorded on bookings cancelled by the
// expiry worker.
const ReasonPaymentWindowExpired = "payment_window_expired"

const (
	maxNotesLength  = 1000
	maxReasonLength = 500
)

type Service struct {
	repo    Repository
	catalog catalog.Reader
	locker  redisclient.Locker
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, services catalog.Reader, locker redisclient.Locker, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		catalog: services,
		locker:  locker,
		cfg:     cfg,
		log:     log.With().Str("component", "booking").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

type CreateRequest struct {
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Date       civil.Date
	Start      schedule.TimeOfDay
	Notes      string
}

func (r CreateRequest) validate() error {
	switch {
	case r.ClientID == uuid.Nil:
		return apperror.Invalid("client id is required")
	case r.ProviderID == uuid.Nil:
		return apperror.Invalid("provider id is required")
	case r.ServiceID == uuid.Nil:
		return apperror.Invalid("service id is required")
	case !r.Date.IsValid():
		return apperror.Invalid("invalid date %q", r.Date.String())
	case r.Start < 0 || r.Start >= schedule.MinutesPerDay:
		return apperror.Invalid("start time out of range")
	case len(r.Notes) > maxNotesLength:
		return apperror.Invalid("notes must be at most %d bytes", maxNotesLength)
	}
	return nil
}

// CreateBooking reserves a slot in PENDING state with the service's
// duration, price and commission frozen onto the booking.
//
// The Redis slot lock only keeps concurrent attempts for the same start
// time from piling onto the database. The decision is made inside
// Repository.WithSlotTx, which re-runs the conflict check against committed
// state and is safe even when the lock has expired or Redis is bypassed.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	start := s.now()
	created, err := s.createBooking(ctx, req)
	s.metrics.CreateLatency.Observe(time.Since(start).Seconds())

	log := s.log.With().
		Str("provider_id", req.ProviderID.String()).
		Str("date", req.Date.String()).
		Str("time", req.Start.String()).
		Logger()

	if err != nil {
		code := apperror.CodeOf(err)
		s.metrics.BookingRejections.WithLabelValues(string(code)).Inc()
		if code == apperror.LockContention {
			s.metrics.LockContention.Inc()
		}
		if code == apperror.Internal {
			log.Error().Err(err).Msg("create booking failed")
		} else {
			log.Info().Str("reason", string(code)).Msg("booking rejected")
		}
		return nil, err
	}

	s.metrics.BookingsCreated.Inc()
	log.Info().Str("booking_id", created.ID.String()).Msg("booking created")

	return created, nil
}

func (s *Service) createBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !svc.Active || svc.ProviderID != req.ProviderID {
		return nil, catalog.ErrServiceNotFound
	}
	snapshot := svc.Snapshot()

	query := availability.Query{
		ProviderID: req.ProviderID,
		Date:       req.Date,
		Start:      req.Start,
		Duration:   snapshot.TotalDurationMinutes,
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	key := redisclient.SlotKey{ProviderID: req.ProviderID, Date: req.Date, Start: req.Start}

	var created *Booking

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.repo.WithSlotTx(lockCtx, req.ProviderID, req.Date, func(txCtx context.Context, tx Tx) error {
			res, err := availability.Check(txCtx, tx, query)
			if err != nil {
				return err
			}
			if !res.Available {
				return res.Err()
			}

			now := s.now()
			expiresAt := now.Add(s.cfg.PaymentWindow)

			b := &Booking{
				ID:                   uuid.New(),
				ProviderID:           req.ProviderID,
				ClientID:             req.ClientID,
				ServiceID:            snapshot.ServiceID,
				Date:                 req.Date,
				Start:                req.Start,
				TotalDurationMinutes: snapshot.TotalDurationMinutes,
				PriceCents:           snapshot.PriceCents,
				CommissionCents:      snapshot.CommissionCents,
				Status:               StatusPending,
				Notes:                req.Notes,
				ExpiresAt:            &expiresAt,
			}
			if err := tx.InsertBooking(txCtx, b); err != nil {
				return err
			}

			clientID := req.ClientID
			if err := tx.InsertEvent(txCtx, Event{
				BookingID: b.ID,
				Type:      EventBookingCreated,
				ToStatus:  StatusPending,
				ActorID:   &clientID,
				ActorRole: RoleClient,
				Payload: map[string]any{
					"service_id":             snapshot.ServiceID.String(),
					"total_duration_minutes": snapshot.TotalDurationMinutes,
					"price_cents":            snapshot.PriceCents,
					"commission_cents":       snapshot.CommissionCents,
					"expires_at":             expiresAt,
				},
			}); err != nil {
				return err
			}

			created = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// TransitionBooking moves a booking to target on behalf of actor.
func (s *Service) TransitionBooking(ctx context.Context, id uuid.UUID, target Status, actor Actor) (*Booking, error) {
	if !target.Valid() {
		return nil, apperror.Invalid("unknown status %q", target)
	}
	return s.transition(ctx, id, target, actor, "", EventBookingStatusChanged)
}

// CancelBooking cancels a booking, recording reason and the cancelling
// actor.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Invalid("cancellation reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, apperror.Invalid("cancellation reason must be at most %d bytes", maxReasonLength)
	}
	return s.transition(ctx, id, StatusCancelled, actor, reason, EventBookingStatusChanged)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target Status, actor Actor, reason, event string) (*Booking, error) {
	if id == uuid.Nil {
		return nil, apperror.Invalid("booking id is required")
	}
	if !actor.Role.Valid() {
		return nil, ErrForbidden
	}

	var change *Change
	updated, err := s.repo.ApplyTransition(ctx, id, func(b *Booking) (*Change, error) {
		c, err := Plan(b, target, actor, reason)
		if err != nil {
			return nil, err
		}
		if target == StatusConfirmed && b.ExpiresAt != nil && b.ExpiresAt.Before(s.now()) {
			return nil, ErrPaymentExpired
		}
		c.Event = event
		change = c
		return c, nil
	})
	if err != nil {
		if apperror.CodeOf(err) == apperror.Internal {
			return nil, fmt.Errorf("transition booking: %w", err)
		}
		return nil, err
	}

	s.metrics.BookingTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
	s.log.Info().
		Str("booking_id", id.String()).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Str("actor_role", string(actor.Role)).
		Msg("booking transitioned")

	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	if id == uuid.Nil {
		return nil, apperror.Invalid("booking id is required")
	}
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// History returns the booking's status events, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]Event, error) {
	if _, err := s.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list booking events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListBookings returns the bookings of one client or one provider in
// calendar order. Clients and providers may only list their own.
func (s *Service) ListBookings(ctx context.Context, filter ListFilter, actor Actor) ([]Booking, error) {
	switch {
	case (filter.ClientID == uuid.Nil) == (filter.ProviderID == uuid.Nil):
		return nil, apperror.Invalid("exactly one of client id or provider id is required")
	case filter.Status != "" && !filter.Status.Valid():
		return nil, apperror.Invalid("unknown status %q", string(filter.Status))
	case !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From):
		return nil, apperror.Invalid("to must not be before from")
	case filter.Limit < 0 || filter.Limit > maxListLimit:
		return nil, apperror.Invalid("limit must be between 1 and %d", maxListLimit)
	}

	if !actor.mayList(filter) {
		return nil, ErrListForbidden
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}

	bookings, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return bookings, nil
}

// ExpirePending cancels PENDING bookings whose payment window has passed,
// freeing their slots. It is intended to be called by the worker
// periodically and returns how many bookings it cancelled.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	batch := s.cfg.ExpiryBatch
	if batch <= 0 {
		batch = 100
	}

	total := 0
	for {
		now := s.now()
		candidates, err := s.repo.ListExpiredPending(ctx, now, batch)
		if err != nil {
			return total, fmt.Errorf("find expired pending bookings: %w", err)
		}

		expired := 0
		for _, b := range candidates {
			ok, err := s.expireOne(ctx, b.ID, now)
			if err != nil {
				s.log.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("failed to expire booking")
				continue
			}
			if ok {
				expired++
			}
		}
		total += expired

		if len(candidates) < batch || expired == 0 {
			return total, nil
		}
	}
}

func (s *Service) expireOne(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var applied bool

	_, err := s.repo.ApplyTransition(ctx, id, func(b *Booking) (*Change, error) {
		// Confirmed or cancelled since it was listed.
		if b.Status != StatusPending || b.ExpiresAt == nil || !b.ExpiresAt.Before(now) {
			return nil, nil
		}
		c, err := Plan(b, StatusCancelled, SystemActor, ReasonPaymentWindowExpired)
		if err != nil {
			return nil, err
		}
		c.Event = EventBookingExpired
		applied = true
		return c, nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.metrics.BookingsExpired.Inc()
		s.metrics.BookingTransitions.WithLabelValues(string(StatusPending), string(StatusCancelled)).Inc()
	}
	return applied, nil
}
