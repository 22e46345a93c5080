package api

import (
	"context"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/booking-engine/internal/availability"
	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/metrics"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type AvailabilityService interface {
	QueryAvailability(ctx context.Context, providerID uuid.UUID, date civil.Date, duration int) ([]schedule.TimeOfDay, error)
	QueryServiceAvailability(ctx context.Context, providerID, serviceID uuid.UUID, date civil.Date) ([]schedule.TimeOfDay, int, error)
	QueryRange(ctx context.Context, providerID uuid.UUID, from, to civil.Date, duration int) ([]availability.DaySlots, error)
	QueryServiceRange(ctx context.Context, providerID, serviceID uuid.UUID, from, to civil.Date) ([]availability.DaySlots, int, error)
	CheckSlot(ctx context.Context, q availability.Query) (availability.Result, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*booking.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	ListBookings(ctx context.Context, filter booking.ListFilter, actor booking.Actor) ([]booking.Booking, error)
	History(ctx context.Context, id uuid.UUID) ([]booking.Event, error)
	TransitionBooking(ctx context.Context, id uuid.UUID, target booking.Status, actor booking.Actor) (*booking.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string, actor booking.Actor) (*booking.Booking, error)
}

type RouterConfig struct {
	Bookings     BookingService
	Availability AvailabilityService
	Health       *HealthHandler
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	RateLimit    rate.Limit
	RateBurst    int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)))

		// Availability endpoints
		r.Get("/providers/{providerID}/availability", getAvailabilityHandler(cfg.Availability))
		r.Get("/providers/{providerID}/availability/range", getAvailabilityRangeHandler(cfg.Availability))
		r.Post("/providers/{providerID}/availability/check", checkSlotHandler(cfg.Availability))

		// Booking endpoints
		r.Get("/bookings", listBookingsHandler(cfg.Bookings))
		r.Post("/bookings", createBookingHandler(cfg.Bookings))
		r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
		r.Get("/bookings/{id}/events", bookingHistoryHandler(cfg.Bookings))
		r.Post("/bookings/{id}/transitions", transitionBookingHandler(cfg.Bookings))
		r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))
	})

	return r
}
