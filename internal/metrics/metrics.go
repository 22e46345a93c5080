package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the booking engine's collectors.
type Metrics struct {
	BookingsCreated     prometheus.Counter
	BookingRejections   *prometheus.CounterVec
	LockContention      prometheus.Counter
	BookingTransitions  *prometheus.CounterVec
	AvailabilityQueries prometheus.Counter
	BookingsExpired     prometheus.Counter
	CreateLatency       prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
}

// New registers every collector on reg. Pass a fresh prometheus.Registry in
// tests so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Bookings committed in PENDING state",
		}),
		BookingRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_rejections_total",
			Help: "Booking attempts rejected, by error code",
		}, []string{"reason"}),
		LockContention: f.NewCounter(prometheus.CounterOpts{
			Name: "slot_lock_contention_total",
			Help: "Booking attempts that could not acquire the slot lock in time",
		}),
		BookingTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Applied booking status transitions",
		}, []string{"from", "to"}),
		AvailabilityQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "availability_queries_total",
			Help: "Slot list queries served",
		}),
		BookingsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "bookings_expired_total",
			Help: "Pending bookings cancelled after the payment window",
		}),
		CreateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_create_duration_seconds",
			Help:    "End to end duration of booking creation",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// NewNop returns collectors registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
