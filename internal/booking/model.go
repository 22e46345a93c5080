package booking

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// OccupyingStatuses hold their interval on the provider's calendar.
var OccupyingStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func (s Status) Occupying() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusInProgress
}

// Booking is one reservation. TotalDurationMinutes, PriceCents and
// CommissionCents are copied from the service at creation and never
// recomputed.
type Booking struct {
	ID                   uuid.UUID          `json:"id"`
	ProviderID           uuid.UUID          `json:"provider_id"`
	ClientID             uuid.UUID          `json:"client_id"`
	ServiceID            uuid.UUID          `json:"service_id"`
	Date                 civil.Date         `json:"date"`
	Start                schedule.TimeOfDay `json:"time"`
	TotalDurationMinutes int                `json:"total_duration_minutes"`
	PriceCents           int64              `json:"price_cents"`
	CommissionCents      int64              `json:"commission_cents"`
	Status               Status             `json:"status"`
	Notes                string             `json:"notes,omitempty"`
	CancellationReason   *string            `json:"cancellation_reason,omitempty"`
	CancelledBy          *uuid.UUID         `json:"cancelled_by,omitempty"`
	ExpiresAt            *time.Time         `json:"expires_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Interval is the half-open range the booking occupies on its date.
func (b *Booking) Interval() schedule.Interval {
	return schedule.Span(b.Start, b.TotalDurationMinutes)
}

// End is the time the booking releases the provider.
func (b *Booking) End() schedule.TimeOfDay {
	return b.Start.Add(b.TotalDurationMinutes)
}

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by the payment collaborator and the expiry worker.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProvider, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

type Actor struct {
	ID   uuid.UUID
	Role Role
}

var SystemActor = Actor{Role: RoleSystem}

// relatesTo reports whether the actor has any standing on the booking.
func (a Actor) relatesTo(b *Booking) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleProvider:
		return a.ID != uuid.Nil && a.ID == b.ProviderID
	case RoleClient:
		return a.ID != uuid.Nil && a.ID == b.ClientID
	}
	return false
}

// mayList reports whether the actor may see what filter selects.
func (a Actor) mayList(f ListFilter) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleProvider:
		return a.ID != uuid.Nil && f.ProviderID == a.ID
	case RoleClient:
		return a.ID != uuid.Nil && f.ClientID == a.ID
	}
	return false
}

func (a Actor) idPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingExpired       = "BOOKING_EXPIRED"
)

// Event is one row of a booking's status history.
type Event struct {
	ID         int64          `json:"id"`
	BookingID  uuid.UUID      `json:"booking_id"`
	Type       string         `json:"event_type"`
	FromStatus *Status        `json:"from_status,omitempty"`
	ToStatus   Status         `json:"to_status"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	ActorRole  Role           `json:"actor_role"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ListFilter selects the bookings of one client or one provider. Zero
// fields other than the owner match everything.
type ListFilter struct {
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	Status     Status
	From       civil.Date
	To         civil.Date
	Limit      int
}
