package api

import (
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type CreateBookingRequest struct {
	ClientID   string `json:"client_id" validate:"required,uuid"`
	ProviderID string `json:"provider_id" validate:"required,uuid"`
	ServiceID  string `json:"service_id" validate:"required,uuid"`
	Date       string `json:"date" validate:"required,date"`
	Time       string `json:"time" validate:"required,hhmm"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type CheckSlotRequest struct {
	Date             string `json:"date" validate:"required,date"`
	Time             string `json:"time" validate:"required,hhmm"`
	DurationMinutes  int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
	ExcludeBookingID string `json:"exclude_booking_id" validate:"omitempty,uuid"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type AvailabilityResponse struct {
	ProviderID      uuid.UUID            `json:"provider_id"`
	Date            string               `json:"date"`
	DurationMinutes int                  `json:"duration_minutes"`
	ServiceID       *uuid.UUID           `json:"service_id,omitempty"`
	Slots           []schedule.TimeOfDay `json:"slots"`
}

type DayAvailability struct {
	Date  string               `json:"date"`
	Slots []schedule.TimeOfDay `json:"slots"`
}

type RangeAvailabilityResponse struct {
	ProviderID      uuid.UUID         `json:"provider_id"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	DurationMinutes int               `json:"duration_minutes"`
	ServiceID       *uuid.UUID        `json:"service_id,omitempty"`
	Days            []DayAvailability `json:"days"`
}

type BookingListResponse struct {
	Bookings []booking.Booking `json:"bookings"`
}

type CheckSlotResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
