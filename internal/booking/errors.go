package booking

import (
	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/availability"
)

var (
	ErrBookingNotFound   = apperror.New(apperror.NotFound, "booking not found")
	ErrInvalidTransition = apperror.New(apperror.InvalidTransition, "status transition not allowed")
	ErrForbidden         = apperror.New(apperror.Forbidden, "actor may not change this booking")
	ErrListForbidden     = apperror.New(apperror.Forbidden, "actor may not list these bookings")
	ErrPaymentExpired    = apperror.New(apperror.InvalidTransition, "payment window has expired")

	// ErrSlotAlreadyBooked is the commit-time conflict, shared with the
	// advisory check.
	ErrSlotAlreadyBooked = availability.ErrSlotAlreadyBooked

	// ErrTxContention means the store kept aborting the booking transaction.
	ErrTxContention = apperror.New(apperror.LockContention, "booking store is busy, please retry")
)
