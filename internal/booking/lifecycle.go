package booking

import (
	"slices"

	"github.com/hackgods/booking-engine/internal/apperror"
)

// transitions lists, per current status, every status it may move to.
// Terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// roleTargets narrows transitions by the actor's relationship to the
// booking.
var roleTargets = map[Status]map[Role][]Status{
	StatusPending: {
		RoleClient:   {StatusCancelled},
		RoleProvider: {StatusCancelled, StatusNoShow},
		RoleAdmin:    {StatusConfirmed, StatusCancelled, StatusNoShow},
		RoleSystem:   {StatusConfirmed, StatusCancelled},
	},
	StatusConfirmed: {
		RoleClient:   {StatusCancelled},
		RoleProvider: {StatusInProgress, StatusCancelled, StatusNoShow},
		RoleAdmin:    {StatusInProgress, StatusCancelled, StatusNoShow},
	},
	StatusInProgress: {
		RoleProvider: {StatusCompleted, StatusCancelled, StatusNoShow},
		RoleAdmin:    {StatusCompleted, StatusCancelled, StatusNoShow},
	},
}

// CanTransition reports whether from -> to is in the state table,
// regardless of who asks.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// AllowedTargets returns the statuses role may move a booking in from to.
func AllowedTargets(from Status, role Role) []Status {
	return slices.Clone(roleTargets[from][role])
}

// Change is a validated transition, ready to persist.
type Change struct {
	From   Status
	To     Status
	Actor  Actor
	Reason string
	Event  string

	// AccrueStats adds the booking to the provider's lifetime totals.
	AccrueStats bool
}

// Plan validates moving b to target on behalf of actor. The checks run in
// a fixed order: relationship, state table, role table.
func Plan(b *Booking, target Status, actor Actor, reason string) (*Change, error) {
	if !target.Valid() {
		return nil, apperror.Invalid("unknown status %q", target)
	}
	if !actor.relatesTo(b) {
		return nil, ErrForbidden
	}
	if !CanTransition(b.Status, target) {
		return nil, ErrInvalidTransition
	}
	if !slices.Contains(roleTargets[b.Status][actor.Role], target) {
		return nil, ErrForbidden
	}

	return &Change{
		From:        b.Status,
		To:          target,
		Actor:       actor,
		Reason:      reason,
		Event:       EventBookingStatusChanged,
		AccrueStats: target == StatusCompleted,
	}, nil
}

// Apply copies the change onto b. Repositories call it so that every store
// records cancellations the same way.
func (c *Change) Apply(b *Booking) {
	b.Status = c.To
	if c.To == StatusCancelled {
		if c.Reason != "" {
			reason := c.Reason
			b.CancellationReason = &reason
		}
		b.CancelledBy = c.Actor.idPtr()
	}
}

// EventFor builds the history row recording the change on b.
func (c *Change) EventFor(b *Booking) Event {
	from := c.From
	payload := map[string]any{}
	if c.Reason != "" {
		payload["reason"] = c.Reason
	}
	if c.AccrueStats {
		payload["revenue_cents"] = b.PriceCents
	}

	return Event{
		BookingID:  b.ID,
		Type:       c.Event,
		FromStatus: &from,
		ToStatus:   c.To,
		ActorID:    c.Actor.idPtr(),
		ActorRole:  c.Actor.Role,
		Payload:    payload,
	}
}
