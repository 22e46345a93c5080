package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/catalog"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

// memRepo is an in-memory Repository. One mutex serializes every
// transaction, standing in for the provider-day lock Postgres takes.
type memRepo struct {
	mu sync.Mutex

	providers  map[uuid.UUID]*schedule.Provider
	weekly     map[time.Weekday][]schedule.Interval
	exceptions map[civil.Date]*schedule.Exception
	services   map[uuid.UUID]*catalog.Service
	bookings   map[uuid.UUID]*Booking
	events     []Event

	// txErr, when set, is returned by WithSlotTx instead of running fn.
	txErr error
	// txHold widens the window between the check and the commit.
	txHold time.Duration
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers:  map[uuid.UUID]*schedule.Provider{},
		weekly:     map[time.Weekday][]schedule.Interval{},
		exceptions: map[civil.Date]*schedule.Exception{},
		services:   map[uuid.UUID]*catalog.Service{},
		bookings:   map[uuid.UUID]*Booking{},
	}
}

func (r *memRepo) GetService(_ context.Context, id uuid.UUID) (*catalog.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) updateService(id uuid.UUID, fn func(s *catalog.Service)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.services[id])
}

func (r *memRepo) provider(id uuid.UUID) schedule.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.providers[id]
}

func (r *memRepo) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memRepo) ListEvents(_ context.Context, bookingID uuid.UUID) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Booking
	for _, b := range r.bookings {
		if b.Status == StatusPending && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
			out = append(out, *b)
		}
	}
	slices.SortFunc(out, func(a, b Booking) int { return a.ExpiresAt.Compare(*b.ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListBookings(_ context.Context, f ListFilter) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Booking
	for _, b := range r.bookings {
		switch {
		case f.ClientID != uuid.Nil && b.ClientID != f.ClientID,
			f.ProviderID != uuid.Nil && b.ProviderID != f.ProviderID,
			f.Status != "" && b.Status != f.Status,
			!f.From.IsZero() && b.Date.Before(f.From),
			!f.To.IsZero() && b.Date.After(f.To):
			continue
		}
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b Booking) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.Start) - int(b.Start)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) WithSlotTx(ctx context.Context, _ uuid.UUID, _ civil.Date, fn func(ctx context.Context, tx Tx) error) error {
	if r.txErr != nil {
		return r.txErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.txHold > 0 {
		time.Sleep(r.txHold)
	}

	// Same backstop as the exclusion constraint.
	for _, nb := range tx.bookings {
		for _, b := range r.bookings {
			if b.ProviderID == nb.ProviderID && b.Date == nb.Date && b.Status.Occupying() && b.Interval().Overlaps(nb.Interval()) {
				return ErrSlotAlreadyBooked
			}
		}
	}

	for _, nb := range tx.bookings {
		r.bookings[nb.ID] = nb
	}
	r.events = append(r.events, tx.events...)
	return nil
}

func (r *memRepo) ApplyTransition(_ context.Context, id uuid.UUID, decide func(b *Booking) (*Change, error)) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	current := *stored

	change, err := decide(&current)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return &current, nil
	}

	next := current
	change.Apply(&next)
	next.UpdatedAt = time.Now()

	if change.AccrueStats {
		p := r.providers[next.ProviderID]
		p.TotalCompletedBookings++
		p.TotalRevenueCents += next.PriceCents
	}

	r.bookings[id] = &next
	r.events = append(r.events, change.EventFor(&next))

	out := next
	return &out, nil
}

// memTx reads committed state plus its own writes. The repo mutex is held
// for its whole lifetime.
type memTx struct {
	repo     *memRepo
	bookings []*Booking
	events   []Event
}

func (t *memTx) GetProvider(_ context.Context, id uuid.UUID) (*schedule.Provider, error) {
	p, ok := t.repo.providers[id]
	if !ok {
		return nil, schedule.ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) WeeklyWindows(_ context.Context, _ uuid.UUID, day time.Weekday) ([]schedule.Interval, error) {
	return slices.Clone(t.repo.weekly[day]), nil
}

func (t *memTx) ExceptionFor(_ context.Context, _ uuid.UUID, date civil.Date) (*schedule.Exception, error) {
	return t.repo.exceptions[date], nil
}

func (t *memTx) ActiveIntervals(_ context.Context, providerID uuid.UUID, date civil.Date, exclude uuid.UUID) ([]schedule.Interval, error) {
	var out []schedule.Interval
	visit := func(b *Booking) {
		if b.ProviderID == providerID && b.Date == date && b.ID != exclude && b.Status.Occupying() {
			out = append(out, b.Interval())
		}
	}
	for _, b := range t.repo.bookings {
		visit(b)
	}
	for _, b := range t.bookings {
		visit(b)
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *Booking) error {
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	cp := *b
	t.bookings = append(t.bookings, &cp)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev Event) error {
	ev.ID = int64(len(t.repo.events) + len(t.events) + 1)
	ev.CreatedAt = time.Now()
	t.events = append(t.events, ev)
	return nil
}

// passThroughLocker runs fn without any lock, leaving the transaction as
// the only guard.
type passThroughLocker struct{}

func (passThroughLocker) WithSlotLock(ctx context.Context, _ redisclient.SlotKey, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failingLocker never grants the lock.
type failingLocker struct {
	err error
}

func (l failingLocker) WithSlotLock(context.Context, redisclient.SlotKey, func(ctx context.Context) error) error {
	return l.err
}
