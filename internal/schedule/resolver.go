package schedule

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Resolution is the outcome of resolving one provider's hours for one date.
type Resolution struct {
	Date civil.Date

	// Windows are the effective working windows, ordered and disjoint.
	Windows []Interval

	// Weekly are the normalized recurring windows for the weekday, kept so
	// callers can tell "outside hours" from "narrowed by an exception".
	Weekly []Interval

	Exception *Exception
}

// Blocked reports whether an exception removes the whole date.
func (r *Resolution) Blocked() bool {
	return r.Exception != nil && r.Exception.Unavailable
}

// Overridden reports whether an exception replaced the weekly windows.
func (r *Resolution) Overridden() bool {
	return r.Exception != nil
}

// Resolver turns weekly hours plus date exceptions into effective windows.
type Resolver struct {
	reader Reader
}

func NewResolver(reader Reader) *Resolver {
	return &Resolver{reader: reader}
}

// Resolve looks up the provider's weekly windows for the date's weekday and
// any exception for the exact date. An exception replaces the weekly windows
// outright: an unavailable date resolves to no windows, and a replacement
// window becomes the only window.
func (r *Resolver) Resolve(ctx context.Context, providerID uuid.UUID, date civil.Date) (*Resolution, error) {
	p, err := r.reader.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrProviderNotFound
	}

	weekly, err := r.reader.WeeklyWindows(ctx, providerID, date.In(time.UTC).Weekday())
	if err != nil {
		return nil, fmt.Errorf("load weekly windows: %w", err)
	}

	exc, err := r.reader.ExceptionFor(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load availability exception: %w", err)
	}

	res := &Resolution{
		Date:      date,
		Weekly:    Normalize(weekly),
		Exception: exc,
	}

	switch {
	case exc == nil:
		res.Windows = res.Weekly
	case exc.Unavailable, exc.Window == nil, !exc.Window.Valid():
		// A malformed replacement is treated as a closed date.
		res.Windows = []Interval{}
	default:
		res.Windows = []Interval{*exc.Window}
	}

	return res, nil
}

// EffectiveWindows is Resolve without the bookkeeping.
func (r *Resolver) EffectiveWindows(ctx context.Context, providerID uuid.UUID, date civil.Date) ([]Interval, error) {
	res, err := r.Resolve(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	return res.Windows, nil
}
