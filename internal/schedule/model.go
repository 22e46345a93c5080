package schedule

import (
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const MinutesPerDay = 24 * 60

// TimeOfDay is a minute-resolution wall clock time, counted from midnight.
// MinutesPerDay is a valid value and denotes the end of the day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as the end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns t shifted by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Span builds the interval occupied by something starting at start and
// lasting the given number of minutes.
func Span(start TimeOfDay, minutes int) Interval {
	return Interval{Start: start, End: start.Add(minutes)}
}

func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

func (i Interval) Valid() bool {
	return i.Start.Valid() && i.End.Valid() && i.Start < i.End
}

// Overlaps is the half-open overlap test: touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// Provider is the schedule owner as seen by the booking engine.
type Provider struct {
	ID                     uuid.UUID
	Name                   string
	Active                 bool
	TotalCompletedBookings int64
	TotalRevenueCents      int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// WeeklyWindow is one recurring block of working hours.
type WeeklyWindow struct {
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Window     Interval
}

// Exception overrides the weekly pattern for one date. Either the whole
// date is unavailable, or Window replaces every weekly window for that date.
type Exception struct {
	ProviderID  uuid.UUID
	Date        civil.Date
	Unavailable bool
	Window      *Interval
	Reason      string
}
