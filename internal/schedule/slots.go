package schedule

import (
	"iter"
	"slices"
)

// DefaultGranularity is the step between candidate start times, in minutes.
const DefaultGranularity = 30

// Slots yields every start time, in step increments from the start of each
// window, at which a booking of the given duration fits inside the window
// and whose own cell, [start, start+min(step, duration)), overlaps none of
// the busy intervals. A listed start can still be rejected at booking time
// when the rest of its duration runs into a busy interval. Windows must be
// ordered and disjoint. The sequence holds no state and can be ranged over
// repeatedly.
func Slots(windows []Interval, duration, step int, busy []Interval) iter.Seq[TimeOfDay] {
	return func(yield func(TimeOfDay) bool) {
		if duration <= 0 || step <= 0 {
			return
		}
		cell := min(step, duration)
		for _, w := range windows {
			for start := w.Start; start.Add(duration) <= w.End; start = start.Add(step) {
				if overlapsAny(Span(start, cell), busy) {
					continue
				}
				if !yield(start) {
					return
				}
			}
		}
	}
}

// GenerateSlots collects Slots into a slice. The result is never nil.
func GenerateSlots(windows []Interval, duration, step int, busy []Interval) []TimeOfDay {
	out := slices.Collect(Slots(windows, duration, step, busy))
	if out == nil {
		out = []TimeOfDay{}
	}
	return out
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// Normalize sorts windows and merges the ones that overlap or touch, giving
// an ordered list of disjoint windows. Invalid windows are dropped.
func Normalize(windows []Interval) []Interval {
	valid := make([]Interval, 0, len(windows))
	for _, w := range windows {
		if w.Valid() {
			valid = append(valid, w)
		}
	}
	slices.SortFunc(valid, func(a, b Interval) int {
		if a.Start != b.Start {
			return int(a.Start - b.Start)
		}
		return int(a.End - b.End)
	})

	merged := make([]Interval, 0, len(valid))
	for _, w := range valid {
		if n := len(merged); n > 0 && w.Start <= merged[n-1].End {
			if w.End > merged[n-1].End {
				merged[n-1].End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// Fits reports whether iv lies entirely inside one of the windows.
func Fits(windows []Interval, iv Interval) bool {
	for _, w := range windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}
