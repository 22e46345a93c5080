package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hhmm(t *testing.T, values ...string) []TimeOfDay {
	t.Helper()
	out := make([]TimeOfDay, 0, len(values))
	for _, v := range values {
		tod, err := ParseTimeOfDay(v)
		if err != nil {
			t.Fatalf("parse %q: %v", v, err)
		}
		out = append(out, tod)
	}
	return out
}

func window(t *testing.T, start, end string) Interval {
	t.Helper()
	bounds := hhmm(t, start, end)
	return Interval{Start: bounds[0], End: bounds[1]}
}

func TestGenerateSlots(t *testing.T) {
	morning := []Interval{window(t, "09:00", "13:00")}

	tests := []struct {
		name     string
		windows  []Interval
		duration int
		busy     []Interval
		want     []TimeOfDay
	}{
		{
			name:     "free morning",
			windows:  morning,
			duration: 60,
			want:     hhmm(t, "09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00"),
		},
		{
			name:     "one confirmed booking 10:00-11:00",
			windows:  morning,
			duration: 60,
			busy:     []Interval{window(t, "10:00", "11:00")},
			want:     hhmm(t, "09:00", "09:30", "11:00", "11:30", "12:00"),
		},
		{
			name:     "start whose tail runs into a booking is still listed",
			windows:  morning,
			duration: 90,
			busy:     []Interval{window(t, "11:00", "11:30")},
			want:     hhmm(t, "09:00", "09:30", "10:00", "10:30", "11:30"),
		},
		{
			name:     "short service inside a coarse step",
			windows:  []Interval{window(t, "09:00", "10:00")},
			duration: 15,
			busy:     []Interval{window(t, "09:15", "09:30")},
			want:     hhmm(t, "09:00", "09:30"),
		},
		{
			name:     "exact fit",
			windows:  []Interval{window(t, "09:00", "10:00")},
			duration: 60,
			want:     hhmm(t, "09:00"),
		},
		{
			name:     "duration longer than window",
			windows:  []Interval{window(t, "09:00", "09:45")},
			duration: 60,
			want:     []TimeOfDay{},
		},
		{
			name:     "split day keeps order",
			windows:  []Interval{window(t, "09:00", "10:00"), window(t, "14:00", "15:30")},
			duration: 45,
			want:     hhmm(t, "09:00", "14:00", "14:30"),
		},
		{
			name:     "no windows",
			duration: 30,
			want:     []TimeOfDay{},
		},
		{
			name:     "non-positive duration",
			windows:  morning,
			duration: 0,
			want:     []TimeOfDay{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlots(tt.windows, tt.duration, DefaultGranularity, tt.busy)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlotsIsRestartable(t *testing.T) {
	seq := Slots([]Interval{window(t, "09:00", "11:00")}, 30, 30, nil)

	var first, second []TimeOfDay
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}

	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestSlotsStopsEarly(t *testing.T) {
	var got []TimeOfDay
	for s := range Slots([]Interval{window(t, "09:00", "13:00")}, 30, 30, nil) {
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, hhmm(t, "09:00", "09:30"), got)
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Interval{
		window(t, "14:00", "16:00"),
		window(t, "09:00", "11:00"),
		window(t, "10:30", "12:00"),
		window(t, "12:00", "12:30"),
		{Start: 700, End: 600},
	})

	assert.Equal(t, []Interval{
		window(t, "09:00", "12:30"),
		window(t, "14:00", "16:00"),
	}, got)

	assert.Empty(t, Normalize(nil))
	assert.NotNil(t, Normalize(nil))
}

func TestFits(t *testing.T) {
	windows := []Interval{window(t, "09:00", "10:00"), window(t, "10:00", "11:00")}

	assert.True(t, Fits(windows, window(t, "09:00", "10:00")))
	assert.False(t, Fits(windows, window(t, "09:30", "10:30")), "must lie inside a single window")
	assert.True(t, Fits(Normalize(windows), window(t, "09:30", "10:30")))
}
