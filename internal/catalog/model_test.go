package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTotalDuration(t *testing.T) {
	s := Service{DurationMinutes: 45, PreparationMinutes: 10, CleanupMinutes: 5}
	assert.Equal(t, 60, s.TotalDuration())
}

func TestCommissionFor(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		bps   int
		want  int64
	}{
		{name: "fifteen percent", price: 10000, bps: 1500, want: 1500},
		{name: "rounds half up", price: 1, bps: 5000, want: 1},
		{name: "rounds down below half", price: 333, bps: 1000, want: 33},
		{name: "rounds up above half", price: 335, bps: 1000, want: 34},
		{name: "zero rate", price: 5000, bps: 0, want: 0},
		{name: "free service", price: 0, bps: 2000, want: 0},
		{name: "full price", price: 4999, bps: 10000, want: 4999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommissionFor(tt.price, tt.bps))
		})
	}
}

func TestSnapshotIsDetachedFromService(t *testing.T) {
	s := Service{
		ID:                 uuid.New(),
		DurationMinutes:    60,
		PreparationMinutes: 15,
		PriceCents:         8000,
		CommissionBps:      1250,
	}

	snap := s.Snapshot()
	s.DurationMinutes = 90
	s.PriceCents = 12000

	assert.Equal(t, 75, snap.TotalDurationMinutes)
	assert.Equal(t, int64(8000), snap.PriceCents)
	assert.Equal(t, int64(1000), snap.CommissionCents)
	assert.Equal(t, s.ID, snap.ServiceID)
}
