package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSnapshot() Snapshot {
	return Snapshot{
		FacilityID:     1,
		UnitType:       "SMALL",
		UnitSize:       "5x5",
		TotalUnits:     10,
		AvailableUnits: 10,
		Active:         true,
	}
}

func TestApplyDeltaTransitions(t *testing.T) {
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)

	snap := baseSnapshot()
	snap, err := Apply(snap, Delta{Bookings: 3}, now)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.AvailableUnits)
	assert.Equal(t, 3, snap.ReservedUnits)
	assert.Equal(t, float64(30), snap.OccupancyRate)
	assert.Equal(t, now, snap.LastBookingAt)

	snap, err = Apply(snap, Delta{Confirmations: 2}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ReservedUnits)
	assert.Equal(t, 2, snap.OccupiedUnits)
	// Reserved units still count as occupied capacity.
	assert.Equal(t, float64(30), snap.OccupancyRate)
	assert.Equal(t, now, snap.LastBookingAt)

	snap, err = Apply(snap, Delta{Releases: 1, MaintenanceIn: 2}, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 6, snap.AvailableUnits)
	assert.Equal(t, 1, snap.OccupiedUnits)
	assert.Equal(t, 2, snap.MaintenanceUnits)

	snap, err = Apply(snap, Delta{MaintenanceOut: 2}, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 8, snap.AvailableUnits)
	assert.Equal(t, 0, snap.MaintenanceUnits)
	assert.NoError(t, snap.Validate())
}

func TestApplyRejectsOvershoot(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		snap  Snapshot
		delta Delta
	}{
		{"booking below zero available", Snapshot{TotalUnits: 1, ReservedUnits: 1}, Delta{Bookings: 1}},
		{"confirm without reservation", Snapshot{TotalUnits: 2, AvailableUnits: 2}, Delta{Confirmations: 1}},
		{"release without occupancy", Snapshot{TotalUnits: 2, AvailableUnits: 2}, Delta{Releases: 1}},
		{"maintenance out of nothing", Snapshot{TotalUnits: 2, AvailableUnits: 2}, Delta{MaintenanceOut: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.snap, tc.delta, now)
			assert.ErrorIs(t, err, ErrInvariantViolation)
		})
	}
}

func TestValidate(t *testing.T) {
	good := Snapshot{TotalUnits: 5, AvailableUnits: 2, ReservedUnits: 1, OccupiedUnits: 1, MaintenanceUnits: 1}
	assert.NoError(t, good.Validate())

	negative := Snapshot{TotalUnits: 5, AvailableUnits: -1, ReservedUnits: 6}
	assert.ErrorIs(t, negative.Validate(), ErrInvariantViolation)

	mismatch := Snapshot{TotalUnits: 5, AvailableUnits: 1}
	assert.ErrorIs(t, mismatch.Validate(), ErrInvariantViolation)
}

func TestOccupancyAndAvailabilityRates(t *testing.T) {
	snap := Snapshot{TotalUnits: 8, AvailableUnits: 2, ReservedUnits: 3, OccupiedUnits: 3}
	assert.Equal(t, float64(75), snap.OccupancyOf())
	assert.Equal(t, float64(25), snap.AvailabilityRate())

	empty := Snapshot{}
	assert.Equal(t, float64(0), empty.OccupancyOf())
	assert.Equal(t, float64(0), empty.AvailabilityRate())
}

func TestDemandAndAvailabilityFlags(t *testing.T) {
	assert.True(t, Snapshot{DemandScore: 80}.IsHighDemand())
	assert.False(t, Snapshot{DemandScore: 79}.IsHighDemand())

	assert.True(t, Snapshot{TotalUnits: 10, AvailableUnits: 2}.IsLowAvailability())
	assert.False(t, Snapshot{TotalUnits: 10, AvailableUnits: 3}.IsLowAvailability())

	assert.True(t, Snapshot{AvailableUnits: 1}.HasAvailability())
	assert.False(t, Snapshot{}.HasAvailability())
}

func TestDemandPolicyScore(t *testing.T) {
	policy := DefaultDemandPolicy()

	tests := []struct {
		name      string
		occupancy float64
		perHour   float64
		want      int
	}{
		{"idle facility", 0, 0, 0},
		{"half full no bookings", 50, 0, 35},
		{"half full saturated velocity", 50, 2, 65},
		{"velocity beyond reference saturates", 50, 10, 65},
		{"full facility full velocity", 100, 2, 100},
		{"occupancy clamped above 100", 140, 0, 70},
		{"negative occupancy clamped", -10, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.Score(tc.occupancy, tc.perHour))
		})
	}
}

func TestDemandPolicyMonotonic(t *testing.T) {
	policy := DefaultDemandPolicy()
	prev := -1
	for occ := 0.0; occ <= 100; occ += 5 {
		score := policy.Score(occ, 1)
		assert.GreaterOrEqual(t, score, prev, "occupancy %v", occ)
		prev = score
	}
}
