package availability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagepricing/internal/domain/availability"
	"storagepricing/internal/infra/storage/memory"
)

func trackedStore(t *testing.T, key availability.Key, total int) *memory.SnapshotStore {
	t.Helper()
	store := memory.NewSnapshotStore()
	_, err := store.Track(context.Background(), key, total)
	require.NoError(t, err)
	return store
}

func TestUpdaterAppliesBatch(t *testing.T) {
	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	store := trackedStore(t, key, 5)
	updater := &availability.Updater{Store: store}

	when := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	snap, err := updater.Apply(context.Background(), key, []availability.UnitChange{
		{UnitID: "u-1", Action: availability.ActionBook, EffectiveDate: when},
		{UnitID: "u-2", Action: availability.ActionBook, EffectiveDate: when},
		{UnitID: "u-1", Action: availability.ActionConfirm, EffectiveDate: when},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.AvailableUnits)
	assert.Equal(t, 1, snap.ReservedUnits)
	assert.Equal(t, 1, snap.OccupiedUnits)
}

func TestUpdaterAbortsOnFirstFailure(t *testing.T) {
	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	store := trackedStore(t, key, 1)
	updater := &availability.Updater{Store: store}

	snap, err := updater.Apply(context.Background(), key, []availability.UnitChange{
		{UnitID: "u-1", Action: availability.ActionBook},
		{UnitID: "u-2", Action: availability.ActionBook}, // no unit left
		{UnitID: "u-1", Action: availability.ActionRelease},
	})
	require.ErrorIs(t, err, availability.ErrInvariantViolation)
	// The snapshot from the last successful change comes back; the
	// release after the failure is never applied.
	assert.Equal(t, 0, snap.AvailableUnits)
	assert.Equal(t, 1, snap.ReservedUnits)

	latest, err := store.GetLatest(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.ReservedUnits)
}

func TestUpdaterUnknownAction(t *testing.T) {
	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	store := trackedStore(t, key, 2)
	updater := &availability.Updater{Store: store}

	_, err := updater.Apply(context.Background(), key, []availability.UnitChange{
		{UnitID: "u-1", Action: "DEMOLISH"},
	})
	assert.ErrorIs(t, err, availability.ErrInvalidTransition)
}

func TestUpdaterEmptyBatchReturnsLatest(t *testing.T) {
	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	store := trackedStore(t, key, 4)
	updater := &availability.Updater{Store: store}

	snap, err := updater.Apply(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.AvailableUnits)

	_, err = updater.Apply(context.Background(), availability.Key{FacilityID: 9, UnitType: "XL"}, nil)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestUpdaterRequiresStore(t *testing.T) {
	updater := &availability.Updater{}
	_, err := updater.Apply(context.Background(), availability.Key{}, nil)
	assert.Error(t, err)
}
