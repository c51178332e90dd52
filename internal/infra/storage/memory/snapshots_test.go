package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/shared/money"
)

var testKey = availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}

func newTestStore(at time.Time) *SnapshotStore {
	store := NewSnapshotStore()
	store.Now = func() time.Time { return at }
	return store
}

func TestTrack(t *testing.T) {
	store := newTestStore(time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC))

	snap, err := store.Track(context.Background(), testKey, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.TotalUnits)
	assert.Equal(t, 10, snap.AvailableUnits)
	assert.True(t, snap.Active)

	_, err = store.Track(context.Background(), testKey, 10)
	assert.ErrorIs(t, err, availability.ErrAlreadyTracked)

	_, err = store.Track(context.Background(), availability.Key{FacilityID: 2}, 0)
	assert.ErrorIs(t, err, availability.ErrInvalidTotal)
	_, err = store.Track(context.Background(), availability.Key{FacilityID: 2}, -3)
	assert.ErrorIs(t, err, availability.ErrInvalidTotal)
}

func TestGetLatestUnknownKey(t *testing.T) {
	store := NewSnapshotStore()
	_, err := store.GetLatest(context.Background(), testKey)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestApplyChangeUpdatesDemandScore(t *testing.T) {
	at := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	store := newTestStore(at)
	store.VelocityWindow = time.Hour
	_, err := store.Track(context.Background(), testKey, 10)
	require.NoError(t, err)

	snap, err := store.ApplyChange(context.Background(), testKey, availability.Delta{Bookings: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, snap.AvailableUnits)
	assert.Equal(t, float64(20), snap.OccupancyRate)
	// 0.7*20 + 0.3*min(1, 2/2)*100 = 44.
	assert.Equal(t, 44, snap.DemandScore)
	assert.Equal(t, at, snap.LastBookingAt)
}

func TestApplyChangeConcurrentBookingsNeverOvershoot(t *testing.T) {
	store := NewSnapshotStore()
	_, err := store.Track(context.Background(), testKey, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	successes := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyChange(context.Background(), testKey, availability.Delta{Bookings: 1}); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Equal(t, 10, len(successes))
	latest, err := store.GetLatest(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 0, latest.AvailableUnits)
	assert.Equal(t, 10, latest.ReservedUnits)
	assert.NoError(t, latest.Validate())
}

func TestFacilityAggregate(t *testing.T) {
	store := newTestStore(time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	small := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	large := availability.Key{FacilityID: 1, UnitType: "LARGE", UnitSize: "10x20"}
	other := availability.Key{FacilityID: 2, UnitType: "SMALL", UnitSize: "5x5"}
	for _, k := range []availability.Key{small, large, other} {
		_, err := store.Track(ctx, k, 10)
		require.NoError(t, err)
	}
	_, err := store.ApplyChange(ctx, small, availability.Delta{Bookings: 5})
	require.NoError(t, err)

	agg, err := store.FacilityAggregate(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 20, agg.TotalUnits)
	assert.Equal(t, 15, agg.AvailableUnits)
	assert.Equal(t, float64(25), agg.OccupancyRate)

	filtered, err := store.FacilityAggregate(ctx, 1, "SMALL")
	require.NoError(t, err)
	assert.Equal(t, 10, filtered.TotalUnits)
	assert.Equal(t, 5, filtered.AvailableUnits)

	_, err = store.FacilityAggregate(ctx, 99, "")
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestHistoryMergedAscending(t *testing.T) {
	at := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	clock := at
	store := NewSnapshotStore()
	store.Now = func() time.Time { return clock }
	ctx := context.Background()

	a := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	b := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "10x10"}
	_, err := store.Track(ctx, a, 5)
	require.NoError(t, err)
	_, err = store.Track(ctx, b, 5)
	require.NoError(t, err)

	clock = at.Add(time.Hour)
	_, err = store.ApplyChange(ctx, b, availability.Delta{Bookings: 1})
	require.NoError(t, err)
	clock = at.Add(2 * time.Hour)
	_, err = store.ApplyChange(ctx, a, availability.Delta{Bookings: 1})
	require.NoError(t, err)

	history, err := store.History(ctx, 1, "SMALL", at.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
	assert.Equal(t, "10x10", history[0].UnitSize)
	assert.Equal(t, "5x5", history[1].UnitSize)
}

func TestFindLowAvailability(t *testing.T) {
	at := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	store := newTestStore(at)
	ctx := context.Background()

	scarce := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	scarcer := availability.Key{FacilityID: 1, UnitType: "LARGE", UnitSize: "10x20"}
	plenty := availability.Key{FacilityID: 1, UnitType: "MEDIUM", UnitSize: "10x10"}
	for _, k := range []availability.Key{scarce, scarcer, plenty} {
		_, err := store.Track(ctx, k, 10)
		require.NoError(t, err)
	}
	_, err := store.ApplyChange(ctx, scarce, availability.Delta{Bookings: 7})
	require.NoError(t, err)
	_, err = store.ApplyChange(ctx, scarcer, availability.Delta{Bookings: 9})
	require.NoError(t, err)

	low, err := store.FindLowAvailability(ctx, 5, time.Time{})
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, 1, low[0].AvailableUnits)
	assert.Equal(t, 3, low[1].AvailableUnits)

	none, err := store.FindLowAvailability(ctx, 5, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSetPrices(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	_, err := store.Track(ctx, testKey, 3)
	require.NoError(t, err)

	current := money.Must(10_000, "USD")
	recommended := money.Must(11_500, "USD")
	adjustment := money.Must(1_500, "USD")
	require.NoError(t, store.SetPrices(ctx, testKey, current, recommended, adjustment))

	latest, err := store.GetLatest(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, current, latest.CurrentPrice)
	assert.Equal(t, recommended, latest.RecommendedPrice)
	assert.Equal(t, adjustment, latest.PriceAdjustment)

	err = store.SetPrices(ctx, availability.Key{FacilityID: 9}, current, recommended, adjustment)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestPruneHistoryKeepsLatest(t *testing.T) {
	at := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	clock := at
	store := NewSnapshotStore()
	store.Now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := store.Track(ctx, testKey, 5)
	require.NoError(t, err)
	clock = at.Add(time.Hour)
	_, err = store.ApplyChange(ctx, testKey, availability.Delta{Bookings: 1})
	require.NoError(t, err)
	clock = at.Add(2 * time.Hour)
	_, err = store.ApplyChange(ctx, testKey, availability.Delta{Bookings: 1})
	require.NoError(t, err)

	pruned, err := store.PruneHistory(ctx, at.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, pruned, 2)
	assert.True(t, pruned[0].Timestamp.Before(pruned[1].Timestamp))

	// The latest snapshot stays queryable and in history.
	latest, err := store.GetLatest(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.AvailableUnits)

	history, err := store.History(ctx, 1, "SMALL", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, latest.Timestamp, history[0].Timestamp)
}

func TestRetire(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	_, err := store.Track(ctx, testKey, 2)
	require.NoError(t, err)

	require.NoError(t, store.Retire(ctx, testKey))
	_, err = store.GetLatest(ctx, testKey)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)

	err = store.Retire(ctx, availability.Key{FacilityID: 9})
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}
