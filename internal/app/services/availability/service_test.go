package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainavailability "storagepricing/internal/domain/availability"
	"storagepricing/internal/infra/storage/memory"
)

type capturingPublisher struct {
	published []domainavailability.Snapshot
	err       error
}

func (p *capturingPublisher) AvailabilityChanged(ctx context.Context, snap domainavailability.Snapshot) error {
	p.published = append(p.published, snap)
	return p.err
}

func newService(publisher EventPublisher) (*Service, *memory.SnapshotStore) {
	store := memory.NewSnapshotStore()
	return &Service{
		Store:     store,
		Updater:   &domainavailability.Updater{Store: store},
		Publisher: publisher,
	}, store
}

func TestTrackPublishesSnapshot(t *testing.T) {
	publisher := &capturingPublisher{}
	svc, _ := newService(publisher)
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}

	snap, err := svc.Track(context.Background(), key, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.AvailableUnits)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, key, publisher.published[0].Key())
}

func TestUpdateAppliesAndPublishes(t *testing.T) {
	publisher := &capturingPublisher{}
	svc, _ := newService(publisher)
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := svc.Track(context.Background(), key, 5)
	require.NoError(t, err)

	snap, err := svc.Update(context.Background(), key, []domainavailability.UnitChange{
		{UnitID: "u-1", Action: domainavailability.ActionBook},
		{UnitID: "u-2", Action: domainavailability.ActionBook},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.AvailableUnits)
	require.Len(t, publisher.published, 2) // track + update
	assert.Equal(t, 3, publisher.published[1].AvailableUnits)
}

func TestUpdateRejectsEmptyChangeSet(t *testing.T) {
	svc, _ := newService(nil)
	_, err := svc.Update(context.Background(), domainavailability.Key{FacilityID: 1}, nil)
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestUpdatePublishFailureIsSwallowed(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker down")}
	svc, _ := newService(publisher)
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := svc.Track(context.Background(), key, 2)
	require.NoError(t, err)

	snap, err := svc.Update(context.Background(), key, []domainavailability.UnitChange{
		{UnitID: "u-1", Action: domainavailability.ActionBook},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AvailableUnits)
}

func TestUpdateFailureSkipsPublish(t *testing.T) {
	publisher := &capturingPublisher{}
	svc, _ := newService(publisher)
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := svc.Track(context.Background(), key, 1)
	require.NoError(t, err)
	publisher.published = nil

	_, err = svc.Update(context.Background(), key, []domainavailability.UnitChange{
		{UnitID: "u-1", Action: domainavailability.ActionRelease}, // nothing occupied
	})
	require.ErrorIs(t, err, domainavailability.ErrInvariantViolation)
	assert.Empty(t, publisher.published)
}

func TestGetAggregateWithBreakdown(t *testing.T) {
	svc, store := newService(nil)
	ctx := context.Background()

	small := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	large := domainavailability.Key{FacilityID: 1, UnitType: "LARGE", UnitSize: "10x20"}
	_, err := store.Track(ctx, small, 10)
	require.NoError(t, err)
	_, err = store.Track(ctx, large, 6)
	require.NoError(t, err)

	view, err := svc.Get(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 16, view.Aggregate.TotalUnits)
	assert.Len(t, view.Breakdown, 2)

	filtered, err := svc.Get(ctx, 1, "LARGE")
	require.NoError(t, err)
	assert.Equal(t, 6, filtered.Aggregate.TotalUnits)
	require.Len(t, filtered.Breakdown, 1)
	assert.Equal(t, "LARGE", filtered.Breakdown[0].UnitType)

	_, err = svc.Get(ctx, 42, "")
	assert.ErrorIs(t, err, domainavailability.ErrSnapshotNotFound)
}

func TestLowAvailability(t *testing.T) {
	svc, store := newService(nil)
	ctx := context.Background()
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := store.Track(ctx, key, 4)
	require.NoError(t, err)
	_, err = store.ApplyChange(ctx, key, domainavailability.Delta{Bookings: 3})
	require.NoError(t, err)

	low, err := svc.LowAvailability(ctx, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, 1, low[0].AvailableUnits)
}

func TestRetire(t *testing.T) {
	svc, store := newService(nil)
	ctx := context.Background()
	key := domainavailability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := store.Track(ctx, key, 4)
	require.NoError(t, err)

	require.NoError(t, svc.Retire(ctx, key))
	_, err = store.GetLatest(ctx, key)
	assert.ErrorIs(t, err, domainavailability.ErrSnapshotNotFound)
}
