package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	availabilityapp "storagepricing/internal/app/services/availability"
	"storagepricing/internal/domain/availability"
	"storagepricing/internal/infra/storage/memory"
)

func testHandler(t *testing.T) (UnitChangeHandler, *memory.SnapshotStore) {
	t.Helper()
	store := memory.NewSnapshotStore()
	svc := &availabilityapp.Service{
		Store:   store,
		Updater: &availability.Updater{Store: store},
	}
	return UnitChangeHandler{Service: svc}, store
}

func TestHandleAppliesUnitChanges(t *testing.T) {
	handler, store := testHandler(t)
	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := store.Track(context.Background(), key, 5)
	require.NoError(t, err)

	msg := &sarama.ConsumerMessage{
		Topic: "storage.unit-changes",
		Value: []byte(`{
			"facility_id": 1,
			"unit_type": "SMALL",
			"unit_size": "5x5",
			"changes": [
				{"unit_id": "u-1", "action": "BOOK"},
				{"unit_id": "u-2", "action": "BOOK"},
				{"unit_id": "u-1", "action": "CONFIRM"}
			]
		}`),
	}
	require.NoError(t, handler.Handle(context.Background(), msg))

	latest, err := store.GetLatest(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.AvailableUnits)
	assert.Equal(t, 1, latest.ReservedUnits)
	assert.Equal(t, 1, latest.OccupiedUnits)
}

func TestHandleSkipsMalformedMessage(t *testing.T) {
	handler, _ := testHandler(t)

	msg := &sarama.ConsumerMessage{Topic: "storage.unit-changes", Value: []byte("{not json")}
	// A poison message must not block the partition.
	assert.NoError(t, handler.Handle(context.Background(), msg))
}

func TestHandleSkipsEmptyChangeSet(t *testing.T) {
	handler, _ := testHandler(t)

	msg := &sarama.ConsumerMessage{
		Topic: "storage.unit-changes",
		Value: []byte(`{"facility_id": 1, "unit_type": "SMALL", "unit_size": "5x5", "changes": []}`),
	}
	assert.NoError(t, handler.Handle(context.Background(), msg))
}

func TestHandleReturnsStoreFailuresForRedelivery(t *testing.T) {
	handler, _ := testHandler(t)

	// The key was never tracked, so the update fails and the offset
	// stays unmarked.
	msg := &sarama.ConsumerMessage{
		Topic: "storage.unit-changes",
		Value: []byte(`{"facility_id": 9, "unit_type": "SMALL", "unit_size": "5x5", "changes": [{"unit_id": "u-1", "action": "BOOK"}]}`),
	}
	err := handler.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}
