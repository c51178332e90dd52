package availability

import (
	"context"
	"time"

	"storagepricing/internal/domain/shared/money"
)

// Store is the authoritative record of unit counts and derived metrics.
//
// Implementations must serialize ApplyChange per key (concurrent changes
// against the same key never observe stale counts) while letting reads
// and changes to different keys proceed in parallel. Reads may return a
// slightly stale snapshot.
type Store interface {
	// Track registers a key with all units available. No-op counts are
	// rejected; re-tracking an existing key is an error surfaced by the
	// implementation.
	Track(ctx context.Context, key Key, totalUnits int) (Snapshot, error)

	// GetLatest returns the most recent active snapshot for the key, or
	// ErrSnapshotNotFound.
	GetLatest(ctx context.Context, key Key) (Snapshot, error)

	// FacilityAggregate sums counts across all active keys of the
	// facility (optionally filtered by unit type) and derives a
	// weighted occupancy rate and demand score.
	FacilityAggregate(ctx context.Context, facilityID int64, unitType string) (Snapshot, error)

	// LatestByFacility returns the latest active snapshot of every key
	// tracked for the facility.
	LatestByFacility(ctx context.Context, facilityID int64) ([]Snapshot, error)

	// ApplyChange atomically applies the delta to the key's latest
	// snapshot, recomputes occupancy and demand score, stamps the new
	// snapshot and appends the result to history.
	ApplyChange(ctx context.Context, key Key, delta Delta) (Snapshot, error)

	// History returns snapshots for (facility, unitType) within [from, to],
	// ordered by timestamp ascending.
	History(ctx context.Context, facilityID int64, unitType string, from, to time.Time) ([]Snapshot, error)

	// FindLowAvailability lists snapshots updated since the given time
	// whose available units fall below the threshold, ascending by
	// available units.
	FindLowAvailability(ctx context.Context, thresholdUnits int, since time.Time) ([]Snapshot, error)

	// SetPrices records the current/recommended price pair on the
	// latest snapshot without touching unit counts.
	SetPrices(ctx context.Context, key Key, current, recommended, adjustment money.Money) error

	// PruneHistory removes history entries older than the cutoff and
	// returns them so callers can archive before discarding.
	PruneHistory(ctx context.Context, before time.Time) ([]Snapshot, error)

	// Retire marks the key inactive; its history is preserved.
	Retire(ctx context.Context, key Key) error
}
