package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/shared/money"
)

// SnapshotStore is the in-memory availability store. The outer RWMutex
// guards only the key map; every key carries its own mutex so changes
// to different keys proceed fully in parallel while changes to the
// same key are serialized.
type SnapshotStore struct {
	Demand availability.DemandPolicy
	// VelocityWindow bounds the trailing window used for booking
	// velocity; zero falls back to 24h.
	VelocityWindow time.Duration
	Now            func() time.Time

	mu      sync.RWMutex
	entries map[availability.Key]*snapshotEntry
}

type snapshotEntry struct {
	mu       sync.Mutex
	latest   availability.Snapshot
	history  []availability.Snapshot
	bookings []time.Time
}

// NewSnapshotStore builds an empty store with the default demand policy.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		Demand:         availability.DefaultDemandPolicy(),
		VelocityWindow: 24 * time.Hour,
		entries:        make(map[availability.Key]*snapshotEntry),
	}
}

// Track registers a new key with every unit available.
func (s *SnapshotStore) Track(ctx context.Context, key availability.Key, totalUnits int) (availability.Snapshot, error) {
	if totalUnits <= 0 {
		return availability.Snapshot{}, fmt.Errorf("%w: %d for %s", availability.ErrInvalidTotal, totalUnits, key)
	}
	now := s.now()
	snap := availability.Snapshot{
		FacilityID:     key.FacilityID,
		UnitType:       key.UnitType,
		UnitSize:       key.UnitSize,
		TotalUnits:     totalUnits,
		AvailableUnits: totalUnits,
		Timestamp:      now,
		Active:         true,
	}
	snap.DemandScore = s.Demand.Score(0, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return availability.Snapshot{}, fmt.Errorf("%w: %s", availability.ErrAlreadyTracked, key)
	}
	s.entries[key] = &snapshotEntry{latest: snap, history: []availability.Snapshot{snap}}
	return snap, nil
}

// GetLatest returns the latest active snapshot for the key.
func (s *SnapshotStore) GetLatest(ctx context.Context, key availability.Key) (availability.Snapshot, error) {
	entry := s.entry(key)
	if entry == nil {
		return availability.Snapshot{}, fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.latest.Active {
		return availability.Snapshot{}, fmt.Errorf("%w: %s retired", availability.ErrSnapshotNotFound, key)
	}
	return entry.latest, nil
}

// FacilityAggregate sums counts across the facility's active keys,
// optionally filtered by unit type. Occupancy is derived from the
// summed counts; the demand score is averaged weighted by unit count.
func (s *SnapshotStore) FacilityAggregate(ctx context.Context, facilityID int64, unitType string) (availability.Snapshot, error) {
	snaps := s.collect(func(snap availability.Snapshot) bool {
		if !snap.Active || snap.FacilityID != facilityID {
			return false
		}
		return unitType == "" || snap.UnitType == unitType
	})
	if len(snaps) == 0 {
		return availability.Snapshot{}, fmt.Errorf("%w: facility %d unit %q", availability.ErrSnapshotNotFound, facilityID, unitType)
	}

	agg := availability.Snapshot{FacilityID: facilityID, UnitType: unitType, Active: true}
	var weightedDemand float64
	for _, snap := range snaps {
		agg.TotalUnits += snap.TotalUnits
		agg.AvailableUnits += snap.AvailableUnits
		agg.ReservedUnits += snap.ReservedUnits
		agg.OccupiedUnits += snap.OccupiedUnits
		agg.MaintenanceUnits += snap.MaintenanceUnits
		weightedDemand += float64(snap.DemandScore) * float64(snap.TotalUnits)
		if snap.Timestamp.After(agg.Timestamp) {
			agg.Timestamp = snap.Timestamp
		}
		if snap.LastBookingAt.After(agg.LastBookingAt) {
			agg.LastBookingAt = snap.LastBookingAt
		}
	}
	agg.OccupancyRate = agg.OccupancyOf()
	if agg.TotalUnits > 0 {
		agg.DemandScore = int(math.Round(weightedDemand / float64(agg.TotalUnits)))
	}
	return agg, nil
}

// LatestByFacility lists the latest active snapshot of each tracked key.
func (s *SnapshotStore) LatestByFacility(ctx context.Context, facilityID int64) ([]availability.Snapshot, error) {
	snaps := s.collect(func(snap availability.Snapshot) bool {
		return snap.Active && snap.FacilityID == facilityID
	})
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].UnitType == snaps[j].UnitType {
			return snaps[i].UnitSize < snaps[j].UnitSize
		}
		return snaps[i].UnitType < snaps[j].UnitType
	})
	return snaps, nil
}

// ApplyChange applies the delta under the key's lock: the invariant
// check always reads the freshest committed counts, so concurrent
// bookings can never overshoot zero.
func (s *SnapshotStore) ApplyChange(ctx context.Context, key availability.Key, delta availability.Delta) (availability.Snapshot, error) {
	entry := s.entry(key)
	if entry == nil {
		return availability.Snapshot{}, fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	now := s.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	next, err := availability.Apply(entry.latest, delta, now)
	if err != nil {
		return availability.Snapshot{}, err
	}

	entry.trimBookings(now, s.velocityWindow())
	for i := 0; i < delta.Bookings; i++ {
		entry.bookings = append(entry.bookings, now)
	}
	next.DemandScore = s.Demand.Score(next.OccupancyRate, entry.bookingsPerHour(s.velocityWindow()))

	entry.latest = next
	entry.history = append(entry.history, next)
	return next, nil
}

// History returns snapshots for the (facility, unitType) pair inside
// the window, merged across unit sizes, ascending by timestamp.
func (s *SnapshotStore) History(ctx context.Context, facilityID int64, unitType string, from, to time.Time) ([]availability.Snapshot, error) {
	var out []availability.Snapshot
	s.mu.RLock()
	entries := make([]*snapshotEntry, 0, len(s.entries))
	for key, entry := range s.entries {
		if key.FacilityID == facilityID && (unitType == "" || key.UnitType == unitType) {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	for _, entry := range entries {
		entry.mu.Lock()
		for _, snap := range entry.history {
			if !from.IsZero() && snap.Timestamp.Before(from) {
				continue
			}
			if !to.IsZero() && snap.Timestamp.After(to) {
				continue
			}
			out = append(out, snap)
		}
		entry.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// FindLowAvailability lists recently updated snapshots below the
// threshold, ascending by available units.
func (s *SnapshotStore) FindLowAvailability(ctx context.Context, thresholdUnits int, since time.Time) ([]availability.Snapshot, error) {
	snaps := s.collect(func(snap availability.Snapshot) bool {
		return snap.Active && snap.AvailableUnits < thresholdUnits && !snap.Timestamp.Before(since)
	})
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].AvailableUnits < snaps[j].AvailableUnits })
	return snaps, nil
}

// SetPrices stamps the current/recommended prices onto the latest
// snapshot without touching counts.
func (s *SnapshotStore) SetPrices(ctx context.Context, key availability.Key, current, recommended, adjustment money.Money) error {
	entry := s.entry(key)
	if entry == nil {
		return fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.latest.CurrentPrice = current
	entry.latest.RecommendedPrice = recommended
	entry.latest.PriceAdjustment = adjustment
	return nil
}

// PruneHistory drops history entries older than the cutoff and returns
// them so the caller can archive first. The latest snapshot of every
// key is always kept queryable.
func (s *SnapshotStore) PruneHistory(ctx context.Context, before time.Time) ([]availability.Snapshot, error) {
	s.mu.RLock()
	entries := make([]*snapshotEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var pruned []availability.Snapshot
	for _, entry := range entries {
		entry.mu.Lock()
		kept := entry.history[:0]
		for _, snap := range entry.history {
			if snap.Timestamp.Before(before) && !snap.Timestamp.Equal(entry.latest.Timestamp) {
				pruned = append(pruned, snap)
				continue
			}
			kept = append(kept, snap)
		}
		entry.history = kept
		entry.mu.Unlock()
	}
	sort.SliceStable(pruned, func(i, j int) bool { return pruned[i].Timestamp.Before(pruned[j].Timestamp) })
	return pruned, nil
}

// Retire flags the key inactive, keeping its history for audit.
func (s *SnapshotStore) Retire(ctx context.Context, key availability.Key) error {
	entry := s.entry(key)
	if entry == nil {
		return fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.latest.Active = false
	return nil
}

func (s *SnapshotStore) entry(key availability.Key) *snapshotEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

func (s *SnapshotStore) collect(match func(availability.Snapshot) bool) []availability.Snapshot {
	s.mu.RLock()
	entries := make([]*snapshotEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var out []availability.Snapshot
	for _, entry := range entries {
		entry.mu.Lock()
		snap := entry.latest
		entry.mu.Unlock()
		if match(snap) {
			out = append(out, snap)
		}
	}
	return out
}

func (s *SnapshotStore) velocityWindow() time.Duration {
	if s.VelocityWindow <= 0 {
		return 24 * time.Hour
	}
	return s.VelocityWindow
}

func (s *SnapshotStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *snapshotEntry) trimBookings(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(e.bookings) && e.bookings[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		e.bookings = append(e.bookings[:0], e.bookings[idx:]...)
	}
}

func (e *snapshotEntry) bookingsPerHour(window time.Duration) float64 {
	hours := window.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(len(e.bookings)) / hours
}

var _ availability.Store = (*SnapshotStore)(nil)
