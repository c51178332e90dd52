package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainavailability "storagepricing/internal/domain/availability"
)

// ErrNoChanges rejects update requests that carry an empty change set.
var ErrNoChanges = errors.New("availability: no unit changes")

// EventPublisher notifies downstream consumers that unit availability
// changed. Publishing failures are logged, never propagated: the store
// is already committed by the time an event goes out.
type EventPublisher interface {
	AvailabilityChanged(ctx context.Context, snap domainavailability.Snapshot) error
}

// View is the availability read model: the facility aggregate plus a
// per-key breakdown.
type View struct {
	Aggregate domainavailability.Snapshot
	Breakdown []domainavailability.Snapshot
}

// Service applies booking events to the availability store and serves
// availability views.
type Service struct {
	Store     domainavailability.Store
	Updater   *domainavailability.Updater
	Publisher EventPublisher
	Logger    *slog.Logger
}

// Get returns the aggregate view for the facility, optionally filtered
// by unit type. The breakdown lists every tracked key of the facility.
func (s *Service) Get(ctx context.Context, facilityID int64, unitType string) (View, error) {
	agg, err := s.Store.FacilityAggregate(ctx, facilityID, unitType)
	if err != nil {
		return View{}, err
	}
	breakdown, err := s.Store.LatestByFacility(ctx, facilityID)
	if err != nil {
		return View{}, err
	}
	if unitType != "" {
		filtered := breakdown[:0]
		for _, snap := range breakdown {
			if snap.UnitType == unitType {
				filtered = append(filtered, snap)
			}
		}
		breakdown = filtered
	}
	return View{Aggregate: agg, Breakdown: breakdown}, nil
}

// Update applies the unit changes through the updater and publishes the
// resulting snapshot.
func (s *Service) Update(ctx context.Context, key domainavailability.Key, changes []domainavailability.UnitChange) (domainavailability.Snapshot, error) {
	if len(changes) == 0 {
		return domainavailability.Snapshot{}, fmt.Errorf("%w for %s", ErrNoChanges, key)
	}
	snap, err := s.Updater.Apply(ctx, key, changes)
	if err != nil {
		return snap, err
	}
	s.publish(ctx, snap)
	return snap, nil
}

// Track starts tracking a key with all units available.
func (s *Service) Track(ctx context.Context, key domainavailability.Key, totalUnits int) (domainavailability.Snapshot, error) {
	snap, err := s.Store.Track(ctx, key, totalUnits)
	if err != nil {
		return domainavailability.Snapshot{}, err
	}
	s.publish(ctx, snap)
	return snap, nil
}

// Retire stops offering the key; history is preserved.
func (s *Service) Retire(ctx context.Context, key domainavailability.Key) error {
	return s.Store.Retire(ctx, key)
}

// LowAvailability reports keys running out of units since the given time.
func (s *Service) LowAvailability(ctx context.Context, thresholdUnits int, since time.Time) ([]domainavailability.Snapshot, error) {
	return s.Store.FindLowAvailability(ctx, thresholdUnits, since)
}

func (s *Service) publish(ctx context.Context, snap domainavailability.Snapshot) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.AvailabilityChanged(ctx, snap); err != nil && s.Logger != nil {
		s.Logger.Warn("availability event not published",
			"facility_id", snap.FacilityID, "unit_type", snap.UnitType, "error", err)
	}
}
