package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrInvalidTransition = errors.New("availability: invalid unit state transition")

// Action names a unit state transition requested by an external
// booking or maintenance event.
type Action string

const (
	// ActionBook places a hold: AVAILABLE -> RESERVED.
	ActionBook Action = "BOOK"
	// ActionConfirm converts a hold into a tenancy: RESERVED -> OCCUPIED.
	ActionConfirm Action = "CONFIRM"
	// ActionRelease frees an occupied unit: OCCUPIED -> AVAILABLE.
	ActionRelease Action = "RELEASE"
	// ActionMaintenance takes a unit offline: AVAILABLE -> MAINTENANCE.
	ActionMaintenance Action = "MAINTENANCE"
	// ActionAvailable returns a unit from maintenance: MAINTENANCE -> AVAILABLE.
	ActionAvailable Action = "AVAILABLE"
)

// UnitChange is one unit-level event as delivered by booking systems.
type UnitChange struct {
	UnitID        string
	Action        Action
	EffectiveDate time.Time
}

// Updater translates unit change events into store mutations. Each
// unit's transition is applied independently; a rejected transition
// never rolls back previously applied ones in the same batch.
type Updater struct {
	Store  Store
	Logger *slog.Logger
}

// Apply applies every change against the key, returning the snapshot
// after the last successful change. The first failing change aborts the
// remainder of the batch.
func (u *Updater) Apply(ctx context.Context, key Key, changes []UnitChange) (Snapshot, error) {
	if u.Store == nil {
		return Snapshot{}, errors.New("availability: updater store missing")
	}
	var last Snapshot
	var applied bool
	for _, change := range changes {
		delta, err := deltaFor(change.Action)
		if err != nil {
			return last, fmt.Errorf("unit %s on %s: %w", change.UnitID, key, err)
		}
		snap, err := u.Store.ApplyChange(ctx, key, delta)
		if err != nil {
			return last, fmt.Errorf("unit %s on %s: %w", change.UnitID, key, err)
		}
		last = snap
		applied = true
		if u.Logger != nil {
			u.Logger.Debug("unit change applied",
				"facility_id", key.FacilityID,
				"unit_type", key.UnitType,
				"unit_size", key.UnitSize,
				"unit_id", change.UnitID,
				"action", change.Action,
				"available", snap.AvailableUnits,
			)
		}
	}
	if !applied {
		snap, err := u.Store.GetLatest(ctx, key)
		if err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	}
	return last, nil
}

func deltaFor(action Action) (Delta, error) {
	switch action {
	case ActionBook:
		return Delta{Bookings: 1}, nil
	case ActionConfirm:
		return Delta{Confirmations: 1}, nil
	case ActionRelease:
		return Delta{Releases: 1}, nil
	case ActionMaintenance:
		return Delta{MaintenanceIn: 1}, nil
	case ActionAvailable:
		return Delta{MaintenanceOut: 1}, nil
	default:
		return Delta{}, fmt.Errorf("%w: %q", ErrInvalidTransition, action)
	}
}
