package availability

import (
	"errors"
	"fmt"
	"time"

	"storagepricing/internal/domain/shared/money"
)

var (
	ErrInvariantViolation = errors.New("availability: unit counts invariant violated")
	ErrSnapshotNotFound   = errors.New("availability: snapshot not found")
	ErrAlreadyTracked     = errors.New("availability: key already tracked")
	ErrInvalidTotal       = errors.New("availability: total units must be positive")
)

// Key identifies one tracked (facility, unit type, unit size) combination.
type Key struct {
	FacilityID int64
	UnitType   string
	UnitSize   string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.FacilityID, k.UnitType, k.UnitSize)
}

// Snapshot is the availability state of one key at a point in time.
// Snapshots are immutable values; the store replaces the latest one on
// every applied change and appends the previous state to history.
type Snapshot struct {
	FacilityID       int64
	UnitType         string
	UnitSize         string
	TotalUnits       int
	AvailableUnits   int
	ReservedUnits    int
	OccupiedUnits    int
	MaintenanceUnits int
	OccupancyRate    float64
	DemandScore      int
	CurrentPrice     money.Money
	RecommendedPrice money.Money
	PriceAdjustment  money.Money
	LastBookingAt    time.Time
	NextAvailableAt  time.Time
	Timestamp        time.Time
	Active           bool
}

func (s Snapshot) Key() Key {
	return Key{FacilityID: s.FacilityID, UnitType: s.UnitType, UnitSize: s.UnitSize}
}

// Validate rejects snapshots whose counts are negative or do not sum to the total.
func (s Snapshot) Validate() error {
	if s.TotalUnits < 0 || s.AvailableUnits < 0 || s.ReservedUnits < 0 ||
		s.OccupiedUnits < 0 || s.MaintenanceUnits < 0 {
		return fmt.Errorf("%w: negative count for %s", ErrInvariantViolation, s.Key())
	}
	if s.TotalUnits != s.AvailableUnits+s.ReservedUnits+s.OccupiedUnits+s.MaintenanceUnits {
		return fmt.Errorf("%w: total %d != sum of parts for %s", ErrInvariantViolation, s.TotalUnits, s.Key())
	}
	return nil
}

// OccupancyOf computes the occupancy percentage for the current counts.
func (s Snapshot) OccupancyOf() float64 {
	if s.TotalUnits == 0 {
		return 0
	}
	return float64(s.TotalUnits-s.AvailableUnits) / float64(s.TotalUnits) * 100
}

// AvailabilityRate is the percentage of units currently available.
func (s Snapshot) AvailabilityRate() float64 {
	if s.TotalUnits == 0 {
		return 0
	}
	return float64(s.AvailableUnits) / float64(s.TotalUnits) * 100
}

func (s Snapshot) HasAvailability() bool {
	return s.AvailableUnits > 0
}

func (s Snapshot) IsHighDemand() bool {
	return s.DemandScore >= 80
}

func (s Snapshot) IsLowAvailability() bool {
	return s.AvailabilityRate() <= 20
}

// Delta describes unit movements applied to one key in a single change.
type Delta struct {
	Bookings       int // available -> reserved
	Confirmations  int // reserved -> occupied
	Releases       int // occupied -> available
	MaintenanceIn  int // available -> maintenance
	MaintenanceOut int // maintenance -> available
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Apply produces the snapshot that results from the delta, or
// ErrInvariantViolation when any count would go negative. The caller
// is responsible for recomputing the demand score; occupancy is derived
// here so counts and rate never diverge.
func Apply(s Snapshot, d Delta, now time.Time) (Snapshot, error) {
	next := s
	next.AvailableUnits += -d.Bookings + d.Releases - d.MaintenanceIn + d.MaintenanceOut
	next.ReservedUnits += d.Bookings - d.Confirmations
	next.OccupiedUnits += d.Confirmations - d.Releases
	next.MaintenanceUnits += d.MaintenanceIn - d.MaintenanceOut
	if err := next.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("apply %+v: %w", d, err)
	}
	next.OccupancyRate = next.OccupancyOf()
	next.Timestamp = now.UTC()
	if d.Bookings > 0 {
		next.LastBookingAt = now.UTC()
	}
	return next, nil
}
