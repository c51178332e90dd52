package availability

import "math"

// DemandPolicy converts occupancy and recent booking velocity into a
// bounded demand score. Both inputs contribute monotonically: a busier
// facility never scores lower than a quieter one.
type DemandPolicy struct {
	// OccupancyWeight scales the occupancy-rate contribution (rate is 0-100).
	OccupancyWeight float64
	// VelocityWeight scales the booking-velocity contribution.
	VelocityWeight float64
	// VelocityRef is the bookings-per-hour rate treated as full pressure.
	VelocityRef float64
}

// DefaultDemandPolicy weights occupancy 70/30 against booking velocity,
// saturating velocity at two bookings per hour.
func DefaultDemandPolicy() DemandPolicy {
	return DemandPolicy{OccupancyWeight: 0.7, VelocityWeight: 0.3, VelocityRef: 2.0}
}

// Score maps (occupancyRate, bookingsPerHour) into [0,100].
func (p DemandPolicy) Score(occupancyRate, bookingsPerHour float64) int {
	if occupancyRate < 0 {
		occupancyRate = 0
	}
	if occupancyRate > 100 {
		occupancyRate = 100
	}
	pressure := 0.0
	if p.VelocityRef > 0 && bookingsPerHour > 0 {
		pressure = bookingsPerHour / p.VelocityRef
		if pressure > 1 {
			pressure = 1
		}
	}
	score := int(math.Round(p.OccupancyWeight*occupancyRate + p.VelocityWeight*pressure*100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
