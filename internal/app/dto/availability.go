package dto

import (
	"time"

	appavailability "storagepricing/internal/app/services/availability"
	"storagepricing/internal/domain/availability"
)

type TrackRequest struct {
	FacilityID int64  `json:"facility_id" binding:"required"`
	UnitType   string `json:"unit_type" binding:"required"`
	UnitSize   string `json:"unit_size" binding:"required"`
	TotalUnits int    `json:"total_units" binding:"required"`
}

func (r TrackRequest) Key() availability.Key {
	return availability.Key{FacilityID: r.FacilityID, UnitType: r.UnitType, UnitSize: r.UnitSize}
}

type UnitChange struct {
	UnitID        string    `json:"unit_id"`
	Action        string    `json:"action" binding:"required"`
	EffectiveDate time.Time `json:"effective_date"`
}

type UpdateAvailabilityRequest struct {
	FacilityID int64        `json:"facility_id" binding:"required"`
	UnitType   string       `json:"unit_type" binding:"required"`
	UnitSize   string       `json:"unit_size" binding:"required"`
	Changes    []UnitChange `json:"changes" binding:"required"`
}

func (r UpdateAvailabilityRequest) Key() availability.Key {
	return availability.Key{FacilityID: r.FacilityID, UnitType: r.UnitType, UnitSize: r.UnitSize}
}

func (r UpdateAvailabilityRequest) DomainChanges() []availability.UnitChange {
	changes := make([]availability.UnitChange, 0, len(r.Changes))
	for _, c := range r.Changes {
		changes = append(changes, availability.UnitChange{
			UnitID:        c.UnitID,
			Action:        availability.Action(c.Action),
			EffectiveDate: c.EffectiveDate,
		})
	}
	return changes
}

type AvailabilitySnapshot struct {
	FacilityID            int64     `json:"facility_id"`
	UnitType              string    `json:"unit_type"`
	UnitSize              string    `json:"unit_size,omitempty"`
	TotalUnits            int       `json:"total_units"`
	AvailableUnits        int       `json:"available_units"`
	ReservedUnits         int       `json:"reserved_units"`
	OccupiedUnits         int       `json:"occupied_units"`
	MaintenanceUnits      int       `json:"maintenance_units"`
	OccupancyRate         float64   `json:"occupancy_rate"`
	DemandScore           int       `json:"demand_score"`
	CurrentPriceCents     int64     `json:"current_price_cents"`
	RecommendedPriceCents int64     `json:"recommended_price_cents"`
	LastBookingAt         time.Time `json:"last_booking_at,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
	HighDemand            bool      `json:"high_demand"`
	LowAvailability       bool      `json:"low_availability"`
}

func MapSnapshot(s availability.Snapshot) AvailabilitySnapshot {
	return AvailabilitySnapshot{
		FacilityID:            s.FacilityID,
		UnitType:              s.UnitType,
		UnitSize:              s.UnitSize,
		TotalUnits:            s.TotalUnits,
		AvailableUnits:        s.AvailableUnits,
		ReservedUnits:         s.ReservedUnits,
		OccupiedUnits:         s.OccupiedUnits,
		MaintenanceUnits:      s.MaintenanceUnits,
		OccupancyRate:         s.OccupancyRate,
		DemandScore:           s.DemandScore,
		CurrentPriceCents:     s.CurrentPrice.Amount,
		RecommendedPriceCents: s.RecommendedPrice.Amount,
		LastBookingAt:         s.LastBookingAt,
		Timestamp:             s.Timestamp,
		HighDemand:            s.IsHighDemand(),
		LowAvailability:       s.IsLowAvailability(),
	}
}

func MapSnapshots(snaps []availability.Snapshot) []AvailabilitySnapshot {
	out := make([]AvailabilitySnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, MapSnapshot(s))
	}
	return out
}

type AvailabilityView struct {
	Aggregate AvailabilitySnapshot   `json:"aggregate"`
	Breakdown []AvailabilitySnapshot `json:"breakdown"`
}

func MapAvailabilityView(v appavailability.View) AvailabilityView {
	return AvailabilityView{
		Aggregate: MapSnapshot(v.Aggregate),
		Breakdown: MapSnapshots(v.Breakdown),
	}
}
