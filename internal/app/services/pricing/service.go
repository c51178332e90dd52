package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storagepricing/internal/domain/availability"
	domainpricing "storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
)

var ErrInvalidForecastDays = errors.New("pricing: forecast days must be positive")

// Recommendation is a per-unit-type pricing suggestion for facility
// operators.
type Recommendation struct {
	UnitType         string
	UnitSize         string
	CurrentPrice     money.Money
	RecommendedPrice money.Money
	Reason           string
	Confidence       int
}

// ForecastPoint is one forward-projected day of expected demand.
type ForecastPoint struct {
	Date              time.Time
	DemandScore       int
	ExpectedOccupancy float64
	RecommendedPrice  money.Money
}

// PricePoint is one historical pricing observation.
type PricePoint struct {
	Timestamp        time.Time
	OccupancyRate    float64
	DemandScore      int
	CurrentPrice     money.Money
	RecommendedPrice money.Money
}

// Extrapolator projects occupancy forward from historical snapshots.
// The projection method is a policy; the default fits a linear trend.
type Extrapolator interface {
	Project(history []availability.Snapshot, days int) []float64
}

// Service wraps the pricing engine with the operator-facing read
// models: recommendations, demand forecasts and pricing history.
type Service struct {
	Engine       *domainpricing.Engine
	Snapshots    availability.Store
	Extrapolator Extrapolator
	Demand       availability.DemandPolicy
	Logger       *slog.Logger
	Now          func() time.Time
}

// Calculate delegates to the engine.
func (s *Service) Calculate(ctx context.Context, req domainpricing.Request) (domainpricing.Result, error) {
	return s.Engine.Calculate(ctx, req)
}

// Recommendations re-runs the engine against the current context of
// every tracked unit type and persists the recommended price back onto
// the snapshot.
func (s *Service) Recommendations(ctx context.Context, facilityID int64) ([]Recommendation, error) {
	snaps, err := s.Snapshots.LatestByFacility(ctx, facilityID)
	if err != nil {
		return nil, fmt.Errorf("recommendations for facility %d: %w", facilityID, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: facility %d", availability.ErrSnapshotNotFound, facilityID)
	}

	now := s.now()
	out := make([]Recommendation, 0, len(snaps))
	for _, snap := range snaps {
		pctx := contextFromSnapshot(snap)
		result, err := s.Engine.Calculate(ctx, domainpricing.Request{
			FacilityID: facilityID,
			UnitType:   snap.UnitType,
			UnitSize:   snap.UnitSize,
			Duration:   1,
			Context:    &pctx,
		})
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("recommendation pricing failed",
					"facility_id", facilityID, "unit_type", snap.UnitType, "error", err)
			}
			continue
		}

		current := snap.CurrentPrice
		if current.IsZero() {
			current = result.BasePrice
		}
		adjustment, _ := result.CalculatedPrice.Sub(current)
		if err := s.Snapshots.SetPrices(ctx, snap.Key(), current, result.CalculatedPrice, adjustment); err != nil && s.Logger != nil {
			s.Logger.Warn("recommended price not persisted", "key", snap.Key(), "error", err)
		}

		out = append(out, Recommendation{
			UnitType:         snap.UnitType,
			UnitSize:         snap.UnitSize,
			CurrentPrice:     current,
			RecommendedPrice: result.CalculatedPrice,
			Reason:           recommendationReason(snap, adjustment),
			Confidence:       confidence(snap, result, now) - s.sensitivityPenalty(ctx, facilityID, snap, result),
		})
	}
	return out, nil
}

// sensitivityPenalty re-prices the unit type under elevated and slack
// demand. A wide spread between the scenarios means small context
// shifts move the price a lot, so the recommendation deserves less
// confidence.
func (s *Service) sensitivityPenalty(ctx context.Context, facilityID int64, snap availability.Snapshot, current domainpricing.Result) int {
	if current.CalculatedPrice.Amount == 0 {
		return 0
	}
	low, high := current.CalculatedPrice.Amount, current.CalculatedPrice.Amount
	for _, shift := range []float64{15, -15} {
		pctx := contextFromSnapshot(snap)
		pctx.OccupancyRate = clampRate(pctx.OccupancyRate + shift)
		pctx.DemandScore = clampScore(pctx.DemandScore + int(shift))
		result, err := s.Engine.Calculate(ctx, domainpricing.Request{
			FacilityID: facilityID,
			UnitType:   snap.UnitType,
			UnitSize:   snap.UnitSize,
			Duration:   1,
			Context:    &pctx,
			DryRun:     true,
		})
		if err != nil {
			continue
		}
		if result.CalculatedPrice.Amount < low {
			low = result.CalculatedPrice.Amount
		}
		if result.CalculatedPrice.Amount > high {
			high = result.CalculatedPrice.Amount
		}
	}
	spread := float64(high-low) / float64(current.CalculatedPrice.Amount)
	if spread > 0.25 {
		return 10
	}
	return 0
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Forecast projects demand for the facility and re-prices each
// projected day with the same deterministic rule evaluation.
func (s *Service) Forecast(ctx context.Context, facilityID int64, days int) ([]ForecastPoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidForecastDays, days)
	}
	now := s.now()
	history, err := s.Snapshots.History(ctx, facilityID, "", now.AddDate(0, 0, -30), now)
	if err != nil {
		return nil, fmt.Errorf("forecast history for facility %d: %w", facilityID, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: facility %d has no history", availability.ErrSnapshotNotFound, facilityID)
	}

	projected := s.extrapolator().Project(history, days)
	out := make([]ForecastPoint, 0, len(projected))
	for i, occupancy := range projected {
		score := s.Demand.Score(occupancy, 0)
		pctx := domainpricing.Context{OccupancyRate: occupancy, DemandScore: score}
		result, err := s.Engine.Calculate(ctx, domainpricing.Request{
			FacilityID: facilityID,
			Duration:   1,
			Context:    &pctx,
			DryRun:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("forecast pricing for facility %d: %w", facilityID, err)
		}
		out = append(out, ForecastPoint{
			Date:              now.AddDate(0, 0, i+1).Truncate(24 * time.Hour),
			DemandScore:       score,
			ExpectedOccupancy: occupancy,
			RecommendedPrice:  result.CalculatedPrice,
		})
	}
	return out, nil
}

// History exposes the stored pricing/occupancy trail for a unit type.
func (s *Service) History(ctx context.Context, facilityID int64, unitType string, from, to time.Time) ([]PricePoint, error) {
	snaps, err := s.Snapshots.History(ctx, facilityID, unitType, from, to)
	if err != nil {
		return nil, fmt.Errorf("pricing history for facility %d: %w", facilityID, err)
	}
	out := make([]PricePoint, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, PricePoint{
			Timestamp:        snap.Timestamp,
			OccupancyRate:    snap.OccupancyRate,
			DemandScore:      snap.DemandScore,
			CurrentPrice:     snap.CurrentPrice,
			RecommendedPrice: snap.RecommendedPrice,
		})
	}
	return out, nil
}

func (s *Service) extrapolator() Extrapolator {
	if s.Extrapolator != nil {
		return s.Extrapolator
	}
	return LinearTrend{}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func contextFromSnapshot(snap availability.Snapshot) domainpricing.Context {
	return domainpricing.Context{
		OccupancyRate:    snap.OccupancyRate,
		DemandScore:      snap.DemandScore,
		UnitType:         snap.UnitType,
		UnitSizeCategory: snap.UnitSize,
		AvailableUnits:   snap.AvailableUnits,
	}
}

func recommendationReason(snap availability.Snapshot, adjustment money.Money) string {
	switch {
	case snap.IsHighDemand() && snap.IsLowAvailability():
		return "high demand with little remaining inventory"
	case snap.IsHighDemand():
		return "sustained booking pressure"
	case snap.IsLowAvailability():
		return "few units left at this size"
	case snap.OccupancyRate < 50 && adjustment.Amount < 0:
		return "slack occupancy, price to fill"
	case adjustment.IsZero():
		return "current price matches market conditions"
	default:
		return "rule-driven adjustment to current conditions"
	}
}

// confidence degrades with snapshot age and stale fallbacks.
func confidence(snap availability.Snapshot, result domainpricing.Result, now time.Time) int {
	score := 90
	age := now.Sub(snap.Timestamp)
	switch {
	case age > 7*24*time.Hour:
		score = 50
	case age > 24*time.Hour:
		score = 70
	}
	if result.StaleData {
		score -= 15
	}
	if score < 0 {
		score = 0
	}
	return score
}

// LinearTrend projects occupancy by extending the straight line between
// the oldest and newest observations, clamped to [0,100].
type LinearTrend struct{}

func (LinearTrend) Project(history []availability.Snapshot, days int) []float64 {
	if len(history) == 0 || days <= 0 {
		return nil
	}
	first := history[0]
	last := history[len(history)-1]
	lastOcc := last.OccupancyRate

	var slope float64
	span := last.Timestamp.Sub(first.Timestamp).Hours() / 24
	if span > 0 {
		slope = (lastOcc - first.OccupancyRate) / span
	}

	out := make([]float64, days)
	for i := range out {
		occ := lastOcc + slope*float64(i+1)
		if occ < 0 {
			occ = 0
		}
		if occ > 100 {
			occ = 100
		}
		out[i] = occ
	}
	return out
}

var _ Extrapolator = LinearTrend{}
