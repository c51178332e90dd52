package dto

import (
	"time"

	apppricing "storagepricing/internal/app/services/pricing"
	domainpricing "storagepricing/internal/domain/pricing"
)

type PriceCalculationRequest struct {
	FacilityID int64           `json:"facility_id" binding:"required"`
	UnitType   string          `json:"unit_type" binding:"required"`
	UnitSize   string          `json:"unit_size"`
	Duration   int             `json:"duration" binding:"required"`
	Context    *PricingContext `json:"context"`
}

type PricingContext struct {
	OccupancyRate    float64 `json:"occupancy_rate"`
	DemandScore      int     `json:"demand_score"`
	FacilityType     string  `json:"facility_type"`
	UnitSizeCategory string  `json:"unit_size_category"`
	GeographicRegion string  `json:"geographic_region"`
	SeasonalPeriod   string  `json:"seasonal_period"`
	DayOfWeek        string  `json:"day_of_week"`
	HourOfDay        int     `json:"hour_of_day"`
	CustomerSegment  string  `json:"customer_segment"`
	AvailableUnits   int     `json:"available_units"`
	HistoricalDemand float64 `json:"historical_demand"`
}

type RuleAdjustment struct {
	RuleID      string `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	RuleType    string `json:"rule_type"`
	AmountCents int64  `json:"amount_cents"`
}

type PriceCalculationResult struct {
	FacilityID           int64            `json:"facility_id"`
	UnitType             string           `json:"unit_type"`
	UnitSize             string           `json:"unit_size,omitempty"`
	Duration             int              `json:"duration"`
	BasePriceCents       int64            `json:"base_price_cents"`
	CalculatedPriceCents int64            `json:"calculated_price_cents"`
	TotalPriceCents      int64            `json:"total_price_cents"`
	Adjustments          []RuleAdjustment `json:"adjustments"`
	Currency             string           `json:"currency"`
	CalculatedAt         time.Time        `json:"calculated_at"`
	Promotional          bool             `json:"promotional"`
	StaleData            bool             `json:"stale_data"`
}

func (r PriceCalculationRequest) ToDomain() domainpricing.Request {
	req := domainpricing.Request{
		FacilityID: r.FacilityID,
		UnitType:   r.UnitType,
		UnitSize:   r.UnitSize,
		Duration:   r.Duration,
	}
	if r.Context != nil {
		req.Context = &domainpricing.Context{
			OccupancyRate:    r.Context.OccupancyRate,
			DemandScore:      r.Context.DemandScore,
			FacilityType:     r.Context.FacilityType,
			UnitSizeCategory: r.Context.UnitSizeCategory,
			GeographicRegion: r.Context.GeographicRegion,
			SeasonalPeriod:   r.Context.SeasonalPeriod,
			DayOfWeek:        r.Context.DayOfWeek,
			HourOfDay:        r.Context.HourOfDay,
			CustomerSegment:  r.Context.CustomerSegment,
			AvailableUnits:   r.Context.AvailableUnits,
			HistoricalDemand: r.Context.HistoricalDemand,
		}
	}
	return req
}

func MapPriceResult(result domainpricing.Result) PriceCalculationResult {
	adjustments := make([]RuleAdjustment, 0, len(result.Adjustments))
	for _, adj := range result.Adjustments {
		adjustments = append(adjustments, RuleAdjustment{
			RuleID:      string(adj.RuleID),
			RuleName:    adj.RuleName,
			RuleType:    string(adj.Type),
			AmountCents: adj.Amount.Amount,
		})
	}
	return PriceCalculationResult{
		FacilityID:           result.FacilityID,
		UnitType:             result.UnitType,
		UnitSize:             result.UnitSize,
		Duration:             result.Duration,
		BasePriceCents:       result.BasePrice.Amount,
		CalculatedPriceCents: result.CalculatedPrice.Amount,
		TotalPriceCents:      result.TotalPrice.Amount,
		Adjustments:          adjustments,
		Currency:             result.Currency,
		CalculatedAt:         result.CalculatedAt,
		Promotional:          result.Promotional,
		StaleData:            result.StaleData,
	}
}

type Recommendation struct {
	UnitType              string `json:"unit_type"`
	UnitSize              string `json:"unit_size"`
	CurrentPriceCents     int64  `json:"current_price_cents"`
	RecommendedPriceCents int64  `json:"recommended_price_cents"`
	Reason                string `json:"reason"`
	Confidence            int    `json:"confidence"`
}

func MapRecommendations(recs []apppricing.Recommendation) []Recommendation {
	out := make([]Recommendation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Recommendation{
			UnitType:              rec.UnitType,
			UnitSize:              rec.UnitSize,
			CurrentPriceCents:     rec.CurrentPrice.Amount,
			RecommendedPriceCents: rec.RecommendedPrice.Amount,
			Reason:                rec.Reason,
			Confidence:            rec.Confidence,
		})
	}
	return out
}

type ForecastPoint struct {
	Date                  time.Time `json:"date"`
	DemandScore           int       `json:"demand_score"`
	ExpectedOccupancy     float64   `json:"expected_occupancy"`
	RecommendedPriceCents int64     `json:"recommended_price_cents"`
}

func MapForecast(points []apppricing.ForecastPoint) []ForecastPoint {
	out := make([]ForecastPoint, 0, len(points))
	for _, p := range points {
		out = append(out, ForecastPoint{
			Date:                  p.Date,
			DemandScore:           p.DemandScore,
			ExpectedOccupancy:     p.ExpectedOccupancy,
			RecommendedPriceCents: p.RecommendedPrice.Amount,
		})
	}
	return out
}

type PricePoint struct {
	Timestamp             time.Time `json:"timestamp"`
	OccupancyRate         float64   `json:"occupancy_rate"`
	DemandScore           int       `json:"demand_score"`
	CurrentPriceCents     int64     `json:"current_price_cents"`
	RecommendedPriceCents int64     `json:"recommended_price_cents"`
}

func MapPriceHistory(points []apppricing.PricePoint) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, PricePoint{
			Timestamp:             p.Timestamp,
			OccupancyRate:         p.OccupancyRate,
			DemandScore:           p.DemandScore,
			CurrentPriceCents:     p.CurrentPrice.Amount,
			RecommendedPriceCents: p.RecommendedPrice.Amount,
		})
	}
	return out
}
