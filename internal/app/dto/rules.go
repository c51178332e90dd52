package dto

import (
	"time"

	"storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
)

type CreateRuleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Type        string `json:"type" binding:"required"`
	Priority    int    `json:"priority"`

	MinOccupancyRate *float64 `json:"min_occupancy_rate"`
	MaxOccupancyRate *float64 `json:"max_occupancy_rate"`
	MinDemandScore   *int     `json:"min_demand_score"`
	MaxDemandScore   *int     `json:"max_demand_score"`
	FacilityType     string   `json:"facility_type"`
	UnitType         string   `json:"unit_type"`
	UnitSizeCategory string   `json:"unit_size_category"`
	GeographicRegion string   `json:"geographic_region"`
	SeasonalPeriod   string   `json:"seasonal_period"`
	DayOfWeek        string   `json:"day_of_week"`
	HourOfDay        *int     `json:"hour_of_day"`

	AdjustmentType  string            `json:"adjustment_type" binding:"required"`
	AdjustmentValue float64           `json:"adjustment_value"`
	Formula         string            `json:"formula"`
	Parameters      map[string]string `json:"parameters"`
	MinPriceCents   *int64            `json:"min_price_cents"`
	MaxPriceCents   *int64            `json:"max_price_cents"`
	CapPercentage   *float64          `json:"cap_percentage"`

	Compoundable bool       `json:"compoundable"`
	ValidFrom    *time.Time `json:"valid_from"`
	ValidUntil   *time.Time `json:"valid_until"`
	CreatedBy    string     `json:"created_by"`
}

func (r CreateRuleRequest) ToDomain(currency string) pricing.Rule {
	rule := pricing.Rule{
		Name:             r.Name,
		Description:      r.Description,
		Type:             pricing.RuleType(r.Type),
		Status:           pricing.StatusDraft,
		Priority:         r.Priority,
		MinOccupancyRate: r.MinOccupancyRate,
		MaxOccupancyRate: r.MaxOccupancyRate,
		MinDemandScore:   r.MinDemandScore,
		MaxDemandScore:   r.MaxDemandScore,
		FacilityType:     r.FacilityType,
		UnitType:         r.UnitType,
		UnitSizeCategory: r.UnitSizeCategory,
		GeographicRegion: r.GeographicRegion,
		SeasonalPeriod:   r.SeasonalPeriod,
		DayOfWeek:        r.DayOfWeek,
		HourOfDay:        r.HourOfDay,
		AdjustmentType:   pricing.AdjustmentType(r.AdjustmentType),
		AdjustmentValue:  r.AdjustmentValue,
		Formula:          pricing.FormulaName(r.Formula),
		Parameters:       r.Parameters,
		CapPercentage:    r.CapPercentage,
		Compoundable:     r.Compoundable,
		ValidFrom:        r.ValidFrom,
		ValidUntil:       r.ValidUntil,
		CreatedBy:        r.CreatedBy,
	}
	if r.MinPriceCents != nil {
		m := money.Money{Amount: *r.MinPriceCents, Currency: currency}
		rule.MinPrice = &m
	}
	if r.MaxPriceCents != nil {
		m := money.Money{Amount: *r.MaxPriceCents, Currency: currency}
		rule.MaxPrice = &m
	}
	return rule
}

type RuleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`

	MinOccupancyRate *float64 `json:"min_occupancy_rate,omitempty"`
	MaxOccupancyRate *float64 `json:"max_occupancy_rate,omitempty"`
	MinDemandScore   *int     `json:"min_demand_score,omitempty"`
	MaxDemandScore   *int     `json:"max_demand_score,omitempty"`
	FacilityType     string   `json:"facility_type,omitempty"`
	UnitType         string   `json:"unit_type,omitempty"`
	UnitSizeCategory string   `json:"unit_size_category,omitempty"`
	GeographicRegion string   `json:"geographic_region,omitempty"`
	SeasonalPeriod   string   `json:"seasonal_period,omitempty"`
	DayOfWeek        string   `json:"day_of_week,omitempty"`
	HourOfDay        *int     `json:"hour_of_day,omitempty"`

	AdjustmentType  string   `json:"adjustment_type"`
	AdjustmentValue float64  `json:"adjustment_value"`
	Formula         string   `json:"formula,omitempty"`
	MinPriceCents   *int64   `json:"min_price_cents,omitempty"`
	MaxPriceCents   *int64   `json:"max_price_cents,omitempty"`
	CapPercentage   *float64 `json:"cap_percentage,omitempty"`

	Compoundable bool       `json:"compoundable"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`

	ApplicationCount        int64     `json:"application_count"`
	LastAppliedAt           time.Time `json:"last_applied_at,omitempty"`
	TotalRevenueImpactCents int64     `json:"total_revenue_impact_cents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

func MapRule(r pricing.Rule) RuleResponse {
	resp := RuleResponse{
		ID:               string(r.ID),
		Name:             r.Name,
		Description:      r.Description,
		Type:             string(r.Type),
		Status:           string(r.Status),
		Priority:         r.Priority,
		MinOccupancyRate: r.MinOccupancyRate,
		MaxOccupancyRate: r.MaxOccupancyRate,
		MinDemandScore:   r.MinDemandScore,
		MaxDemandScore:   r.MaxDemandScore,
		FacilityType:     r.FacilityType,
		UnitType:         r.UnitType,
		UnitSizeCategory: r.UnitSizeCategory,
		GeographicRegion: r.GeographicRegion,
		SeasonalPeriod:   r.SeasonalPeriod,
		DayOfWeek:        r.DayOfWeek,
		HourOfDay:        r.HourOfDay,
		AdjustmentType:   string(r.AdjustmentType),
		AdjustmentValue:  r.AdjustmentValue,
		Formula:          string(r.Formula),
		CapPercentage:    r.CapPercentage,
		Compoundable:     r.Compoundable,
		ValidFrom:        r.ValidFrom,
		ValidUntil:       r.ValidUntil,

		ApplicationCount:        r.ApplicationCount,
		LastAppliedAt:           r.LastAppliedAt,
		TotalRevenueImpactCents: r.TotalRevenueImpact.Amount,

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
	}
	if r.MinPrice != nil {
		resp.MinPriceCents = &r.MinPrice.Amount
	}
	if r.MaxPrice != nil {
		resp.MaxPriceCents = &r.MaxPrice.Amount
	}
	return resp
}

func MapRules(rules []pricing.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, MapRule(r))
	}
	return out
}
