package pricing

import (
	"errors"
	"time"

	"storagepricing/internal/domain/shared/money"
)

var (
	ErrRuleNotFound    = errors.New("pricing: rule not found")
	ErrRuleNameMissing = errors.New("pricing: rule name required")
)

type RuleID string

type RuleType string

const (
	RuleDemandBased         RuleType = "DEMAND_BASED"
	RuleOccupancyBased      RuleType = "OCCUPANCY_BASED"
	RuleSeasonal            RuleType = "SEASONAL"
	RulePromotional         RuleType = "PROMOTIONAL"
	RuleCompetitorBased     RuleType = "COMPETITOR_BASED"
	RuleTimeOfDay           RuleType = "TIME_OF_DAY"
	RuleGeographic          RuleType = "GEOGRAPHIC"
	RuleCustomerSegment     RuleType = "CUSTOMER_SEGMENT"
	RuleInventoryBased      RuleType = "INVENTORY_BASED"
	RuleRevenueOptimization RuleType = "REVENUE_OPTIMIZATION"
)

type RuleStatus string

const (
	StatusActive    RuleStatus = "ACTIVE"
	StatusInactive  RuleStatus = "INACTIVE"
	StatusSuspended RuleStatus = "SUSPENDED"
	StatusExpired   RuleStatus = "EXPIRED"
	StatusDraft     RuleStatus = "DRAFT"
)

type AdjustmentType string

const (
	AdjustPercentage  AdjustmentType = "PERCENTAGE"
	AdjustFixedAmount AdjustmentType = "FIXED_AMOUNT"
	AdjustMultiplier  AdjustmentType = "MULTIPLIER"
	AdjustFormula     AdjustmentType = "FORMULA"
)

// Rule is a named, prioritized conditional pricing instruction. Nil
// bound fields mean "no constraint"; a rule applies only when every
// set bound is satisfied by the context.
type Rule struct {
	ID          RuleID
	Name        string
	Description string
	Type        RuleType
	Status      RuleStatus

	// Applicability bounds. Lower priority numbers evaluate first.
	Priority         int
	MinOccupancyRate *float64
	MaxOccupancyRate *float64
	MinDemandScore   *int
	MaxDemandScore   *int
	FacilityType     string
	UnitType         string
	UnitSizeCategory string
	GeographicRegion string
	SeasonalPeriod   string
	DayOfWeek        string
	HourOfDay        *int

	// Adjustment. AdjustmentValue is interpreted per type: percent of
	// base price for PERCENTAGE, minor units for FIXED_AMOUNT, a plain
	// factor for MULTIPLIER, ignored for FORMULA.
	AdjustmentType  AdjustmentType
	AdjustmentValue float64
	Formula         FormulaName
	Parameters      map[string]string
	MinPrice        *money.Money
	MaxPrice        *money.Money
	CapPercentage   *float64

	Compoundable bool
	ValidFrom    *time.Time
	ValidUntil   *time.Time

	// Usage tracking, mutated only through RuleSet.RecordApplication.
	ApplicationCount   int64
	LastAppliedAt      time.Time
	TotalRevenueImpact money.Money

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// ActiveAt reports whether the rule participates in evaluation at the
// given instant. Open-ended validity bounds are always satisfied.
func (r Rule) ActiveAt(now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && !now.Before(*r.ValidUntil) {
		return false
	}
	return true
}

// AppliesTo checks every set bound against the context; absence of a
// bound means unconstrained. Activity is checked separately via ActiveAt.
func (r Rule) AppliesTo(ctx Context) bool {
	if r.MinOccupancyRate != nil && ctx.OccupancyRate < *r.MinOccupancyRate {
		return false
	}
	if r.MaxOccupancyRate != nil && ctx.OccupancyRate > *r.MaxOccupancyRate {
		return false
	}
	if r.MinDemandScore != nil && ctx.DemandScore < *r.MinDemandScore {
		return false
	}
	if r.MaxDemandScore != nil && ctx.DemandScore > *r.MaxDemandScore {
		return false
	}
	if r.FacilityType != "" && r.FacilityType != ctx.FacilityType {
		return false
	}
	if r.UnitType != "" && r.UnitType != ctx.UnitType {
		return false
	}
	if r.UnitSizeCategory != "" && r.UnitSizeCategory != ctx.UnitSizeCategory {
		return false
	}
	if r.GeographicRegion != "" && r.GeographicRegion != ctx.GeographicRegion {
		return false
	}
	if r.SeasonalPeriod != "" && r.SeasonalPeriod != ctx.SeasonalPeriod {
		return false
	}
	if r.DayOfWeek != "" && r.DayOfWeek != ctx.DayOfWeek {
		return false
	}
	if r.HourOfDay != nil && *r.HourOfDay != ctx.HourOfDay {
		return false
	}
	return true
}

// Adjustment computes the rule's price contribution against the base
// price. A set CapPercentage clamps the magnitude relative to base,
// preserving sign. Unknown formulas contribute nothing.
func (r Rule) Adjustment(base money.Money, ctx Context) money.Money {
	var adj money.Money
	switch r.AdjustmentType {
	case AdjustPercentage:
		adj = base.Scale(r.AdjustmentValue / 100)
	case AdjustFixedAmount:
		adj = money.Money{Amount: int64(r.AdjustmentValue), Currency: base.Currency}
	case AdjustMultiplier:
		scaled := base.Scale(r.AdjustmentValue)
		adj, _ = scaled.Sub(base)
	case AdjustFormula:
		adj = EvaluateFormula(r.Formula, base, ctx)
	default:
		adj = money.Money{Currency: base.Currency}
	}

	if r.CapPercentage != nil {
		maxAdj := base.Scale(*r.CapPercentage / 100)
		if maxAdj.Amount < 0 {
			maxAdj = maxAdj.Neg()
		}
		if adj.Amount > maxAdj.Amount {
			adj.Amount = maxAdj.Amount
		}
		if adj.Amount < -maxAdj.Amount {
			adj.Amount = -maxAdj.Amount
		}
	}
	return adj
}

func (r *Rule) Activate(now time.Time) {
	r.Status = StatusActive
	r.UpdatedAt = now.UTC()
}

func (r *Rule) Deactivate(now time.Time) {
	r.Status = StatusInactive
	r.UpdatedAt = now.UTC()
}

func (r *Rule) Suspend(now time.Time) {
	r.Status = StatusSuspended
	r.UpdatedAt = now.UTC()
}
