package pricing

import "storagepricing/internal/domain/shared/money"

// FormulaName selects one of a closed set of named, pure adjustment
// functions. Keeping the set closed keeps FORMULA rules auditable; an
// unknown name contributes a zero adjustment so one misconfigured rule
// cannot abort a compound calculation.
type FormulaName string

const (
	// FormulaDemandMultiplier scales the base price by demandScore/100
	// and contributes the difference: a score of 100 contributes zero,
	// lower scores discount proportionally.
	FormulaDemandMultiplier FormulaName = "DEMAND_MULTIPLIER"
	// FormulaOccupancyPremium adds a stepped premium for busy
	// facilities and a discount for slack ones.
	FormulaOccupancyPremium FormulaName = "OCCUPANCY_PREMIUM"
	// FormulaDurationDiscount rewards longer rental commitments,
	// stepped at six and twelve months.
	FormulaDurationDiscount FormulaName = "DURATION_DISCOUNT"
)

type formulaFunc func(base money.Money, ctx Context) money.Money

var formulas = map[FormulaName]formulaFunc{
	FormulaDemandMultiplier: demandMultiplier,
	FormulaOccupancyPremium: occupancyPremium,
	FormulaDurationDiscount: durationDiscount,
}

// EvaluateFormula runs the named formula, or returns a zero adjustment
// for unknown names.
func EvaluateFormula(name FormulaName, base money.Money, ctx Context) money.Money {
	fn, ok := formulas[name]
	if !ok {
		return money.Money{Currency: base.Currency}
	}
	return fn(base, ctx)
}

func demandMultiplier(base money.Money, ctx Context) money.Money {
	scaled := base.Scale(float64(ctx.DemandScore) / 100)
	adj, _ := scaled.Sub(base)
	return adj
}

func occupancyPremium(base money.Money, ctx Context) money.Money {
	switch {
	case ctx.OccupancyRate > 90:
		return base.Scale(0.25)
	case ctx.OccupancyRate > 75:
		return base.Scale(0.10)
	case ctx.OccupancyRate < 50:
		return base.Scale(-0.10)
	default:
		return money.Money{Currency: base.Currency}
	}
}

// Duration is in months, matching the monthly base rate.
func durationDiscount(base money.Money, ctx Context) money.Money {
	switch {
	case ctx.Duration >= 12:
		return base.Scale(-0.15)
	case ctx.Duration >= 6:
		return base.Scale(-0.08)
	default:
		return money.Money{Currency: base.Currency}
	}
}
