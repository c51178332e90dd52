package pricing

import "storagepricing/internal/domain/shared/money"

// Context carries the demand and market signals one price calculation
// evaluates rules against. It lives only for the duration of a single
// calculation and is never persisted.
type Context struct {
	OccupancyRate    float64
	DemandScore      int
	FacilityType     string
	UnitType         string
	UnitSizeCategory string
	GeographicRegion string
	SeasonalPeriod   string
	DayOfWeek        string
	HourOfDay        int
	CompetitorPrice  *money.Money
	CustomerSegment  string
	AvailableUnits   int
	HistoricalDemand float64
	// Duration in months, available to duration-sensitive formulas.
	Duration int
}
