package pricing

import (
	"time"

	"storagepricing/internal/domain/shared/money"
)

// RuleAdjustment is one rule's contribution inside a calculation,
// retained for explainability.
type RuleAdjustment struct {
	RuleID   RuleID
	RuleName string
	Type     RuleType
	Amount   money.Money
}

// Result is the outcome of one price calculation.
type Result struct {
	FacilityID      int64
	UnitType        string
	UnitSize        string
	Duration        int
	BasePrice       money.Money
	CalculatedPrice money.Money
	TotalPrice      money.Money
	Adjustments     []RuleAdjustment
	Currency        string
	CalculatedAt    time.Time
	// Promotional marks results where a promotional rule contributed.
	Promotional bool
	// StaleData marks results computed from a cached availability
	// snapshot after a collaborator lookup failed.
	StaleData bool
}
