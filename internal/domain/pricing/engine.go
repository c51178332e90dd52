package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/shared/money"
)

var (
	ErrInvalidDuration = errors.New("pricing: duration must be positive")
	ErrEngineNotReady  = errors.New("pricing: engine missing collaborators")
)

// BaseRateLookup resolves the facility-level base rate for a unit type.
// It is an external collaborator; the engine never holds a lock across
// this call.
type BaseRateLookup interface {
	BaseRate(ctx context.Context, facilityID int64, unitType string) (money.Money, error)
}

// Request describes one price calculation. Context is optional; unset
// occupancy/demand fields are backfilled from the availability store.
type Request struct {
	FacilityID int64
	UnitType   string
	UnitSize   string
	Duration   int
	Context    *Context
	// DryRun skips rule usage recording, for hypothetical calculations
	// like forecasts and scenario probes.
	DryRun bool
}

// Engine converts (facility, unitType, duration, context) into a final
// price by folding applicable rule adjustments over the base rate.
type Engine struct {
	Rules     RuleSet
	Snapshots availability.Store
	BaseRates BaseRateLookup
	Logger    *slog.Logger
	Now       func() time.Time

	mu        sync.RWMutex
	lastKnown map[availability.Key]availability.Snapshot
}

// Calculate runs the composition algorithm:
// base rate, context backfill, ordered fold, bound intersection,
// duration multiply, usage recording. Rules flagged compoundable add
// up; the first non-compoundable rule applies alone and stops the fold.
func (e *Engine) Calculate(ctx context.Context, req Request) (Result, error) {
	if e.Rules == nil || e.BaseRates == nil {
		return Result{}, ErrEngineNotReady
	}
	if req.Duration <= 0 {
		return Result{}, fmt.Errorf("%w: got %d for facility %d", ErrInvalidDuration, req.Duration, req.FacilityID)
	}
	now := e.now()

	// External lookups happen before any per-key work so their latency
	// is never amplified by held locks.
	base, err := e.BaseRates.BaseRate(ctx, req.FacilityID, req.UnitType)
	if err != nil {
		return Result{}, fmt.Errorf("base rate for facility %d unit %q: %w", req.FacilityID, req.UnitType, err)
	}

	pctx, stale := e.resolveContext(ctx, req, now)

	rules, err := e.Rules.ApplicableRules(ctx, pctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("applicable rules for facility %d: %w", req.FacilityID, err)
	}

	var (
		adjustments []RuleAdjustment
		sum         int64
		lower       *int64
		upper       *int64
		promotional bool
	)
	for _, rule := range rules {
		// Every adjustment is computed independently against the base
		// price; compounding is additive, not sequential.
		adj := rule.Adjustment(base, pctx)
		if !rule.Compoundable {
			adjustments = []RuleAdjustment{{RuleID: rule.ID, RuleName: rule.Name, Type: rule.Type, Amount: adj}}
			sum = adj.Amount
			lower, upper = nil, nil
			mergeBounds(&lower, &upper, rule)
			promotional = rule.Type == RulePromotional
			break
		}
		if adj.IsZero() {
			continue
		}
		adjustments = append(adjustments, RuleAdjustment{RuleID: rule.ID, RuleName: rule.Name, Type: rule.Type, Amount: adj})
		sum += adj.Amount
		mergeBounds(&lower, &upper, rule)
		if rule.Type == RulePromotional {
			promotional = true
		}
	}

	calculated := money.Money{Amount: base.Amount + sum, Currency: base.Currency}
	if lower != nil && calculated.Amount < *lower {
		calculated.Amount = *lower
	}
	if upper != nil && calculated.Amount > *upper {
		calculated.Amount = *upper
	}
	if calculated.Amount < 0 {
		calculated.Amount = 0
	}

	if !req.DryRun {
		for _, adj := range adjustments {
			if adj.Amount.IsZero() {
				continue
			}
			if err := e.Rules.RecordApplication(ctx, adj.RuleID, adj.Amount, now); err != nil && e.Logger != nil {
				e.Logger.Warn("rule usage recording failed", "rule_id", adj.RuleID, "error", err)
			}
		}
	}

	result := Result{
		FacilityID:      req.FacilityID,
		UnitType:        req.UnitType,
		UnitSize:        req.UnitSize,
		Duration:        req.Duration,
		BasePrice:       base,
		CalculatedPrice: calculated,
		TotalPrice:      calculated.Multiply(int64(req.Duration)),
		Adjustments:     adjustments,
		Currency:        base.Currency,
		CalculatedAt:    now,
		Promotional:     promotional,
		StaleData:       stale,
	}
	if e.Logger != nil {
		e.Logger.Debug("price calculated",
			"facility_id", req.FacilityID,
			"unit_type", req.UnitType,
			"duration", req.Duration,
			"base", base.Amount,
			"calculated", calculated.Amount,
			"rules_applied", len(adjustments),
			"stale", stale,
		)
	}
	return result, nil
}

// resolveContext fills in a request context, backfilling occupancy,
// demand and availability from the store when the caller supplied none.
// A failed store read falls back to the last snapshot this engine saw
// for the key and marks the calculation stale.
func (e *Engine) resolveContext(ctx context.Context, req Request, now time.Time) (Context, bool) {
	var pctx Context
	if req.Context != nil {
		pctx = *req.Context
	}
	if pctx.UnitType == "" {
		pctx.UnitType = req.UnitType
	}
	if pctx.UnitSizeCategory == "" {
		pctx.UnitSizeCategory = req.UnitSize
	}
	if pctx.DayOfWeek == "" {
		pctx.DayOfWeek = strings.ToUpper(now.Weekday().String())
	}
	if req.Context == nil || pctx.HourOfDay == 0 {
		pctx.HourOfDay = now.Hour()
	}
	pctx.Duration = req.Duration

	needsBackfill := req.Context == nil || (pctx.OccupancyRate == 0 && pctx.DemandScore == 0)
	if !needsBackfill || e.Snapshots == nil {
		return pctx, false
	}

	key := availability.Key{FacilityID: req.FacilityID, UnitType: req.UnitType, UnitSize: req.UnitSize}
	snap, err := e.lookupSnapshot(ctx, req, key)
	if err != nil {
		cached, ok := e.cachedSnapshot(key)
		if !ok {
			if e.Logger != nil {
				e.Logger.Warn("availability backfill unavailable",
					"facility_id", req.FacilityID, "unit_type", req.UnitType, "error", err)
			}
			return pctx, false
		}
		snap = cached
		e.fillFromSnapshot(&pctx, snap)
		return pctx, true
	}
	e.rememberSnapshot(key, snap)
	e.fillFromSnapshot(&pctx, snap)
	return pctx, false
}

func (e *Engine) lookupSnapshot(ctx context.Context, req Request, key availability.Key) (availability.Snapshot, error) {
	if req.UnitSize != "" {
		return e.Snapshots.GetLatest(ctx, key)
	}
	return e.Snapshots.FacilityAggregate(ctx, req.FacilityID, req.UnitType)
}

func (e *Engine) fillFromSnapshot(pctx *Context, snap availability.Snapshot) {
	pctx.OccupancyRate = snap.OccupancyRate
	pctx.DemandScore = snap.DemandScore
	pctx.AvailableUnits = snap.AvailableUnits
}

func (e *Engine) rememberSnapshot(key availability.Key, snap availability.Snapshot) {
	e.mu.Lock()
	if e.lastKnown == nil {
		e.lastKnown = make(map[availability.Key]availability.Snapshot)
	}
	e.lastKnown[key] = snap
	e.mu.Unlock()
}

func (e *Engine) cachedSnapshot(key availability.Key) (availability.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.lastKnown[key]
	return snap, ok
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// mergeBounds intersects the rule's price bounds into the running
// clamp range; the tightest bound wins.
func mergeBounds(lower, upper **int64, rule Rule) {
	if rule.MinPrice != nil {
		v := rule.MinPrice.Amount
		if *lower == nil || v > **lower {
			*lower = &v
		}
	}
	if rule.MaxPrice != nil {
		v := rule.MaxPrice.Amount
		if *upper == nil || v < **upper {
			*upper = &v
		}
	}
}
