package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
)

const rulesCollection = "pricing_rules"

// RuleRepository is the Mongo-backed rule set. Usage counters go
// through atomic $inc/$max updates so concurrent calculations never
// serialize on a document lock. Applicability bounds are evaluated in
// the domain so both stores share one filter implementation.
type RuleRepository struct {
	Now func() time.Time

	col *mongo.Collection
}

func NewRuleRepository(db *mongo.Database) *RuleRepository {
	return &RuleRepository{col: db.Collection(rulesCollection)}
}

type ruleDocument struct {
	ID          string `bson:"_id"`
	Name        string `bson:"name"`
	Description string `bson:"description,omitempty"`
	Type        string `bson:"type"`
	Status      string `bson:"status"`
	Priority    int    `bson:"priority"`
	Seq         int64  `bson:"seq"`

	MinOccupancyRate *float64 `bson:"min_occupancy_rate,omitempty"`
	MaxOccupancyRate *float64 `bson:"max_occupancy_rate,omitempty"`
	MinDemandScore   *int     `bson:"min_demand_score,omitempty"`
	MaxDemandScore   *int     `bson:"max_demand_score,omitempty"`
	FacilityType     string   `bson:"facility_type,omitempty"`
	UnitType         string   `bson:"unit_type,omitempty"`
	UnitSizeCategory string   `bson:"unit_size_category,omitempty"`
	GeographicRegion string   `bson:"geographic_region,omitempty"`
	SeasonalPeriod   string   `bson:"seasonal_period,omitempty"`
	DayOfWeek        string   `bson:"day_of_week,omitempty"`
	HourOfDay        *int     `bson:"hour_of_day,omitempty"`

	AdjustmentType  string            `bson:"adjustment_type"`
	AdjustmentValue float64           `bson:"adjustment_value"`
	Formula         string            `bson:"formula,omitempty"`
	Parameters      map[string]string `bson:"parameters,omitempty"`
	MinPrice        *moneyDocument    `bson:"min_price,omitempty"`
	MaxPrice        *moneyDocument    `bson:"max_price,omitempty"`
	CapPercentage   *float64          `bson:"cap_percentage,omitempty"`

	Compoundable bool   `bson:"compoundable"`
	ValidFrom    *int64 `bson:"valid_from,omitempty"`
	ValidUntil   *int64 `bson:"valid_until,omitempty"`

	ApplicationCount   int64         `bson:"application_count"`
	LastAppliedAt      int64         `bson:"last_applied_at"`
	TotalRevenueImpact moneyDocument `bson:"total_revenue_impact"`

	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
	CreatedBy string `bson:"created_by,omitempty"`
}

func newRuleDocument(r pricing.Rule, seq int64) ruleDocument {
	doc := ruleDocument{
		ID:               string(r.ID),
		Name:             r.Name,
		Description:      r.Description,
		Type:             string(r.Type),
		Status:           string(r.Status),
		Priority:         r.Priority,
		Seq:              seq,
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
		Parameters:       r.Parameters,
		CapPercentage:    r.CapPercentage,
		Compoundable:     r.Compoundable,

		ApplicationCount:   r.ApplicationCount,
		LastAppliedAt:      timeToMillis(r.LastAppliedAt),
		TotalRevenueImpact: newMoneyDocument(r.TotalRevenueImpact),

		CreatedAt: timeToMillis(r.CreatedAt),
		UpdatedAt: timeToMillis(r.UpdatedAt),
		CreatedBy: r.CreatedBy,
	}
	if r.MinPrice != nil {
		m := newMoneyDocument(*r.MinPrice)
		doc.MinPrice = &m
	}
	if r.MaxPrice != nil {
		m := newMoneyDocument(*r.MaxPrice)
		doc.MaxPrice = &m
	}
	if r.ValidFrom != nil {
		ms := timeToMillis(*r.ValidFrom)
		doc.ValidFrom = &ms
	}
	if r.ValidUntil != nil {
		ms := timeToMillis(*r.ValidUntil)
		doc.ValidUntil = &ms
	}
	return doc
}

func (d ruleDocument) toRule() pricing.Rule {
	rule := pricing.Rule{
		ID:               pricing.RuleID(d.ID),
		Name:             d.Name,
		Description:      d.Description,
		Type:             pricing.RuleType(d.Type),
		Status:           pricing.RuleStatus(d.Status),
		Priority:         d.Priority,
		MinOccupancyRate: d.MinOccupancyRate,
		MaxOccupancyRate: d.MaxOccupancyRate,
		MinDemandScore:   d.MinDemandScore,
		MaxDemandScore:   d.MaxDemandScore,
		FacilityType:     d.FacilityType,
		UnitType:         d.UnitType,
		UnitSizeCategory: d.UnitSizeCategory,
		GeographicRegion: d.GeographicRegion,
		SeasonalPeriod:   d.SeasonalPeriod,
		DayOfWeek:        d.DayOfWeek,
		HourOfDay:        d.HourOfDay,
		AdjustmentType:   pricing.AdjustmentType(d.AdjustmentType),
		AdjustmentValue:  d.AdjustmentValue,
		Formula:          pricing.FormulaName(d.Formula),
		Parameters:       d.Parameters,
		CapPercentage:    d.CapPercentage,
		Compoundable:     d.Compoundable,

		ApplicationCount:   d.ApplicationCount,
		LastAppliedAt:      millisToTime(d.LastAppliedAt),
		TotalRevenueImpact: d.TotalRevenueImpact.toMoney(),

		CreatedAt: millisToTime(d.CreatedAt),
		UpdatedAt: millisToTime(d.UpdatedAt),
		CreatedBy: d.CreatedBy,
	}
	if d.MinPrice != nil {
		m := d.MinPrice.toMoney()
		rule.MinPrice = &m
	}
	if d.MaxPrice != nil {
		m := d.MaxPrice.toMoney()
		rule.MaxPrice = &m
	}
	if d.ValidFrom != nil {
		t := millisToTime(*d.ValidFrom)
		rule.ValidFrom = &t
	}
	if d.ValidUntil != nil {
		t := millisToTime(*d.ValidUntil)
		rule.ValidUntil = &t
	}
	return rule
}

func (r *RuleRepository) Add(ctx context.Context, rule pricing.Rule) (pricing.Rule, error) {
	if rule.Name == "" {
		return pricing.Rule{}, pricing.ErrRuleNameMissing
	}
	now := r.now()
	if rule.ID == "" {
		rule.ID = pricing.RuleID(uuid.NewString())
	}
	if rule.Status == "" {
		rule.Status = pricing.StatusDraft
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.TotalRevenueImpact = money.Money{Currency: rule.TotalRevenueImpact.Currency}

	// Seq preserves insertion order for equal priorities across restarts.
	seq := now.UnixNano()
	if _, err := r.col.InsertOne(ctx, newRuleDocument(rule, seq)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pricing.Rule{}, fmt.Errorf("pricing: rule %s already exists", rule.ID)
		}
		return pricing.Rule{}, err
	}
	return rule, nil
}

func (r *RuleRepository) Get(ctx context.Context, id pricing.RuleID) (pricing.Rule, error) {
	var doc ruleDocument
	err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return pricing.Rule{}, fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	if err != nil {
		return pricing.Rule{}, err
	}
	return doc.toRule(), nil
}

func (r *RuleRepository) List(ctx context.Context) ([]pricing.Rule, error) {
	return r.find(ctx, bson.M{})
}

func (r *RuleRepository) Activate(ctx context.Context, id pricing.RuleID) error {
	return r.setStatus(ctx, id, pricing.StatusActive)
}

func (r *RuleRepository) Deactivate(ctx context.Context, id pricing.RuleID) error {
	return r.setStatus(ctx, id, pricing.StatusInactive)
}

func (r *RuleRepository) Suspend(ctx context.Context, id pricing.RuleID) error {
	return r.setStatus(ctx, id, pricing.StatusSuspended)
}

func (r *RuleRepository) ApplicableRules(ctx context.Context, pctx pricing.Context, now time.Time) ([]pricing.Rule, error) {
	rules, err := r.find(ctx, bson.M{"status": string(pricing.StatusActive)})
	if err != nil {
		return nil, err
	}
	out := rules[:0]
	for _, rule := range rules {
		if rule.ActiveAt(now) && rule.AppliesTo(pctx) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleRepository) RecordApplication(ctx context.Context, id pricing.RuleID, impact money.Money, at time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{
		"$inc": bson.M{
			"application_count":          1,
			"total_revenue_impact.cents": impact.Amount,
		},
		"$max": bson.M{"last_applied_at": timeToMillis(at)},
		"$set": bson.M{"total_revenue_impact.currency": impact.Currency},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	return nil
}

func (r *RuleRepository) setStatus(ctx context.Context, id pricing.RuleID, status pricing.RuleStatus) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": bson.M{
		"status":     string(status),
		"updated_at": timeToMillis(r.now()),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	return nil
}

func (r *RuleRepository) find(ctx context.Context, filter bson.M) ([]pricing.Rule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]pricing.Rule, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toRule())
	}
	return out, nil
}

func (r *RuleRepository) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

var _ pricing.RuleSet = (*RuleRepository)(nil)
