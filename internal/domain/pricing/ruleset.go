package pricing

import (
	"context"
	"time"

	"storagepricing/internal/domain/shared/money"
)

// RuleSet owns pricing rules keyed by id and ordered by priority for
// evaluation. Lifecycle transitions fail with ErrRuleNotFound for
// unknown ids. Usage-counter updates are commutative increments, so
// implementations may use atomic counters instead of a rule-wide lock.
type RuleSet interface {
	Add(ctx context.Context, rule Rule) (Rule, error)
	Get(ctx context.Context, id RuleID) (Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Activate(ctx context.Context, id RuleID) error
	Deactivate(ctx context.Context, id RuleID) error
	Suspend(ctx context.Context, id RuleID) error

	// ApplicableRules returns active rules whose bounds are all
	// satisfied by the context, ascending by priority; equal priorities
	// keep insertion order.
	ApplicableRules(ctx context.Context, pctx Context, now time.Time) ([]Rule, error)

	// RecordApplication increments the rule's usage counters with the
	// revenue impact of one contributing calculation.
	RecordApplication(ctx context.Context, id RuleID, impact money.Money, at time.Time) error
}
