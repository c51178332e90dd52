package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
)

// RuleStore is the in-memory rule set. Rules are kept in insertion
// order so equal priorities evaluate deterministically; usage counters
// are plain atomic increments, so concurrent price calculations that
// share a rule never serialize on it.
type RuleStore struct {
	Now func() time.Time

	mu      sync.RWMutex
	ordered []*ruleEntry
	byID    map[pricing.RuleID]*ruleEntry
}

type ruleEntry struct {
	mu   sync.RWMutex // guards rule fields other than the counters
	rule pricing.Rule

	applications  atomic.Int64
	revenueImpact atomic.Int64
	lastApplied   atomic.Int64 // unix nanos
}

// NewRuleStore builds an empty rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{byID: make(map[pricing.RuleID]*ruleEntry)}
}

// Add stores the rule, assigning an id when absent.
func (s *RuleStore) Add(ctx context.Context, rule pricing.Rule) (pricing.Rule, error) {
	if rule.Name == "" {
		return pricing.Rule{}, pricing.ErrRuleNameMissing
	}
	if rule.ID == "" {
		rule.ID = pricing.RuleID(uuid.NewString())
	}
	now := s.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	entry := &ruleEntry{rule: rule}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rule.ID]; exists {
		return pricing.Rule{}, fmt.Errorf("memory: rule %s already exists", rule.ID)
	}
	s.ordered = append(s.ordered, entry)
	s.byID[rule.ID] = entry
	return rule, nil
}

// Get returns a copy of the rule with live counter values.
func (s *RuleStore) Get(ctx context.Context, id pricing.RuleID) (pricing.Rule, error) {
	entry := s.entry(id)
	if entry == nil {
		return pricing.Rule{}, fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	return entry.snapshot(), nil
}

// List returns all rules in insertion order.
func (s *RuleStore) List(ctx context.Context) ([]pricing.Rule, error) {
	s.mu.RLock()
	entries := append([]*ruleEntry(nil), s.ordered...)
	s.mu.RUnlock()

	out := make([]pricing.Rule, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.snapshot())
	}
	return out, nil
}

func (s *RuleStore) Activate(ctx context.Context, id pricing.RuleID) error {
	return s.transition(id, func(r *pricing.Rule, now time.Time) { r.Activate(now) })
}

func (s *RuleStore) Deactivate(ctx context.Context, id pricing.RuleID) error {
	return s.transition(id, func(r *pricing.Rule, now time.Time) { r.Deactivate(now) })
}

func (s *RuleStore) Suspend(ctx context.Context, id pricing.RuleID) error {
	return s.transition(id, func(r *pricing.Rule, now time.Time) { r.Suspend(now) })
}

// ApplicableRules filters to rules active now whose bounds all match
// the context, ascending by priority with insertion order as the
// tie-break.
func (s *RuleStore) ApplicableRules(ctx context.Context, pctx pricing.Context, now time.Time) ([]pricing.Rule, error) {
	s.mu.RLock()
	entries := append([]*ruleEntry(nil), s.ordered...)
	s.mu.RUnlock()

	var out []pricing.Rule
	for _, entry := range entries {
		rule := entry.snapshot()
		if !rule.ActiveAt(now) || !rule.AppliesTo(pctx) {
			continue
		}
		out = append(out, rule)
	}
	// SliceStable keeps insertion order for equal priorities.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// RecordApplication bumps the usage counters; increments commute, so
// ordering among concurrent calculations does not matter.
func (s *RuleStore) RecordApplication(ctx context.Context, id pricing.RuleID, impact money.Money, at time.Time) error {
	entry := s.entry(id)
	if entry == nil {
		return fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	entry.applications.Add(1)
	entry.revenueImpact.Add(impact.Amount)
	nanos := at.UTC().UnixNano()
	for {
		prev := entry.lastApplied.Load()
		if nanos <= prev || entry.lastApplied.CompareAndSwap(prev, nanos) {
			return nil
		}
	}
}

func (s *RuleStore) entry(id pricing.RuleID) *ruleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (s *RuleStore) transition(id pricing.RuleID, apply func(*pricing.Rule, time.Time)) error {
	entry := s.entry(id)
	if entry == nil {
		return fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	apply(&entry.rule, s.now())
	return nil
}

func (s *RuleStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *ruleEntry) snapshot() pricing.Rule {
	e.mu.RLock()
	rule := e.rule
	e.mu.RUnlock()
	rule.ApplicationCount = e.applications.Load()
	rule.TotalRevenueImpact = money.Money{Amount: e.revenueImpact.Load(), Currency: rule.TotalRevenueImpact.Currency}
	if nanos := e.lastApplied.Load(); nanos > 0 {
		rule.LastAppliedAt = time.Unix(0, nanos).UTC()
	}
	if rule.Parameters != nil {
		params := make(map[string]string, len(rule.Parameters))
		for k, v := range rule.Parameters {
			params[k] = v
		}
		rule.Parameters = params
	}
	return rule
}

var _ pricing.RuleSet = (*RuleStore)(nil)
