package plan

import (
	"context"
	"sync"
	"time"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

type ruleKey struct {
	tenantID string
	planID   string
	year     int
}

type memoryStore struct {
	mu    sync.RWMutex
	rules map[ruleKey][]*Rule
	now   func() time.Time
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{rules: make(map[ruleKey][]*Rule), now: time.Now}
}

func (s *memoryStore) Put(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := ruleKey{rule.TenantID, rule.PlanID, rule.PlanYear}
	cp := *rule
	cp.Version = len(s.rules[k]) + 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.rules[k] = append(s.rules[k], &cp)
	rule.Version = cp.Version
	rule.CreatedAt = cp.CreatedAt
	return nil
}

func (s *memoryStore) Get(_ context.Context, tenantID, planID string, planYear int, asOf time.Time) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.rules[ruleKey{tenantID, planID, planYear}]
	if r := latestEffective(versions, asOf); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, apperr.New(apperr.KindPlanRuleMissing, "plan.Get",
		"no plan rule for plan %s year %d", planID, planYear)
}

func (s *memoryStore) ListVersions(_ context.Context, tenantID, planID string, planYear int) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.rules[ruleKey{tenantID, planID, planYear}]
	out := make([]*Rule, 0, len(versions))
	for _, r := range versions {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// latestEffective picks the highest version whose effective date is not after asOf.
// A rule with no effective date is effective from the start of time.
func latestEffective(versions []*Rule, asOf time.Time) *Rule {
	var best *Rule
	for _, r := range versions {
		if !r.EffectiveDate.IsZero() && r.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || r.Version > best.Version {
			best = r
		}
	}
	return best
}
