package plan

import (
	"context"
	"time"
)

// Store is the versioned plan rule lookup. Rules are appended, never updated.
type Store interface {
	// Put appends rule as the next version for its (tenant, plan, year) and sets
	// rule.Version.
	Put(ctx context.Context, rule *Rule) error
	// Get returns the highest version effective on or before asOf, or a
	// PlanRuleMissing error.
	Get(ctx context.Context, tenantID, planID string, planYear int, asOf time.Time) (*Rule, error)
	// ListVersions returns every version in ascending order.
	ListVersions(ctx context.Context, tenantID, planID string, planYear int) ([]*Rule, error)
}
