package member

import "context"

// Lookup is a read view over the registry.
type Lookup interface {
	// Get returns the member or a NotFound error.
	Get(ctx context.Context, tenantID, memberID string, planYear int) (*Member, error)
	Dependents(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, error)
}

// Registry stores members and the per (tenant, plan year) membership version.
type Registry interface {
	Lookup
	// Upsert runs check against a view that no concurrent write for the same
	// tenant and plan year can change, then writes m and bumps the version.
	Upsert(ctx context.Context, m *Member, check func(ctx context.Context, view Lookup) error) error
	// Household returns the member, its ancestors and every descendant of the
	// topmost ancestor, together with the membership version of the same view.
	Household(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, int64, error)
	// Version returns the membership version for the tenant and plan year.
	Version(ctx context.Context, tenantID string, planYear int) (int64, error)
}
