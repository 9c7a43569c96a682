package tenancy

import (
	"context"
	"time"

	"github.com/benefits/accumulator/internal/domain/accumulator"
	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/domain/snapshot"
)

type planGuard struct {
	next plan.Store
	b    *Boundary
}

// GuardPlans wraps a plan store with tenant checks.
func GuardPlans(next plan.Store, b *Boundary) plan.Store {
	return &planGuard{next: next, b: b}
}

func (g *planGuard) Put(ctx context.Context, rule *plan.Rule) error {
	if err := g.b.Check(ctx, "plan.Put", rule.TenantID); err != nil {
		return err
	}
	return g.next.Put(ctx, rule)
}

func (g *planGuard) Get(ctx context.Context, tenantID, planID string, planYear int, asOf time.Time) (*plan.Rule, error) {
	const op = "plan.Get"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	r, err := g.next.Get(ctx, tenantID, planID, planYear, asOf)
	if err != nil {
		return nil, err
	}
	if err := g.b.Verify(ctx, op, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (g *planGuard) ListVersions(ctx context.Context, tenantID, planID string, planYear int) ([]*plan.Rule, error) {
	const op = "plan.ListVersions"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	rules, err := g.next.ListVersions(ctx, tenantID, planID, planYear)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := g.b.Verify(ctx, op, r); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

type memberGuard struct {
	next member.Registry
	b    *Boundary
}

// GuardMembers wraps a member registry with tenant checks.
func GuardMembers(next member.Registry, b *Boundary) member.Registry {
	return &memberGuard{next: next, b: b}
}

func (g *memberGuard) Get(ctx context.Context, tenantID, memberID string, planYear int) (*member.Member, error) {
	const op = "member.Get"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	m, err := g.next.Get(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	if err := g.b.Verify(ctx, op, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (g *memberGuard) Dependents(ctx context.Context, tenantID, memberID string, planYear int) ([]*member.Member, error) {
	const op = "member.Dependents"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	deps, err := g.next.Dependents(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	if err := verifyAll(ctx, g.b, op, deps); err != nil {
		return nil, err
	}
	return deps, nil
}

func (g *memberGuard) Upsert(ctx context.Context, m *member.Member, check func(ctx context.Context, view member.Lookup) error) error {
	if err := g.b.Check(ctx, "member.Upsert", m.TenantID); err != nil {
		return err
	}
	return g.next.Upsert(ctx, m, check)
}

func (g *memberGuard) Household(ctx context.Context, tenantID, memberID string, planYear int) ([]*member.Member, int64, error) {
	const op = "member.Household"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, 0, err
	}
	household, version, err := g.next.Household(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, 0, err
	}
	if err := verifyAll(ctx, g.b, op, household); err != nil {
		return nil, 0, err
	}
	return household, version, nil
}

func (g *memberGuard) Version(ctx context.Context, tenantID string, planYear int) (int64, error) {
	if err := g.b.Check(ctx, "member.Version", tenantID); err != nil {
		return 0, err
	}
	return g.next.Version(ctx, tenantID, planYear)
}

type ledgerGuard struct {
	next ledger.Ledger
	b    *Boundary
}

// GuardLedger wraps a claim ledger with tenant checks.
func GuardLedger(next ledger.Ledger, b *Boundary) ledger.Ledger {
	return &ledgerGuard{next: next, b: b}
}

func (g *ledgerGuard) Append(ctx context.Context, e *ledger.ClaimEvent) (bool, error) {
	if err := g.b.Check(ctx, "ledger.Append", e.TenantID); err != nil {
		return false, err
	}
	return g.next.Append(ctx, e)
}

func (g *ledgerGuard) Get(ctx context.Context, tenantID, claimID string) (*ledger.ClaimEvent, error) {
	const op = "ledger.Get"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	e, err := g.next.Get(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	if err := g.b.Verify(ctx, op, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (g *ledgerGuard) ReadFamily(ctx context.Context, tenantID string, memberIDs []string, from, to time.Time) (*ledger.Read, error) {
	const op = "ledger.ReadFamily"
	if err := g.b.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	read, err := g.next.ReadFamily(ctx, tenantID, memberIDs, from, to)
	if err != nil {
		return nil, err
	}
	if err := verifyAll(ctx, g.b, op, read.Claims); err != nil {
		return nil, err
	}
	return read, nil
}

func verifyAll[T Owned](ctx context.Context, b *Boundary, op string, items []T) error {
	for _, it := range items {
		if err := b.Verify(ctx, op, it); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotCache is the cache surface the query layer depends on.
type SnapshotCache interface {
	Get(ctx context.Context, key snapshot.Key, v snapshot.Version, replay snapshot.ReplayFunc) (*accumulator.Result, error)
	Invalidate(ctx context.Context, key snapshot.Key) error
}

type cacheGuard struct {
	next SnapshotCache
	b    *Boundary
}

// GuardCache wraps the snapshot cache so keys for another tenant are never read.
func GuardCache(next SnapshotCache, b *Boundary) SnapshotCache {
	return &cacheGuard{next: next, b: b}
}

func (g *cacheGuard) Get(ctx context.Context, key snapshot.Key, v snapshot.Version, replay snapshot.ReplayFunc) (*accumulator.Result, error) {
	if err := g.b.Check(ctx, "snapshot.Get", key.TenantID); err != nil {
		return nil, err
	}
	return g.next.Get(ctx, key, v, replay)
}

func (g *cacheGuard) Invalidate(ctx context.Context, key snapshot.Key) error {
	if err := g.b.Check(ctx, "snapshot.Invalidate", key.TenantID); err != nil {
		return err
	}
	return g.next.Invalidate(ctx, key)
}
