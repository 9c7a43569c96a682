package query

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/accumulator"
	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/domain/snapshot"
	"github.com/benefits/accumulator/internal/domain/tenancy"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/audit"
	"github.com/benefits/accumulator/pkg/dates"
)

// Facade is the read API over accumulators. Every store it reaches is
// expected to be wrapped by the tenancy guards; the facade checks the tenant
// itself before doing any work as well.
type Facade struct {
	plans    plan.Store
	members  member.Registry
	claims   ledger.Ledger
	cache    tenancy.SnapshotCache
	boundary *tenancy.Boundary
	audit    *audit.Recorder
	now      func() time.Time
}

type Deps struct {
	Plans    plan.Store
	Members  member.Registry
	Claims   ledger.Ledger
	Cache    tenancy.SnapshotCache
	Boundary *tenancy.Boundary
	Audit    *audit.Recorder
}

func NewFacade(d Deps) *Facade {
	return &Facade{
		plans:    d.Plans,
		members:  d.Members,
		claims:   d.Claims,
		cache:    d.Cache,
		boundary: d.Boundary,
		audit:    d.Audit,
		now:      time.Now,
	}
}

// loaded is the resolved input and output of one family replay.
type loaded struct {
	rule   *plan.Rule
	family *member.FamilyUnit
	result *accumulator.Result
	head   ledger.Head
}

// load resolves memberID's family, its plan rule and ledger, then returns the
// cached or freshly replayed result for that exact version.
func (f *Facade) load(ctx context.Context, op, tenantID, memberID string, planYear int) (*loaded, error) {
	if err := f.boundary.Check(ctx, op, tenantID); err != nil {
		return nil, err
	}
	household, membership, err := f.members.Household(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	fam, err := member.ResolveFamily(household, memberID)
	if err != nil {
		return nil, err
	}
	fam.TenantID = tenantID

	rule, err := f.plans.Get(ctx, tenantID, fam.PlanID, planYear, plan.YearEnd(planYear))
	if err != nil {
		return nil, err
	}
	from, to := dates.YearBounds(planYear)
	read, err := f.claims.ReadFamily(ctx, tenantID, fam.MemberIDs, from, to)
	if err != nil {
		return nil, err
	}

	key := snapshot.Key{TenantID: tenantID, FamilyID: fam.FamilyID, PlanYear: planYear}
	version := snapshot.Version{Ledger: read.Head, RuleVersion: rule.Version, MembershipVersion: membership}
	res, err := f.cache.Get(ctx, key, version, func(ctx context.Context) (*accumulator.Result, error) {
		return f.replay(ctx, rule, fam, read.Claims)
	})
	if err != nil {
		return nil, err
	}
	return &loaded{rule: rule, family: fam, result: res, head: read.Head}, nil
}

// replay runs the engine and sends what it finds to the audit channel. It
// only runs on a cache miss, so each anomaly is escalated once per version.
func (f *Facade) replay(ctx context.Context, rule *plan.Rule, fam *member.FamilyUnit, claims []*ledger.ClaimEvent) (*accumulator.Result, error) {
	res, err := accumulator.Replay(rule, fam, claims)
	if err != nil {
		var inc *accumulator.Inconsistency
		if errors.As(err, &inc) {
			f.audit.Escalate(ctx, &audit.Anomaly{
				TenantID: fam.TenantID,
				FamilyID: fam.FamilyID,
				PlanYear: rule.PlanYear,
				ClaimID:  inc.ClaimID,
				Kind:     audit.KindInconsistentLedger,
				Detail:   inc.Reason + ": " + inc.Detail,
			})
		}
		return nil, err
	}
	for _, a := range res.Anomalies {
		f.audit.Escalate(ctx, &audit.Anomaly{
			TenantID: fam.TenantID,
			FamilyID: fam.FamilyID,
			PlanYear: rule.PlanYear,
			ClaimID:  a.ClaimID,
			Kind:     a.Kind,
			Detail:   a.Detail,
		})
	}
	return res, nil
}

// GetAccumulatorSnapshot returns memberID's accumulators for planYear.
func (f *Facade) GetAccumulatorSnapshot(ctx context.Context, tenantID, memberID string, planYear int) (snap *Snapshot, err error) {
	const op = "query.GetAccumulatorSnapshot"
	defer func() { f.audit.Query(ctx, "snapshot", tenantID, memberID, planYear, err) }()

	l, err := f.load(ctx, op, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	view, ok := l.result.State.View(l.rule, memberID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, op, "member %s not in family %s", memberID, l.family.FamilyID)
	}
	return &Snapshot{
		MemberView:    view,
		PlanType:      l.rule.PlanType,
		ClaimsByType:  l.result.ClaimsByType,
		RuleVersion:   l.rule.Version,
		LedgerVersion: l.head.String(),
		AsOf:          f.now().UTC(),
	}, nil
}

// ProjectClaimCost computes what memberID would owe for a new claim of billed
// dollars. Nothing is recorded.
func (f *Facade) ProjectClaimCost(ctx context.Context, tenantID, memberID string, claimType ledger.ClaimType, billed decimal.Decimal, opts ProjectOptions) (proj *Projection, err error) {
	const op = "query.ProjectClaimCost"
	serviceDate := opts.ServiceDate
	if serviceDate.IsZero() {
		serviceDate = f.now().UTC()
	}
	planYear := serviceDate.Year()
	defer func() { f.audit.Query(ctx, "projection", tenantID, memberID, planYear, err) }()

	if !claimType.Valid() {
		return nil, apperr.New(apperr.KindInvalid, op, "invalid claim_type %q", claimType)
	}
	l, err := f.load(ctx, op, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	p, err := accumulator.Project(l.rule, l.result.State, memberID, claimType, billed, accumulator.ProjectOptions{
		VisitCategory: opts.VisitCategory,
		RxTier:        opts.RxTier,
	})
	if err != nil {
		return nil, err
	}
	return &Projection{Projection: p, PlanYear: planYear, RuleVersion: l.rule.Version}, nil
}

// Explain returns the replay trace behind memberID's family accumulators.
func (f *Facade) Explain(ctx context.Context, tenantID, memberID string, planYear int) (ex *Explanation, err error) {
	defer func() { f.audit.Query(ctx, "explain", tenantID, memberID, planYear, err) }()

	l, err := f.load(ctx, "query.Explain", tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Result:        l.result,
		MemberID:      memberID,
		PlanYear:      planYear,
		RuleVersion:   l.rule.Version,
		LedgerVersion: l.head.String(),
	}, nil
}

// Metric reads a single named metric.
func (f *Facade) Metric(ctx context.Context, tenantID, memberID, name string, planYear int) (*MetricValue, error) {
	def, ok := lookupMetric(name)
	if !ok {
		return nil, apperr.New(apperr.KindInvalid, "query.Metric", "unknown metric %q", name)
	}
	snap, err := f.GetAccumulatorSnapshot(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	return &MetricValue{
		Metric:   def.Name,
		MemberID: memberID,
		PlanYear: planYear,
		Unit:     def.Unit,
		Value:    def.read(snap),
	}, nil
}

// ClaimRecorded drops the cached snapshot of the family e belongs to. A
// reversal invalidates the plan year of the claim it reverses. Cached entries
// are keyed by ledger version, so a failure here only costs a lookup.
func (f *Facade) ClaimRecorded(ctx context.Context, e *ledger.ClaimEvent) error {
	planYear := e.ServiceDate.Year()
	if e.ReversesClaimID != "" {
		orig, err := f.claims.Get(ctx, e.TenantID, e.ReversesClaimID)
		if err != nil {
			return err
		}
		planYear = orig.ServiceDate.Year()
	}
	household, _, err := f.members.Household(ctx, e.TenantID, e.MemberID, planYear)
	if errors.Is(err, apperr.ErrNotFound) {
		// nothing can be cached for a member without enrollment
		return nil
	}
	if err != nil {
		return err
	}
	fam, err := member.ResolveFamily(household, e.MemberID)
	if err != nil {
		return err
	}
	return f.cache.Invalidate(ctx, snapshot.Key{TenantID: e.TenantID, FamilyID: fam.FamilyID, PlanYear: planYear})
}

// CurrentYear is the plan year used when a request names none.
func (f *Facade) CurrentYear() int {
	return f.now().UTC().Year()
}
