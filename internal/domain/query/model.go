package query

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/accumulator"
	"github.com/benefits/accumulator/internal/domain/ledger"
)

// Snapshot is the member's accumulator position as returned to consumers.
// It never carries a tenant id.
type Snapshot struct {
	*accumulator.MemberView
	PlanType      string                                     `json:"plan_type,omitempty"`
	ClaimsByType  map[ledger.ClaimType]accumulator.TypeTotal `json:"claims_by_type"`
	RuleVersion   int                                        `json:"rule_version"`
	LedgerVersion string                                     `json:"ledger_version"`
	AsOf          time.Time                                  `json:"as_of"`
}

// Explanation is the full replay of a member's family, for operators.
type Explanation struct {
	*accumulator.Result
	MemberID      string `json:"member_id"`
	PlanYear      int    `json:"plan_year"`
	RuleVersion   int    `json:"rule_version"`
	LedgerVersion string `json:"ledger_version"`
}

// ProjectOptions are the optional inputs of a cost projection.
type ProjectOptions struct {
	VisitCategory string
	RxTier        string
	// ServiceDate selects the plan year; zero means today.
	ServiceDate time.Time
}

// Projection is a hypothetical cost split for one new claim.
type Projection struct {
	*accumulator.Projection
	PlanYear    int `json:"plan_year"`
	RuleVersion int `json:"rule_version"`
}

// MetricInfo describes one metric exposed by Metric.
type MetricInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

// MetricValue is a single metric read for one member and plan year.
type MetricValue struct {
	Metric   string      `json:"metric"`
	MemberID string      `json:"member_id"`
	PlanYear int         `json:"plan_year"`
	Unit     string      `json:"unit"`
	Value    interface{} `json:"value"`
}

type metricDef struct {
	MetricInfo
	read func(s *Snapshot) interface{}
}

func amount(d decimal.Decimal) interface{} { return d.StringFixed(2) }

var catalog = []metricDef{
	{MetricInfo{"deductible_met", "Individual deductible met this plan year", "usd"},
		func(s *Snapshot) interface{} { return amount(s.DeductibleMetIndividual) }},
	{MetricInfo{"deductible_remaining", "Individual deductible still to be met", "usd"},
		func(s *Snapshot) interface{} { return amount(s.DeductibleRemaining) }},
	{MetricInfo{"deductible_progress", "Share of the individual deductible met", "ratio"},
		func(s *Snapshot) interface{} { return s.DeductibleProgress.String() }},
	{MetricInfo{"oop_spent", "Individual out-of-pocket spend this plan year", "usd"},
		func(s *Snapshot) interface{} { return amount(s.OOPSpentIndividual) }},
	{MetricInfo{"oop_remaining", "Out-of-pocket spend left before the tighter of the individual and family maximum", "usd"},
		func(s *Snapshot) interface{} { return amount(s.OOPRemaining) }},
	{MetricInfo{"oop_progress", "Share of the individual out-of-pocket maximum spent", "ratio"},
		func(s *Snapshot) interface{} { return s.OOPProgress.String() }},
	{MetricInfo{"family_deductible_met", "Family deductible met this plan year", "usd"},
		func(s *Snapshot) interface{} { return amount(s.DeductibleMetFamily) }},
	{MetricInfo{"family_deductible_remaining", "Family deductible still to be met", "usd"},
		func(s *Snapshot) interface{} { return amount(s.FamilyDeductibleRemaining) }},
	{MetricInfo{"family_oop_spent", "Family out-of-pocket spend this plan year", "usd"},
		func(s *Snapshot) interface{} { return amount(s.OOPSpentFamily) }},
	{MetricInfo{"family_oop_remaining", "Family out-of-pocket spend left before the family maximum", "usd"},
		func(s *Snapshot) interface{} { return amount(s.FamilyOOPRemaining) }},
	{MetricInfo{"claims_by_type", "Approved claim counts and member responsibility per claim type", "claims"},
		func(s *Snapshot) interface{} { return s.ClaimsByType }},
}

// Catalog lists the metrics Metric can read.
func Catalog() []MetricInfo {
	out := make([]MetricInfo, len(catalog))
	for i, d := range catalog {
		out[i] = d.MetricInfo
	}
	return out
}

func lookupMetric(name string) (metricDef, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return metricDef{}, false
}
