package accumulator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/pkg/money"
)

// MemberTotals are one member's running individual accumulators.
type MemberTotals struct {
	MemberID      string          `json:"member_id"`
	DeductibleMet decimal.Decimal `json:"deductible_met"`
	OOPSpent      decimal.Decimal `json:"oop_spent"`
}

// State is the accumulator position of a whole family after replay.
type State struct {
	FamilyID    string                   `json:"family_id"`
	PlanID      string                   `json:"plan_id"`
	PlanYear    int                      `json:"plan_year"`
	RuleVersion int                      `json:"rule_version"`
	Members     map[string]*MemberTotals `json:"members"`
	// MemberOrder is the family order: primary first, then dependents by id.
	MemberOrder []string `json:"member_order"`

	FamilyDeductibleMet decimal.Decimal `json:"family_deductible_met"`
	FamilyOOPSpent      decimal.Decimal `json:"family_oop_spent"`
	// DeductibleFrozen is set once the family deductible is fully met;
	// individual deductible trackers stop moving from then on.
	DeductibleFrozen bool `json:"deductible_frozen"`
}

// ClaimEffect is the per-claim trace of one replay step.
type ClaimEffect struct {
	ClaimID                  string           `json:"claim_id"`
	MemberID                 string           `json:"member_id"`
	ServiceDate              time.Time        `json:"service_date"`
	ClaimType                ledger.ClaimType `json:"claim_type"`
	Responsibility           decimal.Decimal  `json:"responsibility"`
	DeductibleCredited       decimal.Decimal  `json:"deductible_credited"`
	FamilyDeductibleCredited decimal.Decimal  `json:"family_deductible_credited"`
	Frozen                   bool             `json:"frozen"`
	IndividualOOPAfter       decimal.Decimal  `json:"individual_oop_after"`
	FamilyOOPAfter           decimal.Decimal  `json:"family_oop_after"`
	OverCap                  bool             `json:"over_cap"`
}

// Anomaly kinds recorded by replay. These never fail a replay.
const (
	AnomalyIndividualOOPExceeded = "individual_oop_exceeded"
	AnomalyFamilyOOPExceeded     = "family_oop_exceeded"
)

// Anomaly is a historical charge the engine records but does not correct.
type Anomaly struct {
	ClaimID  string `json:"claim_id"`
	MemberID string `json:"member_id"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// TypeTotal counts applied claims of one type and their responsibility.
type TypeTotal struct {
	Count          int             `json:"count"`
	Responsibility decimal.Decimal `json:"responsibility"`
}

// Result is everything one replay produces.
type Result struct {
	State        *State                         `json:"state"`
	Trace        []ClaimEffect                  `json:"trace"`
	Anomalies    []Anomaly                      `json:"anomalies,omitempty"`
	ClaimsByType map[ledger.ClaimType]TypeTotal `json:"claims_by_type"`
	Reversed     []string                       `json:"reversed,omitempty"`
	Skipped      map[ledger.ClaimStatus]int     `json:"skipped,omitempty"`
}

// Inconsistency reasons.
const (
	ReasonOrphanReversal      = "orphan_reversal"
	ReasonDoubleReversal      = "double_reversal"
	ReasonReversalNotApproved = "reversal_of_non_approved"
	ReasonReversalOrder       = "reversal_before_original"
	ReasonInvalidServiceDate  = "invalid_service_date"
	ReasonOutsidePlanYear     = "outside_plan_year"
	ReasonUnknownMember       = "unknown_member"
	ReasonInvalidAmount       = "invalid_amount"
	ReasonDuplicateClaim      = "duplicate_claim"
)

// Inconsistency describes why a ledger cannot be replayed. It is wrapped in
// an apperr KindInconsistentLedger error.
type Inconsistency struct {
	ClaimID string
	Reason  string
	Detail  string
}

func (i *Inconsistency) Error() string {
	return fmt.Sprintf("claim %s: %s: %s", i.ClaimID, i.Reason, i.Detail)
}

// MemberView is the accumulator position reported for a single member.
type MemberView struct {
	MemberID      string `json:"member_id"`
	FamilyID      string `json:"family_id"`
	PlanID        string `json:"plan_id"`
	PlanYear      int    `json:"plan_year"`
	HasFamilyTier bool   `json:"has_family_tier"`

	DeductibleIndividual    decimal.Decimal `json:"deductible_individual"`
	DeductibleMetIndividual decimal.Decimal `json:"deductible_met_individual"`
	DeductibleRemaining     decimal.Decimal `json:"deductible_remaining"`
	OOPMaxIndividual        decimal.Decimal `json:"oop_max_individual"`
	OOPSpentIndividual      decimal.Decimal `json:"oop_spent_individual"`
	OOPRemaining            decimal.Decimal `json:"oop_remaining"`

	DeductibleFamily          decimal.Decimal `json:"deductible_family"`
	DeductibleMetFamily       decimal.Decimal `json:"deductible_met_family"`
	FamilyDeductibleRemaining decimal.Decimal `json:"family_deductible_remaining"`
	OOPMaxFamily              decimal.Decimal `json:"oop_max_family"`
	OOPSpentFamily            decimal.Decimal `json:"oop_spent_family"`
	FamilyOOPRemaining        decimal.Decimal `json:"family_oop_remaining"`

	DeductibleProgress decimal.Decimal `json:"deductible_progress"`
	OOPProgress        decimal.Decimal `json:"oop_progress"`
	DeductibleFrozen   bool            `json:"deductible_frozen"`
}

// View builds the member's reported position. ok is false when memberID is
// not part of the family.
func (s *State) View(rule *plan.Rule, memberID string) (*MemberView, bool) {
	t, ok := s.Members[memberID]
	if !ok {
		return nil, false
	}
	v := &MemberView{
		MemberID:                memberID,
		FamilyID:                s.FamilyID,
		PlanID:                  s.PlanID,
		PlanYear:                s.PlanYear,
		HasFamilyTier:           rule.HasFamilyDeductible() || rule.HasFamilyOOPMax(),
		DeductibleIndividual:    rule.DeductibleIndividual,
		DeductibleMetIndividual: t.DeductibleMet,
		DeductibleRemaining:     money.Remaining(rule.DeductibleIndividual, t.DeductibleMet),
		OOPMaxIndividual:        rule.OOPMaxIndividual,
		OOPSpentIndividual:      t.OOPSpent,
		OOPRemaining:            money.Remaining(rule.OOPMaxIndividual, t.OOPSpent),
		DeductibleFamily:        rule.DeductibleFamily,
		DeductibleMetFamily:     s.FamilyDeductibleMet,
		OOPMaxFamily:            rule.OOPMaxFamily,
		OOPSpentFamily:          s.FamilyOOPSpent,
		DeductibleProgress:      money.Ratio(t.DeductibleMet, rule.DeductibleIndividual),
		OOPProgress:             money.Ratio(t.OOPSpent, rule.OOPMaxIndividual),
		DeductibleFrozen:        s.DeductibleFrozen,
	}
	if rule.HasFamilyDeductible() {
		v.FamilyDeductibleRemaining = money.Remaining(rule.DeductibleFamily, s.FamilyDeductibleMet)
	}
	if rule.HasFamilyOOPMax() {
		v.FamilyOOPRemaining = money.Remaining(rule.OOPMaxFamily, s.FamilyOOPSpent)
		if v.FamilyOOPRemaining.LessThan(v.OOPRemaining) {
			v.OOPRemaining = v.FamilyOOPRemaining
		}
	}
	if s.DeductibleFrozen {
		v.DeductibleRemaining = decimal.Zero
		v.DeductibleProgress = decimal.NewFromInt(1)
	}
	return v, true
}
