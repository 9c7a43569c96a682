package accumulator

import (
	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/pkg/money"
)

// ProjectOptions select a flat copay. VisitCategory applies to Medical and
// Other claims, RxTier to Pharmacy claims.
type ProjectOptions struct {
	VisitCategory string
	RxTier        string
}

// Cost-sharing methods reported on a projection.
const (
	MethodCoinsurance = "coinsurance"
	MethodCopay       = "copay"
	MethodDeductible  = "deductible"
	MethodCapped      = "oop_max_reached"
)

// Projection is the hypothetical cost split for one new claim.
type Projection struct {
	MemberID  string           `json:"member_id"`
	ClaimType ledger.ClaimType `json:"claim_type"`
	Billed    decimal.Decimal  `json:"billed_amount"`

	DeductibleApplied decimal.Decimal `json:"deductible_applied"`
	CostShare         decimal.Decimal `json:"cost_share"`
	Method            string          `json:"method"`
	MemberOwes        decimal.Decimal `json:"member_owes"`
	InsurerPays       decimal.Decimal `json:"insurer_pays"`
	Clamped           bool            `json:"clamped"`

	DeductibleMetAfter       decimal.Decimal `json:"deductible_met_after"`
	FamilyDeductibleMetAfter decimal.Decimal `json:"family_deductible_met_after"`
	OOPSpentAfter            decimal.Decimal `json:"oop_spent_after"`
	FamilyOOPSpentAfter      decimal.Decimal `json:"family_oop_spent_after"`
}

// Project computes what memberID would owe for a new claim of billed dollars
// against st. It never mutates st, so repeated calls return the same answer.
//
// The deductible is consumed first, up to whichever of the individual and
// family remainders is smaller, and only for Medical claims, matching how
// replay credits deductibles. The rest is split by coinsurance unless a copay
// applies, in which case the copay replaces coinsurance. The member's total is
// then clamped so cumulative OOP spend lands exactly on the tighter cap.
func Project(rule *plan.Rule, st *State, memberID string, claimType ledger.ClaimType, billed decimal.Decimal, opts ProjectOptions) (*Projection, error) {
	const op = "accumulator.Project"
	if rule == nil {
		return nil, apperr.New(apperr.KindPlanRuleMissing, op, "no plan rule")
	}
	if !claimType.Valid() {
		return nil, apperr.New(apperr.KindInvalid, op, "invalid claim_type %q", claimType)
	}
	if err := money.Validate(billed); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, op, err)
	}
	m, ok := st.Members[memberID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, op, "member %s not in family %s", memberID, st.FamilyID)
	}

	p := &Projection{
		MemberID:                 memberID,
		ClaimType:                claimType,
		Billed:                   billed,
		DeductibleApplied:        decimal.Zero,
		CostShare:                decimal.Zero,
		Method:                   MethodCoinsurance,
		DeductibleMetAfter:       m.DeductibleMet,
		FamilyDeductibleMetAfter: st.FamilyDeductibleMet,
	}

	if claimType == ledger.ClaimMedical && !st.DeductibleFrozen {
		remaining := money.Remaining(rule.DeductibleIndividual, m.DeductibleMet)
		if rule.HasFamilyDeductible() {
			remaining = money.Min(remaining, money.Remaining(rule.DeductibleFamily, st.FamilyDeductibleMet))
		}
		p.DeductibleApplied = money.Min(billed, remaining)
	}
	rest := billed.Sub(p.DeductibleApplied)

	if copay, ok := copayFor(rule, claimType, opts); ok {
		p.CostShare = money.Min(copay, rest)
		p.Method = MethodCopay
	} else {
		p.CostShare = money.Round(rest.Mul(rule.CoinsuranceRate))
	}
	if p.CostShare.IsZero() && p.DeductibleApplied.IsPositive() {
		p.Method = MethodDeductible
	}

	owes := p.DeductibleApplied.Add(p.CostShare)
	room := money.Remaining(rule.OOPMaxIndividual, m.OOPSpent)
	if rule.HasFamilyOOPMax() {
		room = money.Min(room, money.Remaining(rule.OOPMaxFamily, st.FamilyOOPSpent))
	}
	if owes.GreaterThan(room) {
		owes = room
		p.Clamped = true
		p.DeductibleApplied = money.Min(p.DeductibleApplied, owes)
		p.CostShare = owes.Sub(p.DeductibleApplied)
		if owes.IsZero() {
			p.Method = MethodCapped
		}
	}

	p.MemberOwes = owes
	p.InsurerPays = billed.Sub(owes)
	p.OOPSpentAfter = m.OOPSpent.Add(owes)
	p.FamilyOOPSpentAfter = st.FamilyOOPSpent.Add(owes)
	p.DeductibleMetAfter = m.DeductibleMet.Add(p.DeductibleApplied)
	if rule.HasFamilyDeductible() {
		p.FamilyDeductibleMetAfter = st.FamilyDeductibleMet.Add(p.DeductibleApplied)
	}
	return p, nil
}

func copayFor(rule *plan.Rule, claimType ledger.ClaimType, opts ProjectOptions) (decimal.Decimal, bool) {
	if claimType == ledger.ClaimPharmacy {
		return rule.RxCopayFor(opts.RxTier)
	}
	return rule.CopayFor(opts.VisitCategory)
}
