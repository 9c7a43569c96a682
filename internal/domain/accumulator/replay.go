package accumulator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/pkg/money"
)

const opReplay = "accumulator.Replay"

func inconsistent(claimID, reason, format string, args ...interface{}) error {
	return apperr.Wrap(apperr.KindInconsistentLedger, opReplay, &Inconsistency{
		ClaimID: claimID,
		Reason:  reason,
		Detail:  fmt.Sprintf(format, args...),
	})
}

// Replay derives the family's accumulator state for one plan year from its
// claim events. It is pure: the same rule, family and claim set always yield
// the same Result, and nothing is returned unless the whole ledger replays.
//
// Reversed events cancel their Approved original. Because deductible and OOP
// phase transitions depend on order, the reversed originals are dropped and
// the remaining Approved claims are applied from the start in
// (service_date, claim_id) order.
func Replay(rule *plan.Rule, family *member.FamilyUnit, claims []*ledger.ClaimEvent) (*Result, error) {
	if rule == nil {
		return nil, apperr.New(apperr.KindPlanRuleMissing, opReplay, "no plan rule for family %s", family.FamilyID)
	}
	if rule.TenantID != family.TenantID {
		return nil, apperr.New(apperr.KindTenantMismatch, opReplay, "plan rule tenant differs from family tenant")
	}

	applied, reversed, skipped, err := prepare(rule, family, claims)
	if err != nil {
		return nil, err
	}

	st := &State{
		FamilyID:            family.FamilyID,
		PlanID:              rule.PlanID,
		PlanYear:            rule.PlanYear,
		RuleVersion:         rule.Version,
		Members:             make(map[string]*MemberTotals, len(family.MemberIDs)),
		MemberOrder:         append([]string(nil), family.MemberIDs...),
		FamilyDeductibleMet: decimal.Zero,
		FamilyOOPSpent:      decimal.Zero,
	}
	for _, id := range family.MemberIDs {
		st.Members[id] = &MemberTotals{MemberID: id, DeductibleMet: decimal.Zero, OOPSpent: decimal.Zero}
	}

	res := &Result{
		State:        st,
		Trace:        make([]ClaimEffect, 0, len(applied)),
		ClaimsByType: make(map[ledger.ClaimType]TypeTotal),
		Reversed:     reversed,
		Skipped:      skipped,
	}
	for _, c := range applied {
		effect, anomalies := apply(rule, st, c)
		res.Trace = append(res.Trace, effect)
		res.Anomalies = append(res.Anomalies, anomalies...)

		tt := res.ClaimsByType[c.ClaimType]
		tt.Count++
		tt.Responsibility = tt.Responsibility.Add(c.MemberResponsibility)
		res.ClaimsByType[c.ClaimType] = tt
	}
	return res, nil
}

// prepare validates the claim set and returns the Approved claims that
// survive reversal, in replay order, plus the reversed claim ids and counts
// of claims that do not accumulate.
func prepare(rule *plan.Rule, family *member.FamilyUnit, claims []*ledger.ClaimEvent) ([]*ledger.ClaimEvent, []string, map[ledger.ClaimStatus]int, error) {
	byID := make(map[string]*ledger.ClaimEvent, len(claims))
	for _, c := range claims {
		if c.TenantID != family.TenantID {
			return nil, nil, nil, apperr.New(apperr.KindTenantMismatch, opReplay, "claim %s belongs to another tenant", c.ClaimID)
		}
		if _, dup := byID[c.ClaimID]; dup {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonDuplicateClaim, "claim id appears twice")
		}
		byID[c.ClaimID] = c

		if !family.Contains(c.MemberID) {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonUnknownMember, "member %s is not in family %s", c.MemberID, family.FamilyID)
		}
		if c.ServiceDate.IsZero() {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonInvalidServiceDate, "service date is missing")
		}
		if err := checkAmounts(c); err != nil {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonInvalidAmount, "%v", err)
		}
		if c.ClaimStatus != ledger.StatusReversed && c.ServiceDate.Year() != rule.PlanYear {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonOutsidePlanYear, "service date %s is outside plan year %d",
				c.ServiceDate.Format("2006-01-02"), rule.PlanYear)
		}
	}

	reversedBy := make(map[string]string)
	skipped := make(map[ledger.ClaimStatus]int)
	for _, c := range claims {
		if c.ClaimStatus != ledger.StatusReversed {
			continue
		}
		orig, ok := byID[c.ReversesClaimID]
		switch {
		case !ok:
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonOrphanReversal, "reversed claim %s is not in the family ledger", c.ReversesClaimID)
		case orig.ClaimStatus != ledger.StatusApproved:
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonReversalNotApproved, "claim %s is %s", orig.ClaimID, orig.ClaimStatus)
		case orig.Seq >= c.Seq:
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonReversalOrder, "reversal seq %d precedes claim %s seq %d", c.Seq, orig.ClaimID, orig.Seq)
		}
		if prev, done := reversedBy[orig.ClaimID]; done {
			return nil, nil, nil, inconsistent(c.ClaimID, ReasonDoubleReversal, "claim %s already reversed by %s", orig.ClaimID, prev)
		}
		reversedBy[orig.ClaimID] = c.ClaimID
		skipped[ledger.StatusReversed]++
	}

	var applied []*ledger.ClaimEvent
	var reversed []string
	for _, c := range claims {
		switch {
		case c.ClaimStatus == ledger.StatusReversed:
		case c.ClaimStatus != ledger.StatusApproved:
			skipped[c.ClaimStatus]++
		case reversedBy[c.ClaimID] != "":
			reversed = append(reversed, c.ClaimID)
		default:
			applied = append(applied, c)
		}
	}
	sort.Slice(applied, func(i, j int) bool {
		a, b := applied[i], applied[j]
		if !a.ServiceDate.Equal(b.ServiceDate) {
			return a.ServiceDate.Before(b.ServiceDate)
		}
		return a.ClaimID < b.ClaimID
	})
	sort.Strings(reversed)
	if len(skipped) == 0 {
		skipped = nil
	}
	return applied, reversed, skipped, nil
}

func checkAmounts(c *ledger.ClaimEvent) error {
	for _, d := range []decimal.Decimal{c.ClaimAmount, c.PaidAmount, c.MemberResponsibility} {
		if err := money.Validate(d); err != nil {
			return err
		}
	}
	if c.MemberResponsibility.GreaterThan(c.ClaimAmount) {
		return fmt.Errorf("member responsibility %s exceeds claim amount %s", c.MemberResponsibility, c.ClaimAmount)
	}
	if c.DeductibleAmount != nil {
		if err := money.Validate(*c.DeductibleAmount); err != nil {
			return err
		}
		if c.DeductibleAmount.GreaterThan(c.MemberResponsibility) {
			return fmt.Errorf("deductible amount %s exceeds member responsibility %s", *c.DeductibleAmount, c.MemberResponsibility)
		}
	}
	return nil
}

// apply adds one Approved claim's responsibility to the running state.
func apply(rule *plan.Rule, st *State, c *ledger.ClaimEvent) (ClaimEffect, []Anomaly) {
	r := c.MemberResponsibility
	m := st.Members[c.MemberID]
	effect := ClaimEffect{
		ClaimID:                  c.ClaimID,
		MemberID:                 c.MemberID,
		ServiceDate:              c.ServiceDate,
		ClaimType:                c.ClaimType,
		Responsibility:           r,
		DeductibleCredited:       decimal.Zero,
		FamilyDeductibleCredited: decimal.Zero,
	}

	credit := c.DeductibleCredit()
	if c.ClaimType == ledger.ClaimMedical && credit.IsPositive() {
		if st.DeductibleFrozen {
			effect.Frozen = true
		} else {
			before := m.DeductibleMet
			m.DeductibleMet = money.Min(m.DeductibleMet.Add(credit), rule.DeductibleIndividual)
			effect.DeductibleCredited = m.DeductibleMet.Sub(before)

			if rule.HasFamilyDeductible() {
				famBefore := st.FamilyDeductibleMet
				st.FamilyDeductibleMet = money.Min(st.FamilyDeductibleMet.Add(credit), rule.DeductibleFamily)
				effect.FamilyDeductibleCredited = st.FamilyDeductibleMet.Sub(famBefore)
				if st.FamilyDeductibleMet.GreaterThanOrEqual(rule.DeductibleFamily) {
					st.DeductibleFrozen = true
				}
			}
		}
	}

	m.OOPSpent = m.OOPSpent.Add(r)
	st.FamilyOOPSpent = st.FamilyOOPSpent.Add(r)
	effect.IndividualOOPAfter = m.OOPSpent
	effect.FamilyOOPAfter = st.FamilyOOPSpent

	var anomalies []Anomaly
	if r.IsPositive() && m.OOPSpent.GreaterThan(rule.OOPMaxIndividual) {
		anomalies = append(anomalies, Anomaly{
			ClaimID:  c.ClaimID,
			MemberID: c.MemberID,
			Kind:     AnomalyIndividualOOPExceeded,
			Detail:   fmt.Sprintf("individual OOP %s exceeds max %s", m.OOPSpent, rule.OOPMaxIndividual),
		})
	}
	if r.IsPositive() && rule.HasFamilyOOPMax() && st.FamilyOOPSpent.GreaterThan(rule.OOPMaxFamily) {
		anomalies = append(anomalies, Anomaly{
			ClaimID:  c.ClaimID,
			MemberID: c.MemberID,
			Kind:     AnomalyFamilyOOPExceeded,
			Detail:   fmt.Sprintf("family OOP %s exceeds max %s", st.FamilyOOPSpent, rule.OOPMaxFamily),
		})
	}
	effect.OverCap = len(anomalies) > 0
	return effect, anomalies
}
