package accumulator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

// singleRule is the $1500 deductible / $6000 OOP / 20% coinsurance plan
// with no family tier.
func singleRule() *plan.Rule {
	return &plan.Rule{
		TenantID:             "acme",
		PlanID:               "PPO",
		PlanYear:             2024,
		Version:              1,
		DeductibleIndividual: dec("1500"),
		OOPMaxIndividual:     dec("6000"),
		CoinsuranceRate:      dec("0.20"),
	}
}

func familyRule() *plan.Rule {
	r := singleRule()
	r.DeductibleFamily = dec("3000")
	r.OOPMaxFamily = dec("12000")
	return r
}

func family(ids ...string) *member.FamilyUnit {
	return &member.FamilyUnit{TenantID: "acme", FamilyID: ids[0], PlanID: "PPO", PlanYear: 2024, MemberIDs: ids}
}

type claimBuilder struct{ seq int64 }

func (b *claimBuilder) approved(id, memberID string, date time.Time, claimType ledger.ClaimType, amount, resp string) *ledger.ClaimEvent {
	b.seq++
	return &ledger.ClaimEvent{
		TenantID:             "acme",
		ClaimID:              id,
		MemberID:             memberID,
		ServiceDate:          date,
		ClaimType:            claimType,
		ClaimAmount:          dec(amount),
		PaidAmount:           dec(amount).Sub(dec(resp)),
		MemberResponsibility: dec(resp),
		ClaimStatus:          ledger.StatusApproved,
		Seq:                  b.seq,
	}
}

func (b *claimBuilder) reversal(id string, of *ledger.ClaimEvent) *ledger.ClaimEvent {
	b.seq++
	r := *of
	r.ClaimID = id
	r.ClaimStatus = ledger.StatusReversed
	r.ReversesClaimID = of.ClaimID
	r.Seq = b.seq
	return &r
}
