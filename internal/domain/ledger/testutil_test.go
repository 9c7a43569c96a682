package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func approved(id, member string, date time.Time, amount, resp int64) *ClaimEvent {
	return &ClaimEvent{
		TenantID:             "acme",
		ClaimID:              id,
		MemberID:             member,
		ServiceDate:          date,
		ClaimType:            ClaimMedical,
		ClaimAmount:          decimal.NewFromInt(amount),
		PaidAmount:           decimal.NewFromInt(amount - resp),
		MemberResponsibility: decimal.NewFromInt(resp),
		ClaimStatus:          StatusApproved,
	}
}

func reversal(id string, of *ClaimEvent) *ClaimEvent {
	r := *of
	r.ClaimID = id
	r.ClaimStatus = StatusReversed
	r.ReversesClaimID = of.ClaimID
	r.Seq = 0
	return &r
}
