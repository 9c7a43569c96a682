package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/pkg/dates"
	"github.com/benefits/accumulator/pkg/money"
)

type ClaimType string

const (
	ClaimMedical  ClaimType = "Medical"
	ClaimPharmacy ClaimType = "Pharmacy"
	ClaimOther    ClaimType = "Other"
)

func (t ClaimType) Valid() bool {
	switch t {
	case ClaimMedical, ClaimPharmacy, ClaimOther:
		return true
	}
	return false
}

type ClaimStatus string

const (
	StatusPending  ClaimStatus = "Pending"
	StatusApproved ClaimStatus = "Approved"
	StatusDenied   ClaimStatus = "Denied"
	StatusReversed ClaimStatus = "Reversed"
)

func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusReversed:
		return true
	}
	return false
}

// ClaimEvent is one immutable ledger entry. A Reversed event names the
// Approved claim it cancels in ReversesClaimID. Seq and RecordedAt are
// assigned by the ledger on append.
type ClaimEvent struct {
	TenantID             string          `json:"tenant_id,omitempty" yaml:"-"`
	ClaimID              string          `json:"claim_id" yaml:"claim_id"`
	MemberID             string          `json:"member_id" yaml:"member_id"`
	ServiceDate          time.Time       `json:"service_date" yaml:"service_date"`
	ClaimType            ClaimType       `json:"claim_type" yaml:"claim_type"`
	ClaimAmount          decimal.Decimal `json:"claim_amount" yaml:"claim_amount"`
	PaidAmount           decimal.Decimal `json:"paid_amount" yaml:"paid_amount"`
	MemberResponsibility decimal.Decimal `json:"member_responsibility" yaml:"member_responsibility"`
	// DeductibleAmount is the adjudicated share of MemberResponsibility that
	// applied to the deductible. Nil means all of it did.
	DeductibleAmount *decimal.Decimal `json:"deductible_amount,omitempty" yaml:"deductible_amount"`
	ClaimStatus      ClaimStatus      `json:"claim_status" yaml:"claim_status"`
	ReversesClaimID  string           `json:"reverses_claim_id,omitempty" yaml:"reverses_claim_id"`
	Seq              int64            `json:"seq" yaml:"-"`
	RecordedAt       time.Time        `json:"recorded_at" yaml:"-"`
}

func (e *ClaimEvent) GetTenantID() string { return e.TenantID }

// UnmarshalJSON accepts service_date as YYYY-MM-DD as well as RFC 3339.
func (e *ClaimEvent) UnmarshalJSON(data []byte) error {
	type alias ClaimEvent
	aux := struct {
		*alias
		ServiceDate string `json:"service_date"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d, err := dates.Parse(aux.ServiceDate)
	if err != nil {
		return err
	}
	e.ServiceDate = d
	return nil
}

// Validate checks the fields of a single event. Cross-event rules, such as a
// reversal naming an earlier Approved claim, are enforced by the ledger.
func (e *ClaimEvent) Validate() error {
	if e.ClaimID == "" {
		return fmt.Errorf("claim_id is required")
	}
	if e.MemberID == "" {
		return fmt.Errorf("member_id is required")
	}
	if e.ServiceDate.IsZero() {
		return fmt.Errorf("service_date is required")
	}
	if !e.ClaimType.Valid() {
		return fmt.Errorf("invalid claim_type: %q", e.ClaimType)
	}
	if !e.ClaimStatus.Valid() {
		return fmt.Errorf("invalid claim_status: %q", e.ClaimStatus)
	}
	for name, v := range map[string]decimal.Decimal{
		"claim_amount":          e.ClaimAmount,
		"paid_amount":           e.PaidAmount,
		"member_responsibility": e.MemberResponsibility,
	} {
		if err := money.Validate(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if e.MemberResponsibility.GreaterThan(e.ClaimAmount) {
		return fmt.Errorf("member_responsibility %s exceeds claim_amount %s", e.MemberResponsibility, e.ClaimAmount)
	}
	if e.DeductibleAmount != nil {
		if err := money.Validate(*e.DeductibleAmount); err != nil {
			return fmt.Errorf("deductible_amount: %w", err)
		}
		if e.DeductibleAmount.GreaterThan(e.MemberResponsibility) {
			return fmt.Errorf("deductible_amount %s exceeds member_responsibility %s", *e.DeductibleAmount, e.MemberResponsibility)
		}
	}
	if e.ClaimStatus == StatusReversed && e.ReversesClaimID == "" {
		return fmt.Errorf("reversed claim %s must name reverses_claim_id", e.ClaimID)
	}
	if e.ClaimStatus != StatusReversed && e.ReversesClaimID != "" {
		return fmt.Errorf("only a Reversed claim may set reverses_claim_id")
	}
	if e.ReversesClaimID == e.ClaimID && e.ReversesClaimID != "" {
		return fmt.Errorf("claim %s cannot reverse itself", e.ClaimID)
	}
	return nil
}

// SameContent reports whether two events carry the same client-supplied data,
// ignoring the ledger-assigned Seq and RecordedAt.
func (e *ClaimEvent) SameContent(o *ClaimEvent) bool {
	return e.TenantID == o.TenantID &&
		e.ClaimID == o.ClaimID &&
		e.MemberID == o.MemberID &&
		dates.Day(e.ServiceDate).Equal(dates.Day(o.ServiceDate)) &&
		e.ClaimType == o.ClaimType &&
		e.ClaimAmount.Equal(o.ClaimAmount) &&
		e.PaidAmount.Equal(o.PaidAmount) &&
		e.MemberResponsibility.Equal(o.MemberResponsibility) &&
		sameOptional(e.DeductibleAmount, o.DeductibleAmount) &&
		e.ClaimStatus == o.ClaimStatus &&
		e.ReversesClaimID == o.ReversesClaimID
}

// DeductibleCredit is the amount of the claim that counts toward deductibles.
func (e *ClaimEvent) DeductibleCredit() decimal.Decimal {
	if e.DeductibleAmount != nil {
		return *e.DeductibleAmount
	}
	return e.MemberResponsibility
}

func sameOptional(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Head identifies the state of a family's ledger read. The ledger is
// append-only, so any new visible event changes MaxSeq or Count.
type Head struct {
	MaxSeq int64 `json:"max_seq"`
	Count  int   `json:"count"`
}

func (h Head) String() string { return fmt.Sprintf("%d.%d", h.MaxSeq, h.Count) }

// Read is a snapshot-consistent set of events and the head it corresponds to.
type Read struct {
	Claims []*ClaimEvent
	Head   Head
}
