package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClaimEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *ClaimEvent)
		wantErr bool
	}{
		{"valid", func(e *ClaimEvent) {}, false},
		{"missing claim id", func(e *ClaimEvent) { e.ClaimID = "" }, true},
		{"zero service date", func(e *ClaimEvent) { e.ServiceDate = time.Time{} }, true},
		{"bad type", func(e *ClaimEvent) { e.ClaimType = "Dental" }, true},
		{"bad status", func(e *ClaimEvent) { e.ClaimStatus = "Paid" }, true},
		{"negative amount", func(e *ClaimEvent) { e.PaidAmount = decimal.NewFromInt(-1) }, true},
		{"responsibility above claim", func(e *ClaimEvent) { e.MemberResponsibility = decimal.NewFromInt(5000) }, true},
		{"reversed without target", func(e *ClaimEvent) { e.ClaimStatus = StatusReversed }, true},
		{"target without reversal", func(e *ClaimEvent) { e.ReversesClaimID = "C0" }, true},
		{"reverses itself", func(e *ClaimEvent) { e.ClaimStatus = StatusReversed; e.ReversesClaimID = e.ClaimID }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
			tt.mutate(e)
			if err := e.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClaimEvent_UnmarshalDateOnly(t *testing.T) {
	body := `{"claim_id":"C1","member_id":"M1","service_date":"2024-01-05","claim_type":"Medical",
		"claim_amount":"2000.00","paid_amount":"500.00","member_responsibility":"1500.00","claim_status":"Approved"}`
	var e ClaimEvent
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !e.ServiceDate.Equal(day(2024, time.January, 5)) {
		t.Errorf("unexpected service date %v", e.ServiceDate)
	}
	if !e.MemberResponsibility.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("unexpected responsibility %s", e.MemberResponsibility)
	}
}

func TestClaimEvent_SameContentIgnoresSeq(t *testing.T) {
	a := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	b := *a
	b.Seq = 42
	b.ClaimAmount = decimal.RequireFromString("2000.00")
	if !a.SameContent(&b) {
		t.Error("expected same content")
	}
	b.PaidAmount = decimal.NewFromInt(1)
	if a.SameContent(&b) {
		t.Error("expected different content")
	}
}
