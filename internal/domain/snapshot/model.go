package snapshot

import (
	"fmt"
	"time"

	"github.com/benefits/accumulator/internal/domain/accumulator"
	"github.com/benefits/accumulator/internal/domain/ledger"
)

// Key identifies one family's accumulators for one plan year.
type Key struct {
	TenantID string
	FamilyID string
	PlanYear int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.TenantID, k.FamilyID, k.PlanYear)
}

// Version is everything a replay result depends on. A cached entry is only
// served while all three parts still match.
type Version struct {
	Ledger            ledger.Head `json:"ledger"`
	RuleVersion       int         `json:"rule_version"`
	MembershipVersion int64       `json:"membership_version"`
}

func (v Version) String() string {
	return fmt.Sprintf("%s/%d/%d", v.Ledger, v.RuleVersion, v.MembershipVersion)
}

// Entry is a cached replay result.
type Entry struct {
	TenantID   string              `json:"tenant_id"`
	Version    Version             `json:"version"`
	Result     *accumulator.Result `json:"result"`
	ComputedAt time.Time           `json:"computed_at"`
}
