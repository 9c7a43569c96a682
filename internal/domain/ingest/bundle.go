package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/platform/auth"
)

// Bundle is a YAML seed file for one tenant.
type Bundle struct {
	TenantID string               `yaml:"tenant_id"`
	Plans    []*plan.Rule         `yaml:"plans"`
	Members  []*member.Member     `yaml:"members"`
	Claims   []*ledger.ClaimEvent `yaml:"claims"`
}

// Summary counts what ApplyBundle wrote.
type Summary struct {
	Plans           int `json:"plans"`
	Members         int `json:"members"`
	ClaimsAppended  int `json:"claims_appended"`
	ClaimsUnchanged int `json:"claims_unchanged"`
}

func LoadBundleFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return LoadBundle(f)
}

func LoadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if !auth.ValidTenantID(b.TenantID) {
		return nil, fmt.Errorf("bundle tenant_id %q is invalid", b.TenantID)
	}
	return &b, nil
}

// ApplyBundle writes the bundle through the services as its own tenant.
// Members are registered parents first and reversals are appended after the
// claims they cancel, so file order does not matter.
func ApplyBundle(ctx context.Context, b *Bundle, svc Services) (*Summary, error) {
	ctx = auth.WithTenant(ctx, b.TenantID)
	sum := &Summary{}

	for _, r := range b.Plans {
		r.TenantID, r.Version = b.TenantID, 0
		if err := svc.Plans.Define(ctx, r); err != nil {
			return sum, fmt.Errorf("plan %s/%d: %w", r.PlanID, r.PlanYear, err)
		}
		sum.Plans++
	}

	for _, m := range orderMembers(b.Members) {
		m.TenantID = b.TenantID
		if err := svc.Members.Register(ctx, m); err != nil {
			return sum, fmt.Errorf("member %s: %w", m.MemberID, err)
		}
		sum.Members++
	}

	var reversals []*ledger.ClaimEvent
	record := func(e *ledger.ClaimEvent) error {
		e.TenantID, e.Seq = b.TenantID, 0
		appended, err := svc.Claims.Record(ctx, e)
		if err != nil {
			return fmt.Errorf("claim %s: %w", e.ClaimID, err)
		}
		if appended {
			sum.ClaimsAppended++
		} else {
			sum.ClaimsUnchanged++
		}
		return nil
	}
	for _, e := range b.Claims {
		if e.ClaimStatus == ledger.StatusReversed {
			reversals = append(reversals, e)
			continue
		}
		if err := record(e); err != nil {
			return sum, err
		}
	}
	for _, e := range reversals {
		if err := record(e); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// orderMembers returns members so every dependent follows the member it
// depends on. Members whose parent is not in the bundle keep their position
// at the end and are left for the registry to accept or reject.
func orderMembers(in []*member.Member) []*member.Member {
	type key struct {
		id   string
		year int
	}
	placed := make(map[key]bool, len(in))
	out := make([]*member.Member, 0, len(in))
	rest := in
	for len(rest) > 0 {
		var next []*member.Member
		for _, m := range rest {
			if m.DependentOf == "" || placed[key{m.DependentOf, m.PlanYear}] {
				placed[key{m.MemberID, m.PlanYear}] = true
				out = append(out, m)
			} else {
				next = append(next, m)
			}
		}
		if len(next) == len(rest) {
			return append(out, next...)
		}
		rest = next
	}
	return out
}
