package member

import (
	"fmt"
	"sort"
	"time"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

// maxChainDepth bounds dependent_of walks so a corrupted chain cannot loop forever.
const maxChainDepth = 64

// Member is one person's enrollment in a plan for a plan year. A primary member
// has no DependentOf; every other member points at another member of the same
// tenant and plan year whose chain ends at a primary on the same plan.
type Member struct {
	TenantID    string    `json:"tenant_id,omitempty" yaml:"-"`
	MemberID    string    `json:"member_id" yaml:"member_id"`
	PlanYear    int       `json:"plan_year" yaml:"plan_year"`
	PlanID      string    `json:"plan_id" yaml:"plan_id"`
	IsPrimary   bool      `json:"is_primary" yaml:"is_primary"`
	DependentOf string    `json:"dependent_of,omitempty" yaml:"dependent_of"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

func (m *Member) GetTenantID() string { return m.TenantID }

// Validate checks the fields that do not depend on other members.
func (m *Member) Validate() error {
	if m.MemberID == "" {
		return fmt.Errorf("member_id is required")
	}
	if m.PlanID == "" {
		return fmt.Errorf("plan_id is required")
	}
	if m.PlanYear < 1900 || m.PlanYear > 9999 {
		return fmt.Errorf("invalid plan_year: %d", m.PlanYear)
	}
	if m.IsPrimary && m.DependentOf != "" {
		return fmt.Errorf("primary member %s cannot be a dependent", m.MemberID)
	}
	if !m.IsPrimary && m.DependentOf == "" {
		return fmt.Errorf("member %s must be primary or name dependent_of", m.MemberID)
	}
	if m.DependentOf == m.MemberID {
		return fmt.Errorf("member %s cannot depend on itself", m.MemberID)
	}
	return nil
}

// FamilyUnit is a primary member plus every transitive dependent for one plan
// year. Its ID is the primary's member id.
type FamilyUnit struct {
	TenantID  string   `json:"-"`
	FamilyID  string   `json:"family_id"`
	PlanID    string   `json:"plan_id"`
	PlanYear  int      `json:"plan_year"`
	MemberIDs []string `json:"member_ids"`
}

// Contains reports whether memberID belongs to the family.
func (f *FamilyUnit) Contains(memberID string) bool {
	for _, id := range f.MemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// ResolveFamily builds the family of memberID from a household read. The
// member's chain must end at a primary, and every member reached must be on
// the primary's plan; anything else is a broken membership graph.
func ResolveFamily(household []*Member, memberID string) (*FamilyUnit, error) {
	const op = "member.ResolveFamily"
	byID := make(map[string]*Member, len(household))
	children := make(map[string][]string)
	for _, m := range household {
		byID[m.MemberID] = m
		if m.DependentOf != "" {
			children[m.DependentOf] = append(children[m.DependentOf], m.MemberID)
		}
	}

	cur, ok := byID[memberID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, op, "member %s not found", memberID)
	}
	for depth := 0; cur.DependentOf != ""; depth++ {
		if depth >= maxChainDepth {
			return nil, apperr.New(apperr.KindInconsistentLedger, op, "dependent chain of %s does not terminate", memberID)
		}
		parent, ok := byID[cur.DependentOf]
		if !ok {
			return nil, apperr.New(apperr.KindInconsistentLedger, op, "member %s depends on unknown member %s", cur.MemberID, cur.DependentOf)
		}
		cur = parent
	}
	root := cur
	if !root.IsPrimary {
		return nil, apperr.New(apperr.KindInconsistentLedger, op, "chain of %s ends at non-primary %s", memberID, root.MemberID)
	}

	fam := &FamilyUnit{
		TenantID: root.TenantID,
		FamilyID: root.MemberID,
		PlanID:   root.PlanID,
		PlanYear: root.PlanYear,
	}
	seen := map[string]bool{root.MemberID: true}
	queue := []string{root.MemberID}
	var deps []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if seen[child] {
				continue
			}
			seen[child] = true
			m := byID[child]
			if m.PlanID != root.PlanID || m.TenantID != root.TenantID {
				return nil, apperr.New(apperr.KindInconsistentLedger, op, "dependent %s is not on plan %s", child, root.PlanID)
			}
			deps = append(deps, child)
			queue = append(queue, child)
		}
	}
	sort.Strings(deps)
	fam.MemberIDs = append([]string{root.MemberID}, deps...)
	return fam, nil
}
