package member

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

type memberKey struct {
	tenantID string
	memberID string
	year     int
}

type yearKey struct {
	tenantID string
	year     int
}

type memoryRegistry struct {
	mu       sync.RWMutex
	members  map[memberKey]*Member
	versions map[yearKey]int64
	now      func() time.Time
}

// NewMemoryRegistry returns an in-process Registry.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{
		members:  make(map[memberKey]*Member),
		versions: make(map[yearKey]int64),
		now:      time.Now,
	}
}

// lockedView reads the maps without locking; callers hold mu.
type lockedView struct{ r *memoryRegistry }

func (v lockedView) Get(_ context.Context, tenantID, memberID string, planYear int) (*Member, error) {
	m, ok := v.r.members[memberKey{tenantID, memberID, planYear}]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "member.Get", "member %s not found", memberID)
	}
	cp := *m
	return &cp, nil
}

func (v lockedView) Dependents(_ context.Context, tenantID, memberID string, planYear int) ([]*Member, error) {
	var out []*Member
	for k, m := range v.r.members {
		if k.tenantID == tenantID && k.year == planYear && m.DependentOf == memberID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (r *memoryRegistry) Get(ctx context.Context, tenantID, memberID string, planYear int) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lockedView{r}.Get(ctx, tenantID, memberID, planYear)
}

func (r *memoryRegistry) Dependents(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lockedView{r}.Dependents(ctx, tenantID, memberID, planYear)
}

func (r *memoryRegistry) Upsert(ctx context.Context, m *Member, check func(ctx context.Context, view Lookup) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if check != nil {
		if err := check(ctx, lockedView{r}); err != nil {
			return err
		}
	}
	cp := *m
	cp.UpdatedAt = r.now()
	r.members[memberKey{m.TenantID, m.MemberID, m.PlanYear}] = &cp
	r.versions[yearKey{m.TenantID, m.PlanYear}]++
	m.UpdatedAt = cp.UpdatedAt
	return nil
}

func (r *memoryRegistry) Household(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view := lockedView{r}
	start, err := view.Get(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, 0, err
	}
	seen := map[string]bool{start.MemberID: true}
	out := []*Member{start}

	top := start
	for depth := 0; top.DependentOf != "" && depth < maxChainDepth; depth++ {
		parent, err := view.Get(ctx, tenantID, top.DependentOf, planYear)
		if err != nil || seen[parent.MemberID] {
			break
		}
		seen[parent.MemberID] = true
		out = append(out, parent)
		top = parent
	}

	queue := []string{top.MemberID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		deps, _ := view.Dependents(ctx, tenantID, id, planYear)
		for _, d := range deps {
			if seen[d.MemberID] {
				continue
			}
			seen[d.MemberID] = true
			out = append(out, d)
			queue = append(queue, d.MemberID)
		}
	}
	return out, r.versions[yearKey{tenantID, planYear}], nil
}

func (r *memoryRegistry) Version(_ context.Context, tenantID string, planYear int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[yearKey{tenantID, planYear}], nil
}
