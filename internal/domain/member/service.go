package member

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

type Service struct {
	registry Registry
	logger   zerolog.Logger
}

func NewService(registry Registry, logger zerolog.Logger) *Service {
	return &Service{registry: registry, logger: logger}
}

// Register creates or replaces a member after checking its dependent_of chain
// against the registry state it will be written into.
func (s *Service) Register(ctx context.Context, m *Member) error {
	const op = "member.Register"
	if m.TenantID == "" {
		return apperr.New(apperr.KindInvalid, op, "tenant is required")
	}
	if err := m.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalid, op, err)
	}
	err := s.registry.Upsert(ctx, m, func(ctx context.Context, view Lookup) error {
		return checkChain(ctx, view, m)
	})
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("tenant_id", m.TenantID).
		Str("member_id", m.MemberID).
		Int("plan_year", m.PlanYear).
		Msg("member registered")
	return nil
}

func checkChain(ctx context.Context, view Lookup, m *Member) error {
	const op = "member.Register"

	if existing, err := view.Get(ctx, m.TenantID, m.MemberID, m.PlanYear); err == nil && existing.PlanID != m.PlanID {
		deps, err := view.Dependents(ctx, m.TenantID, m.MemberID, m.PlanYear)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return apperr.New(apperr.KindConflict, op, "member %s has dependents on plan %s", m.MemberID, existing.PlanID)
		}
	}

	next := m.DependentOf
	for depth := 0; next != ""; depth++ {
		if depth >= maxChainDepth {
			return apperr.New(apperr.KindInvalid, op, "dependent chain of %s is too deep", m.MemberID)
		}
		if next == m.MemberID {
			return apperr.New(apperr.KindInvalid, op, "dependent_of of %s forms a cycle", m.MemberID)
		}
		parent, err := view.Get(ctx, m.TenantID, next, m.PlanYear)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.New(apperr.KindInvalid, op, "dependent_of %s is not a member in plan year %d", next, m.PlanYear)
			}
			return err
		}
		if parent.PlanID != m.PlanID {
			return apperr.New(apperr.KindInvalid, op, "member %s is on plan %s but %s is on plan %s",
				m.MemberID, m.PlanID, parent.MemberID, parent.PlanID)
		}
		if parent.IsPrimary {
			return nil
		}
		next = parent.DependentOf
	}
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID, memberID string, planYear int) (*Member, error) {
	return s.registry.Get(ctx, tenantID, memberID, planYear)
}

// Family resolves the family unit of memberID and the membership version it was read at.
func (s *Service) Family(ctx context.Context, tenantID, memberID string, planYear int) (*FamilyUnit, int64, error) {
	household, version, err := s.registry.Household(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, 0, err
	}
	fam, err := ResolveFamily(household, memberID)
	if err != nil {
		return nil, 0, err
	}
	return fam, version, nil
}
