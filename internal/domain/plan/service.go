package plan

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Define validates rule and appends it as the next version of its plan year.
func (s *Service) Define(ctx context.Context, rule *Rule) error {
	if rule.TenantID == "" {
		return apperr.New(apperr.KindInvalid, "plan.Define", "tenant is required")
	}
	if err := rule.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalid, "plan.Define", err)
	}
	if err := s.store.Put(ctx, rule); err != nil {
		return err
	}
	s.logger.Info().
		Str("tenant_id", rule.TenantID).
		Str("plan_id", rule.PlanID).
		Int("plan_year", rule.PlanYear).
		Int("version", rule.Version).
		Msg("plan rule defined")
	return nil
}

// Get returns the rule in force for planYear. A zero asOf resolves to the end
// of the plan year.
func (s *Service) Get(ctx context.Context, tenantID, planID string, planYear int, asOf time.Time) (*Rule, error) {
	if asOf.IsZero() {
		asOf = YearEnd(planYear)
	}
	return s.store.Get(ctx, tenantID, planID, planYear, asOf)
}

func (s *Service) Versions(ctx context.Context, tenantID, planID string, planYear int) ([]*Rule, error) {
	return s.store.ListVersions(ctx, tenantID, planID, planYear)
}

// YearEnd is the last instant of planYear in UTC.
func YearEnd(planYear int) time.Time {
	return time.Date(planYear+1, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
}
