package ledger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/metrics"
	"github.com/benefits/accumulator/pkg/dates"
)

// AppendHook observes events after they are written. Hooks run on the
// recording goroutine and must not block for long.
type AppendHook func(ctx context.Context, e *ClaimEvent)

type Service struct {
	ledger  Ledger
	logger  zerolog.Logger
	metrics *metrics.Metrics
	hooks   []AppendHook
}

func NewService(ledger Ledger, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{ledger: ledger, logger: logger, metrics: m}
}

// OnAppend registers h. It is not safe to call once Record is in use.
func (s *Service) OnAppend(h AppendHook) {
	s.hooks = append(s.hooks, h)
}

// Record validates e and appends it. It reports whether a new event was
// written; an identical re-append returns false with no error.
func (s *Service) Record(ctx context.Context, e *ClaimEvent) (bool, error) {
	const op = "ledger.Record"
	if e.TenantID == "" {
		return false, apperr.New(apperr.KindInvalid, op, "tenant is required")
	}
	e.ServiceDate = dates.Day(e.ServiceDate)
	if err := e.Validate(); err != nil {
		return false, apperr.Wrap(apperr.KindInvalid, op, err)
	}

	appended, err := s.ledger.Append(ctx, e)
	s.metrics.RecordAppend(string(e.ClaimType), string(e.ClaimStatus), appended, err)
	if err != nil {
		return false, err
	}
	if appended {
		s.logger.Info().
			Str("tenant_id", e.TenantID).
			Str("claim_id", e.ClaimID).
			Str("member_id", e.MemberID).
			Str("claim_status", string(e.ClaimStatus)).
			Int64("seq", e.Seq).
			Msg("claim recorded")
		for _, h := range s.hooks {
			h(ctx, e)
		}
	}
	return appended, nil
}

func (s *Service) Get(ctx context.Context, tenantID, claimID string) (*ClaimEvent, error) {
	return s.ledger.Get(ctx, tenantID, claimID)
}

// ReadPlanYear reads the family's events for one plan year.
func (s *Service) ReadPlanYear(ctx context.Context, tenantID string, memberIDs []string, planYear int) (*Read, error) {
	from, to := dates.YearBounds(planYear)
	return s.ledger.ReadFamily(ctx, tenantID, memberIDs, from, to)
}
