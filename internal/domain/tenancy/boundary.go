// Package tenancy is the only path from request handling to the stores. Every
// decorator here checks the tenant bound to the context against the tenant a
// call names and against every entity that crosses it.
package tenancy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/internal/platform/metrics"
)

// Owned is any entity tagged with exactly one tenant.
type Owned interface {
	GetTenantID() string
}

// Boundary performs the tenant checks. It holds no state besides its logger
// and metrics.
type Boundary struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewBoundary(logger zerolog.Logger, m *metrics.Metrics) *Boundary {
	return &Boundary{logger: logger, metrics: m}
}

// Check fails with TenantMismatch unless ctx carries an authenticated tenant
// equal to tenantID.
func (b *Boundary) Check(ctx context.Context, op, tenantID string) error {
	bound := auth.TenantFromContext(ctx)
	if bound == "" || tenantID == "" || bound != tenantID {
		return b.mismatch(op, bound, tenantID, "")
	}
	return nil
}

// Verify fails with TenantMismatch unless e belongs to the tenant bound to ctx.
func (b *Boundary) Verify(ctx context.Context, op string, e Owned) error {
	bound := auth.TenantFromContext(ctx)
	if e == nil {
		return nil
	}
	if got := e.GetTenantID(); bound == "" || got != bound {
		return b.mismatch(op, bound, got, "entity")
	}
	return nil
}

func (b *Boundary) mismatch(op, bound, requested, subject string) error {
	b.metrics.RecordTenantMismatch()
	ev := b.logger.Warn().
		Str("op", op).
		Str("bound_tenant", bound).
		Str("requested_tenant", requested)
	if subject != "" {
		ev = ev.Str("subject", subject)
	}
	ev.Msg("tenant mismatch")
	return apperr.New(apperr.KindTenantMismatch, op, "tenant %q is not authorized for %q", bound, requested)
}
