// Package audit is the operator channel for ledger problems and the audit
// trail of accumulator queries.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/db"
	"github.com/benefits/accumulator/internal/platform/metrics"
)

// Anomaly kinds that do not come from replay itself.
const (
	KindInconsistentLedger = "inconsistent_ledger"
)

// Anomaly is one row of the ledger_anomaly table.
type Anomaly struct {
	ID         uuid.UUID `json:"id"`
	TenantID   string    `json:"tenant_id"`
	FamilyID   string    `json:"family_id"`
	PlanYear   int       `json:"plan_year"`
	ClaimID    string    `json:"claim_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
	DetectedAt time.Time `json:"detected_at"`
}

// Sink persists anomalies. An anomaly is identified by tenant, family, plan
// year, claim and kind; Write reports false when that anomaly is already
// recorded.
type Sink interface {
	Write(ctx context.Context, a *Anomaly) (bool, error)
}

type anomalyKey struct {
	tenantID string
	familyID string
	planYear int
	claimID  string
	kind     string
}

func keyOf(a *Anomaly) anomalyKey {
	return anomalyKey{a.TenantID, a.FamilyID, a.PlanYear, a.ClaimID, a.Kind}
}

// PGSink writes anomalies to the ledger_anomaly table.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Write(ctx context.Context, a *Anomaly) (bool, error) {
	const query = `
		INSERT INTO ledger_anomaly (id, tenant_id, family_id, plan_year, claim_id, kind, detail, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, family_id, plan_year, claim_id, kind) DO NOTHING`
	tag, err := db.Pick(ctx, s.pool).Exec(ctx, query,
		a.ID, a.TenantID, a.FamilyID, a.PlanYear, a.ClaimID, a.Kind, a.Detail, a.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("audit: insert anomaly: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MemorySink keeps anomalies in process.
type MemorySink struct {
	mu   sync.Mutex
	rows []*Anomaly
	seen map[anomalyKey]bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[anomalyKey]bool)}
}

func (s *MemorySink) Write(_ context.Context, a *Anomaly) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(a)
	if s.seen[k] {
		return false, nil
	}
	s.seen[k] = true
	cp := *a
	s.rows = append(s.rows, &cp)
	return true, nil
}

// List returns the anomalies recorded for a tenant.
func (s *MemorySink) List(tenantID string) []*Anomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Anomaly
	for _, a := range s.rows {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Recorder escalates anomalies to the log and the sink and writes the query
// audit trail.
type Recorder struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(sink Sink, logger zerolog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{sink: sink, logger: logger, metrics: m, now: time.Now}
}

// Escalate records a. An anomaly the sink already holds is not logged or
// counted again. Persisting is best effort; on a sink error the log line is
// still written.
func (r *Recorder) Escalate(ctx context.Context, a *Anomaly) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = r.now().UTC()
	}
	if r.sink != nil {
		added, err := r.sink.Write(context.WithoutCancel(ctx), a)
		if err != nil {
			r.logger.Error().Err(err).Str("anomaly_id", a.ID.String()).Msg("failed to persist ledger anomaly")
		} else if !added {
			return
		}
	}
	r.metrics.RecordAnomaly(a.Kind)

	level := r.logger.Warn()
	if a.Kind == KindInconsistentLedger {
		level = r.logger.Error()
	}
	level.
		Str("anomaly_id", a.ID.String()).
		Str("tenant_id", a.TenantID).
		Str("family_id", a.FamilyID).
		Int("plan_year", a.PlanYear).
		Str("claim_id", a.ClaimID).
		Str("kind", a.Kind).
		Str("detail", a.Detail).
		Msg("ledger anomaly")
}

// Query writes the audit line for one facade operation.
func (r *Recorder) Query(_ context.Context, op, tenantID, memberID string, planYear int, err error) {
	r.metrics.RecordQuery(op, err)
	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Str("error_kind", apperr.KindOf(err).String())
	}
	ev.Str("op", op).
		Str("tenant_id", tenantID).
		Str("member_id", memberID).
		Int("plan_year", planYear).
		Msg("accumulator query")
}
