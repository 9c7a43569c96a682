package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the accumulator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Ledger
	ClaimsAppended  *prometheus.CounterVec
	LedgerAnomalies *prometheus.CounterVec

	// Replay and cache
	Replays           *prometheus.CounterVec
	ReplayDuration    prometheus.Histogram
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	CacheRaceTimeouts prometheus.Counter

	// Query surface
	Queries          *prometheus.CounterVec
	TenantMismatches prometheus.Counter

	// Stream ingestion
	StreamMessages *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClaimsAppended: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_claims_appended_total",
				Help: "Claim events appended to the ledger",
			},
			[]string{"claim_type", "claim_status", "result"},
		),
		LedgerAnomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_ledger_anomalies_total",
				Help: "Ledger anomalies recorded to the audit channel",
			},
			[]string{"kind"},
		),
		Replays: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_replays_total",
				Help: "Family ledger replays executed",
			},
			[]string{"result"},
		),
		ReplayDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "accumulator_replay_duration_seconds",
				Help:    "Duration of a family ledger replay",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_cache_hits_total",
				Help: "Snapshot cache hits",
			},
			[]string{"store"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_cache_misses_total",
				Help: "Snapshot cache misses",
			},
			[]string{"store"},
		),
		CacheRaceTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "accumulator_cache_race_timeouts_total",
				Help: "Replay waits that timed out and force-released the key",
			},
		),
		Queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_queries_total",
				Help: "Query facade calls",
			},
			[]string{"operation", "result"},
		),
		TenantMismatches: f.NewCounter(
			prometheus.CounterOpts{
				Name: "accumulator_tenant_mismatches_total",
				Help: "Requests rejected at the tenant boundary",
			},
		),
		StreamMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accumulator_stream_messages_total",
				Help: "Ingestion stream messages processed",
			},
			[]string{"kind", "result"},
		),
	}
}

func (m *Metrics) RecordAppend(claimType, status string, appended bool, err error) {
	if m == nil {
		return
	}
	result := "appended"
	switch {
	case err != nil:
		result = "error"
	case !appended:
		result = "duplicate"
	}
	m.ClaimsAppended.WithLabelValues(claimType, status, result).Inc()
}

func (m *Metrics) RecordAnomaly(kind string) {
	if m == nil {
		return
	}
	m.LedgerAnomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordReplay(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Replays.WithLabelValues(result(err)).Inc()
	m.ReplayDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordCacheHit(store string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(store).Inc()
}

func (m *Metrics) RecordCacheMiss(store string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(store).Inc()
}

func (m *Metrics) RecordCacheRaceTimeout() {
	if m == nil {
		return
	}
	m.CacheRaceTimeouts.Inc()
}

func (m *Metrics) RecordQuery(operation string, err error) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) RecordTenantMismatch() {
	if m == nil {
		return
	}
	m.TenantMismatches.Inc()
}

func (m *Metrics) RecordStreamMessage(kind string, err error) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
