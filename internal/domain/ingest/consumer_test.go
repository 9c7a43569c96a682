package ingest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/domain/tenancy"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/internal/platform/metrics"
)

const testStream = "accumulator:ingest"

type harness struct {
	client   *redis.Client
	consumer *Consumer
	claims   ledger.Ledger
	members  member.Registry
	metrics  *metrics.Metrics
}

func setup(t *testing.T) *harness {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	b := tenancy.NewBoundary(zerolog.Nop(), m)
	claims := tenancy.GuardLedger(ledger.NewMemoryLedger(), b)
	members := tenancy.GuardMembers(member.NewMemoryRegistry(), b)
	svc := Services{
		Plans:   plan.NewService(tenancy.GuardPlans(plan.NewMemoryStore(), b), zerolog.Nop()),
		Members: member.NewService(members, zerolog.Nop()),
		Claims:  ledger.NewService(claims, zerolog.Nop(), m),
	}
	c := NewConsumer(client, testStream, "accumulator", "test-1", svc, zerolog.Nop(), m)
	c.Block = -1
	require.NoError(t, c.EnsureGroup(context.Background()))
	return &harness{client: client, consumer: c, claims: claims, members: members, metrics: m}
}

func (h *harness) publish(t *testing.T, kind, tenant string, payload interface{}) {
	t.Helper()
	_, err := Publish(context.Background(), h.client, testStream, kind, tenant, payload)
	require.NoError(t, err)
}

func (h *harness) publishRaw(t *testing.T, values map[string]interface{}) {
	t.Helper()
	require.NoError(t, h.client.XAdd(context.Background(), &redis.XAddArgs{Stream: testStream, Values: values}).Err())
}

var planPayload = map[string]interface{}{
	"plan_id":               "PPO",
	"plan_year":             2024,
	"deductible_individual": "1500.00",
	"oop_max_individual":    "6000.00",
	"coinsurance_rate":      "0.20",
}

var memberPayload = map[string]interface{}{
	"member_id":  "M1",
	"plan_year":  2024,
	"plan_id":    "PPO",
	"is_primary": true,
}

func claimPayload(id, resp string) map[string]interface{} {
	return map[string]interface{}{
		"claim_id":              id,
		"member_id":             "M1",
		"service_date":          "2024-01-05",
		"claim_type":            "Medical",
		"claim_amount":          "1500.00",
		"paid_amount":           "0.00",
		"member_responsibility": resp,
		"claim_status":          "Approved",
	}
}

func TestConsumer_AppliesRecords(t *testing.T) {
	h := setup(t)
	h.publish(t, KindPlan, "acme", planPayload)
	h.publish(t, KindMember, "acme", memberPayload)
	h.publish(t, KindClaim, "acme", claimPayload("C1", "1500.00"))

	n, err := h.consumer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ctx := auth.WithTenant(context.Background(), "acme")
	e, err := h.claims.Get(ctx, "acme", "C1")
	require.NoError(t, err)
	assert.Equal(t, "acme", e.TenantID)
	assert.Equal(t, int64(1), e.Seq)

	_, err = h.members.Get(ctx, "acme", "M1", 2024)
	require.NoError(t, err)

	pending, err := h.client.XPending(context.Background(), testStream, "accumulator").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.StreamMessages.WithLabelValues(KindClaim, "ok")))
}

func TestConsumer_DuplicateClaimIsAcked(t *testing.T) {
	h := setup(t)
	h.publish(t, KindMember, "acme", memberPayload)
	h.publish(t, KindClaim, "acme", claimPayload("C1", "1500.00"))
	h.publish(t, KindClaim, "acme", claimPayload("C1", "1500.00"))

	n, err := h.consumer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dead, err := h.client.XLen(context.Background(), h.consumer.DeadLetterStream()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), dead)
}

func TestConsumer_DeadLetters(t *testing.T) {
	h := setup(t)
	h.publish(t, KindClaim, "acme", claimPayload("C1", "1500.00"))
	// Same id, different content.
	h.publish(t, KindClaim, "acme", claimPayload("C1", "10.00"))
	h.publish(t, "invoice", "acme", map[string]string{})
	h.publish(t, KindClaim, "bad tenant!", claimPayload("C2", "1.00"))
	h.publishRaw(t, map[string]interface{}{fieldKind: KindMember, fieldTenant: "acme", fieldPayload: "{not json"})

	n, err := h.consumer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	entries, err := h.client.XRange(context.Background(), h.consumer.DeadLetterStream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.NotEmpty(t, e.Values["error"])
		assert.NotEmpty(t, e.Values["source_id"])
	}
}

func TestConsumer_TenantsDoNotMix(t *testing.T) {
	h := setup(t)
	h.publish(t, KindClaim, "acme", claimPayload("C1", "1500.00"))
	h.publish(t, KindClaim, "globex", claimPayload("C1", "20.00"))

	_, err := h.consumer.ProcessOnce(context.Background())
	require.NoError(t, err)

	acme, err := h.claims.Get(auth.WithTenant(context.Background(), "acme"), "acme", "C1")
	require.NoError(t, err)
	globex, err := h.claims.Get(auth.WithTenant(context.Background(), "globex"), "globex", "C1")
	require.NoError(t, err)
	assert.Equal(t, "1500", acme.MemberResponsibility.String())
	assert.Equal(t, "20", globex.MemberResponsibility.String())
}

func TestConsumer_EnsureGroupIsIdempotent(t *testing.T) {
	h := setup(t)
	assert.NoError(t, h.consumer.EnsureGroup(context.Background()))
}

func TestConsumer_EmptyStream(t *testing.T) {
	h := setup(t)
	n, err := h.consumer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
