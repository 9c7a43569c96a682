// Package ingest consumes plan, member and claim records from a Redis stream.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/internal/platform/metrics"
)

// Message kinds carried in the "kind" field.
const (
	KindPlan   = "plan"
	KindMember = "member"
	KindClaim  = "claim"
)

// Stream message fields.
const (
	fieldKind    = "kind"
	fieldTenant  = "tenant_id"
	fieldPayload = "payload"
)

// errPoison marks a message that can never succeed.
var errPoison = errors.New("poison message")

// Consumer reads one stream as a member of a consumer group. Messages are
// acknowledged once applied or once they are known never to apply; the
// latter are copied to the dead-letter stream first. Anything else stays
// pending for redelivery.
type Consumer struct {
	client  *redis.Client
	stream  string
	group   string
	name    string
	plans   *plan.Service
	members *member.Service
	claims  *ledger.Service
	logger  zerolog.Logger
	metrics *metrics.Metrics
	// Block is the XREADGROUP wait; negative means do not block.
	Block time.Duration
	Count int64
}

type Services struct {
	Plans   *plan.Service
	Members *member.Service
	Claims  *ledger.Service
}

func NewConsumer(client *redis.Client, stream, group, name string, svc Services, logger zerolog.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		client:  client,
		stream:  stream,
		group:   group,
		name:    name,
		plans:   svc.Plans,
		members: svc.Members,
		claims:  svc.Claims,
		logger:  logger,
		metrics: m,
		Block:   5 * time.Second,
		Count:   100,
	}
}

// DeadLetterStream is where poison messages are copied before being acked.
func (c *Consumer) DeadLetterStream() string {
	return c.stream + ":dead"
}

// EnsureGroup creates the consumer group and stream if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("stream", c.stream).Str("group", c.group).Str("consumer", c.name).Msg("ingest consumer started")
	for {
		if _, err := c.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("ingest read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOnce reads one batch and returns how many messages were acknowledged.
func (c *Consumer) ProcessOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.Count,
		Block:    c.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			kind, _ := msg.Values[fieldKind].(string)
			err := c.handle(ctx, msg)
			c.metrics.RecordStreamMessage(kind, err)
			switch {
			case err == nil:
			case errors.Is(err, errPoison):
				c.logger.Warn().Err(err).Str("message_id", msg.ID).Str("kind", kind).Msg("dead-lettering ingest message")
				if dlErr := c.deadLetter(ctx, msg, err); dlErr != nil {
					c.logger.Error().Err(dlErr).Str("message_id", msg.ID).Msg("dead-letter write failed")
					continue
				}
			default:
				c.logger.Error().Err(err).Str("message_id", msg.ID).Str("kind", kind).Msg("ingest message failed, leaving pending")
				continue
			}
			if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
				return acked, fmt.Errorf("ack %s: %w", msg.ID, err)
			}
			acked++
		}
	}
	return acked, nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	kind, _ := msg.Values[fieldKind].(string)
	tenantID, _ := msg.Values[fieldTenant].(string)
	payload, _ := msg.Values[fieldPayload].(string)
	if !auth.ValidTenantID(tenantID) {
		return fmt.Errorf("%w: invalid tenant_id %q", errPoison, tenantID)
	}
	ctx = auth.WithTenant(ctx, tenantID)

	var err error
	switch kind {
	case KindPlan:
		var r plan.Rule
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return fmt.Errorf("%w: decode plan: %v", errPoison, err)
		}
		r.TenantID, r.Version = tenantID, 0
		err = c.plans.Define(ctx, &r)
	case KindMember:
		var m member.Member
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return fmt.Errorf("%w: decode member: %v", errPoison, err)
		}
		m.TenantID = tenantID
		err = c.members.Register(ctx, &m)
	case KindClaim:
		var e ledger.ClaimEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return fmt.Errorf("%w: decode claim: %v", errPoison, err)
		}
		e.TenantID, e.Seq = tenantID, 0
		_, err = c.claims.Record(ctx, &e)
	default:
		return fmt.Errorf("%w: unknown kind %q", errPoison, kind)
	}
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindInvalid, apperr.KindConflict, apperr.KindTenantMismatch:
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, cause error) error {
	values := make(map[string]interface{}, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["error"] = cause.Error()
	values["source_id"] = msg.ID
	return c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.DeadLetterStream(), Values: values}).Err()
}

// Publish adds one record to stream. Producers and the seed command use it.
func Publish(ctx context.Context, client *redis.Client, stream, kind, tenantID string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			fieldKind:    kind,
			fieldTenant:  tenantID,
			fieldPayload: string(data),
		},
	}).Result()
}
