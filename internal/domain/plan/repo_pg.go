package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) conn(ctx context.Context) queryable {
	return db.Pick(ctx, s.pool)
}

const ruleCols = `tenant_id, plan_id, plan_year, version, effective_date, plan_name, plan_type,
	monthly_premium::text, deductible_individual::text, deductible_family::text,
	oop_max_individual::text, oop_max_family::text, coinsurance_rate::text,
	copays, rx_copays, created_at`

func (s *storePG) scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var effective *time.Time
	var premium, dedInd, dedFam, oopInd, oopFam, coins string
	var copays, rxCopays []byte
	err := row.Scan(&r.TenantID, &r.PlanID, &r.PlanYear, &r.Version, &effective, &r.PlanName, &r.PlanType,
		&premium, &dedInd, &dedFam, &oopInd, &oopFam, &coins,
		&copays, &rxCopays, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if effective != nil {
		r.EffectiveDate = *effective
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&r.MonthlyPremium, premium},
		{&r.DeductibleIndividual, dedInd},
		{&r.DeductibleFamily, dedFam},
		{&r.OOPMaxIndividual, oopInd},
		{&r.OOPMaxFamily, oopFam},
		{&r.CoinsuranceRate, coins},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("scan plan rule amount: %w", err)
		}
		*f.dst = d
	}
	if err := json.Unmarshal(copays, &r.Copays); err != nil {
		return nil, fmt.Errorf("scan copays: %w", err)
	}
	if err := json.Unmarshal(rxCopays, &r.RxCopays); err != nil {
		return nil, fmt.Errorf("scan rx copays: %w", err)
	}
	return &r, nil
}

func (s *storePG) Put(ctx context.Context, r *Rule) error {
	copays, err := json.Marshal(nonNil(r.Copays))
	if err != nil {
		return err
	}
	rxCopays, err := json.Marshal(nonNil(r.RxCopays))
	if err != nil {
		return err
	}
	var effective *time.Time
	if !r.EffectiveDate.IsZero() {
		effective = &r.EffectiveDate
	}

	// Serialize concurrent puts for the same plan year so versions stay dense.
	return db.RunInTx(ctx, s.pool, pgx.TxOptions{}, func(ctx context.Context) error {
		q := s.conn(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2 || '/' || $3::text))`,
			r.TenantID, r.PlanID, r.PlanYear); err != nil {
			return fmt.Errorf("lock plan rule: %w", err)
		}
		return q.QueryRow(ctx, `
			INSERT INTO plan_rule (tenant_id, plan_id, plan_year, version, effective_date, plan_name, plan_type,
				monthly_premium, deductible_individual, deductible_family,
				oop_max_individual, oop_max_family, coinsurance_rate, copays, rx_copays)
			SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, $5, $6,
				$7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13, $14
			FROM plan_rule WHERE tenant_id = $1 AND plan_id = $2 AND plan_year = $3
			RETURNING version, created_at`,
			r.TenantID, r.PlanID, r.PlanYear, effective, r.PlanName, r.PlanType,
			r.MonthlyPremium.String(), r.DeductibleIndividual.String(), r.DeductibleFamily.String(),
			r.OOPMaxIndividual.String(), r.OOPMaxFamily.String(), r.CoinsuranceRate.String(),
			copays, rxCopays,
		).Scan(&r.Version, &r.CreatedAt)
	})
}

func (s *storePG) Get(ctx context.Context, tenantID, planID string, planYear int, asOf time.Time) (*Rule, error) {
	r, err := s.scanRule(s.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM plan_rule
		WHERE tenant_id = $1 AND plan_id = $2 AND plan_year = $3
		  AND (effective_date IS NULL OR effective_date <= $4)
		ORDER BY version DESC LIMIT 1`, tenantID, planID, planYear, asOf))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindPlanRuleMissing, "plan.Get",
			"no plan rule for plan %s year %d", planID, planYear)
	}
	return r, err
}

func (s *storePG) ListVersions(ctx context.Context, tenantID, planID string, planYear int) ([]*Rule, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM plan_rule
		WHERE tenant_id = $1 AND plan_id = $2 AND plan_year = $3
		ORDER BY version`, tenantID, planID, planYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Rule
	for rows.Next() {
		r, err := s.scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	if m == nil {
		return map[string]decimal.Decimal{}
	}
	return m
}
