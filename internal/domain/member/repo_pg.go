package member

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type registryPG struct{ pool *pgxpool.Pool }

func NewRegistryPG(pool *pgxpool.Pool) Registry { return &registryPG{pool: pool} }

func (r *registryPG) conn(ctx context.Context) queryable {
	return db.Pick(ctx, r.pool)
}

const memberCols = `tenant_id, member_id, plan_year, plan_id, is_primary, COALESCE(dependent_of, ''), updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.TenantID, &m.MemberID, &m.PlanYear, &m.PlanID, &m.IsPrimary, &m.DependentOf, &m.UpdatedAt)
	return &m, err
}

func collect(rows pgx.Rows) ([]*Member, error) {
	defer rows.Close()
	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *registryPG) Get(ctx context.Context, tenantID, memberID string, planYear int) (*Member, error) {
	m, err := scanMember(r.conn(ctx).QueryRow(ctx, `SELECT `+memberCols+` FROM member
		WHERE tenant_id = $1 AND member_id = $2 AND plan_year = $3`, tenantID, memberID, planYear))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "member.Get", "member %s not found", memberID)
	}
	return m, err
}

func (r *registryPG) Dependents(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+memberCols+` FROM member
		WHERE tenant_id = $1 AND dependent_of = $2 AND plan_year = $3
		ORDER BY member_id`, tenantID, memberID, planYear)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *registryPG) Upsert(ctx context.Context, m *Member, check func(ctx context.Context, view Lookup) error) error {
	return db.RunInTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('member/' || $1 || '/' || $2::text))`,
			m.TenantID, m.PlanYear); err != nil {
			return fmt.Errorf("lock membership: %w", err)
		}
		if check != nil {
			if err := check(ctx, r); err != nil {
				return err
			}
		}
		var dependentOf *string
		if m.DependentOf != "" {
			dependentOf = &m.DependentOf
		}
		if err := q.QueryRow(ctx, `
			INSERT INTO member (tenant_id, member_id, plan_year, plan_id, is_primary, dependent_of)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, member_id, plan_year) DO UPDATE
			SET plan_id = EXCLUDED.plan_id, is_primary = EXCLUDED.is_primary,
				dependent_of = EXCLUDED.dependent_of, updated_at = NOW()
			RETURNING updated_at`,
			m.TenantID, m.MemberID, m.PlanYear, m.PlanID, m.IsPrimary, dependentOf,
		).Scan(&m.UpdatedAt); err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
		_, err := q.Exec(ctx, `
			INSERT INTO membership_version (tenant_id, plan_year, version) VALUES ($1, $2, 1)
			ON CONFLICT (tenant_id, plan_year) DO UPDATE SET version = membership_version.version + 1`,
			m.TenantID, m.PlanYear)
		return err
	})
}

func (r *registryPG) Household(ctx context.Context, tenantID, memberID string, planYear int) ([]*Member, int64, error) {
	var members []*Member
	var version int64
	err := db.RunInTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(ctx context.Context) error {
		q := r.conn(ctx)
		rows, err := q.Query(ctx, `
			WITH RECURSIVE up AS (
				SELECT member_id, dependent_of, 0 AS depth FROM member
				WHERE tenant_id = $1 AND member_id = $2 AND plan_year = $3
				UNION
				SELECT m.member_id, m.dependent_of, up.depth + 1 FROM member m
				JOIN up ON m.member_id = up.dependent_of
				WHERE m.tenant_id = $1 AND m.plan_year = $3 AND up.depth < $4
			),
			top AS (
				SELECT member_id FROM up ORDER BY depth DESC LIMIT 1
			),
			down AS (
				SELECT member_id FROM top
				UNION
				SELECT m.member_id FROM member m
				JOIN down ON m.dependent_of = down.member_id
				WHERE m.tenant_id = $1 AND m.plan_year = $3
			)
			SELECT `+memberCols+` FROM member
			WHERE tenant_id = $1 AND plan_year = $3
			  AND (member_id IN (SELECT member_id FROM up) OR member_id IN (SELECT member_id FROM down))`,
			tenantID, memberID, planYear, maxChainDepth)
		if err != nil {
			return err
		}
		if members, err = collect(rows); err != nil {
			return err
		}
		if len(members) == 0 {
			return apperr.New(apperr.KindNotFound, "member.Household", "member %s not found", memberID)
		}
		return q.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM membership_version
			WHERE tenant_id = $1 AND plan_year = $2`, tenantID, planYear).Scan(&version)
	})
	return members, version, err
}

func (r *registryPG) Version(ctx context.Context, tenantID string, planYear int) (int64, error) {
	var v int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM membership_version
		WHERE tenant_id = $1 AND plan_year = $2`, tenantID, planYear).Scan(&v)
	return v, err
}
