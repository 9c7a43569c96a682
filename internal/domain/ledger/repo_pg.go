package ledger

import (
	"context"
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

type ledgerPG struct{ pool *pgxpool.Pool }

func NewLedgerPG(pool *pgxpool.Pool) Ledger { return &ledgerPG{pool: pool} }

func (l *ledgerPG) conn(ctx context.Context) queryable {
	return db.Pick(ctx, l.pool)
}

const claimCols = `tenant_id, claim_id, member_id, service_date, claim_type,
	claim_amount::text, paid_amount::text, member_responsibility::text, deductible_amount::text,
	claim_status, COALESCE(reverses_claim_id, ''), seq, recorded_at`

func scanClaim(row pgx.Row) (*ClaimEvent, error) {
	var e ClaimEvent
	var claimAmt, paidAmt, respAmt string
	var dedAmt *string
	err := row.Scan(&e.TenantID, &e.ClaimID, &e.MemberID, &e.ServiceDate, &e.ClaimType,
		&claimAmt, &paidAmt, &respAmt, &dedAmt,
		&e.ClaimStatus, &e.ReversesClaimID, &e.Seq, &e.RecordedAt)
	if err != nil {
		return nil, err
	}
	if e.ClaimAmount, err = decimal.NewFromString(claimAmt); err != nil {
		return nil, fmt.Errorf("scan claim_amount: %w", err)
	}
	if e.PaidAmount, err = decimal.NewFromString(paidAmt); err != nil {
		return nil, fmt.Errorf("scan paid_amount: %w", err)
	}
	if e.MemberResponsibility, err = decimal.NewFromString(respAmt); err != nil {
		return nil, fmt.Errorf("scan member_responsibility: %w", err)
	}
	if dedAmt != nil {
		d, err := decimal.NewFromString(*dedAmt)
		if err != nil {
			return nil, fmt.Errorf("scan deductible_amount: %w", err)
		}
		e.DeductibleAmount = &d
	}
	return &e, nil
}

func (l *ledgerPG) Append(ctx context.Context, e *ClaimEvent) (bool, error) {
	const op = "ledger.Append"
	appended := false
	err := db.RunInTx(ctx, l.pool, pgx.TxOptions{}, func(ctx context.Context) error {
		q := l.conn(ctx)

		if e.ClaimStatus == StatusReversed {
			target, err := scanClaim(q.QueryRow(ctx, `SELECT `+claimCols+` FROM claim_event
				WHERE tenant_id = $1 AND claim_id = $2 FOR SHARE`, e.TenantID, e.ReversesClaimID))
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err := checkReversalTarget(e, target, err == nil); err != nil {
				return err
			}
		}

		var reverses, dedAmt *string
		if e.ReversesClaimID != "" {
			reverses = &e.ReversesClaimID
		}
		if e.DeductibleAmount != nil {
			s := e.DeductibleAmount.String()
			dedAmt = &s
		}
		err := q.QueryRow(ctx, `
			INSERT INTO claim_event (tenant_id, claim_id, member_id, service_date, claim_type,
				claim_amount, paid_amount, member_responsibility, deductible_amount, claim_status, reverses_claim_id)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11)
			ON CONFLICT (tenant_id, claim_id) DO NOTHING
			RETURNING seq, recorded_at`,
			e.TenantID, e.ClaimID, e.MemberID, e.ServiceDate, e.ClaimType,
			e.ClaimAmount.String(), e.PaidAmount.String(), e.MemberResponsibility.String(), dedAmt,
			e.ClaimStatus, reverses,
		).Scan(&e.Seq, &e.RecordedAt)
		if err == nil {
			appended = true
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.New(apperr.KindConflict, op, "claim %s already reversed", e.ReversesClaimID)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("insert claim: %w", err)
		}

		existing, err := scanClaim(q.QueryRow(ctx, `SELECT `+claimCols+` FROM claim_event
			WHERE tenant_id = $1 AND claim_id = $2`, e.TenantID, e.ClaimID))
		if err != nil {
			return fmt.Errorf("load existing claim: %w", err)
		}
		if !existing.SameContent(e) {
			return apperr.New(apperr.KindConflict, op, "claim %s already recorded with different content", e.ClaimID)
		}
		e.Seq, e.RecordedAt = existing.Seq, existing.RecordedAt
		return nil
	})
	return appended, err
}

func (l *ledgerPG) Get(ctx context.Context, tenantID, claimID string) (*ClaimEvent, error) {
	e, err := scanClaim(l.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claim_event
		WHERE tenant_id = $1 AND claim_id = $2`, tenantID, claimID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "ledger.Get", "claim %s not found", claimID)
	}
	return e, err
}

func (l *ledgerPG) ReadFamily(ctx context.Context, tenantID string, memberIDs []string, from, to time.Time) (*Read, error) {
	read := &Read{}
	err := db.RunInTx(ctx, l.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(ctx context.Context) error {
		rows, err := l.conn(ctx).Query(ctx, `
			WITH base AS (
				SELECT `+claimCols+` FROM claim_event
				WHERE tenant_id = $1 AND member_id = ANY($2)
				  AND claim_status <> 'Reversed'
				  AND service_date BETWEEN $3 AND $4
			)
			SELECT * FROM base
			UNION ALL
			SELECT `+claimCols+` FROM claim_event
			WHERE tenant_id = $1 AND claim_status = 'Reversed'
			  AND reverses_claim_id IN (SELECT claim_id FROM base)`,
			tenantID, memberIDs, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanClaim(rows)
			if err != nil {
				return err
			}
			read.Claims = append(read.Claims, e)
			read.Head.Count++
			if e.Seq > read.Head.MaxSeq {
				read.Head.MaxSeq = e.Seq
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return read, nil
}
