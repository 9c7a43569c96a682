package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/db/dbtest"
)

func TestStorePG_Versions(t *testing.T) {
	s := NewStorePG(dbtest.Pool(t))
	ctx := context.Background()

	base := testRule("acme")
	base.Copays = map[string]decimal.Decimal{"office_visit": decimal.NewFromInt(25)}
	if err := s.Put(ctx, base); err != nil {
		t.Fatalf("Put: %v", err)
	}
	correction := testRule("acme")
	correction.EffectiveDate = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	correction.DeductibleIndividual = decimal.NewFromInt(1000)
	if err := s.Put(ctx, correction); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if base.Version != 1 || correction.Version != 2 {
		t.Fatalf("expected versions 1 and 2, got %d and %d", base.Version, correction.Version)
	}

	early, err := s.Get(ctx, "acme", "PPO-GOLD", 2024, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if early.Version != 1 || !early.Copays["office_visit"].Equal(decimal.NewFromInt(25)) {
		t.Errorf("unexpected early rule %+v", early)
	}
	late, err := s.Get(ctx, "acme", "PPO-GOLD", 2024, YearEnd(2024))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if late.Version != 2 || !late.DeductibleIndividual.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unexpected late rule %+v", late)
	}

	versions, err := s.ListVersions(ctx, "acme", "PPO-GOLD", 2024)
	if err != nil || len(versions) != 2 {
		t.Fatalf("ListVersions = %d, %v", len(versions), err)
	}
}

func TestStorePG_MissingAndTenantScoped(t *testing.T) {
	s := NewStorePG(dbtest.Pool(t))
	ctx := context.Background()
	s.Put(ctx, testRule("acme"))

	_, err := s.Get(ctx, "globex", "PPO-GOLD", 2024, YearEnd(2024))
	if !errors.Is(err, apperr.ErrPlanRuleMissing) {
		t.Fatalf("expected PlanRuleMissing for another tenant, got %v", err)
	}
}
