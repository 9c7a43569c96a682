package member

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/db/dbtest"
)

func TestRegistryPG_Family(t *testing.T) {
	svc := NewService(NewRegistryPG(dbtest.Pool(t)), zerolog.Nop())
	ctx := context.Background()

	for _, m := range []*Member{primary("M1"), dependent("M2", "M1"), dependent("M3", "M2")} {
		if err := svc.Register(ctx, m); err != nil {
			t.Fatalf("Register(%s): %v", m.MemberID, err)
		}
	}

	fam, version, err := svc.Family(ctx, "acme", "M3", 2024)
	if err != nil {
		t.Fatalf("Family: %v", err)
	}
	if fam.FamilyID != "M1" || len(fam.MemberIDs) != 3 {
		t.Errorf("unexpected family: %+v", fam)
	}
	if version != 3 {
		t.Errorf("expected membership version 3, got %d", version)
	}

	if err := svc.Register(ctx, dependent("M2", "M3")); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected Invalid for cycle, got %v", err)
	}
	if _, _, err := svc.Family(ctx, "globex", "M1", 2024); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound for another tenant, got %v", err)
	}
}
