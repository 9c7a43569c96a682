package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	d, err := Parse("1500.00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expected 1500, got %s", d)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"-1.00", "12.345", "abc"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestRound(t *testing.T) {
	if got := Round(decimal.RequireFromString("10.005")); got.String() != "10.01" {
		t.Errorf("expected 10.01, got %s", got)
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(decimal.NewFromInt(100), decimal.NewFromInt(150)); !got.IsZero() {
		t.Errorf("expected 0, got %s", got)
	}
	if got := Remaining(decimal.NewFromInt(100), decimal.NewFromInt(40)); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected 60, got %s", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(decimal.NewFromInt(750), decimal.NewFromInt(1500)); got.String() != "0.5" {
		t.Errorf("expected 0.5, got %s", got)
	}
	if got := Ratio(decimal.NewFromInt(2000), decimal.NewFromInt(1500)); got.String() != "1" {
		t.Errorf("expected 1, got %s", got)
	}
	if got := Ratio(decimal.Zero, decimal.Zero); got.String() != "1" {
		t.Errorf("expected 1 for zero ceiling, got %s", got)
	}
}
