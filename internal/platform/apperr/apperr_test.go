package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(KindPlanRuleMissing, "plan.Get", "no rule for plan %s", "gold")
	if !errors.Is(err, ErrPlanRuleMissing) {
		t.Fatal("expected errors.Is to match ErrPlanRuleMissing")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("did not expect match against ErrNotFound")
	}
}

func TestError_WrappedChain(t *testing.T) {
	inner := New(KindInconsistentLedger, "accumulator.Replay", "orphaned reversal")
	outer := fmt.Errorf("load family: %w", inner)
	if KindOf(outer) != KindInconsistentLedger {
		t.Errorf("expected inconsistent_ledger, got %s", KindOf(outer))
	}
	if !errors.Is(outer, ErrInconsistentLedger) {
		t.Error("expected wrapped error to match sentinel")
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, "ledger.Append", cause)
	if err.Error() != "ledger.Append: internal: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("x")) != KindInternal {
		t.Error("plain errors should be internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindTenantMismatch, http.StatusNotFound},
		{KindInconsistentLedger, http.StatusNotFound},
		{KindPlanRuleMissing, http.StatusUnprocessableEntity},
		{KindCacheRaceTimeout, http.StatusServiceUnavailable},
		{KindInvalid, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := HTTPStatus(New(tt.kind, "op", "msg")); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}
