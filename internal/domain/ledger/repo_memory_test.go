package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benefits/accumulator/internal/platform/apperr"
)

func TestMemoryLedger_AppendAssignsSeq(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	c1 := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	c2 := approved("C2", "M1", day(2024, time.March, 10), 500, 100)
	for _, c := range []*ClaimEvent{c1, c2} {
		ok, err := l.Append(ctx, c)
		if err != nil || !ok {
			t.Fatalf("Append(%s) = %v, %v", c.ClaimID, ok, err)
		}
	}
	if c1.Seq >= c2.Seq {
		t.Errorf("expected increasing seq, got %d then %d", c1.Seq, c2.Seq)
	}
}

func TestMemoryLedger_AppendIsIdempotent(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	c1 := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	l.Append(ctx, c1)

	again := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	ok, err := l.Append(ctx, again)
	if err != nil || ok {
		t.Fatalf("expected no-op, got %v, %v", ok, err)
	}
	if again.Seq != c1.Seq {
		t.Errorf("duplicate should report original seq %d, got %d", c1.Seq, again.Seq)
	}

	changed := approved("C1", "M1", day(2024, time.January, 5), 2000, 1000)
	if _, err := l.Append(ctx, changed); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestMemoryLedger_ReversalRules(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	c1 := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	l.Append(ctx, c1)

	denied := approved("C2", "M1", day(2024, time.January, 6), 100, 0)
	denied.ClaimStatus = StatusDenied
	l.Append(ctx, denied)

	orphan := reversal("R0", approved("C9", "M1", day(2024, time.January, 5), 1, 1))
	if _, err := l.Append(ctx, orphan); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("orphan reversal: expected Invalid, got %v", err)
	}
	if _, err := l.Append(ctx, reversal("R1", denied)); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("reversal of denied claim: expected Invalid, got %v", err)
	}
	if ok, err := l.Append(ctx, reversal("R2", c1)); err != nil || !ok {
		t.Fatalf("reversal: %v, %v", ok, err)
	}
	if _, err := l.Append(ctx, reversal("R3", c1)); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("double reversal: expected Conflict, got %v", err)
	}
}

func TestMemoryLedger_ReadFamily(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	c1 := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	l.Append(ctx, c1)
	l.Append(ctx, approved("C2", "M2", day(2024, time.June, 1), 300, 50))
	l.Append(ctx, approved("C3", "M1", day(2023, time.December, 30), 300, 50))
	l.Append(ctx, approved("C4", "M9", day(2024, time.June, 1), 300, 50))
	r := reversal("R1", c1)
	r.ServiceDate = day(2025, time.January, 3)
	l.Append(ctx, r)

	from, to := day(2024, time.January, 1), day(2024, time.December, 31)
	read, err := l.ReadFamily(ctx, "acme", []string{"M1", "M2"}, from, to)
	if err != nil {
		t.Fatalf("ReadFamily: %v", err)
	}
	ids := map[string]bool{}
	for _, e := range read.Claims {
		ids[e.ClaimID] = true
	}
	for _, want := range []string{"C1", "C2", "R1"} {
		if !ids[want] {
			t.Errorf("expected %s in family read", want)
		}
	}
	if ids["C3"] || ids["C4"] {
		t.Errorf("read leaked out-of-year or non-family claims: %v", ids)
	}
	if read.Head.Count != 3 || read.Head.MaxSeq != r.Seq {
		t.Errorf("unexpected head %+v", read.Head)
	}
}

func TestMemoryLedger_TenantIsolation(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	a := approved("C1", "M1", day(2024, time.January, 5), 2000, 1500)
	b := approved("C1", "M1", day(2024, time.January, 5), 900, 900)
	b.TenantID = "globex"
	if _, err := l.Append(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(ctx, b); err != nil {
		t.Fatalf("same claim id in another tenant must not conflict: %v", err)
	}

	from, to := day(2024, time.January, 1), day(2024, time.December, 31)
	read, _ := l.ReadFamily(ctx, "globex", []string{"M1"}, from, to)
	if len(read.Claims) != 1 || read.Claims[0].TenantID != "globex" {
		t.Fatalf("expected only globex claim, got %+v", read.Claims)
	}
}

func TestMemoryLedger_ConcurrentAppends(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := approved(string(rune('A'+i%26))+string(rune('a'+i/26)), "M1", day(2024, time.May, 1), 10, 1)
			l.Append(ctx, c)
		}(i)
	}
	wg.Wait()

	from, to := day(2024, time.January, 1), day(2024, time.December, 31)
	read, _ := l.ReadFamily(ctx, "acme", []string{"M1"}, from, to)
	if read.Head.Count != 50 || read.Head.MaxSeq != 50 {
		t.Errorf("expected 50 events ending at seq 50, got %+v", read.Head)
	}
}
