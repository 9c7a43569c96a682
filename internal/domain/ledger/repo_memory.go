package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/pkg/dates"
)

type claimKey struct {
	tenantID string
	claimID  string
}

type memoryLedger struct {
	mu       sync.RWMutex
	seq      int64
	events   map[claimKey]*ClaimEvent
	reversed map[claimKey]string
	byMember map[claimKey][]*ClaimEvent
	now      func() time.Time
}

// NewMemoryLedger returns an in-process Ledger.
func NewMemoryLedger() Ledger {
	return &memoryLedger{
		events:   make(map[claimKey]*ClaimEvent),
		reversed: make(map[claimKey]string),
		byMember: make(map[claimKey][]*ClaimEvent),
		now:      time.Now,
	}
}

func (l *memoryLedger) Append(_ context.Context, e *ClaimEvent) (bool, error) {
	const op = "ledger.Append"
	l.mu.Lock()
	defer l.mu.Unlock()

	k := claimKey{e.TenantID, e.ClaimID}
	if existing, ok := l.events[k]; ok {
		if existing.SameContent(e) {
			e.Seq, e.RecordedAt = existing.Seq, existing.RecordedAt
			return false, nil
		}
		return false, apperr.New(apperr.KindConflict, op, "claim %s already recorded with different content", e.ClaimID)
	}

	if e.ClaimStatus == StatusReversed {
		target, ok := l.events[claimKey{e.TenantID, e.ReversesClaimID}]
		if err := checkReversalTarget(e, target, ok); err != nil {
			return false, err
		}
		if by, done := l.reversed[claimKey{e.TenantID, e.ReversesClaimID}]; done {
			return false, apperr.New(apperr.KindConflict, op, "claim %s already reversed by %s", e.ReversesClaimID, by)
		}
		l.reversed[claimKey{e.TenantID, e.ReversesClaimID}] = e.ClaimID
	}

	l.seq++
	cp := *e
	cp.ServiceDate = dates.Day(e.ServiceDate)
	cp.Seq = l.seq
	cp.RecordedAt = l.now()
	l.events[k] = &cp
	mk := claimKey{e.TenantID, e.MemberID}
	l.byMember[mk] = append(l.byMember[mk], &cp)
	e.Seq, e.RecordedAt = cp.Seq, cp.RecordedAt
	return true, nil
}

// checkReversalTarget enforces that a reversal names an existing Approved
// claim of the same member.
func checkReversalTarget(e, target *ClaimEvent, found bool) error {
	const op = "ledger.Append"
	if !found {
		return apperr.New(apperr.KindInvalid, op, "reversal %s names unknown claim %s", e.ClaimID, e.ReversesClaimID)
	}
	if target.ClaimStatus != StatusApproved {
		return apperr.New(apperr.KindInvalid, op, "reversal %s targets %s claim %s", e.ClaimID, target.ClaimStatus, target.ClaimID)
	}
	if target.MemberID != e.MemberID {
		return apperr.New(apperr.KindInvalid, op, "reversal %s is for a different member than claim %s", e.ClaimID, target.ClaimID)
	}
	return nil
}

func (l *memoryLedger) Get(_ context.Context, tenantID, claimID string) (*ClaimEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.events[claimKey{tenantID, claimID}]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "ledger.Get", "claim %s not found", claimID)
	}
	cp := *e
	return &cp, nil
}

func (l *memoryLedger) ReadFamily(_ context.Context, tenantID string, memberIDs []string, from, to time.Time) (*Read, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	read := &Read{}
	inRange := make(map[string]bool)
	var reversals []*ClaimEvent
	for _, id := range memberIDs {
		for _, e := range l.byMember[claimKey{tenantID, id}] {
			if e.ClaimStatus == StatusReversed {
				reversals = append(reversals, e)
				continue
			}
			if e.ServiceDate.Before(from) || e.ServiceDate.After(to) {
				continue
			}
			inRange[e.ClaimID] = true
			cp := *e
			read.Claims = append(read.Claims, &cp)
		}
	}
	for _, e := range reversals {
		if !inRange[e.ReversesClaimID] {
			continue
		}
		cp := *e
		read.Claims = append(read.Claims, &cp)
	}
	for _, e := range read.Claims {
		read.Head.Count++
		if e.Seq > read.Head.MaxSeq {
			read.Head.MaxSeq = e.Seq
		}
	}
	return read, nil
}
