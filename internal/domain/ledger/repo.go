package ledger

import (
	"context"
	"time"
)

// Ledger is the append-only claim log.
type Ledger interface {
	// Append records e and assigns Seq. Re-appending an identical event is a
	// no-op that returns false; a different event under an existing claim id
	// is a Conflict.
	Append(ctx context.Context, e *ClaimEvent) (bool, error)
	// Get returns one event or NotFound.
	Get(ctx context.Context, tenantID, claimID string) (*ClaimEvent, error)
	// ReadFamily returns the non-reversal events of memberIDs with a service
	// date in [from, to] plus the reversals of those events, in one
	// consistent view.
	ReadFamily(ctx context.Context, tenantID string, memberIDs []string, from, to time.Time) (*Read, error)
}
