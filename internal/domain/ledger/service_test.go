package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_OnAppendRunsForNewEventsOnly(t *testing.T) {
	svc := NewService(NewMemoryLedger(), zerolog.Nop(), nil)
	var seen []string
	svc.OnAppend(func(_ context.Context, e *ClaimEvent) {
		seen = append(seen, e.ClaimID)
	})
	ctx := context.Background()

	c1 := approved("C1", "M1", day(2024, 1, 5), 2000, 1500)
	ok, err := svc.Record(ctx, c1)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := approved("C1", "M1", day(2024, 1, 5), 2000, 1500)
	ok, err = svc.Record(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Record(ctx, reversal("R1", c1))
	require.NoError(t, err)

	assert.Equal(t, []string{"C1", "R1"}, seen)
}

func TestService_OnAppendSkippedOnError(t *testing.T) {
	svc := NewService(NewMemoryLedger(), zerolog.Nop(), nil)
	called := false
	svc.OnAppend(func(context.Context, *ClaimEvent) { called = true })

	orphan := reversal("R1", approved("C9", "M1", day(2024, 1, 5), 100, 100))
	_, err := svc.Record(context.Background(), orphan)
	require.Error(t, err)
	assert.False(t, called)
}
