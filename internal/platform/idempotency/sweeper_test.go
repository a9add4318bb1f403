package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingCleanupStore struct{ *MemoryStore }

func (failingCleanupStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, errors.New("firestore: deadline exceeded")
}

func TestSweepOnceRemovesExpiredRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)
	for _, key := range []string{"a", "b", "c"} {
		_, err := store.Reserve(ctx, key, "fp", past, time.Hour)
		require.NoError(t, err)
	}
	_, err := store.Reserve(ctx, "live", "fp", time.Now(), time.Hour)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	require.Equal(t, 2, sweepOnce(ctx, store, 2, zap.New(core)))
	require.Equal(t, 1, sweepOnce(ctx, store, 2, zap.New(core)))
	require.Equal(t, 0, sweepOnce(ctx, store, 2, zap.New(core)))
	require.Equal(t, 2, logs.FilterMessage("idempotency sweep removed records").Len())

	res, err := store.Reserve(ctx, "live", "fp", time.Now(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, ReservationStatePending, res.State)
}

func TestSweepOnceLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.Zero(t, sweepOnce(context.Background(), failingCleanupStore{NewMemoryStore()}, 10, zap.New(core)))
	require.Equal(t, 1, logs.FilterMessage("idempotency sweep failed").Len())
}

func TestSweepStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Sweep(ctx, NewMemoryStore(), time.Millisecond, 10, nil) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.NoError(t, Sweep(context.Background(), NewMemoryStore(), 0, 10, nil))
}
