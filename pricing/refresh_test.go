package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForJob(t *testing.T, refresher *Refresher, id string) JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, ok := refresher.Status(id)
		require.True(t, ok)
		if status.State != JobRunning {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("refresh job did not finish")
	return JobStatus{}
}

func TestRefresherRefreshesAllKeys(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())
	ctx := context.Background()

	keys := []Key{
		{Provider: "aws", Service: "ebs", Region: "us-east-1"},
		{Provider: "aws", Service: "rds", Region: "us-east-1"},
		{Provider: "aws", Service: "s3", Region: "eu-west-1"},
	}
	for _, key := range keys {
		_, err := resolver.GetPrice(ctx, key, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, live.callCount())

	refresher := NewRefresher(resolver, store)
	id := refresher.Start(ctx)

	status := waitForJob(t, refresher, id)
	assert.Equal(t, JobDone, status.State)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Refreshed)
	assert.Equal(t, 0, status.Failed)
	assert.Equal(t, 6, live.callCount(), "refresh forces tier-2 re-evaluation")
}

func TestRefresherCountsFailures(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	// Empty fallback: failed live lookups have nowhere to land.
	resolver := NewResolver(store, live, NewFallbackTable(nil, nil))
	ctx := context.Background()

	_, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	live.mu.Lock()
	live.err = ErrPriceNotAvailable
	live.mu.Unlock()

	refresher := NewRefresher(resolver, store)
	status := waitForJob(t, refresher, refresher.Start(ctx))

	assert.Equal(t, JobDone, status.State)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 0, status.Refreshed)
}

func TestRefresherWaitBlocksUntilDone(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())
	ctx := context.Background()

	_, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	refresher := NewRefresher(resolver, store)
	status, err := refresher.Wait(ctx, refresher.Start(ctx))
	require.NoError(t, err)
	assert.Equal(t, JobDone, status.State)
	assert.Equal(t, 1, status.Refreshed)
	assert.False(t, status.FinishedAt.IsZero())
}

func TestRefresherWaitUnknownJob(t *testing.T) {
	store := newTestStoreP(t)
	refresher := NewRefresher(NewResolver(store, nil, NewDefaultFallbackTable()), store)

	_, err := refresher.Wait(context.Background(), "no-such-job")
	assert.Error(t, err)
}

func TestRefresherUnknownJob(t *testing.T) {
	store := newTestStoreP(t)
	refresher := NewRefresher(NewResolver(store, nil, NewDefaultFallbackTable()), store)

	_, ok := refresher.Status("no-such-job")
	assert.False(t, ok)
}

func TestRefresherEmptyCache(t *testing.T) {
	store := newTestStoreP(t)
	refresher := NewRefresher(NewResolver(store, nil, NewDefaultFallbackTable()), store)

	status := waitForJob(t, refresher, refresher.Start(context.Background()))
	assert.Equal(t, JobDone, status.State)
	assert.Equal(t, 0, status.Total)
}
