package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scrimp/storage"
)

type fakeLive struct {
	mu    sync.Mutex
	calls int
	price float64
	unit  string
	err   error
}

func (f *fakeLive) LookupLivePrice(_ context.Context, _, _, _ string) (float64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, "", f.err
	}
	return f.price, f.unit, nil
}

func (f *fakeLive) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStoreP(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

var testKey = Key{Provider: "aws", Service: "ebs", Region: "us-east-1"}

func TestGetPriceLiveHit(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())

	quote, err := resolver.GetPrice(context.Background(), testKey, false)
	require.NoError(t, err)

	assert.Equal(t, 0.08, quote.PricePerUnit)
	assert.Equal(t, "GB-month", quote.Unit)
	assert.Equal(t, SourceAPI, quote.Source)
	assert.False(t, quote.Cached)
	assert.Equal(t, 1, live.callCount())

	// Written back to cache.
	entry, ok, err := store.Get(testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SourceAPI, entry.Source)
}

func TestGetPriceCacheHitSkipsLive(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())
	ctx := context.Background()

	_, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	quote, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	assert.True(t, quote.Cached)
	assert.Equal(t, SourceAPI, quote.Source)
	assert.Equal(t, 1, live.callCount(), "hot path must not call the live source")
}

func TestGetPriceFallbackOnLiveFailure(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{err: ErrPriceNotAvailable}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())

	quote, err := resolver.GetPrice(context.Background(), testKey, false)
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, quote.Source)
	assert.Equal(t, 0.08, quote.PricePerUnit)

	// The fallback is persisted so the failing live lookup is not retried
	// within the TTL window.
	quote, err = resolver.GetPrice(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.True(t, quote.Cached)
	assert.Equal(t, SourceFallback, quote.Source)
	assert.Equal(t, 1, live.callCount())
}

func TestGetPriceDefaultForUnknownService(t *testing.T) {
	store := newTestStoreP(t)
	resolver := NewResolver(store, &fakeLive{err: ErrPriceNotAvailable}, NewDefaultFallbackTable())

	key := Key{Provider: "aws", Service: "quantum_annealer", Region: "us-east-1"}
	quote, err := resolver.GetPrice(context.Background(), key, false)
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, quote.Source)
	assert.Equal(t, 0.05, quote.PricePerUnit, "conservative default, not a failure")
}

func TestGetPriceNoDefaultErrors(t *testing.T) {
	store := newTestStoreP(t)
	empty := NewFallbackTable(nil, nil)
	resolver := NewResolver(store, &fakeLive{err: ErrPriceNotAvailable}, empty)

	_, err := resolver.GetPrice(context.Background(), testKey, false)
	require.ErrorIs(t, err, ErrPriceNotAvailable)
}

func TestGetPriceNilLiveSourceFallsThrough(t *testing.T) {
	store := newTestStoreP(t)
	resolver := NewResolver(store, nil, NewDefaultFallbackTable())

	quote, err := resolver.GetPrice(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, quote.Source)
}

func TestGetPriceForceRefresh(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())
	ctx := context.Background()

	_, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	live.mu.Lock()
	live.price = 0.10
	live.mu.Unlock()

	quote, err := resolver.GetPrice(ctx, testKey, true)
	require.NoError(t, err)
	assert.Equal(t, 0.10, quote.PricePerUnit, "forceRefresh bypasses a fresh cache entry")
	assert.Equal(t, 2, live.callCount())
}

func TestGetPriceExpiredEntryRefetches(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	resolver := NewResolver(store, live, NewDefaultFallbackTable()).
		WithClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)

	// One second past expiry.
	current = current.Add(TTL + time.Second)
	_, err = resolver.GetPrice(ctx, testKey, false)
	require.NoError(t, err)
	assert.Equal(t, 2, live.callCount())
}

func TestTTLExactlyTwentyFourHours(t *testing.T) {
	store := newTestStoreP(t)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		live *fakeLive
	}{
		{"api tier", &fakeLive{price: 0.08, unit: "GB-month"}},
		{"fallback tier", &fakeLive{err: ErrPriceNotAvailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(store, tt.live, NewDefaultFallbackTable()).
				WithClock(func() time.Time { return fixed })

			_, err := resolver.GetPrice(context.Background(), testKey, true)
			require.NoError(t, err)

			entry, ok, err := store.Get(testKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, TTL, entry.ExpiresAt.Sub(entry.LastUpdated))
			assert.Equal(t, fixed, entry.LastUpdated)
		})
	}
}

func TestGetPriceMalformedKey(t *testing.T) {
	store := newTestStoreP(t)
	resolver := NewResolver(store, nil, NewDefaultFallbackTable())

	_, err := resolver.GetPrice(context.Background(), Key{Provider: "aws"}, false)
	assert.Error(t, err, "malformed key is a programmer error, not a fallthrough")

	_, err = resolver.GetPrice(context.Background(), Key{Provider: "aws", Service: "a/b", Region: "x"}, false)
	assert.Error(t, err)
}

func TestGetPriceConcurrentSameKey(t *testing.T) {
	store := newTestStoreP(t)
	live := &fakeLive{price: 0.08, unit: "GB-month"}
	resolver := NewResolver(store, live, NewDefaultFallbackTable())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.GetPrice(context.Background(), testKey, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, ok, err := store.Get(testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.08, entry.PricePerUnit, "last-writer-wins leaves a consistent row")
}
