package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scrimp/storage"
)

func testEntry(provider, service, region string, expiresAt time.Time) Entry {
	return Entry{
		Provider:     provider,
		Service:      service,
		Region:       region,
		PricePerUnit: 0.08,
		Unit:         "GB-month",
		Source:       SourceAPI,
		LastUpdated:  expiresAt.Add(-TTL),
		ExpiresAt:    expiresAt,
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	store := newTestStoreP(t)
	now := time.Now()

	entry := testEntry("aws", "ebs", "us-east-1", now.Add(TTL))
	require.NoError(t, store.Upsert(entry))

	entry.PricePerUnit = 0.10
	require.NoError(t, store.Upsert(entry))

	got, ok, err := store.Get(entry.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.10, got.PricePerUnit)

	stats := store.Stats(now)
	assert.Equal(t, 1, stats.Total, "at most one row per key")
}

func TestStoreListFilterAndPagination(t *testing.T) {
	store := newTestStoreP(t)
	now := time.Now()

	entries := []Entry{
		testEntry("aws", "ebs", "us-east-1", now.Add(TTL)),
		testEntry("aws", "ebs", "eu-west-1", now.Add(-time.Hour)),
		testEntry("aws", "rds", "us-east-1", now.Add(TTL)),
		testEntry("gcp", "compute", "us-central1", now.Add(TTL)),
	}
	for _, e := range entries {
		require.NoError(t, store.Upsert(e))
	}

	views, total, err := store.List(Filter{Provider: "aws"}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, views, 3)

	views, total, err = store.List(Filter{Provider: "aws", Service: "ebs"}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	expired := 0
	for _, v := range views {
		if v.IsExpired {
			expired++
		}
	}
	assert.Equal(t, 1, expired, "derived is_expired field")

	// Pagination.
	views, total, err = store.List(Filter{Offset: 1, Limit: 2}, now)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, views, 2)
}

func TestStoreStats(t *testing.T) {
	store := newTestStoreP(t)
	now := time.Now()

	require.NoError(t, store.Upsert(testEntry("aws", "ebs", "us-east-1", now.Add(TTL))))
	require.NoError(t, store.Upsert(testEntry("aws", "rds", "us-east-1", now.Add(-time.Minute))))
	require.NoError(t, store.Upsert(testEntry("aws", "s3", "us-east-1", now)))

	stats := store.Stats(now)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Expired, "expiry boundary counts as expired")
}

func TestStoreIndexRebuild(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(dir)
	require.NoError(t, err)

	store, err := NewStore(db)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.Upsert(testEntry("aws", "ebs", "us-east-1", now.Add(-time.Hour))))
	require.NoError(t, store.Upsert(testEntry("aws", "rds", "us-east-1", now.Add(TTL))))
	require.NoError(t, db.Close())

	// Reopen: index is rebuilt from disk.
	db, err = storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reopened, err := NewStore(db)
	require.NoError(t, err)

	stats := reopened.Stats(now)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Expired)

	keys := reopened.Keys()
	assert.Equal(t, []Key{
		{Provider: "aws", Service: "ebs", Region: "us-east-1"},
		{Provider: "aws", Service: "rds", Region: "us-east-1"},
	}, keys)
}

func TestStorePurge(t *testing.T) {
	store := newTestStoreP(t)
	now := time.Now()

	require.NoError(t, store.Upsert(testEntry("aws", "ebs", "us-east-1", now.Add(TTL))))
	require.NoError(t, store.Upsert(testEntry("aws", "rds", "us-east-1", now.Add(TTL))))

	deleted, err := store.Purge()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 0, store.Stats(now).Total)
}
