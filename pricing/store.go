package pricing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/yairfalse/scrimp/storage"
)

// indexItem mirrors one cache row in the in-memory btree so pagination and
// the expired-count statistic never touch disk.
type indexItem struct {
	key       string
	expiresAt time.Time
}

// Store persists pricing cache entries in bbolt with a btree index over keys.
// Concurrent upserts for the same key are last-writer-wins; correctness does
// not depend on ordering because the resolved price is deterministic at that
// instant.
type Store struct {
	mu    sync.RWMutex
	db    *storage.Store
	index *btree.BTreeG[indexItem]
}

// NewStore opens the pricing cache over the shared bbolt store and rebuilds
// the key index from disk.
func NewStore(db *storage.Store) (*Store, error) {
	s := &Store{
		db: db,
		index: btree.NewG[indexItem](32, func(a, b indexItem) bool {
			return a.key < b.key
		}),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("rebuild pricing index: %w", err)
	}
	return s, nil
}

func (s *Store) rebuildIndex() error {
	return s.db.ForEach(storage.BucketPricingCache, func(key, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode cache entry %s: %w", key, err)
		}
		s.index.ReplaceOrInsert(indexItem{key: string(key), expiresAt: entry.ExpiresAt})
		return nil
	})
}

// Get returns the cached entry for a key, if present.
func (s *Store) Get(key Key) (Entry, bool, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, false, err
	}

	value, ok, err := s.db.Get(storage.BucketPricingCache, []byte(key.String()))
	if err != nil || !ok {
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Upsert writes an entry by its natural key, creating or replacing in place.
func (s *Store) Upsert(entry Entry) error {
	key := entry.Key()
	if err := key.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.db.Put(storage.BucketPricingCache, []byte(key.String()), value); err != nil {
		return err
	}

	s.mu.Lock()
	s.index.ReplaceOrInsert(indexItem{key: key.String(), expiresAt: entry.ExpiresAt})
	s.mu.Unlock()
	return nil
}

// Filter narrows List to matching entries. Zero values match everything.
type Filter struct {
	Provider string
	Service  string
	Region   string
	Offset   int
	Limit    int
}

// EntryView is a cache row plus the derived expiry flag, for inspection
// tooling.
type EntryView struct {
	Entry
	IsExpired bool `json:"is_expired"`
}

// List returns matching entries in key order with pagination, and the total
// match count before pagination.
func (s *Store) List(filter Filter, now time.Time) ([]EntryView, int, error) {
	var views []EntryView
	total := 0
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	err := s.db.ForEach(storage.BucketPricingCache, func(key, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode cache entry %s: %w", key, err)
		}
		if !filter.matches(entry) {
			return nil
		}
		if total >= filter.Offset && len(views) < limit {
			views = append(views, EntryView{Entry: entry, IsExpired: entry.IsExpired(now)})
		}
		total++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (f Filter) matches(entry Entry) bool {
	if f.Provider != "" && entry.Provider != f.Provider {
		return false
	}
	if f.Service != "" && entry.Service != f.Service {
		return false
	}
	if f.Region != "" && entry.Region != f.Region {
		return false
	}
	return true
}

// Keys returns every cached key in order, for batch refresh.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, s.index.Len())
	s.index.Ascend(func(item indexItem) bool {
		if k := splitKey(item.key); k != nil {
			keys = append(keys, *k)
		}
		return true
	})
	return keys
}

func splitKey(s string) *Key {
	first := -1
	last := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 || first == last {
		return nil
	}
	return &Key{Provider: s[:first], Service: s[first+1 : last], Region: s[last+1:]}
}

// Stats summarizes the cache for observability.
type Stats struct {
	Total   int `json:"total"`
	Expired int `json:"expired"`
}

// Stats counts entries and how many are expired, from the index alone.
func (s *Store) Stats(now time.Time) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: s.index.Len()}
	s.index.Ascend(func(item indexItem) bool {
		if !now.Before(item.expiresAt) {
			stats.Expired++
		}
		return true
	})
	return stats
}

// Purge removes every cache entry. Administrative use only; entries are
// otherwise never deleted.
func (s *Store) Purge() (int, error) {
	deleted, err := s.db.DeletePrefix(storage.BucketPricingCache, nil)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.index.Clear(false)
	s.mu.Unlock()
	return deleted, nil
}
