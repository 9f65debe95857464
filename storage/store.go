// Package storage provides the single on-disk store shared by the rule
// overrides and the pricing cache: one bbolt file, JSON values, natural keys.
package storage

import (
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// Bucket names in bbolt.
var (
	BucketRuleOverrides = []byte("rule_overrides")
	BucketPricingCache  = []byte("pricing_cache")
)

// Store wraps a bbolt database with the buckets scrimp needs.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "scrimp.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{BucketRuleOverrides, BucketPricingCache} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or ok=false if absent.
func (s *Store) Get(bucket, key []byte) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}
		ok = true
		value = append([]byte(nil), v...)
		return nil
	})
	return value, ok, err
}

// Put upserts key to value. Last writer wins.
func (s *Store) Put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// DeleteExisting removes key and reports whether it was present.
func (s *Store) DeleteExisting(bucket, key []byte) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(key) == nil {
			return nil
		}
		existed = true
		return b.Delete(key)
	})
	return existed, err
}

// DeletePrefix removes every key under prefix in a single transaction and
// returns how many were deleted. An empty prefix clears the bucket.
func (s *Store) DeletePrefix(bucket, prefix []byte) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := tx.Bucket(bucket).Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ForEach walks every key/value pair in the bucket in key order.
func (s *Store) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(fn)
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
