// Package pricing resolves unit prices for (provider, service, region) keys
// through a three-tier chain: persisted cache, live provider lookup, and a
// configured fallback table. Whatever tier answers is written back to the
// cache so repeated calls inside the TTL window stay off the network.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TTL is how long a cache entry stays fresh. ExpiresAt is always exactly
// LastUpdated + TTL, no matter which tier produced the value.
const TTL = 24 * time.Hour

// Source records which tier produced a price.
type Source string

const (
	SourceAPI      Source = "api"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

// ErrPriceNotAvailable is returned by live sources that cannot price a key,
// and by GetPrice only when even the fallback table has no default.
var ErrPriceNotAvailable = errors.New("price not available")

// Key identifies one cached price.
type Key struct {
	Provider string `json:"provider"`
	Service  string `json:"service"`
	Region   string `json:"region"`
}

// Validate rejects malformed keys. A malformed key is a programmer error and
// does not fall through the tier chain.
func (k Key) Validate() error {
	for _, part := range []string{k.Provider, k.Service, k.Region} {
		if part == "" {
			return fmt.Errorf("pricing key must not have empty parts: %+v", k)
		}
		if strings.Contains(part, "/") {
			return fmt.Errorf("pricing key parts must not contain '/': %+v", k)
		}
	}
	return nil
}

func (k Key) String() string {
	return k.Provider + "/" + k.Service + "/" + k.Region
}

// Entry is one persisted pricing cache row. At most one exists per key.
type Entry struct {
	Provider     string    `json:"provider"`
	Service      string    `json:"service"`
	Region       string    `json:"region"`
	PricePerUnit float64   `json:"price_per_unit"`
	Unit         string    `json:"unit"`
	Source       Source    `json:"source"`
	LastUpdated  time.Time `json:"last_updated"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Key returns the entry's natural key.
func (e Entry) Key() Key {
	return Key{Provider: e.Provider, Service: e.Service, Region: e.Region}
}

// IsExpired reports whether the entry is stale at the given instant.
func (e Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Quote is the answer to one price lookup.
type Quote struct {
	PricePerUnit float64 `json:"price_per_unit"`
	Unit         string  `json:"unit"`
	Source       Source  `json:"source"`
	Cached       bool    `json:"cached"`
}
