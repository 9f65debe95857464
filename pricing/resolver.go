package pricing

import (
	"context"
	"time"

	"github.com/yairfalse/scrimp/telemetry"
)

// LiveSource is the provider adapter's price-lookup capability (tier 2).
type LiveSource interface {
	LookupLivePrice(ctx context.Context, provider, service, region string) (price float64, unit string, err error)
}

// Resolver answers price lookups through the three-tier chain. Each tier is a
// separate method so it can be tested on its own; a tier's failure falls
// through to the next, never past GetPrice (except for malformed keys).
type Resolver struct {
	store    *Store
	live     LiveSource
	fallback *FallbackTable
	logger   *telemetry.Logger
	metrics  *telemetry.ScanMetrics
	now      func() time.Time
}

// NewResolver wires the tier chain. live may be nil when no adapter is
// available; tier 2 is then skipped entirely.
func NewResolver(store *Store, live LiveSource, fallback *FallbackTable) *Resolver {
	return &Resolver{
		store:    store,
		live:     live,
		fallback: fallback,
		logger:   telemetry.NewLogger("pricing"),
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// WithMetrics attaches scan metrics.
func (r *Resolver) WithMetrics(m *telemetry.ScanMetrics) *Resolver {
	r.metrics = m
	return r
}

// GetPrice resolves a unit price for a key. forceRefresh skips tier 1 and
// re-evaluates tiers 2/3.
func (r *Resolver) GetPrice(ctx context.Context, key Key, forceRefresh bool) (Quote, error) {
	if err := key.Validate(); err != nil {
		return Quote{}, err
	}

	if !forceRefresh {
		if quote, ok := r.lookupCached(ctx, key); ok {
			r.record(ctx, quote)
			return quote, nil
		}
	}

	if quote, ok := r.lookupLive(ctx, key); ok {
		r.record(ctx, quote)
		return quote, nil
	}

	quote, err := r.lookupFallback(ctx, key)
	if err != nil {
		return Quote{}, err
	}
	r.record(ctx, quote)
	return quote, nil
}

// lookupCached is tier 1: a fresh persisted entry answers immediately and
// never touches the network.
func (r *Resolver) lookupCached(ctx context.Context, key Key) (Quote, bool) {
	entry, ok, err := r.store.Get(key)
	if err != nil {
		r.logger.WithContext(ctx).Warn().Err(err).Str("key", key.String()).
			Msg("cache read failed, falling through")
		return Quote{}, false
	}
	if !ok || entry.IsExpired(r.now()) {
		return Quote{}, false
	}
	return Quote{
		PricePerUnit: entry.PricePerUnit,
		Unit:         entry.Unit,
		Source:       entry.Source,
		Cached:       true,
	}, true
}

// lookupLive is tier 2: the provider's price API, persisted on success.
func (r *Resolver) lookupLive(ctx context.Context, key Key) (Quote, bool) {
	if r.live == nil {
		return Quote{}, false
	}

	price, unit, err := r.live.LookupLivePrice(ctx, key.Provider, key.Service, key.Region)
	if err != nil {
		r.logger.LogPriceFallback(ctx, key.Provider, key.Service, key.Region, err)
		return Quote{}, false
	}

	r.persist(ctx, key, price, unit, SourceAPI)
	r.logger.LogPriceResolved(ctx, key.Provider, key.Service, key.Region, string(SourceAPI))
	return Quote{PricePerUnit: price, Unit: unit, Source: SourceAPI}, true
}

// lookupFallback is tier 3: the injected table, then the conservative
// default. The result is persisted so calls inside the TTL window do not
// re-attempt an already-failing live lookup.
func (r *Resolver) lookupFallback(ctx context.Context, key Key) (Quote, error) {
	price, ok := r.fallback.Lookup(key.Provider, key.Service)
	if !ok {
		price, ok = r.fallback.Default()
		if !ok {
			return Quote{}, ErrPriceNotAvailable
		}
	}

	r.persist(ctx, key, price.PricePerUnit, price.Unit, SourceFallback)
	r.logger.LogPriceResolved(ctx, key.Provider, key.Service, key.Region, string(SourceFallback))
	return Quote{PricePerUnit: price.PricePerUnit, Unit: price.Unit, Source: SourceFallback}, nil
}

// persist upserts the cache row. Writes are idempotent by natural key and
// safe to abandon mid-scan; a failed write only costs the next caller a
// re-resolution.
func (r *Resolver) persist(ctx context.Context, key Key, price float64, unit string, source Source) {
	now := r.now()
	entry := Entry{
		Provider:     key.Provider,
		Service:      key.Service,
		Region:       key.Region,
		PricePerUnit: price,
		Unit:         unit,
		Source:       source,
		LastUpdated:  now,
		ExpiresAt:    now.Add(TTL),
	}
	if err := r.store.Upsert(entry); err != nil {
		r.logger.WithContext(ctx).Error().Err(err).Str("key", key.String()).
			Msg("failed to persist price")
	}
}

func (r *Resolver) record(ctx context.Context, quote Quote) {
	if r.metrics != nil {
		r.metrics.RecordPriceLookup(ctx, string(quote.Source), quote.Cached)
	}
}
