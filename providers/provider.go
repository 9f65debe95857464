// Package providers defines the adapter boundary between the scan
// orchestrator and cloud SDKs. Adapters list observations and answer live
// price lookups; everything else (rules, pricing tiers, estimation) stays
// provider-agnostic.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/yairfalse/scrimp/types"
)

// Adapter is what a cloud provider must implement to be scannable.
type Adapter interface {
	// ListResources returns candidate observations of one resource type in
	// one region. Implementations filter to plausibly-wasteful resources
	// (unattached, stopped, idle) but leave rule evaluation to the caller.
	ListResources(ctx context.Context, resourceType, region string) ([]types.Observation, error)

	// Name returns the provider identifier used in rules and pricing keys.
	Name() string
}

// LivePriceSource is implemented by adapters that can answer tier-2
// pricing lookups. Optional; adapters without it force fallback pricing.
// Matches the pricing resolver's LiveSource so an adapter plugs straight in.
type LivePriceSource interface {
	LookupLivePrice(ctx context.Context, provider, service, region string) (price float64, unit string, err error)
}

// AdapterError wraps a failure from one (resourceType, region) listing so
// the orchestrator can isolate it without losing the cause.
type AdapterError struct {
	Provider     string
	ResourceType string
	Region       string
	Err          error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: list %s in %s: %v", e.Provider, e.ResourceType, e.Region, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Config holds the settings a factory needs to construct an adapter.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ProjectID       string // GCP
}

// Factory creates an adapter instance.
type Factory func(ctx context.Context, cfg Config) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider factory available by name. Called from adapter
// package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New creates an adapter by provider name.
func New(ctx context.Context, name string, cfg Config) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return factory(ctx, cfg)
}

// Names returns the registered provider names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
