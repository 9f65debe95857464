// Package orchestrator fans a scan out over (resource type, region) pairs,
// feeding adapter observations through the rule resolver and estimator.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/scrimp/estimator"
	"github.com/yairfalse/scrimp/providers"
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/telemetry"
	"github.com/yairfalse/scrimp/types"
)

const (
	defaultConcurrency    = 4
	defaultAdapterTimeout = 30 * time.Second
)

// Orchestrator coordinates scan → resolve → estimate flow.
type Orchestrator struct {
	resolver       *rules.Resolver
	estimator      *estimator.Estimator
	adapter        providers.Adapter
	logger         *telemetry.Logger
	metrics        *telemetry.ScanMetrics
	concurrency    int
	adapterTimeout time.Duration
}

// New creates an orchestrator wired to one provider adapter.
func New(resolver *rules.Resolver, est *estimator.Estimator, adapter providers.Adapter) *Orchestrator {
	return &Orchestrator{
		resolver:       resolver,
		estimator:      est,
		adapter:        adapter,
		logger:         telemetry.NewLogger("orchestrator"),
		concurrency:    defaultConcurrency,
		adapterTimeout: defaultAdapterTimeout,
	}
}

// WithConcurrency bounds the worker pool.
func (o *Orchestrator) WithConcurrency(n int) *Orchestrator {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

// WithAdapterTimeout sets the per-pair adapter call timeout.
func (o *Orchestrator) WithAdapterTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.adapterTimeout = d
	}
	return o
}

// WithMetrics enables metric recording.
func (o *Orchestrator) WithMetrics(m *telemetry.ScanMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// Scan runs one scan. Pairs are independent: one pair's adapter failure is
// logged and recorded in Skipped, never fatal. Cancelling ctx stops
// scheduling new pairs; in-flight pairs drain.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if len(req.Regions) == 0 {
		return nil, fmt.Errorf("scan request has no regions")
	}

	resourceTypes := req.ResourceTypes
	if len(resourceTypes) == 0 {
		resourceTypes = o.resolver.DefaultTypes()
	}

	ruleByType, err := o.resolveRules(req.Owner, resourceTypes)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		ID:        uuid.NewString(),
		Provider:  req.Provider,
		StartTime: time.Now(),
	}

	// Disabled types never reach the adapter.
	var pairs []pair
	for _, resourceType := range resourceTypes {
		if !ruleByType[resourceType].Enabled {
			continue
		}
		for _, region := range req.Regions {
			pairs = append(pairs, pair{resourceType: resourceType, region: region})
		}
	}
	result.PairsTotal = len(pairs)

	o.logger.LogScanStart(ctx, result.ID, req.Provider, len(pairs))
	o.runPairs(ctx, pairs, ruleByType, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	o.logger.LogScanComplete(ctx, result.ID, len(result.Findings), len(result.Skipped),
		float64(result.Duration.Milliseconds()))
	if o.metrics != nil {
		o.metrics.RecordScanDuration(ctx, req.Provider, float64(result.Duration.Milliseconds()))
	}
	return result, nil
}

// resolveRules resolves each requested type exactly once, up front. An
// unknown resource type fails the whole scan before any adapter call.
func (o *Orchestrator) resolveRules(owner string, resourceTypes []string) (map[string]rules.EffectiveRule, error) {
	ruleByType := make(map[string]rules.EffectiveRule, len(resourceTypes))
	for _, resourceType := range resourceTypes {
		rule, err := o.resolver.Resolve(owner, resourceType)
		if err != nil {
			return nil, fmt.Errorf("resolve rule for %s: %w", resourceType, err)
		}
		ruleByType[resourceType] = rule
	}
	return ruleByType, nil
}

func (o *Orchestrator) runPairs(ctx context.Context, pairs []pair, ruleByType map[string]rules.EffectiveRule, result *ScanResult) {
	jobs := make(chan pair)

	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := o.concurrency
	if workers > len(pairs) {
		workers = len(pairs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				findings, err := o.scanPair(ctx, p, ruleByType[p.resourceType])

				mu.Lock()
				if err != nil {
					result.Skipped = append(result.Skipped, SkippedPair{
						ResourceType: p.resourceType,
						Region:       p.region,
						Reason:       err.Error(),
					})
				} else {
					result.PairsScanned++
					result.Findings = append(result.Findings, findings...)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, p := range pairs {
		select {
		case jobs <- p:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
}

// scanPair lists one (resource type, region) and estimates every
// observation. The adapter call carries its own timeout.
func (o *Orchestrator) scanPair(ctx context.Context, p pair, rule rules.EffectiveRule) ([]types.Finding, error) {
	listCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	observations, err := o.adapter.ListResources(listCtx, p.resourceType, p.region)
	if err != nil {
		wrapped := &providers.AdapterError{
			Provider:     o.adapter.Name(),
			ResourceType: p.resourceType,
			Region:       p.region,
			Err:          err,
		}
		o.logger.LogPairSkipped(ctx, p.resourceType, p.region, wrapped)
		if o.metrics != nil {
			o.metrics.RecordPairSkipped(ctx, p.resourceType, p.region)
		}
		return nil, wrapped
	}

	var findings []types.Finding
	for _, obs := range observations {
		finding := o.estimator.Estimate(ctx, obs, rule)
		if finding == nil {
			continue
		}
		findings = append(findings, *finding)
		if o.metrics != nil {
			o.metrics.RecordFinding(ctx, obs.ResourceType, obs.Region)
		}
	}
	return findings, nil
}
