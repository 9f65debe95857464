package emitter

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/scrimp/orchestrator"
	"github.com/yairfalse/scrimp/telemetry"
	"github.com/yairfalse/scrimp/types"
)

// PrometheusEmitter exposes the latest scan's waste as metrics via OTEL's
// Prometheus exporter.
type PrometheusEmitter struct {
	meter metric.Meter

	wasteMonthly  metric.Float64ObservableGauge
	findingsTotal metric.Int64Counter
	skippedTotal  metric.Int64Counter

	// State for the observable gauge: monthly waste aggregated by
	// (resource_type, region, confidence) from the most recent scan.
	mu    sync.RWMutex
	waste map[wasteKey]float64
}

type wasteKey struct {
	resourceType string
	region       string
	confidence   types.Confidence
}

// NewPrometheusEmitter creates a Prometheus emitter on the global meter.
func NewPrometheusEmitter() (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter: telemetry.Meter,
		waste: make(map[wasteKey]float64),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.wasteMonthly, err = e.meter.Float64ObservableGauge(
		"scrimp_waste_monthly_usd",
		metric.WithDescription("Estimated monthly waste from the latest scan"),
		metric.WithFloat64Callback(e.observeWaste),
	)
	if err != nil {
		return fmt.Errorf("create waste gauge: %w", err)
	}

	e.findingsTotal, err = e.meter.Int64Counter(
		"scrimp_findings_emitted_total",
		metric.WithDescription("Total findings emitted"),
	)
	if err != nil {
		return fmt.Errorf("create findings counter: %w", err)
	}

	e.skippedTotal, err = e.meter.Int64Counter(
		"scrimp_scan_pairs_skipped_total",
		metric.WithDescription("Total scan pairs skipped"),
	)
	return err
}

// Emit records the scan's findings as metrics and replaces the waste gauge
// state.
func (e *PrometheusEmitter) Emit(ctx context.Context, result *orchestrator.ScanResult) error {
	waste := make(map[wasteKey]float64, len(result.Findings))
	for _, finding := range result.Findings {
		key := wasteKey{
			resourceType: finding.ResourceType,
			region:       finding.Region,
			confidence:   finding.Confidence,
		}
		waste[key] += finding.EstimatedMonthlyCost

		e.findingsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource_type", finding.ResourceType),
			attribute.String("region", finding.Region),
		))
	}

	for _, skipped := range result.Skipped {
		e.skippedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource_type", skipped.ResourceType),
			attribute.String("region", skipped.Region),
		))
	}

	e.mu.Lock()
	e.waste = waste
	e.mu.Unlock()
	return nil
}

func (e *PrometheusEmitter) observeWaste(_ context.Context, o metric.Float64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for key, monthly := range e.waste {
		o.Observe(monthly, metric.WithAttributes(
			attribute.String("resource_type", key.resourceType),
			attribute.String("region", key.region),
			attribute.String("confidence", key.confidence.String()),
		))
	}
	return nil
}

// Close is a no-op for the Prometheus emitter.
func (e *PrometheusEmitter) Close() error { return nil }
