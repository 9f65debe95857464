package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics holds detection and pricing metrics
type ScanMetrics struct {
	// Counters
	FindingsDetected metric.Int64Counter
	PairsSkipped     metric.Int64Counter
	PriceLookups     metric.Int64Counter

	// Gauges
	CacheEntries        metric.Int64Gauge
	CacheEntriesExpired metric.Int64Gauge

	// Histograms
	ScanDuration metric.Float64Histogram
}

// InitScanMetrics initializes all detection metrics
func InitScanMetrics(meter metric.Meter) (*ScanMetrics, error) {
	m := &ScanMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}
	if err := m.initGauges(meter); err != nil {
		return nil, err
	}
	return m, m.initHistograms(meter)
}

func (m *ScanMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.FindingsDetected, err = meter.Int64Counter(
		"scrimp.findings.detected.total",
		metric.WithDescription("Total number of waste findings detected"),
		metric.WithUnit("findings"),
	)
	if err != nil {
		return err
	}

	m.PairsSkipped, err = meter.Int64Counter(
		"scrimp.scan.pairs.skipped.total",
		metric.WithDescription("Total number of (resource type, region) pairs skipped due to adapter failures"),
		metric.WithUnit("pairs"),
	)
	if err != nil {
		return err
	}

	m.PriceLookups, err = meter.Int64Counter(
		"scrimp.pricing.lookups.total",
		metric.WithDescription("Total number of price lookups, labelled by answering tier"),
		metric.WithUnit("lookups"),
	)
	return err
}

func (m *ScanMetrics) initGauges(meter metric.Meter) error {
	var err error

	m.CacheEntries, err = meter.Int64Gauge(
		"scrimp.pricing.cache.entries",
		metric.WithDescription("Current number of pricing cache entries"),
		metric.WithUnit("entries"),
	)
	if err != nil {
		return err
	}

	m.CacheEntriesExpired, err = meter.Int64Gauge(
		"scrimp.pricing.cache.expired",
		metric.WithDescription("Current number of expired pricing cache entries"),
		metric.WithUnit("entries"),
	)
	return err
}

func (m *ScanMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.ScanDuration, err = meter.Float64Histogram(
		"scrimp.scan.duration.ms",
		metric.WithDescription("Time taken to complete a scan"),
		metric.WithUnit("ms"),
	)
	return err
}

// RecordFinding records one detected finding
func (m *ScanMetrics) RecordFinding(ctx context.Context, resourceType, region string) {
	m.FindingsDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("region", region),
	))
}

// RecordPairSkipped records a skipped scan pair
func (m *ScanMetrics) RecordPairSkipped(ctx context.Context, resourceType, region string) {
	m.PairsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("region", region),
	))
}

// RecordPriceLookup records which tier answered a price lookup
func (m *ScanMetrics) RecordPriceLookup(ctx context.Context, source string, cached bool) {
	m.PriceLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("cached", cached),
	))
}

// RecordScanDuration records scan wall time
func (m *ScanMetrics) RecordScanDuration(ctx context.Context, provider string, durationMs float64) {
	m.ScanDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordCacheStats records pricing cache gauge values
func (m *ScanMetrics) RecordCacheStats(ctx context.Context, total, expired int64) {
	m.CacheEntries.Record(ctx, total)
	m.CacheEntriesExpired.Record(ctx, expired)
}
