package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/scrimp/telemetry"
)

// Metrics holds the daemon's operational metrics.
type Metrics struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewMetrics creates daemon metrics on the global meter.
func NewMetrics() (*Metrics, error) {
	runs, err := telemetry.Meter.Int64Counter(
		"scrimp.daemon.runs.total",
		metric.WithDescription("Number of scheduled scan runs, labelled by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := telemetry.Meter.Float64Histogram(
		"scrimp.daemon.run.duration",
		metric.WithDescription("Duration of scheduled scan runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{runs: runs, runDuration: runDuration}, nil
}

// RecordRun records one scheduled run's outcome and duration.
func (m *Metrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}
