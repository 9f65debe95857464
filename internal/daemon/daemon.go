// Package daemon runs scans on a cron schedule and hands results to the
// configured emitters.
package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yairfalse/scrimp/internal/emitter"
	"github.com/yairfalse/scrimp/orchestrator"
	"github.com/yairfalse/scrimp/telemetry"
)

// ScanFunc runs one scan. The daemon owns scheduling, not scan mechanics.
type ScanFunc func(ctx context.Context) (*orchestrator.ScanResult, error)

// Daemon schedules scans and tracks run health.
type Daemon struct {
	schedule string
	scan     ScanFunc
	emit     emitter.Emitter
	logger   *telemetry.Logger
	metrics  *Metrics

	startTime  time.Time
	scansOK    atomic.Int64
	scansFail  atomic.Int64
	lastScanID atomic.Pointer[string]
}

// HealthStatus is the daemon's health snapshot.
type HealthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ScansOK       int64  `json:"scans_ok"`
	ScansFailed   int64  `json:"scans_failed"`
	LastScanID    string `json:"last_scan_id,omitempty"`
}

// New creates a daemon. schedule is a standard 5-field cron expression.
func New(schedule string, scan ScanFunc, emit emitter.Emitter) (*Daemon, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}
	return &Daemon{
		schedule:  schedule,
		scan:      scan,
		emit:      emit,
		logger:    telemetry.NewLogger("daemon"),
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// Start blocks running the cron loop until ctx is cancelled. A scan already
// in flight drains before Start returns.
func (d *Daemon) Start(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(d.schedule, func() { d.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	d.logger.WithContext(ctx).Info().
		Str("schedule", d.schedule).
		Msg("daemon started")

	scheduler.Start()
	<-ctx.Done()

	stopped := scheduler.Stop()
	<-stopped.Done()

	d.logger.Info().
		Int64("scans_ok", d.scansOK.Load()).
		Int64("scans_failed", d.scansFail.Load()).
		Msg("daemon stopped")
	return nil
}

// RunOnce executes a single scan-and-emit cycle. Exposed so the CLI can
// trigger an immediate run alongside the schedule.
func (d *Daemon) RunOnce(ctx context.Context) {
	started := time.Now()

	result, err := d.scan(ctx)
	if err != nil {
		d.scansFail.Add(1)
		d.metrics.RecordRun(ctx, "failed", time.Since(started))
		d.logger.WithContext(ctx).Error().Err(err).Msg("scheduled scan failed")
		return
	}

	if err := d.emit.Emit(ctx, result); err != nil {
		d.scansFail.Add(1)
		d.metrics.RecordRun(ctx, "emit_failed", time.Since(started))
		d.logger.WithContext(ctx).Error().Err(err).
			Str("scan_id", result.ID).
			Msg("emitting findings failed")
		return
	}

	d.scansOK.Add(1)
	d.lastScanID.Store(&result.ID)
	d.metrics.RecordRun(ctx, "ok", time.Since(started))
}

// Health returns the daemon's health snapshot. The daemon reports degraded
// once failures outnumber successes.
func (d *Daemon) Health() HealthStatus {
	ok := d.scansOK.Load()
	failed := d.scansFail.Load()

	status := "healthy"
	if failed > ok {
		status = "degraded"
	}

	health := HealthStatus{
		Status:        status,
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		ScansOK:       ok,
		ScansFailed:   failed,
	}
	if id := d.lastScanID.Load(); id != nil {
		health.LastScanID = *id
	}
	return health
}
