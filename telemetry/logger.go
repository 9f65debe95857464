package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for scan and pricing operations

func (l *Logger) LogScanStart(ctx context.Context, scanID, provider string, pairs int) {
	l.WithContext(ctx).Info().
		Str("scan_id", scanID).
		Str("provider", provider).
		Int("pairs", pairs).
		Msg("starting scan")
}

func (l *Logger) LogScanComplete(ctx context.Context, scanID string, findings, skipped int, durationMs float64) {
	l.WithContext(ctx).Info().
		Str("scan_id", scanID).
		Int("findings", findings).
		Int("skipped", skipped).
		Float64("duration_ms", durationMs).
		Msg("scan complete")
}

func (l *Logger) LogPairSkipped(ctx context.Context, resourceType, region string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("resource_type", resourceType).
		Str("region", region).
		Msg("skipping scan pair")
}

func (l *Logger) LogPriceResolved(ctx context.Context, provider, service, region, source string) {
	l.WithContext(ctx).Debug().
		Str("provider", provider).
		Str("service", service).
		Str("region", region).
		Str("source", source).
		Msg("price resolved")
}

func (l *Logger) LogPriceFallback(ctx context.Context, provider, service, region string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("provider", provider).
		Str("service", service).
		Str("region", region).
		Msg("live price lookup failed, using fallback")
}

func (l *Logger) LogRefreshJob(ctx context.Context, jobID string, refreshed, failed, total int) {
	l.WithContext(ctx).Info().
		Str("job_id", jobID).
		Int("refreshed", refreshed).
		Int("failed", failed).
		Int("total", total).
		Msg("pricing refresh finished")
}
