package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/scrimp/internal/daemon"
	"github.com/yairfalse/scrimp/internal/emitter"
	"github.com/yairfalse/scrimp/orchestrator"
	"github.com/yairfalse/scrimp/telemetry"
)

var (
	daemonOwner string
	daemonJSON  bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled scans continuously",
	Long: `Run scrimp as a long-lived process.

Scans run on the configured cron schedule; findings are exposed as
Prometheus metrics on /metrics and the daemon's health on /health.
Shuts down gracefully on SIGTERM/SIGINT, draining any in-flight scan.`,
	Example: `  scrimp daemon                       # Schedule and ports from config
  scrimp daemon --owner team-a --json # Team rules, findings also on stdout`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonOwner, "owner", "", "Owner whose rule overrides apply")
	daemonCmd.Flags().BoolVar(&daemonJSON, "json", false, "Also emit findings as JSON lines on stdout")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	cfg := a.cfg

	otelShutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		OTELEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	emit, err := buildEmitters()
	if err != nil {
		return err
	}
	defer func() { _ = emit.Close() }()

	scan := func(ctx context.Context) (*orchestrator.ScanResult, error) {
		return a.orch.Scan(ctx, orchestrator.ScanRequest{
			Owner:         daemonOwner,
			Provider:      cfg.Provider,
			Regions:       cfg.Regions,
			ResourceTypes: cfg.ResourceTypes,
		})
	}

	d, err := daemon.New(cfg.Daemon.Schedule, scan, emit)
	if err != nil {
		return err
	}

	var group run.Group
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	addMetricsServer(&group, cfg.Daemon.MetricsAddr, d)
	addDaemon(&group, ctx, d)

	err = group.Run()
	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		return nil
	}
	return err
}

func buildEmitters() (emitter.Emitter, error) {
	prom, err := emitter.NewPrometheusEmitter()
	if err != nil {
		return nil, fmt.Errorf("create prometheus emitter: %w", err)
	}
	if !daemonJSON {
		return prom, nil
	}
	return emitter.NewMultiEmitter(prom, emitter.NewJSONEmitter(os.Stdout)), nil
}

func addMetricsServer(group *run.Group, addr string, d *daemon.Daemon) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := d.Health()
		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Add(
		func() error { return server.ListenAndServe() },
		func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		},
	)
}

func addDaemon(group *run.Group, ctx context.Context, d *daemon.Daemon) {
	daemonCtx, cancel := context.WithCancel(ctx)
	group.Add(
		func() error { return d.Start(daemonCtx) },
		func(error) { cancel() },
	)
}
