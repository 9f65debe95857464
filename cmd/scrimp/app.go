package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/scrimp/config"
	"github.com/yairfalse/scrimp/estimator"
	"github.com/yairfalse/scrimp/orchestrator"
	"github.com/yairfalse/scrimp/pricing"
	"github.com/yairfalse/scrimp/providers"
	_ "github.com/yairfalse/scrimp/providers/aws"
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/storage"
	"github.com/yairfalse/scrimp/telemetry"
)

// app wires the full detection pipeline from config. Commands pick the
// pieces they need; Close releases the shared bbolt handle.
type app struct {
	cfg *config.Config
	db  *storage.Store

	ruleStore    *rules.Store
	ruleResolver *rules.Resolver

	priceStore    *pricing.Store
	priceResolver *pricing.Resolver
	refresher     *pricing.Refresher

	adapter providers.Adapter
	orch    *orchestrator.Orchestrator
	metrics *telemetry.ScanMetrics
}

// newApp builds the pipeline. withAdapter controls whether a cloud adapter
// is constructed; rule and pricing inspection commands work without cloud
// credentials.
func newApp(ctx context.Context, withAdapter bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.Log.Level)

	db, err := storage.Open(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{cfg: cfg, db: db}

	defaults := rules.ApplyTweaks(rules.BuiltinDefaults(), ruleTweaks(cfg.RuleDefaults))
	a.ruleStore = rules.NewStore(db, defaults)
	a.ruleResolver = rules.NewResolver(a.ruleStore)

	a.priceStore, err = pricing.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open pricing store: %w", err)
	}

	metrics, err := telemetry.InitScanMetrics(telemetry.Meter)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = metrics

	var live pricing.LiveSource
	if withAdapter {
		adapter, err := providers.New(ctx, cfg.Provider, providers.Config{Region: firstRegion(cfg)})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create %s adapter: %w", cfg.Provider, err)
		}
		a.adapter = adapter
		if source, ok := adapter.(providers.LivePriceSource); ok {
			live = source
		}
	}

	a.priceResolver = pricing.NewResolver(a.priceStore, live, fallbackTable(cfg.Pricing)).
		WithMetrics(metrics)
	a.refresher = pricing.NewRefresher(a.priceResolver, a.priceStore)

	if withAdapter {
		est := estimator.New(a.priceResolver)
		a.orch = orchestrator.New(a.ruleResolver, est, a.adapter).
			WithConcurrency(cfg.Scan.Concurrency).
			WithAdapterTimeout(cfg.Scan.AdapterTimeout).
			WithMetrics(metrics)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func ruleTweaks(defaults map[string]config.RuleDefault) map[string]rules.DefaultTweak {
	tweaks := make(map[string]rules.DefaultTweak, len(defaults))
	for resourceType, tweak := range defaults {
		tweaks[resourceType] = rules.DefaultTweak{
			Enabled:        tweak.Enabled,
			Thresholds:     tweak.Thresholds,
			RequiredLabels: tweak.RequiredLabels,
			Description:    tweak.Description,
		}
	}
	return tweaks
}

func fallbackTable(cfg config.PricingConfig) *pricing.FallbackTable {
	if len(cfg.Fallback) == 0 && cfg.DefaultPrice == nil {
		return pricing.NewDefaultFallbackTable()
	}

	prices := make(map[string]map[string]pricing.Price, len(cfg.Fallback))
	for provider, services := range cfg.Fallback {
		prices[provider] = make(map[string]pricing.Price, len(services))
		for service, price := range services {
			prices[provider][service] = pricing.Price{PricePerUnit: price.PricePerUnit, Unit: price.Unit}
		}
	}

	var def *pricing.Price
	if cfg.DefaultPrice != nil {
		def = &pricing.Price{PricePerUnit: cfg.DefaultPrice.PricePerUnit, Unit: cfg.DefaultPrice.Unit}
	}
	return pricing.NewFallbackTable(prices, def)
}

func firstRegion(cfg *config.Config) string {
	if len(cfg.Regions) > 0 {
		return cfg.Regions[0]
	}
	return "us-east-1"
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
