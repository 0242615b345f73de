package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cosense-ai/cosense-gateway/internal/completion"
	"github.com/cosense-ai/cosense-gateway/internal/config"
	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// app holds the process-wide components shared by serve and the CLI commands.
type app struct {
	repo     settings.Repository
	settings *settings.Service
	metrics  *monitoring.MetricsCollector
	alerts   *monitoring.AlertManager
	tracker  *monitoring.Tracker
	router   *router.Router
}

// openRepository opens the configured settings store.
func openRepository(cfg config.StoreConfig) (settings.Repository, error) {
	switch cfg.Type {
	case config.StoreMemory:
		return settings.NewMemoryRepository(), nil
	case config.StoreSQLite:
		return settings.NewSQLiteRepository(cfg.Path)
	}
	return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
}

// newApp opens the store, makes sure a valid settings record exists and
// wires the router.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	repo, err := openRepository(cfg.Store)
	if err != nil {
		return nil, err
	}

	svc := settings.NewService(repo)
	if _, err := svc.Init(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	tracker, err := monitoring.NewTracker(cfg.Monitoring.Telemetry())
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled")
		tracker, _ = monitoring.NewTracker(monitoring.TelemetryConfig{})
	}

	metrics := monitoring.NewMetricsCollector()
	alerts := monitoring.NewAlertManager(monitoring.FromGlobal(), cfg.Monitoring.Alerts())

	client := completion.NewClient(completion.Options{
		OpenAIEndpoint:     cfg.Providers.OpenAIEndpoint,
		OpenRouterEndpoint: cfg.Providers.OpenRouterEndpoint,
		OpenRouterReferer:  cfg.Providers.Referer,
		OpenRouterTitle:    cfg.Providers.Title,
		Timeout:            cfg.Providers.Timeout,
	})

	r := router.New(router.Deps{
		Settings:  svc,
		Completer: client,
		Defaults: router.Defaults{
			Temperature: cfg.Completion.Temperature(),
			MaxTokens:   cfg.Completion.MaxTokens(),
		},
		Metrics: metrics,
		Alerts:  alerts,
		Tracker: tracker,
	})

	return &app{
		repo:     repo,
		settings: svc,
		metrics:  metrics,
		alerts:   alerts,
		tracker:  tracker,
		router:   r,
	}, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close() {
	_ = a.tracker.Close()
	if err := a.repo.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close settings store")
	}
}
