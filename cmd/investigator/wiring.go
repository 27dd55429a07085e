package main

import (
	"fmt"
	"log/slog"

	"github.com/miradorstack/secops-investigator/internal/cache"
	"github.com/miradorstack/secops-investigator/internal/config"
	"github.com/miradorstack/secops-investigator/internal/engine"
	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/repo"
)

// app holds the wired engine and the resources to release on exit.
type app struct {
	investigator *engine.Investigator
	cache        cache.Provider
}

func (a *app) Close() error {
	if a == nil || a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func buildApp(cfg *config.Config, logger *slog.Logger, extra ...engine.Option) (*app, error) {
	provider, err := buildCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	source, err := buildSource(cfg, provider, logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("load rule pack %s: %w", cfg.Rules.Path, err)
	}
	if rules == nil {
		logger.Info("no rule pack loaded, using built-in recommendations", slog.String("path", cfg.Rules.Path))
	}

	opts := []engine.Option{
		engine.WithRuleEngine(rules),
		engine.WithDispatcherOptions(
			engine.WithAgentTimeout(cfg.Dispatch.AgentTimeout),
			engine.WithMaxConcurrency(cfg.Dispatch.MaxConcurrency),
		),
	}
	investigator := engine.NewInvestigator(logger, source, append(opts, extra...)...)
	return &app{investigator: investigator, cache: provider}, nil
}

func buildCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Provider, error) {
	if !cfg.Enabled {
		return cache.NoopProvider{}, nil
	}
	switch cfg.Backend {
	case config.CacheBackendValkey:
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
			return cache.NoopProvider{}, nil
		}
		return provider, nil
	default:
		provider, err := cache.NewLRUProvider(cfg.LRUSize)
		if err != nil {
			return nil, fmt.Errorf("create lru cache: %w", err)
		}
		return provider, nil
	}
}

func buildSource(cfg *config.Config, provider cache.Provider, logger *slog.Logger) (engine.TelemetrySource, error) {
	switch cfg.Telemetry.Mode {
	case config.TelemetryModeHTTP:
		logger.Info("using http telemetry source", slog.String("base_url", cfg.Telemetry.BaseURL))
		return repo.NewTelemetryClient(
			cfg.Telemetry.BaseURL,
			cfg.Telemetry.QueryPath,
			cfg.Telemetry.Timeout,
			repo.WithCache(provider, cfg.Cache.TelemetryTTL),
			repo.WithRetry(cfg.Telemetry.MaxRetries, cfg.Telemetry.RetryInterval),
			repo.WithLogger(logger),
		), nil
	default:
		failing := make([]models.AgentType, 0, len(cfg.Telemetry.FailingAgents))
		for _, name := range cfg.Telemetry.FailingAgents {
			agent := models.AgentType(name)
			if !agent.IsValid() {
				return nil, fmt.Errorf("unknown agent %q in telemetry.failingAgents", name)
			}
			failing = append(failing, agent)
		}
		logger.Info("using synthetic telemetry source",
			slog.Int64("seed", cfg.Telemetry.Seed),
			slog.Int("failing_agents", len(failing)),
		)
		return repo.NewSyntheticSource(cfg.Telemetry.Seed, repo.WithFailingAgents(failing...)), nil
	}
}
