package main

import (
	"context"
	"fmt"
	"log/slog"

	"lorekeeper/internal/config"
	"lorekeeper/internal/extract"
	"lorekeeper/internal/extract/anthropic"
	"lorekeeper/internal/extract/heuristic"
	"lorekeeper/internal/extract/jsonfile"
	"lorekeeper/internal/extract/openai"
	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/session"
	"lorekeeper/internal/store"
	"lorekeeper/internal/store/files"
	"lorekeeper/internal/store/memory"
	"lorekeeper/internal/store/postgres"
	"lorekeeper/internal/store/sqlite"
)

func loadConfig(opts *rootOptions) (*config.ProjectConfig, error) {
	return config.LoadOrDefault(opts.configPath)
}

func openStore(ctx context.Context, cfg *config.ProjectConfig, logger *slog.Logger) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		db = memory.New()
	case "files":
		db, err = files.New(cfg.Store.Path, files.Options{TokenLength: cfg.Reconcile.KeyMaxLength, Logger: logger})
	case "sqlite":
		db, err = sqlite.New(ctx, cfg.Store.DSN, sqlite.Options{TokenLength: cfg.Reconcile.KeyMaxLength, Logger: logger})
	case "postgres":
		db, err = postgres.New(ctx, cfg.Store.DSN, postgres.Options{TokenLength: cfg.Reconcile.KeyMaxLength, Logger: logger})
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newExtractor(cfg *config.ProjectConfig, logger *slog.Logger) (extract.Extractor, error) {
	e := cfg.Extractor
	var base extract.Extractor
	switch e.Provider {
	case "openai":
		x, err := openai.New(openai.Options{APIKey: e.APIKey, Model: e.Model, BaseURL: e.BaseURL})
		if err != nil {
			return nil, err
		}
		base = x
	case "anthropic":
		x, err := anthropic.New(anthropic.Options{APIKey: e.APIKey, Model: e.Model, BaseURL: e.BaseURL})
		if err != nil {
			return nil, err
		}
		base = x
	case "heuristic":
		base = heuristic.New()
	case "jsonfile":
		base = jsonfile.New()
	default:
		return nil, fmt.Errorf("unsupported extractor provider: %s", e.Provider)
	}

	policy := extract.RetryPolicy{
		Timeout:           e.Timeout,
		MaxRetries:        *e.MaxRetries,
		InitialBackoff:    e.InitialBackoff,
		MaxBackoff:        e.MaxBackoff,
		BackoffMultiplier: 2.0,
	}
	return extract.NewRetrying(base, policy,
		extract.WithRequestsPerMinute(e.RequestsPerMinute),
		extract.WithMaxConcurrent(e.MaxConcurrent),
		extract.WithLogger(logger),
	), nil
}

func thresholds(cfg *config.ProjectConfig) reconcile.Thresholds {
	return reconcile.Thresholds{
		WorldOverlap:    *cfg.Reconcile.WorldOverlapThreshold,
		TimelineOverlap: *cfg.Reconcile.TimelineOverlapThreshold,
	}
}

func newManager(cfg *config.ProjectConfig, db store.Store, logger *slog.Logger) (*session.Manager, error) {
	x, err := newExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}
	limits := thresholds(cfg)
	return session.NewManager(db, x, session.Options{
		LockDir:     cfg.LockDir,
		TokenLength: cfg.Reconcile.KeyMaxLength,
		Thresholds:  &limits,
		Logger:      logger,
	}), nil
}
