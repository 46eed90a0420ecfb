package cli

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/ingest"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
	"github.com/ppiankov/tagwatch/internal/textnorm"
)

// app bundles what most commands need: config, an open store and the
// settings chain (store rows first, then the config file).
type app struct {
	cfg      *config.Config
	store    *store.Store
	settings settings.Chain
}

func openApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyLogConfig(cfg); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{
		cfg:      cfg,
		store:    db,
		settings: settings.Chain{db, cfg.Settings()},
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

// importer wires the cursor resolver, feed client and orchestrator.
func (a *app) importer() (*ingest.Importer, error) {
	logger := slog.Default()

	resolver := feed.NewResolver(a.store, a.settings)
	client, err := feed.NewClient(feed.ClientConfig{
		BaseURL:   a.cfg.Feed.BaseURL,
		UserAgent: a.cfg.Feed.UserAgent,
		Timeout:   a.cfg.Feed.Timeout.Duration,
	}, a.settings, resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("create feed client: %w", err)
	}

	opts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithThrottle(a.cfg.Import.Throttle.Duration),
	}
	if a.cfg.Privacy.Redact.Enabled {
		r, err := textnorm.NewRedactor(a.cfg.Privacy.Redact.Patterns)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.WithRedactor(r))
	}

	return ingest.New(a.store, client, a.settings, opts...), nil
}
