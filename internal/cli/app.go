// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/config"
	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/gateway/gemini"
	"github.com/jeranaias/muse/internal/gateway/openai"
	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/notify"
	"github.com/jeranaias/muse/internal/reconcile"
	"github.com/jeranaias/muse/internal/storage"
	"github.com/jeranaias/muse/internal/telemetry"
	"github.com/jeranaias/muse/internal/upload"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App holds the wired services behind one client session.
type App struct {
	Config     *config.Config
	Backend    kv.Store
	Store      *storage.ConversationStore
	Prefs      *storage.PreferencesStore
	Theme      *storage.ThemeStore
	Notify     *notify.Sink
	Gateway    gateway.Gateway
	Reconciler *reconcile.Reconciler
	Downloads  *upload.Local
	Usage      *telemetry.UsageTracker

	// Drive is nil unless a Drive token is configured.
	Drive *upload.Drive

	cancel context.CancelFunc
}

// NewApp builds every service from cfg: the storage backend, the selected
// gateway, the optional Drive uploader, and the file watcher.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(ctx, cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	app, err := NewAppWith(cfg, backend, gw)
	if err != nil {
		backend.Close()
		return nil, err
	}

	if cfg.Export.DriveToken != "" {
		d, err := upload.NewDrive(ctx, cfg.Export.DriveFolderID, upload.AccessToken(cfg.Export.DriveToken))
		if err != nil {
			log.Warn().Err(err).Msg("DRIVE_DISABLED")
		} else {
			app.Drive = d
		}
	}

	if fs, ok := backend.(*kv.FileStore); ok && cfg.Storage.Watch {
		if err := app.watch(fs); err != nil {
			log.Warn().Err(err).Msg("WATCH_DISABLED")
		}
	}
	return app, nil
}

// NewAppWith wires an App around an existing backend and gateway.
func NewAppWith(cfg *config.Config, backend kv.Store, gw gateway.Gateway) (*App, error) {
	exportDir, err := cfg.ExportDir()
	if err != nil {
		return nil, err
	}

	store := storage.NewConversationStore(backend)
	prefs := storage.NewPreferencesStore(backend)
	app := &App{
		Config:     cfg,
		Backend:    backend,
		Store:      store,
		Prefs:      prefs,
		Theme:      storage.NewThemeStore(backend, storage.TerminalPrefersDark),
		Notify:     notify.NewSink(cfg.UI.NotifyLifetime()),
		Gateway:    gw,
		Reconciler: reconcile.New(store, gw, prefs),
		Downloads:  upload.NewLocal(exportDir),
		Usage:      telemetry.NewUsageTracker(),
		cancel:     func() {},
	}
	return app, nil
}

// watch reloads the conversation list when another process rewrites it.
func (a *App) watch(fs *kv.FileStore) error {
	ctx, cancel := context.WithCancel(context.Background())
	if err := fs.Watch(ctx, func(key string) {
		if key != storage.ConversationsKey {
			return
		}
		if err := a.Store.Reload(); err != nil {
			log.Warn().Err(err).Msg("CONVERSATIONS_RELOAD_FAILED")
			a.Notify.Notify("Could not reload conversations changed on disk.", notify.SeverityWarning)
		}
	}); err != nil {
		cancel()
		return err
	}
	a.cancel = cancel
	return nil
}

// Close cancels in-flight generations and releases the backend.
func (a *App) Close() error {
	a.cancel()
	err := a.Reconciler.Close()
	a.Notify.Close()
	return errors.Join(err, a.Backend.Close())
}

func openBackend(cfg *config.Config) (kv.Store, error) {
	if cfg.Storage.Backend == "memory" {
		return kv.NewMemoryStore(), nil
	}
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := kv.OpenSQLite(filepath.Join(dir, "muse.db"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		s, err := kv.NewFileStore(dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return s, nil
	}
}

func newGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("openai: API key is required (set MUSE_OPENAI_API_KEY)")
		}
		return openai.New(openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			ImageModel: cfg.OpenAI.ImageModel,
		}), nil
	default:
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:       cfg.Gemini.APIKey,
			TextModel:    cfg.Gemini.TextModel,
			ImageModel:   cfg.Gemini.ImageModel,
			VideoModel:   cfg.Gemini.VideoModel,
			PollInterval: cfg.Gemini.PollInterval(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
