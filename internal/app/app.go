// Package app wires the engine, session store, and tab manager into a
// runnable browser core.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/glasshq/glass/internal/browser"
	"github.com/glasshq/glass/internal/config"
	"github.com/glasshq/glass/internal/logging"
	"github.com/glasshq/glass/internal/persistence/sqlite"
	"github.com/glasshq/glass/internal/session"
	"github.com/glasshq/glass/pkg/engine"
	"github.com/glasshq/glass/pkg/engine/cdp"
)

// Default viewport applied until an embedder reports a real one.
const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
)

// App owns the process-wide browser core.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   session.Store
	manager *browser.TabManager
}

// New initializes the engine, the session store, and the tab manager.
func New(ctx context.Context, cfg *config.Config, sink browser.EventSink) (*App, error) {
	logger := logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	ctx = logging.WithContext(ctx, logger)

	eng := cdp.New(cdp.Options{
		ExecPath:  cfg.Engine.ExecPath,
		RemoteURL: cfg.Engine.RemoteURL,
		Headless:  cfg.Engine.Headless,
		CacheDir:  cfg.Engine.CacheDir,
		UserAgent: cfg.Engine.UserAgent,
	})
	if err := engine.Initialize(ctx, eng); err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	db, err := sqlite.NewConnection(logging.WithComponent(ctx, "session"), cfg.Session.DBPath)
	if err != nil {
		engine.Shutdown()
		return nil, fmt.Errorf("open session database: %w", err)
	}
	store := sqlite.NewSessionStore(db)

	manager := browser.NewTabManager(browser.ManagerOptions{
		FrameRate:       cfg.Engine.FrameRate,
		MaxClosedTabs:   cfg.Session.MaxClosedTabs,
		PumpMinInterval: cfg.Pump.MinInterval,
		PumpMaxInterval: cfg.Pump.MaxInterval,
		Store:           store,
		Sink:            sink,
	})

	return &App{
		cfg:     cfg,
		log:     logger,
		store:   store,
		manager: manager,
	}, nil
}

// Manager returns the tab manager for embedders.
func (a *App) Manager() *browser.TabManager { return a.manager }

// Run restores or opens the initial tabs and blocks until ctx is
// cancelled, then tears the core down in order.
func (a *App) Run(ctx context.Context, startURL string) error {
	a.manager.SetViewport(defaultViewportWidth, defaultViewportHeight, 1.0)

	if a.cfg.Session.Restore {
		if err := a.manager.RestoreSession(ctx); err != nil {
			a.log.Warn().Err(err).Msg("session restore failed")
		}
	}
	if startURL != "" {
		a.manager.OpenURL(startURL)
	} else if a.manager.Count() == 0 {
		a.manager.OpenNewTabPage()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err := g.Wait()

	a.Close()
	return err
}

// Close shuts the core down: tabs first, then the engine, then the
// store.
func (a *App) Close() {
	a.manager.Close()
	engine.Shutdown()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing session store")
	}
	a.log.Info().Msg("browser core stopped")
}
