// Package app assembles the configured components into a runnable process:
// the execution loop, the operator HTTP API and the daily reset schedule.
package app

import (
	"context"
	"fmt"

	"tiller/internal/audit"
	"tiller/internal/config"
	"tiller/internal/engine"
	"tiller/internal/logger"
	"tiller/internal/scorer"
	"tiller/internal/store/gormstore"
	adminhttp "tiller/internal/transport/http/admin"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg      *config.Config
	engine   *engine.Engine
	scorer   scorer.Scorer
	admin    *adminhttp.Server
	cron     *cron.Cron
	store    *gormstore.Store
	recorder audit.Recorder
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Engine exposes the execution loop, for test and replay harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Run starts every service and blocks until ctx is cancelled or one of
// them fails. Stores are closed after the group drains.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.closeStores()

	group, ctx := errgroup.WithContext(ctx)

	if feed, ok := a.scorer.(*scorer.FileFeed); ok {
		group.Go(func() error {
			return feed.Watch(ctx)
		})
	}

	if a.admin != nil {
		logger.Infof("app: admin api on %s", a.admin.Addr())
		group.Go(func() error {
			if err := a.admin.Start(ctx); err != nil {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	if a.cron != nil {
		a.cron.Start()
		defer a.cron.Stop()
	}

	group.Go(func() error {
		return a.engine.Run(ctx)
	})

	return group.Wait()
}

func (a *App) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("app: close state store: %v", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			logger.Warnf("app: close audit store: %v", err)
		}
	}
}
