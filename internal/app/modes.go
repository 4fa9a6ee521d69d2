package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/authensus/marketd/internal/server"
	"github.com/authensus/marketd/internal/server/handler"
	"github.com/authensus/marketd/internal/server/ws"
)

// ServeMode runs the HTTP API, the WebSocket hub, and the notification
// watcher. This is the default mode.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startNotifyWatcher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs the cold-storage archiver on its configured interval and
// nothing else. It is intended for a dedicated housekeeping instance.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the HTTP API, the WebSocket hub, notifications,
// and (when enabled) the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startNotifyWatcher(ctx, g, deps)
	if a.cfg.Archive.Enabled {
		a.startArchiver(ctx, g, deps)
	}
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by configuration")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Markets:  handler.NewMarketHandler(deps.MarketSvc, a.logger),
		Stakes:   handler.NewStakeHandler(deps.MarketSvc, a.logger),
		Treasury: handler.NewTreasuryHandler(deps.TreasurySvc, a.logger),
		Tokens:   handler.NewTokenHandler(deps.TokenSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		Limiter:     deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startNotifyWatcher adds the notification watcher goroutine when at least
// one sender is configured.
func (a *App) startNotifyWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Watcher == nil {
		return
	}
	g.Go(func() error {
		err := deps.Watcher.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startArchiver adds the periodic archival goroutine. Each cycle snapshots
// settled markets and the audit trail older than the configured interval.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archive requested but no archiver wired; check s3 configuration")
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runOnce := func() {
			cutoff := time.Now().UTC().Add(-interval)

			n, err := deps.Archiver.ArchiveSettledMarkets(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive settled markets failed",
					slog.String("error", err.Error()),
				)
				deps.Watcher.NotifyError(ctx, "archiver", fmt.Errorf("settled markets: %w", err))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived settled markets", slog.Int64("count", n))
			}

			n, err = deps.Archiver.ArchiveAuditLog(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive audit log failed",
					slog.String("error", err.Error()),
				)
				deps.Watcher.NotifyError(ctx, "archiver", fmt.Errorf("audit log: %w", err))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived audit entries", slog.Int64("count", n))
			}
		}

		runOnce()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
}
