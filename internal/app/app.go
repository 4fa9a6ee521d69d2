// Package app provides the top-level application lifecycle for the market
// ledger daemon. It wires together all dependencies (ledger, stores, caches,
// blob storage, services, notifications), rehydrates the in-process state
// from the database, and starts the goroutines for the configured operating
// mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/authensus/marketd/internal/config"
	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/tokenmint"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := a.rehydrate(ctx, deps); err != nil {
		return fmt.Errorf("app: rehydrate: %w", err)
	}
	if err := a.bootstrapSingletons(ctx, deps); err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// rehydrate rebuilds the in-process ledger, escrow, and mint from the
// persistent stores. It must complete before any request is served.
func (a *App) rehydrate(ctx context.Context, deps *Dependencies) error {
	if err := deps.TreasurySvc.Rehydrate(ctx); err != nil {
		return err
	}
	if err := deps.TokenSvc.Rehydrate(ctx); err != nil {
		return err
	}
	return deps.MarketSvc.Rehydrate(ctx)
}

// bootstrapSingletons initialises the treasury on first run. Both the
// treasury and token init paths are idempotent, so a restart against an
// already populated database is a no-op.
func (a *App) bootstrapSingletons(ctx context.Context, deps *Dependencies) error {
	if deps.Signer == nil {
		a.logger.InfoContext(ctx, "no authority key configured; treasury and mint remain uninitialised")
		return nil
	}

	if _, err := deps.TreasurySvc.Initialise(ctx, deps.Signer.Address()); err != nil {
		return fmt.Errorf("initialise treasury: %w", err)
	}

	_, err := deps.TokenSvc.Init(ctx, deps.Signer.Address(), tokenmint.InitParams{
		Name:     domain.TokenName,
		Symbol:   domain.TokenSymbol,
		URI:      domain.TokenURI,
		Decimals: domain.TokenDecimals,
	})
	if err != nil && !errors.Is(err, domain.ErrMintAlreadyInitialised) {
		return fmt.Errorf("initialise token mint: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
