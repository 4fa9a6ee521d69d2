package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/server/handler"
	"github.com/authensus/marketd/internal/server/middleware"
	"github.com/authensus/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration
	Limiter     domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Stakes   *handler.StakeHandler
	Treasury *handler.TreasuryHandler
	Tokens   *handler.TokenHandler
}

// Server is the HTTP + WebSocket API server for the market ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{token}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{token}/stakes", handlers.Markets.PlaceStake)
	mux.HandleFunc("POST /api/markets/{token}/resolve", handlers.Markets.Resolve)

	// Stake endpoints.
	mux.HandleFunc("GET /api/stakes", handlers.Stakes.ListStakes)
	mux.HandleFunc("GET /api/stakes/{id}", handlers.Stakes.GetStake)
	mux.HandleFunc("POST /api/stakes/{id}/settle", handlers.Stakes.Settle)

	// Treasury endpoints.
	mux.HandleFunc("GET /api/treasury", handlers.Treasury.GetTreasury)
	mux.HandleFunc("GET /api/treasury/accounts/{owner}", handlers.Treasury.GetAccount)
	mux.HandleFunc("POST /api/treasury/deposit", handlers.Treasury.Deposit)
	mux.HandleFunc("POST /api/treasury/reimburse", handlers.Treasury.Reimburse)
	mux.HandleFunc("POST /api/treasury/voting-tokens", handlers.Treasury.ReceiveVotingTokens)

	// Voting-token endpoints.
	mux.HandleFunc("GET /api/token", handlers.Tokens.GetMint)
	mux.HandleFunc("POST /api/token/mint", handlers.Tokens.MintTokens)
	mux.HandleFunc("GET /api/token/holdings/{owner}", handlers.Tokens.GetHolding)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
