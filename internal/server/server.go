package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/server/handler"
	"github.com/quantlab/papertrader/internal/server/middleware"
	"github.com/quantlab/papertrader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Agent      *handler.AgentHandler
	Portfolio  *handler.PortfolioHandler
	Orders     *handler.OrderHandler
	LimitOrder *handler.LimitOrderHandler
	Watchlist  *handler.WatchlistHandler
}

// Server is the headless HTTP + WebSocket API for the paper trading engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// New creates a Server with all routes registered on the ServeMux and the
// middleware chain (auth, logging, CORS, rate limit) wired around it. The
// rate limiter may be nil when no shared cache is configured.
func New(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required once the chain sees an empty key; with
	// a key set, monitoring must present it like everyone else).
	mux.HandleFunc("GET /api/health", handlers.Health.Check)

	// Agent control and introspection.
	mux.HandleFunc("GET /api/agent/status", handlers.Agent.Status)
	mux.HandleFunc("POST /api/agent/status", handlers.Agent.UpdateSettings)
	mux.HandleFunc("POST /api/agent/run", handlers.Agent.Run)
	mux.HandleFunc("GET /api/agent/reasoning", handlers.Agent.Reasoning)
	mux.HandleFunc("GET /api/agent/history", handlers.Agent.History)

	// Account and positions.
	mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.Snapshot)
	mux.HandleFunc("POST /api/portfolio/reset", handlers.Portfolio.Reset)
	mux.HandleFunc("POST /api/portfolio/cash", handlers.Portfolio.AdjustCash)

	// Manual orders.
	mux.HandleFunc("POST /api/order", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)

	// Resting limit orders.
	mux.HandleFunc("GET /api/limit-orders", handlers.LimitOrder.List)
	mux.HandleFunc("DELETE /api/limit-orders/{id}", handlers.LimitOrder.Cancel)

	// Watchlist.
	mux.HandleFunc("GET /api/watchlist", handlers.Watchlist.List)
	mux.HandleFunc("POST /api/watchlist", handlers.Watchlist.Add)
	mux.HandleFunc("DELETE /api/watchlist/{symbol}", handlers.Watchlist.Remove)

	// Live event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, logger)(h)
	h = middleware.Auth(cfg.APIKey)(h)
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
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
