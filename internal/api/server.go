// Package api is the HTTP and websocket surface: health, signal queries,
// order listing, backtest control, and the live signal feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/aggregate"
	"github.com/quantpulse/quantpulse/internal/cache"
	"github.com/quantpulse/quantpulse/internal/metrics"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/resilience"
)

// Store is the persistence surface the handlers need.
type Store interface {
	Health(ctx context.Context) error
	GetLatestSignal(ctx context.Context, symbol string) (*models.TradingSignal, error)
	GetSignalHistory(ctx context.Context, start, end time.Time, limit int) ([]models.TradingSignal, error)
	GetOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
	GetBacktestResult(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error)
}

// BacktestRunner launches backtests. Start returns immediately with the
// generated identifier; the run completes in the background.
type BacktestRunner interface {
	Start(ctx context.Context, cfg models.BacktestConfig) (uuid.UUID, error)
}

// TradingStatus is the executor surface the health endpoint reads.
type TradingStatus interface {
	Enabled() bool
	HaltReason() string
}

// Deps collects the server's collaborators. Store is required; the rest
// degrade gracefully when nil.
type Deps struct {
	Store        Store
	Cache        *cache.Cache
	Registry     *resilience.Registry
	Breakers     *resilience.BreakerManager
	Trading      TradingStatus
	WorkerStates func() map[string]aggregate.State
	Runner       BacktestRunner
	Hub          *Hub
	BusConnected func() bool
}

// Config contains server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
}

// Server is the REST and websocket server.
type Server struct {
	router *gin.Engine
	deps   Deps
	addr   string
	server *http.Server
}

// NewServer creates an API server with its routes registered.
func NewServer(cfg Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router: router,
		deps:   deps,
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}

	router.GET("/health", s.handleHealth)

	authed := router.Group("/", APIKeyMiddleware(cfg.APIKey))
	authed.GET("/signal/current", s.handleSignalCurrent)
	authed.GET("/signal/history", s.handleSignalHistory)
	authed.GET("/orders", s.handleOrders)
	authed.POST("/backtest", s.handleBacktestStart)
	authed.GET("/backtest/:id", s.handleBacktestGet)
	authed.GET("/ws/signals", s.handleWS)

	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Stop or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully drains the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// respondError writes the uniform error envelope.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error":      code,
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

// RequestIDMiddleware tags every request with a correlation identifier.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// APIKeyMiddleware rejects requests without the configured key. An empty
// configured key disables authentication.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key != "" && c.GetHeader("X-API-Key") != key {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs each request and records its latency.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).
			Observe(latency.Seconds())

		event := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id"))
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("API request")
	}
}
