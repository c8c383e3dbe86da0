package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/store"
)

const defaultHistoryLimit = 100

// handleHealth reports overall system health: store reachability, breaker
// states, component availability, and per-symbol aggregator states.
func (s *Server) handleHealth(c *gin.Context) {
	overall := "healthy"

	storeStatus := "not_configured"
	if s.deps.Store != nil {
		storeStatus = "healthy"
		if err := s.deps.Store.Health(c.Request.Context()); err != nil {
			storeStatus = "unhealthy"
			overall = "degraded"
			log.Warn().Err(err).Msg("Store health check failed")
		}
	}

	body := gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"store":     storeStatus,
	}
	if s.deps.BusConnected != nil {
		connected := s.deps.BusConnected()
		body["bus_connected"] = connected
		if !connected {
			body["status"] = "degraded"
		}
	}
	if s.deps.Breakers != nil {
		body["breakers"] = s.deps.Breakers.States()
	}
	if s.deps.Registry != nil {
		body["components"] = s.deps.Registry.Snapshot()
	}
	if s.deps.WorkerStates != nil {
		body["aggregators"] = s.deps.WorkerStates()
	}
	if s.deps.Trading != nil {
		body["trading_enabled"] = s.deps.Trading.Enabled()
		if reason := s.deps.Trading.HaltReason(); reason != "" {
			body["halt_reason"] = reason
		}
	}

	c.JSON(http.StatusOK, body)
}

// handleSignalCurrent serves the latest signal for a symbol, preferring the
// cache and reporting its age, falling back to the store.
func (s *Server) handleSignalCurrent(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "symbol query parameter is required")
		return
	}

	if s.deps.Cache != nil {
		if sig, age, ok := s.deps.Cache.GetSignal(c.Request.Context(), symbol); ok {
			c.JSON(http.StatusOK, gin.H{
				"signal":      sig,
				"age_seconds": age.Seconds(),
				"source":      "cache",
			})
			return
		}
	}

	sig, err := s.deps.Store.GetLatestSignal(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "no signal for symbol "+symbol)
			return
		}
		respondError(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signal":      sig,
		"age_seconds": time.Since(sig.Timestamp).Seconds(),
		"source":      "store",
	})
}

// handleSignalHistory serves signals in a time range, newest first.
func (s *Server) handleSignalHistory(c *gin.Context) {
	start, end, err := parseRange(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	limit := parseLimit(c, defaultHistoryLimit)

	signals, err := s.deps.Store.GetSignalHistory(c.Request.Context(), start, end, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

// handleOrders lists orders, optionally filtered by status.
func (s *Server) handleOrders(c *gin.Context) {
	status := models.OrderStatus(c.Query("status"))
	switch status {
	case "", models.OrderStatusPending, models.OrderStatusSubmitted,
		models.OrderStatusPartiallyFilled, models.OrderStatusFilled,
		models.OrderStatusCancelled, models.OrderStatusRejected:
	default:
		respondError(c, http.StatusBadRequest, "bad_request", "unknown order status "+string(status))
		return
	}
	limit := parseLimit(c, defaultHistoryLimit)

	orders, err := s.deps.Store.GetOrders(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// handleBacktestStart validates the request and launches an asynchronous
// backtest, returning its identifier immediately.
func (s *Server) handleBacktestStart(c *gin.Context) {
	if s.deps.Runner == nil {
		respondError(c, http.StatusServiceUnavailable, "unavailable", "backtesting is not configured")
		return
	}

	var cfg models.BacktestConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := s.deps.Runner.Start(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "backtest_error", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.BacktestRunning})
}

// handleBacktestGet returns a backtest result by identifier.
func (s *Server) handleBacktestGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid backtest id")
		return
	}

	result, err := s.deps.Store.GetBacktestResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "no backtest with id "+id.String())
			return
		}
		respondError(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, errors.New("start must be RFC3339")
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, errors.New("end must be RFC3339")
		}
		end = t
	}
	if end.Before(start) {
		return start, end, errors.New("end precedes start")
	}
	return start, end, nil
}

func parseLimit(c *gin.Context, fallback int) int {
	v := c.Query("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
