// Package metrics exposes the pipeline's Prometheus instruments. All
// instruments are registered on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArticlesProcessed counts news articles run through the extractor.
	ArticlesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantpulse_articles_processed_total",
		Help: "News articles analyzed for sentiment and events.",
	})

	// BarsProcessed counts OHLC bars consumed per symbol.
	BarsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantpulse_bars_processed_total",
		Help: "OHLC bars consumed from the prices channel.",
	}, []string{"symbol"})

	// SignalsEmitted counts emitted trading signals by class.
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantpulse_signals_emitted_total",
		Help: "Trading signals published on the signals channel.",
	}, []string{"symbol", "class"})

	// CMSScore is the latest composite market score per symbol.
	CMSScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quantpulse_cms_score",
		Help: "Latest composite market score, -100 to +100.",
	}, []string{"symbol"})

	// RegimeTransitions counts regime classifications by outcome.
	RegimeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantpulse_regime_transitions_total",
		Help: "Regime classifications by resulting regime.",
	}, []string{"symbol", "regime"})

	// OrdersPlaced counts broker orders placed by side.
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantpulse_orders_placed_total",
		Help: "Broker orders placed.",
	}, []string{"symbol", "side"})

	// OrdersRejected counts admission rejections by gate.
	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantpulse_orders_rejected_total",
		Help: "Orders rejected by an admission gate.",
	}, []string{"reason"})

	// WSClients tracks connected websocket subscribers.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantpulse_ws_clients",
		Help: "Connected websocket signal subscribers.",
	})

	// HTTPRequestDuration times API requests.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quantpulse_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
