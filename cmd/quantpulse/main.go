// The quantpulse daemon runs the whole pipeline in one process: news and
// price ingestion, per-symbol signal aggregation, order execution, and the
// HTTP/websocket surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/quantpulse/internal/aggregate"
	"github.com/quantpulse/quantpulse/internal/alerts"
	"github.com/quantpulse/quantpulse/internal/api"
	"github.com/quantpulse/quantpulse/internal/broker"
	"github.com/quantpulse/quantpulse/internal/bus"
	"github.com/quantpulse/quantpulse/internal/cache"
	"github.com/quantpulse/quantpulse/internal/cms"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/executor"
	"github.com/quantpulse/quantpulse/internal/metrics"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/pipeline"
	"github.com/quantpulse/quantpulse/internal/resilience"
	"github.com/quantpulse/quantpulse/internal/risk"
	"github.com/quantpulse/quantpulse/internal/store"
	"github.com/quantpulse/quantpulse/pkg/backtest"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting QuantPulse")

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("QuantPulse exited with error")
		os.Exit(1)
	}
	log.Info().Msg("QuantPulse stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	breakers := resilience.NewBreakerManager(breakerSettings(cfg.Resilience.Breakers))
	registry := resilience.NewRegistry(cfg.Pipeline.SlotStaleness())

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.Database.GetDSN(),
		MaxConns: int32(cfg.Database.PoolSize + cfg.Database.PoolOverflow),
		MinConns: int32(cfg.Database.PoolSize / 2),
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	writes := store.NewWriteQueue(st, breakers, cfg.Resilience.StoreWriteQueueCapacity)

	b, err := bus.Connect(bus.Config{
		URL:            cfg.NATS.URL,
		Prefix:         cfg.NATS.Prefix,
		BufferCapacity: cfg.Resilience.BusBufferCapacity,
	}, breakers)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer b.Close()

	var signalCache *cache.Cache
	if cfg.Redis.Enabled {
		signalCache, err = cache.Connect(ctx, cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB, 0)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, serving without last-known-good cache")
		}
	}
	defer signalCache.Close()

	alertMgr := alerts.NewManager(b)
	pipe := pipeline.New(b, writes, registry)

	engine := cms.NewEngine(cms.Weights{
		Sentiment:  cfg.Pipeline.CMSWeights.Sentiment,
		Volatility: cfg.Pipeline.CMSWeights.Volatility,
		Trend:      cfg.Pipeline.CMSWeights.Trend,
		Event:      cfg.Pipeline.CMSWeights.Event,
	}, cms.Thresholds{
		Buy:  cfg.Pipeline.CMSThresholds.Buy,
		Sell: cfg.Pipeline.CMSThresholds.Sell,
	})
	sizer := risk.NewSizer(risk.Params{
		PerTradeFraction:    cfg.Risk.PerTradeFraction,
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
		ATRStopMultiplier:   cfg.Risk.ATRStopMultiplier,
	})

	manager := aggregate.NewManager(aggregate.Config{
		Epsilon:         cfg.Pipeline.SignalEmissionEpsilon,
		MaxSlotAge:      cfg.Pipeline.SlotStaleness(),
		SentimentWindow: cfg.Pipeline.SentimentWindow,
		EventDecayHours: cfg.Pipeline.EventDecayHours,
		Capital:         cfg.Trading.Capital,
		InboxCapacity:   cfg.Pipeline.InboxCapacity,
	}, engine, sizer, b, queuedPersister{writes: writes}, registry)
	manager.Start(ctx)
	defer manager.Close()

	brk := broker.NewSimulated(cfg.Trading.Capital)
	if !cfg.Trading.SimulationMode {
		log.Warn().Msg("Live trading requested but no live broker is wired, using the simulated broker")
	}
	exec := executor.New(executor.Params{
		Enabled:              cfg.Trading.AutoTradingEnabled,
		MaxDailyTrades:       cfg.Trading.MaxDailyTrades,
		MaxDailyLoss:         cfg.Trading.MaxDailyLoss,
		MaxPositionSize:      cfg.Trading.MaxPositionSize,
		MinBuyCMS:            cfg.Pipeline.CMSThresholds.Buy,
		MinSellCMS:           cfg.Pipeline.CMSThresholds.Sell,
		PollInterval:         cfg.Trading.GetPollInterval(),
		BrokerTimeout:        cfg.Trading.GetBrokerTimeout(),
		TrailingStopFraction: cfg.Risk.TrailingStopFraction,
	}, brk, st, breakers, retryPolicy(cfg.Resilience.Retry), alertMgr, b)
	defer exec.Wait()

	hub := api.NewHub()
	go hub.Run()

	subs, err := subscribeAll(ctx, b, pipe, manager, exec, signalCache, hub)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Msg("Unsubscribe failed during shutdown")
			}
		}
	}()

	apiServer := api.NewServer(api.Config{
		Host:   cfg.API.Host,
		Port:   cfg.API.Port,
		APIKey: cfg.API.APIKey,
	}, api.Deps{
		Store:        st,
		Cache:        signalCache,
		Registry:     registry,
		Breakers:     breakers,
		Trading:      exec,
		WorkerStates: manager.States,
		Runner:       backtest.NewEngine(st),
		Hub:          hub,
		BusConnected: b.Connected,
	})

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort)
		metricsServer.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}
		return apiServer.Stop(shutdownCtx)
	})
	return g.Wait()
}

// subscribeAll wires every bus channel to its consumer. The returned
// subscriptions are torn down in reverse start order during shutdown.
func subscribeAll(ctx context.Context, b *bus.Bus, pipe *pipeline.Pipeline,
	manager *aggregate.Manager, exec *executor.Executor,
	signalCache *cache.Cache, hub *api.Hub) ([]*nats.Subscription, error) {

	var subs []*nats.Subscription
	on := func(channel string, handler bus.Handler) error {
		sub, err := b.Subscribe(channel, handler)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if err := on(bus.ChannelNews, func(data []byte) {
		var article models.Article
		if err := json.Unmarshal(data, &article); err != nil {
			log.Warn().Err(err).Msg("Malformed article dropped")
			return
		}
		if err := pipe.ProcessArticle(ctx, &article); err != nil {
			log.Warn().Err(err).Str("article_id", article.ID).Msg("Article rejected")
		}
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelPrices, func(data []byte) {
		var bar models.Bar
		if err := json.Unmarshal(data, &bar); err != nil {
			log.Warn().Err(err).Msg("Malformed bar dropped")
			return
		}
		if err := pipe.ProcessBar(ctx, &bar); err != nil {
			log.Warn().Err(err).Str("symbol", bar.Symbol).Msg("Bar rejected")
			return
		}
		manager.Dispatch(aggregate.Update{
			Channel:   bus.ChannelPrices,
			Symbol:    bar.Symbol,
			Timestamp: bar.Timestamp,
			Bar:       &bar,
		})
		exec.OnBar(ctx, &bar)
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelSentiment, func(data []byte) {
		var msg models.SymbolSentiment
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("Malformed sentiment dropped")
			return
		}
		manager.Dispatch(aggregate.Update{
			Channel:   bus.ChannelSentiment,
			Symbol:    msg.Symbol,
			Timestamp: msg.Score.Timestamp,
			Sentiment: &msg.Score,
		})
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelEvents, func(data []byte) {
		var msg models.SymbolEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("Malformed event dropped")
			return
		}
		manager.Dispatch(aggregate.Update{
			Channel:   bus.ChannelEvents,
			Symbol:    msg.Symbol,
			Timestamp: msg.Event.Timestamp,
			Event:     &msg.Event,
		})
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelIndicators, func(data []byte) {
		var snap models.IndicatorSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn().Err(err).Msg("Malformed indicator snapshot dropped")
			return
		}
		manager.Dispatch(aggregate.Update{
			Channel:    bus.ChannelIndicators,
			Symbol:     snap.Symbol,
			Timestamp:  snap.Timestamp,
			Indicators: &snap,
		})
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelRegime, func(data []byte) {
		var snap models.RegimeSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn().Err(err).Msg("Malformed regime snapshot dropped")
			return
		}
		if err := signalCache.SetRegime(ctx, &snap); err != nil {
			log.Debug().Err(err).Str("symbol", snap.Symbol).Msg("Regime cache write failed")
		}
		manager.Dispatch(aggregate.Update{
			Channel:   bus.ChannelRegime,
			Symbol:    snap.Symbol,
			Timestamp: snap.Timestamp,
			Regime:    &snap,
		})
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelSignals, func(data []byte) {
		var sig models.TradingSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			log.Warn().Err(err).Msg("Malformed signal dropped")
			return
		}
		if err := signalCache.SetSignal(ctx, &sig); err != nil {
			log.Debug().Err(err).Str("symbol", sig.Symbol).Msg("Signal cache write failed")
		}
		if err := hub.Broadcast(api.MessageTypeSignal, json.RawMessage(data)); err != nil {
			log.Warn().Err(err).Msg("Signal broadcast failed")
		}
		if err := exec.HandleSignal(ctx, &sig); err != nil {
			log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Signal handling failed")
		}
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelOrderUpdates, func(data []byte) {
		if err := hub.Broadcast(api.MessageTypeOrderUpdate, json.RawMessage(data)); err != nil {
			log.Warn().Err(err).Msg("Order update broadcast failed")
		}
	}); err != nil {
		return nil, err
	}

	if err := on(bus.ChannelAlerts, func(data []byte) {
		if err := hub.Broadcast(api.MessageTypeAlert, json.RawMessage(data)); err != nil {
			log.Warn().Err(err).Msg("Alert broadcast failed")
		}
	}); err != nil {
		return nil, err
	}

	return subs, nil
}

// queuedPersister routes aggregator persistence through the deferred write
// queue so an open store breaker never blocks signal emission.
type queuedPersister struct {
	writes *store.WriteQueue
}

func (q queuedPersister) SaveSignal(ctx context.Context, sig *models.TradingSignal) error {
	return q.writes.Write(ctx, func(ctx context.Context, s *store.Store) error {
		return s.SaveSignal(ctx, sig)
	})
}

func (q queuedPersister) SaveCMSResult(ctx context.Context, result *models.CMSResult) error {
	return q.writes.Write(ctx, func(ctx context.Context, s *store.Store) error {
		return s.SaveCMSResult(ctx, result)
	})
}

func breakerSettings(cfgs map[string]config.BreakerConfig) map[string]resilience.BreakerSettings {
	out := make(map[string]resilience.BreakerSettings, len(cfgs))
	for name, c := range cfgs {
		out[name] = resilience.BreakerSettings{
			FailureThreshold: c.FailureThreshold,
			RecoveryTimeout:  time.Duration(c.RecoverySeconds) * time.Second,
		}
	}
	return out
}

func retryPolicy(c config.RetryConfig) resilience.RetryPolicy {
	p := resilience.DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	p.BaseDelay = c.GetBaseDelay()
	p.MaxDelay = c.GetMaxDelay()
	return p
}
