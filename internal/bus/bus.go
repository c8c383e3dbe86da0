package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantpulse/quantpulse/internal/resilience"
)

// Channel names. Every pipeline message travels on exactly one of these;
// a publish to one channel must never surface on another.
const (
	ChannelNews         = "news"
	ChannelPrices       = "prices"
	ChannelSentiment    = "sentiment"
	ChannelEvents       = "events"
	ChannelIndicators   = "indicators"
	ChannelRegime       = "regime"
	ChannelSignals      = "signals"
	ChannelOrderUpdates = "orders.updates"
	ChannelAlerts       = "alerts"
)

// BreakerName identifies the bus collaborator in the breaker manager.
const BreakerName = "bus"

// DefaultBufferCapacity bounds the per-channel publish buffer used while the
// bus breaker is open.
const DefaultBufferCapacity = 1000

// Config configures the bus connection.
type Config struct {
	URL            string
	Prefix         string // subject prefix, default "quantpulse."
	BufferCapacity int
}

// Handler receives one raw message payload from a channel.
type Handler func(data []byte)

// Bus is the NATS-backed pub/sub fabric connecting pipeline components.
// Publishes run through the bus circuit breaker; while the breaker is open,
// payloads land in bounded per-channel buffers that drain on recovery.
type Bus struct {
	nc       *nats.Conn
	prefix   string
	breakers *resilience.BreakerManager

	mu       sync.Mutex
	buffers  map[string]*resilience.Queue[[]byte]
	capacity int
}

type buffered struct {
	Channel string `json:"channel"`
	Data    []byte `json:"data"`
}

// Connect establishes the NATS connection and wires breaker-recovery
// draining.
func Connect(cfg Config, breakers *resilience.BreakerManager) (*Bus, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "quantpulse."
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultBufferCapacity
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("quantpulse-pipeline"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b := &Bus{
		nc:       nc,
		prefix:   cfg.Prefix,
		breakers: breakers,
		buffers:  make(map[string]*resilience.Queue[[]byte]),
		capacity: cfg.BufferCapacity,
	}

	if breakers != nil {
		breakers.OnStateChange(func(name string, to gobreaker.State) {
			if name == BreakerName && to == gobreaker.StateClosed {
				b.drainBuffers()
			}
		})
	}

	log.Info().
		Str("url", cfg.URL).
		Str("prefix", cfg.Prefix).
		Msg("Bus connected")

	return b, nil
}

// Publish marshals v and publishes it on the channel. A failed publish is
// buffered for redelivery and the error returned classified as transient.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return resilience.Classify(resilience.KindValidation, BreakerName,
			fmt.Errorf("marshal message for %s: %w", channel, err))
	}

	publish := func(ctx context.Context) error {
		if !b.nc.IsConnected() {
			return resilience.Classify(resilience.KindTransient, BreakerName,
				fmt.Errorf("bus not connected"))
		}
		return b.nc.Publish(b.subject(channel), data)
	}

	if b.breakers == nil {
		if err := publish(ctx); err != nil {
			return err
		}
		return nil
	}

	if err := b.breakers.Execute(ctx, BreakerName, publish); err != nil {
		b.buffer(channel).Push(data)
		log.Warn().
			Err(err).
			Str("channel", channel).
			Msg("Publish failed, payload buffered")
		return err
	}
	return nil
}

// Subscribe registers a handler for one channel. Each consumer component
// holds its own subscription.
func (b *Bus) Subscribe(channel string, handler Handler) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject(channel), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Debug().Str("channel", channel).Msg("Subscribed")
	return sub, nil
}

// Flush waits for all published messages to reach the server.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Connected reports connection health for the health endpoint.
func (b *Bus) Connected() bool {
	return b.nc.IsConnected()
}

// Close drains and closes the connection.
func (b *Bus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

func (b *Bus) subject(channel string) string {
	return b.prefix + channel
}

func (b *Bus) buffer(channel string) *resilience.Queue[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.buffers[channel]
	if !ok {
		q = resilience.NewQueue[[]byte]("bus."+channel, b.capacity)
		b.buffers[channel] = q
	}
	return q
}

// drainBuffers republishes buffered payloads after breaker recovery.
// Entries older than the queue expiry are discarded by Drain.
func (b *Bus) drainBuffers() {
	b.mu.Lock()
	channels := make(map[string]*resilience.Queue[[]byte], len(b.buffers))
	for ch, q := range b.buffers {
		channels[ch] = q
	}
	b.mu.Unlock()

	for ch, q := range channels {
		entries := q.Drain()
		if len(entries) == 0 {
			continue
		}
		sent := 0
		for _, data := range entries {
			if err := b.nc.Publish(b.subject(ch), data); err != nil {
				log.Warn().Err(err).Str("channel", ch).Msg("Buffered republish failed")
				q.Push(data)
				break
			}
			sent++
		}
		log.Info().
			Str("channel", ch).
			Int("republished", sent).
			Msg("Drained publish buffer after breaker recovery")
	}
}
