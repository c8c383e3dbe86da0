package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
)

// opTimeout caps every cache round trip so a slow Redis never stalls the
// serving path.
const opTimeout = 500 * time.Millisecond

// Entry wraps a cached payload with the instant it was stored, so readers
// can report staleness.
type Entry[T any] struct {
	Value    T         `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache is the last-known-good store behind the dashboard endpoints. When
// the pipeline degrades, reads serve the newest value seen with its age.
// A nil *Cache is valid and behaves as a permanent miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache around an existing Redis client. A nil client yields
// a nil cache (Redis is optional).
func New(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", addr).Msg("Redis cache connected")
	return New(client, ttl), nil
}

// SetSignal stores the latest emitted signal for a symbol.
func (c *Cache) SetSignal(ctx context.Context, sig *models.TradingSignal) error {
	return set(c, ctx, signalKey(sig.Symbol), sig)
}

// GetSignal returns the last-known-good signal and its age.
func (c *Cache) GetSignal(ctx context.Context, symbol string) (*models.TradingSignal, time.Duration, bool) {
	return get[models.TradingSignal](c, ctx, signalKey(symbol))
}

// SetRegime stores the latest regime snapshot for a symbol.
func (c *Cache) SetRegime(ctx context.Context, snap *models.RegimeSnapshot) error {
	return set(c, ctx, regimeKey(snap.Symbol), snap)
}

// GetRegime returns the last-known-good regime and its age.
func (c *Cache) GetRegime(ctx context.Context, symbol string) (*models.RegimeSnapshot, time.Duration, bool) {
	return get[models.RegimeSnapshot](c, ctx, regimeKey(symbol))
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func signalKey(symbol string) string { return "quantpulse:signal:" + symbol }
func regimeKey(symbol string) string { return "quantpulse:regime:" + symbol }

func set[T any](c *Cache, ctx context.Context, key string, value *T) error {
	if c == nil || c.client == nil {
		return nil
	}

	entry := Entry[T]{Value: *value, CachedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

func get[T any](c *Cache, ctx context.Context, key string) (*T, time.Duration, bool) {
	if c == nil || c.client == nil {
		return nil, 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("Cache read error, treating as miss")
		}
		return nil, 0, false
	}

	var entry Entry[T]
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cache entry")
		return nil, 0, false
	}
	return &entry.Value, time.Since(entry.CachedAt), true
}
