package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/resilience"
)

func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1,
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	return ns
}

func setupTestBus(t *testing.T) *Bus {
	t.Helper()
	ns := startTestNATSServer(t)
	t.Cleanup(ns.Shutdown)

	b, err := Connect(Config{URL: ns.ClientURL(), Prefix: "test."}, resilience.NewBreakerManager(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := setupTestBus(t)

	received := make(chan models.Bar, 1)
	_, err := b.Subscribe(ChannelPrices, func(data []byte) {
		var bar models.Bar
		if err := json.Unmarshal(data, &bar); err == nil {
			received <- bar
		}
	})
	require.NoError(t, err)

	bar := models.Bar{
		Symbol:    "AAPL",
		Timestamp: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Open:      100, High: 101, Low: 99, Close: 100.5,
		Volume: 5000,
	}
	require.NoError(t, b.Publish(context.Background(), ChannelPrices, bar))
	require.NoError(t, b.Flush())

	select {
	case got := <-received:
		assert.Equal(t, bar.Symbol, got.Symbol)
		assert.Equal(t, bar.Close, got.Close)
		assert.True(t, bar.Timestamp.Equal(got.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestChannelIsolation(t *testing.T) {
	b := setupTestBus(t)

	var mu sync.Mutex
	deliveries := make(map[string]int)
	for _, ch := range []string{ChannelPrices, ChannelSentiment, ChannelSignals} {
		channel := ch
		_, err := b.Subscribe(channel, func(data []byte) {
			mu.Lock()
			deliveries[channel]++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(context.Background(), ChannelSentiment, map[string]string{"article_id": "a1"}))
	require.NoError(t, b.Flush())
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deliveries[ChannelSentiment])
	assert.Zero(t, deliveries[ChannelPrices])
	assert.Zero(t, deliveries[ChannelSignals])
}

func TestSubscriberReceivesAllAfterSubscription(t *testing.T) {
	b := setupTestBus(t)

	var mu sync.Mutex
	var got []int
	_, err := b.Subscribe(ChannelSignals, func(data []byte) {
		var v struct {
			Seq int `json:"seq"`
		}
		if json.Unmarshal(data, &v) == nil {
			mu.Lock()
			got = append(got, v.Seq)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(context.Background(), ChannelSignals, map[string]int{"seq": i}))
	}
	require.NoError(t, b.Flush())

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		count := len(got)
		mu.Unlock()
		if count >= n || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, seq := range got {
		assert.Equal(t, i, seq, "FIFO order within a channel")
	}
}

func TestPublishCancelledContext(t *testing.T) {
	b := setupTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Publish(ctx, ChannelPrices, map[string]string{"x": "y"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishUnmarshalableValue(t *testing.T) {
	b := setupTestBus(t)

	err := b.Publish(context.Background(), ChannelPrices, make(chan int))
	require.Error(t, err)
	assert.Equal(t, resilience.KindValidation, resilience.KindOf(err))
}
