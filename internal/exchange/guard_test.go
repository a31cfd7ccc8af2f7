package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient tracks how many calls reach the inner client.
type countingClient struct {
	*stubData
	mu    sync.Mutex
	calls int
}

func (c *countingClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.stubData.GetPrice(ctx, symbol)
}

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// blockingClient stalls GetPrice until the request context expires.
type blockingClient struct {
	*stubData
}

func (b *blockingClient) GetPrice(ctx context.Context, _ string) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func testGuardSettings() GuardSettings {
	return GuardSettings{
		RequestTimeout:      time.Second,
		RatePerSec:          1000,
		Burst:               1000,
		MinRequests:         2,
		FailureRatio:        0.5,
		OpenTimeout:         time.Hour,
		CountInterval:       time.Hour,
		HalfOpenMaxRequests: 1,
	}
}

func TestGuardPassesThroughSuccess(t *testing.T) {
	inner := newStubData()
	inner.setPrice("BTC", 42000)

	guarded := NewGuardedClient(inner, testGuardSettings(), nil)

	price, err := guarded.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, price)
	assert.Equal(t, gobreaker.StateClosed, guarded.State())
}

func TestGuardPreservesInnerErrors(t *testing.T) {
	inner := newStubData()
	inner.priceErr = errors.New("boom")

	guarded := NewGuardedClient(inner, testGuardSettings(), nil)

	_, err := guarded.GetPrice(context.Background(), "BTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, IsRetryable(err))
}

func TestGuardOpensAfterRepeatedFailures(t *testing.T) {
	stub := newStubData()
	stub.priceErr = errors.New("venue down")
	inner := &countingClient{stubData: stub}

	var transitions []gobreaker.State
	var mu sync.Mutex
	guarded := NewGuardedClient(inner, testGuardSettings(), func(_, to gobreaker.State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		_, err := guarded.GetPrice(context.Background(), "BTC")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, guarded.State())
	assert.Equal(t, 2, inner.callCount())

	// Open breaker fails fast without reaching the venue.
	_, err := guarded.GetPrice(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, inner.callCount())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, transitions)
	assert.Equal(t, gobreaker.StateOpen, transitions[len(transitions)-1])
}

func TestGuardRecoversThroughHalfOpen(t *testing.T) {
	stub := newStubData()
	stub.priceErr = errors.New("venue down")
	inner := &countingClient{stubData: stub}

	settings := testGuardSettings()
	settings.OpenTimeout = 50 * time.Millisecond
	guarded := NewGuardedClient(inner, settings, nil)

	for i := 0; i < 2; i++ {
		_, _ = guarded.GetPrice(context.Background(), "BTC")
	}
	require.Equal(t, gobreaker.StateOpen, guarded.State())

	// Venue recovers while the breaker cools off.
	stub.mu.Lock()
	stub.priceErr = nil
	stub.mu.Unlock()
	stub.setPrice("BTC", 42000)

	time.Sleep(80 * time.Millisecond)

	price, err := guarded.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, price)
	assert.Equal(t, gobreaker.StateClosed, guarded.State())
}

func TestGuardAppliesRequestTimeout(t *testing.T) {
	inner := &blockingClient{stubData: newStubData()}

	settings := testGuardSettings()
	settings.RequestTimeout = 50 * time.Millisecond
	settings.MinRequests = 100
	guarded := NewGuardedClient(inner, settings, nil)

	start := time.Now()
	_, err := guarded.GetPrice(context.Background(), "BTC")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
