package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingProvider fails every call until healthy is flipped.
type failingProvider struct {
	healthy atomic.Bool
	calls   atomic.Int64
}

var _ Provider = (*failingProvider)(nil)

func (f *failingProvider) ListOpenPositions(context.Context) ([]PositionItem, error) {
	f.calls.Add(1)
	if !f.healthy.Load() {
		return nil, errors.New("upstream down")
	}
	return []PositionItem{}, nil
}

func (f *failingProvider) GetMark(context.Context, string) (*MarkQuote, error) {
	f.calls.Add(1)
	if !f.healthy.Load() {
		return nil, errors.New("upstream down")
	}
	return &MarkQuote{MarkPrice: 70000}, nil
}

func (f *failingProvider) GetEquity(context.Context) (float64, error) {
	f.calls.Add(1)
	if !f.healthy.Load() {
		return 0, errors.New("upstream down")
	}
	return 10000, nil
}

func (f *failingProvider) ListOpenTriggerOrders(context.Context, string) ([]TriggerOrder, error) {
	f.calls.Add(1)
	if !f.healthy.Load() {
		return nil, errors.New("upstream down")
	}
	return nil, nil
}

type nopExecutor struct{}

var _ OrderExecutor = (*nopExecutor)(nil)

func (nopExecutor) TightenStop(context.Context, string, float64) (*OrderAck, error) {
	return &OrderAck{OrderID: "ok"}, nil
}
func (nopExecutor) AdjustTakeProfit(context.Context, string, float64) (*OrderAck, error) {
	return &OrderAck{OrderID: "ok"}, nil
}
func (nopExecutor) PartialClose(context.Context, string, float64) (*OrderAck, error) {
	return &OrderAck{OrderID: "ok"}, nil
}
func (nopExecutor) ClosePosition(context.Context, string, string) (*OrderAck, error) {
	return &OrderAck{OrderID: "ok"}, nil
}

func TestBreakerClient_PassesThroughWhenHealthy(t *testing.T) {
	provider := &failingProvider{}
	provider.healthy.Store(true)
	client := NewBreakerClient(provider, nopExecutor{})

	equity, err := client.GetEquity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, equity)

	ack, err := client.TightenStop(context.Background(), "BTC-PERP", 69000)
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.OrderID)
}

func TestBreakerClient_OpensAfterRepeatedFailures(t *testing.T) {
	provider := &failingProvider{}
	client := NewBreakerClientWithSettings(provider, nopExecutor{}, BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  5,
		FailureRatio: 0.6,
	})

	for i := 0; i < 5; i++ {
		_, err := client.GetEquity(context.Background())
		require.Error(t, err)
	}

	// The circuit is now open: calls fail fast without touching the upstream.
	before := provider.calls.Load()
	_, err := client.GetEquity(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, provider.calls.Load())
}

func TestBreakerClient_TypedResultsSurvive(t *testing.T) {
	provider := &failingProvider{}
	provider.healthy.Store(true)
	client := NewBreakerClient(provider, nopExecutor{})

	mark, err := client.GetMark(context.Background(), "BTC-PERP")
	require.NoError(t, err)
	assert.Equal(t, 70000.0, mark.MarkPrice)

	positions, err := client.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)
}
