package exchange

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// BreakerClient wraps a gateway (Provider + OrderExecutor) with a circuit
// breaker so a flapping upstream does not drown every watcher in timeouts.
type BreakerClient struct {
	provider Provider
	executor OrderExecutor
	breaker  *gobreaker.CircuitBreaker
}

var (
	_ Provider      = (*BreakerClient)(nil)
	_ OrderExecutor = (*BreakerClient)(nil)
)

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewBreakerClient wraps the given gateway with sensible defaults.
func NewBreakerClient(provider Provider, executor OrderExecutor) *BreakerClient {
	return NewBreakerClientWithSettings(provider, executor, BreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewBreakerClientWithSettings wraps the given gateway with custom settings.
func NewBreakerClientWithSettings(provider Provider, executor OrderExecutor, settings BreakerSettings) *BreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "ExchangeGatewayBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerClient{
		provider: provider,
		executor: executor,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// ListOpenPositions wraps the underlying call with the circuit breaker.
func (c *BreakerClient) ListOpenPositions(ctx context.Context) ([]PositionItem, error) {
	return execBreaker(c.breaker, func() ([]PositionItem, error) { return c.provider.ListOpenPositions(ctx) })
}

// GetMark wraps the underlying call with the circuit breaker.
func (c *BreakerClient) GetMark(ctx context.Context, symbol string) (*MarkQuote, error) {
	return execBreaker(c.breaker, func() (*MarkQuote, error) { return c.provider.GetMark(ctx, symbol) })
}

// GetEquity wraps the underlying call with the circuit breaker.
func (c *BreakerClient) GetEquity(ctx context.Context) (float64, error) {
	return execBreaker(c.breaker, func() (float64, error) { return c.provider.GetEquity(ctx) })
}

// ListOpenTriggerOrders wraps the underlying call with the circuit breaker.
func (c *BreakerClient) ListOpenTriggerOrders(ctx context.Context, symbol string) ([]TriggerOrder, error) {
	return execBreaker(c.breaker, func() ([]TriggerOrder, error) { return c.provider.ListOpenTriggerOrders(ctx, symbol) })
}

// TightenStop wraps the underlying call with the circuit breaker.
func (c *BreakerClient) TightenStop(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error) {
	return execBreaker(c.breaker, func() (*OrderAck, error) { return c.executor.TightenStop(ctx, symbol, newPrice) })
}

// AdjustTakeProfit wraps the underlying call with the circuit breaker.
func (c *BreakerClient) AdjustTakeProfit(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error) {
	return execBreaker(c.breaker, func() (*OrderAck, error) { return c.executor.AdjustTakeProfit(ctx, symbol, newPrice) })
}

// PartialClose wraps the underlying call with the circuit breaker.
func (c *BreakerClient) PartialClose(ctx context.Context, symbol string, fraction float64) (*OrderAck, error) {
	return execBreaker(c.breaker, func() (*OrderAck, error) { return c.executor.PartialClose(ctx, symbol, fraction) })
}

// ClosePosition wraps the underlying call with the circuit breaker.
func (c *BreakerClient) ClosePosition(ctx context.Context, symbol, reason string) (*OrderAck, error) {
	return execBreaker(c.breaker, func() (*OrderAck, error) { return c.executor.ClosePosition(ctx, symbol, reason) })
}
