// Package retry wraps the order executor with the heartbeat's dispatch
// policy: idempotent operations (stop/TP replacement, full close) get one
// retry after a short delay when the failure looks transient; partial closes
// are never retried because a duplicate would double the reduction.
package retry

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/halpertj/perp_sentry/internal/exchange"
)

// DefaultRetryDelay is the pause before the single retry attempt.
const DefaultRetryDelay = 1 * time.Second

// Dispatcher implements exchange.OrderExecutor over another executor.
type Dispatcher struct {
	executor   exchange.OrderExecutor
	logger     *log.Logger
	retryDelay time.Duration
}

var _ exchange.OrderExecutor = (*Dispatcher)(nil)

// NewDispatcher wraps the executor with the retry policy.
func NewDispatcher(executor exchange.OrderExecutor, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		executor:   executor,
		logger:     logger,
		retryDelay: DefaultRetryDelay,
	}
}

// WithRetryDelay overrides the retry pause (used by tests).
func (d *Dispatcher) WithRetryDelay(delay time.Duration) *Dispatcher {
	if delay >= 0 {
		d.retryDelay = delay
	}
	return d
}

// TightenStop replaces the stop, retrying once on transient failure.
func (d *Dispatcher) TightenStop(ctx context.Context, symbol string, newPrice float64) (*exchange.OrderAck, error) {
	return d.withRetry(ctx, "tighten_stop", symbol, func() (*exchange.OrderAck, error) {
		return d.executor.TightenStop(ctx, symbol, newPrice)
	})
}

// AdjustTakeProfit replaces the take-profit, retrying once on transient failure.
func (d *Dispatcher) AdjustTakeProfit(ctx context.Context, symbol string, newPrice float64) (*exchange.OrderAck, error) {
	return d.withRetry(ctx, "adjust_take_profit", symbol, func() (*exchange.OrderAck, error) {
		return d.executor.AdjustTakeProfit(ctx, symbol, newPrice)
	})
}

// PartialClose is dispatched exactly once, success or not.
func (d *Dispatcher) PartialClose(ctx context.Context, symbol string, fraction float64) (*exchange.OrderAck, error) {
	return d.executor.PartialClose(ctx, symbol, fraction)
}

// ClosePosition closes the position, retrying once on transient failure.
func (d *Dispatcher) ClosePosition(ctx context.Context, symbol, reason string) (*exchange.OrderAck, error) {
	return d.withRetry(ctx, "close", symbol, func() (*exchange.OrderAck, error) {
		return d.executor.ClosePosition(ctx, symbol, reason)
	})
}

func (d *Dispatcher) withRetry(ctx context.Context, op, symbol string,
	fn func() (*exchange.OrderAck, error)) (*exchange.OrderAck, error) {

	ack, err := fn()
	if err == nil {
		return ack, nil
	}
	if !IsTransientError(err) {
		return nil, err
	}

	d.logger.Printf("Order %s for %s failed transiently, retrying in %v: %v", op, symbol, d.retryDelay, err)
	select {
	case <-time.After(d.retryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ack, retryErr := fn()
	if retryErr != nil {
		return nil, retryErr
	}
	return ack, nil
}

// IsTransientError classifies an error as retry-worthy: gateway 429/5xx
// responses and the usual network failure strings.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
