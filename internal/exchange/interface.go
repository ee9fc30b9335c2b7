// Package exchange defines the market-data and order collaborator contracts
// the heartbeat consumes, a REST gateway client implementing them, and a
// circuit-breaker wrapper for upstream resilience.
package exchange

import "context"

// Provider supplies the market and account state the Snapshotter aggregates.
// Implementations must honor context cancellation; every call is made with a
// per-call timeout by the heartbeat.
type Provider interface {
	ListOpenPositions(ctx context.Context) ([]PositionItem, error)
	GetMark(ctx context.Context, symbol string) (*MarkQuote, error)
	GetEquity(ctx context.Context) (float64, error)
	ListOpenTriggerOrders(ctx context.Context, symbol string) ([]TriggerOrder, error)
}

// OrderExecutor performs the risk-reducing order operations the advisor may
// dispatch. It never opens or increases a position.
type OrderExecutor interface {
	TightenStop(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error)
	AdjustTakeProfit(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error)
	PartialClose(ctx context.Context, symbol string, fraction float64) (*OrderAck, error)
	ClosePosition(ctx context.Context, symbol, reason string) (*OrderAck, error)
}
