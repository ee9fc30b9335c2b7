// Package models provides data structures and per-position state for the heartbeat engine.
package models

import (
	"fmt"
	"math"

	"github.com/halpertj/perp_sentry/internal/util"
)

// Side represents the direction of a perpetual position.
type Side string

const (
	// SideLong is a long position.
	SideLong Side = "long"
	// SideShort is a short position.
	SideShort Side = "short"
)

// Valid reports whether the side is one of the two known directions.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionTick is a snapshot of one symbol's position and market state at a
// single poll instant. Ticks are immutable once created; the heartbeat only
// ever appends them to a buffer and reads them back.
type PositionTick struct {
	Timestamp            int64    `json:"timestamp"` // ms since epoch
	Symbol               string   `json:"symbol"`
	Side                 Side     `json:"side"`
	PositionSize         float64  `json:"position_size"` // notional
	EntryPrice           float64  `json:"entry_price"`
	MarkPrice            float64  `json:"mark_price"`
	UnrealizedPnl        float64  `json:"unrealized_pnl"`
	PnlPctOfEquity       float64  `json:"pnl_pct_of_equity"`
	AccountEquity        float64  `json:"account_equity"`
	MarginUsed           float64  `json:"margin_used"`
	LiquidationPrice     float64  `json:"liquidation_price"`
	DistToLiquidationPct float64  `json:"dist_to_liquidation_pct"`
	FundingRate          float64  `json:"funding_rate"`
	StopLossPrice        *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice      *float64 `json:"take_profit_price,omitempty"`
	StopLossOrderID      *string  `json:"stop_loss_order_id,omitempty"`
	TakeProfitOrderID    *string  `json:"take_profit_order_id,omitempty"`
}

// HasStop reports whether a stop-loss trigger order is attached.
func (t *PositionTick) HasStop() bool {
	return t.StopLossPrice != nil && util.IsFinite(*t.StopLossPrice)
}

// HasTakeProfit reports whether a take-profit trigger order is attached.
func (t *PositionTick) HasTakeProfit() bool {
	return t.TakeProfitPrice != nil && util.IsFinite(*t.TakeProfitPrice)
}

// ComputePnlPctOfEquity derives unrealized PnL as a percentage of account
// equity, guarding against zero or negative equity.
func ComputePnlPctOfEquity(unrealizedPnl, equity float64) float64 {
	const epsilon = 1e-9
	return unrealizedPnl / math.Max(equity, epsilon) * 100
}

// ComputeDistToLiquidationPct derives the distance to the liquidation price as
// a percentage of the mark price. Invalid inputs yield +Inf so proximity
// checks never fire on bad data.
func ComputeDistToLiquidationPct(markPrice, liquidationPrice float64) float64 {
	if !util.IsFinite(markPrice) || !util.IsFinite(liquidationPrice) || markPrice == 0 || liquidationPrice <= 0 {
		return math.Inf(1)
	}
	return math.Abs(markPrice-liquidationPrice) / math.Abs(markPrice) * 100
}

// TickCompact is the reduced tick form embedded in journal records.
type TickCompact struct {
	Timestamp            int64    `json:"timestamp"`
	Symbol               string   `json:"symbol"`
	Side                 Side     `json:"side"`
	PositionSize         float64  `json:"position_size"`
	EntryPrice           float64  `json:"entry_price"`
	MarkPrice            float64  `json:"mark_price"`
	PnlPctOfEquity       float64  `json:"pnl_pct_of_equity"`
	DistToLiquidationPct float64  `json:"dist_to_liquidation_pct"`
	StopLossPrice        *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice      *float64 `json:"take_profit_price,omitempty"`
}

// Compact returns the journal-friendly form of the tick.
func (t *PositionTick) Compact() TickCompact {
	return TickCompact{
		Timestamp:            t.Timestamp,
		Symbol:               t.Symbol,
		Side:                 t.Side,
		PositionSize:         t.PositionSize,
		EntryPrice:           t.EntryPrice,
		MarkPrice:            t.MarkPrice,
		PnlPctOfEquity:       t.PnlPctOfEquity,
		DistToLiquidationPct: t.DistToLiquidationPct,
		StopLossPrice:        t.StopLossPrice,
		TakeProfitPrice:      t.TakeProfitPrice,
	}
}

func (t *PositionTick) String() string {
	return fmt.Sprintf("%s %s size=%.4f mark=%.4f pnl=%.2f%%eq liq=%.2f%%",
		t.Symbol, t.Side, t.PositionSize, t.MarkPrice, t.PnlPctOfEquity, t.DistToLiquidationPct)
}
