package heartbeat

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/util"
)

// Snapshotter aggregates one tick of position and market state from the
// exchange provider and derives the heartbeat's computed fields.
type Snapshotter struct {
	provider exchange.Provider
	now      func() time.Time
}

// NewSnapshotter creates a snapshotter over the given provider.
func NewSnapshotter(provider exchange.Provider) *Snapshotter {
	return &Snapshotter{
		provider: provider,
		now:      time.Now,
	}
}

// WithClock overrides the time source (used by tests).
func (s *Snapshotter) WithClock(now func() time.Time) *Snapshotter {
	s.now = now
	return s
}

// Snapshot captures the current tick for a symbol. It returns (nil, nil)
// when no position is open for the symbol; any upstream failure, including
// malformed data, is returned as an error and treated as transient by the
// watcher.
func (s *Snapshotter) Snapshot(ctx context.Context, symbol string) (*models.PositionTick, error) {
	positions, err := s.provider.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}

	var pos *exchange.PositionItem
	for i := range positions {
		if positions[i].Symbol == symbol {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return nil, nil // position is flat
	}
	if !pos.Side.Valid() || !util.IsFinite(pos.Size) || pos.Size <= 0 {
		return nil, fmt.Errorf("malformed position data for %s: side=%q size=%v", symbol, pos.Side, pos.Size)
	}

	mark, err := s.provider.GetMark(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching mark: %w", err)
	}
	if !util.IsFinite(mark.MarkPrice) || mark.MarkPrice <= 0 {
		return nil, fmt.Errorf("malformed mark price for %s: %v", symbol, mark.MarkPrice)
	}

	equity, err := s.provider.GetEquity(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching equity: %w", err)
	}

	orders, err := s.provider.ListOpenTriggerOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing trigger orders: %w", err)
	}

	unrealized := unrealizedPnl(pos, mark.MarkPrice)
	tick := &models.PositionTick{
		Timestamp:            s.now().UnixMilli(),
		Symbol:               symbol,
		Side:                 pos.Side,
		PositionSize:         pos.Size,
		EntryPrice:           pos.EntryPrice,
		MarkPrice:            mark.MarkPrice,
		UnrealizedPnl:        unrealized,
		PnlPctOfEquity:       models.ComputePnlPctOfEquity(unrealized, equity),
		AccountEquity:        equity,
		MarginUsed:           pos.MarginUsed,
		LiquidationPrice:     pos.LiquidationPrice,
		DistToLiquidationPct: models.ComputeDistToLiquidationPct(mark.MarkPrice, pos.LiquidationPrice),
		FundingRate:          mark.FundingRate,
	}

	if order := pickTriggerOrder(orders, exchange.TriggerStopLoss, pos.Side, mark.MarkPrice); order != nil {
		px, id := order.TriggerPx, order.OrderID
		tick.StopLossPrice, tick.StopLossOrderID = &px, &id
	}
	if order := pickTriggerOrder(orders, exchange.TriggerTakeProfit, pos.Side, mark.MarkPrice); order != nil {
		px, id := order.TriggerPx, order.OrderID
		tick.TakeProfitPrice, tick.TakeProfitOrderID = &px, &id
	}

	return tick, nil
}

// unrealizedPnl derives PnL from entry vs mark over the notional size.
func unrealizedPnl(pos *exchange.PositionItem, markPrice float64) float64 {
	if !util.IsFinite(pos.EntryPrice) || pos.EntryPrice == 0 {
		return 0
	}
	move := (markPrice - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == models.SideShort {
		move = -move
	}
	return move * pos.Size
}

// pickTriggerOrder selects the order of the given kind whose trigger price is
// closest to the mark on the protective side: below mark for a long's stop
// and above for its take-profit, mirrored for shorts. When several exist but
// none sits on the protective side, the closest one overall is returned so
// the advisor still sees it.
func pickTriggerOrder(orders []exchange.TriggerOrder, kind exchange.TriggerOrderKind,
	side models.Side, markPrice float64) *exchange.TriggerOrder {

	protective := func(px float64) bool {
		stopSide := kind == exchange.TriggerStopLoss
		if side == models.SideLong {
			if stopSide {
				return px < markPrice
			}
			return px > markPrice
		}
		if stopSide {
			return px > markPrice
		}
		return px < markPrice
	}

	var best, bestAny *exchange.TriggerOrder
	bestDist, bestAnyDist := math.Inf(1), math.Inf(1)
	for i := range orders {
		o := &orders[i]
		if o.TPSL != kind || !util.IsFinite(o.TriggerPx) {
			continue
		}
		dist := math.Abs(o.TriggerPx - markPrice)
		if dist < bestAnyDist {
			bestAny, bestAnyDist = o, dist
		}
		if protective(o.TriggerPx) && dist < bestDist {
			best, bestDist = o, dist
		}
	}
	if best != nil {
		return best
	}
	return bestAny
}
