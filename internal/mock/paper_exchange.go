// Package mock provides a deterministic in-memory exchange used by tests and
// the paperfeed harness. It implements both gateway contracts and simulates a
// mark-price walk with trigger-order fills.
package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/models"
)

type paperPosition struct {
	side       models.Side
	size       float64
	entryPrice float64
	liqPrice   float64
	marginUsed float64
	stop       *exchange.TriggerOrder
	takeProfit *exchange.TriggerOrder
}

// PaperExchange is a thread-safe simulated gateway. Prices move only when
// Step is called, so tests control time completely; paperfeed calls Step on
// its own cadence. A seeded source makes runs reproducible.
type PaperExchange struct {
	mu        sync.Mutex
	equity    float64
	marks     map[string]float64
	funding   map[string]float64
	positions map[string]*paperPosition
	rng       *rand.Rand

	// Fail injection for resilience tests. When > 0, the next N provider
	// calls return a transient gateway error.
	failNext int
}

var (
	_ exchange.Provider      = (*PaperExchange)(nil)
	_ exchange.OrderExecutor = (*PaperExchange)(nil)
)

// NewPaperExchange creates a simulated exchange with the given starting
// equity and deterministic seed.
func NewPaperExchange(equity float64, seed int64) *PaperExchange {
	return &PaperExchange{
		equity:    equity,
		marks:     make(map[string]float64),
		funding:   make(map[string]float64),
		positions: make(map[string]*paperPosition),
		rng:       rand.New(rand.NewSource(seed)), // #nosec G404 -- simulation, not crypto
	}
}

// OpenPosition seeds a position at the current mark (or the given entry when
// no mark is set yet).
func (p *PaperExchange) OpenPosition(symbol string, side models.Side, size, entryPrice, liqPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.marks[symbol]; !ok {
		p.marks[symbol] = entryPrice
	}
	p.positions[symbol] = &paperPosition{
		side:       side,
		size:       size,
		entryPrice: entryPrice,
		liqPrice:   liqPrice,
		marginUsed: size * 0.1,
	}
}

// SetMark pins the mark price for a symbol.
func (p *PaperExchange) SetMark(symbol string, mark float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = mark
}

// SetFunding pins the funding rate for a symbol.
func (p *PaperExchange) SetFunding(symbol string, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funding[symbol] = rate
}

// FailNext makes the next n provider calls fail with a transient error.
func (p *PaperExchange) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

// Step advances every mark by a small random walk (volPct standard step as a
// percentage) and fills any trigger orders the new mark crosses.
func (p *PaperExchange) Step(volPct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, mark := range p.marks {
		move := p.rng.NormFloat64() * volPct / 100
		newMark := mark * (1 + move)
		p.marks[symbol] = newMark
		p.fillTriggersLocked(symbol, newMark)
	}
}

// fillTriggersLocked closes the position when the mark crosses its stop,
// take-profit, or liquidation price.
func (p *PaperExchange) fillTriggersLocked(symbol string, mark float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}

	crossed := func(trigger float64) bool {
		if pos.side == models.SideLong {
			return mark <= trigger
		}
		return mark >= trigger
	}
	crossedUp := func(trigger float64) bool {
		if pos.side == models.SideLong {
			return mark >= trigger
		}
		return mark <= trigger
	}

	switch {
	case pos.liqPrice > 0 && crossed(pos.liqPrice):
		p.settleLocked(symbol, pos, pos.liqPrice)
	case pos.stop != nil && crossed(pos.stop.TriggerPx):
		p.settleLocked(symbol, pos, pos.stop.TriggerPx)
	case pos.takeProfit != nil && crossedUp(pos.takeProfit.TriggerPx):
		p.settleLocked(symbol, pos, pos.takeProfit.TriggerPx)
	}
}

func (p *PaperExchange) settleLocked(symbol string, pos *paperPosition, fillPrice float64) {
	p.equity += unrealizedPnl(pos, fillPrice)
	delete(p.positions, symbol)
}

func unrealizedPnl(pos *paperPosition, mark float64) float64 {
	if pos.entryPrice == 0 {
		return 0
	}
	movePct := (mark - pos.entryPrice) / pos.entryPrice
	if pos.side == models.SideShort {
		movePct = -movePct
	}
	return pos.size * movePct
}

func (p *PaperExchange) transientLocked() error {
	if p.failNext > 0 {
		p.failNext--
		return &exchange.APIError{Status: 503, Message: "simulated gateway outage"}
	}
	return nil
}

// ListOpenPositions implements exchange.Provider.
func (p *PaperExchange) ListOpenPositions(ctx context.Context) ([]exchange.PositionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transientLocked(); err != nil {
		return nil, err
	}

	items := make([]exchange.PositionItem, 0, len(p.positions))
	for symbol, pos := range p.positions {
		items = append(items, exchange.PositionItem{
			Symbol:           symbol,
			Side:             pos.side,
			Size:             pos.size,
			EntryPrice:       pos.entryPrice,
			LiquidationPrice: pos.liqPrice,
			MarginUsed:       pos.marginUsed,
		})
	}
	return items, nil
}

// GetMark implements exchange.Provider.
func (p *PaperExchange) GetMark(ctx context.Context, symbol string) (*exchange.MarkQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transientLocked(); err != nil {
		return nil, err
	}

	mark, ok := p.marks[symbol]
	if !ok {
		return nil, &exchange.APIError{Status: 404, Message: fmt.Sprintf("unknown symbol %s", symbol)}
	}
	return &exchange.MarkQuote{MarkPrice: mark, FundingRate: p.funding[symbol]}, nil
}

// GetEquity implements exchange.Provider. Open positions are marked to
// market.
func (p *PaperExchange) GetEquity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transientLocked(); err != nil {
		return 0, err
	}

	equity := p.equity
	for symbol, pos := range p.positions {
		equity += unrealizedPnl(pos, p.marks[symbol])
	}
	return equity, nil
}

// ListOpenTriggerOrders implements exchange.Provider.
func (p *PaperExchange) ListOpenTriggerOrders(ctx context.Context, symbol string) ([]exchange.TriggerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transientLocked(); err != nil {
		return nil, err
	}

	pos, ok := p.positions[symbol]
	if !ok {
		return nil, nil
	}
	var orders []exchange.TriggerOrder
	if pos.stop != nil {
		orders = append(orders, *pos.stop)
	}
	if pos.takeProfit != nil {
		orders = append(orders, *pos.takeProfit)
	}
	return orders, nil
}

// TightenStop implements exchange.OrderExecutor by replacing the stop order.
func (p *PaperExchange) TightenStop(ctx context.Context, symbol string, newPrice float64) (*exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return nil, &exchange.APIError{Status: 404, Message: fmt.Sprintf("no open position for %s", symbol)}
	}
	pos.stop = &exchange.TriggerOrder{
		OrderID:   uuid.NewString(),
		TPSL:      exchange.TriggerStopLoss,
		TriggerPx: newPrice,
	}
	return &exchange.OrderAck{OrderID: pos.stop.OrderID, Status: "accepted"}, nil
}

// AdjustTakeProfit implements exchange.OrderExecutor by replacing the TP.
func (p *PaperExchange) AdjustTakeProfit(ctx context.Context, symbol string, newPrice float64) (*exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return nil, &exchange.APIError{Status: 404, Message: fmt.Sprintf("no open position for %s", symbol)}
	}
	pos.takeProfit = &exchange.TriggerOrder{
		OrderID:   uuid.NewString(),
		TPSL:      exchange.TriggerTakeProfit,
		TriggerPx: newPrice,
	}
	return &exchange.OrderAck{OrderID: pos.takeProfit.OrderID, Status: "accepted"}, nil
}

// PartialClose implements exchange.OrderExecutor, realizing the closed
// fraction's PnL at the current mark.
func (p *PaperExchange) PartialClose(ctx context.Context, symbol string, fraction float64) (*exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return nil, &exchange.APIError{Status: 404, Message: fmt.Sprintf("no open position for %s", symbol)}
	}
	if fraction <= 0 || fraction >= 1 || math.IsNaN(fraction) {
		return nil, &exchange.APIError{Status: 400, Message: fmt.Sprintf("invalid fraction %v", fraction)}
	}

	closedSize := pos.size * fraction
	closedPos := *pos
	closedPos.size = closedSize
	p.equity += unrealizedPnl(&closedPos, p.marks[symbol])
	pos.size -= closedSize
	pos.marginUsed *= 1 - fraction

	return &exchange.OrderAck{OrderID: uuid.NewString(), Status: "filled"}, nil
}

// ClosePosition implements exchange.OrderExecutor, settling at the mark.
func (p *PaperExchange) ClosePosition(ctx context.Context, symbol, reason string) (*exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return nil, &exchange.APIError{Status: 404, Message: fmt.Sprintf("no open position for %s", symbol)}
	}
	p.settleLocked(symbol, pos, p.marks[symbol])
	return &exchange.OrderAck{OrderID: uuid.NewString(), Status: "filled"}, nil
}
