package exchange

import (
	"fmt"

	"github.com/halpertj/perp_sentry/internal/models"
)

// PositionItem is one open perpetual position as reported by the gateway.
type PositionItem struct {
	Symbol           string      `json:"symbol"`
	Side             models.Side `json:"side"`
	Size             float64     `json:"size"` // notional
	EntryPrice       float64     `json:"entry_price"`
	LiquidationPrice float64     `json:"liquidation_price"`
	MarginUsed       float64     `json:"margin_used"`
}

// MarkQuote is the current mark price and funding rate for a symbol.
type MarkQuote struct {
	MarkPrice   float64 `json:"mark_price"`
	FundingRate float64 `json:"funding_rate"`
}

// TriggerOrderKind distinguishes stop-loss from take-profit trigger orders.
type TriggerOrderKind string

const (
	// TriggerStopLoss marks a stop-loss trigger order.
	TriggerStopLoss TriggerOrderKind = "sl"
	// TriggerTakeProfit marks a take-profit trigger order.
	TriggerTakeProfit TriggerOrderKind = "tp"
)

// TriggerOrder is an open stop/take-profit order resting on the exchange.
type TriggerOrder struct {
	OrderID   string           `json:"order_id"`
	TPSL      TriggerOrderKind `json:"tpsl"`
	TriggerPx float64          `json:"trigger_px"`
}

// OrderAck is the gateway's acknowledgement of an order operation.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// APIError represents an error response from the exchange gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d: %s", e.Status, e.Message)
}

// IsTransient reports whether the error is worth retrying: rate limits and
// server-side failures are, other 4xx responses are not.
func (e *APIError) IsTransient() bool {
	return e.Status == 429 || e.Status >= 500
}
