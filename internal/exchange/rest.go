package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/halpertj/perp_sentry/internal/util"
)

// Default per-call timeouts. Snapshot reads are cheap and frequent; order
// operations are given more headroom because they mutate exchange state.
const (
	DefaultSnapshotTimeout = 10 * time.Second
	DefaultOrderTimeout    = 15 * time.Second
)

// RestClient talks to the perp exchange gateway over its JSON REST API. It
// implements both Provider and OrderExecutor.
type RestClient struct {
	client          *http.Client
	baseURL         string
	apiKey          string
	accountID       string
	tickSize        float64
	snapshotTimeout time.Duration
	orderTimeout    time.Duration
}

// Compile-time interface compliance checks.
var (
	_ Provider      = (*RestClient)(nil)
	_ OrderExecutor = (*RestClient)(nil)
)

// NewRestClient creates a gateway client with default timeouts.
func NewRestClient(baseURL, apiKey, accountID string) *RestClient {
	return &RestClient{
		client:          &http.Client{},
		baseURL:         baseURL,
		apiKey:          apiKey,
		accountID:       accountID,
		snapshotTimeout: DefaultSnapshotTimeout,
		orderTimeout:    DefaultOrderTimeout,
	}
}

// WithHTTPClient swaps the underlying HTTP client (used by tests).
func (c *RestClient) WithHTTPClient(client *http.Client) *RestClient {
	if client != nil {
		c.client = client
	}
	return c
}

// WithTickSize sets the venue's price increment. Trigger prices on outgoing
// orders are rounded to it; zero leaves prices untouched.
func (c *RestClient) WithTickSize(tickSize float64) *RestClient {
	if tickSize > 0 {
		c.tickSize = tickSize
	}
	return c
}

// WithTimeouts overrides the per-call-class timeouts.
func (c *RestClient) WithTimeouts(snapshot, order time.Duration) *RestClient {
	if snapshot > 0 {
		c.snapshotTimeout = snapshot
	}
	if order > 0 {
		c.orderTimeout = order
	}
	return c
}

// ListOpenPositions returns all open perp positions for the account.
func (c *RestClient) ListOpenPositions(ctx context.Context) ([]PositionItem, error) {
	var resp struct {
		Positions []PositionItem `json:"positions"`
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/positions", c.baseURL, url.PathEscape(c.accountID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, c.snapshotTimeout, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing open positions: %w", err)
	}
	return resp.Positions, nil
}

// GetMark returns the current mark price and funding rate for a symbol.
func (c *RestClient) GetMark(ctx context.Context, symbol string) (*MarkQuote, error) {
	var resp struct {
		Mark MarkQuote `json:"mark"`
	}
	endpoint := fmt.Sprintf("%s/v1/markets/%s/mark", c.baseURL, url.PathEscape(symbol))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, c.snapshotTimeout, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching mark for %s: %w", symbol, err)
	}
	return &resp.Mark, nil
}

// GetEquity returns the account's total equity.
func (c *RestClient) GetEquity(ctx context.Context) (float64, error) {
	var resp struct {
		Equity float64 `json:"equity"`
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/equity", c.baseURL, url.PathEscape(c.accountID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, c.snapshotTimeout, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching equity: %w", err)
	}
	return resp.Equity, nil
}

// ListOpenTriggerOrders returns the resting stop/take-profit orders for a symbol.
func (c *RestClient) ListOpenTriggerOrders(ctx context.Context, symbol string) ([]TriggerOrder, error) {
	var resp struct {
		Orders []TriggerOrder `json:"orders"`
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/trigger-orders?symbol=%s",
		c.baseURL, url.PathEscape(c.accountID), url.QueryEscape(symbol))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, c.snapshotTimeout, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing trigger orders for %s: %w", symbol, err)
	}
	return resp.Orders, nil
}

// TightenStop replaces the symbol's stop-loss trigger at newPrice, rounded
// to the venue's price increment.
func (c *RestClient) TightenStop(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error) {
	return c.postOrder(ctx, "stop", map[string]any{
		"symbol":     symbol,
		"trigger_px": util.RoundToTick(newPrice, c.tickSize),
		"tpsl":       string(TriggerStopLoss),
		"client_tag": newClientTag(),
	})
}

// AdjustTakeProfit replaces the symbol's take-profit trigger at newPrice,
// rounded to the venue's price increment.
func (c *RestClient) AdjustTakeProfit(ctx context.Context, symbol string, newPrice float64) (*OrderAck, error) {
	return c.postOrder(ctx, "take-profit", map[string]any{
		"symbol":     symbol,
		"trigger_px": util.RoundToTick(newPrice, c.tickSize),
		"tpsl":       string(TriggerTakeProfit),
		"client_tag": newClientTag(),
	})
}

// PartialClose market-closes fraction of the symbol's position.
func (c *RestClient) PartialClose(ctx context.Context, symbol string, fraction float64) (*OrderAck, error) {
	return c.postOrder(ctx, "partial-close", map[string]any{
		"symbol":     symbol,
		"fraction":   fraction,
		"client_tag": newClientTag(),
	})
}

// ClosePosition market-closes the entire position. The reason travels as a
// tag so forced closes are attributable in the exchange's own logs.
func (c *RestClient) ClosePosition(ctx context.Context, symbol, reason string) (*OrderAck, error) {
	return c.postOrder(ctx, "close", map[string]any{
		"symbol":     symbol,
		"reason":     reason,
		"client_tag": newClientTag(),
	})
}

func (c *RestClient) postOrder(ctx context.Context, op string, body map[string]any) (*OrderAck, error) {
	var resp struct {
		Order OrderAck `json:"order"`
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/orders/%s", c.baseURL, url.PathEscape(c.accountID), op)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, c.orderTimeout, body, &resp); err != nil {
		return nil, fmt.Errorf("order %s: %w", op, err)
	}
	return &resp.Order, nil
}

func (c *RestClient) doRequest(ctx context.Context, method, endpoint string,
	timeout time.Duration, body map[string]any, response interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var req *http.Request
	var err error
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+c.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "perp-sentry/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Printf("Failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		if rerr != nil {
			return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("%s %s -> %s", method, endpoint, string(raw))}
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func newClientTag() string {
	return "sentry-" + uuid.NewString()[:8]
}
