package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Engine API method names.
const (
	methodGetPosition        = "engine.getPosition"
	methodSyncDirtyPositions = "engine.syncDirtyPositions"
	methodGetMarketOdds      = "engine.getMarketOdds"
)

// HTTPClient talks to the live pricing engine over HTTP JSON-RPC 2.0. It
// implements both LivePricingEngine and MarketOddsSource.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new engine API client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface checks.
var (
	_ LivePricingEngine = (*HTTPClient)(nil)
	_ MarketOddsSource  = (*HTTPClient)(nil)
)

// enginePositionPayload is the wire form of an engine position record.
type enginePositionPayload struct {
	PositionID    string          `json:"positionId"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
}

// marketOddsPayload is the wire form of a market odds record.
type marketOddsPayload struct {
	YesShares decimal.Decimal `json:"yesShares"`
	NoShares  decimal.Decimal `json:"noShares"`
}

// GetPosition returns the engine's record for a position, or (nil, nil) when
// the engine has no record for that id.
func (c *HTTPClient) GetPosition(ctx context.Context, positionID string) (*domain.EnginePosition, error) {
	params := map[string]any{"positionId": positionID}

	var payload *enginePositionPayload
	if err := c.call(ctx, methodGetPosition, params, &payload); err != nil {
		return nil, fmt.Errorf("get engine position %s: %w", positionID, err)
	}
	if payload == nil {
		return nil, nil
	}

	return &domain.EnginePosition{
		PositionID:    payload.PositionID,
		CurrentPrice:  payload.CurrentPrice,
		UnrealizedPnL: payload.UnrealizedPnL,
	}, nil
}

// SyncDirtyPositions asks the engine to flush dirty positions to storage.
func (c *HTTPClient) SyncDirtyPositions(ctx context.Context) error {
	if err := c.call(ctx, methodSyncDirtyPositions, map[string]any{}, nil); err != nil {
		return fmt.Errorf("sync dirty positions: %w", err)
	}
	return nil
}

// GetOdds returns the outstanding YES/NO shares of a prediction market, or
// (nil, nil) when the market is resolved or unknown.
func (c *HTTPClient) GetOdds(ctx context.Context, marketID string) (*domain.MarketOdds, error) {
	params := map[string]any{"marketId": marketID}

	var payload *marketOddsPayload
	if err := c.call(ctx, methodGetMarketOdds, params, &payload); err != nil {
		return nil, fmt.Errorf("get market odds %s: %w", marketID, err)
	}
	if payload == nil {
		return nil, nil
	}

	return &domain.MarketOdds{
		YesShares: payload.YesShares,
		NoShares:  payload.NoShares,
	}, nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params any, result any) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && len(rpcResp.Result) > 0 {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("all %d attempts failed: %w", c.maxRetries+1, lastErr)
}
