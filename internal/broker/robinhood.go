package broker

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"crypto-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	OrderSideBuy    = "buy"
	OrderSideSell   = "sell"
	OrderTypeMarket = "market"
)

// Account holds the trading account state returned by the API.
type Account struct {
	AccountNumber string `json:"account_number"`
	Status        string `json:"status"`
	BuyingPower   string `json:"buying_power"`
}

// PriceQuote is the best bid/ask snapshot for a trading pair.
type PriceQuote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Bid    string `json:"bid_inclusive_of_sell_spread"`
	Ask    string `json:"ask_inclusive_of_buy_spread"`
}

// Holding is a single crypto position in the account.
type Holding struct {
	AssetCode string `json:"asset_code"`
	Quantity  string `json:"total_quantity"`
}

// OrderResponse represents the response from creating a new order.
type OrderResponse struct {
	ID             string `json:"id"`
	ClientOrderID  string `json:"client_order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	State          string `json:"state"`
	FilledQuantity string `json:"filled_asset_quantity"`
	AveragePrice   string `json:"average_price"`
	CreatedAt      string `json:"created_at"`
}

// ClientInterface defines the interface for the Robinhood crypto trading client.
type ClientInterface interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetQuote(ctx context.Context, symbol string) (*PriceQuote, error)
	GetHoldings(ctx context.Context) ([]Holding, error)
	PlaceOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderResponse, error)
}

// Client is a client for the Robinhood crypto trading API. Requests are
// authenticated with an Ed25519 signature over timestamp+method+path+body.
// It implements the ClientInterface.
type Client struct {
	client     *resty.Client
	apiKey     string
	privateKey ed25519.PrivateKey
	logger     *zap.Logger
	limiter    *rate.Limiter
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Robinhood API client. The private key is the
// base64-encoded Ed25519 seed issued alongside the API key.
func NewClient(cfg *config.Robinhood, logger *zap.Logger) (*Client, error) {
	seed, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	client := resty.New().SetBaseURL(cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:     client,
		apiKey:     cfg.ApiKey,
		privateKey: ed25519.NewKeyFromSeed(seed),
		logger:     logger,
		limiter:    limiter,
	}, nil
}

// signHeaders builds the authentication headers for a request. The
// signed message is timestamp + method + path + body, so a header set
// is only valid for that exact request.
func (c *Client) signHeaders(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + method + path + body
	signature := ed25519.Sign(c.privateKey, []byte(message))

	return map[string]string{
		"x-api-key":   c.apiKey,
		"x-timestamp": timestamp,
		"x-signature": base64.StdEncoding.EncodeToString(signature),
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetAccount fetches the crypto trading account.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	path := "/api/v1/crypto/trading/accounts/"

	var account Account
	req := c.client.R().
		SetHeaders(c.signHeaders("GET", path, "")).
		SetResult(&account)

	if _, err := c.doRequest(ctx, "GET", path, req); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetQuote fetches the current best bid/ask for a symbol (e.g. "BTC-USD").
func (c *Client) GetQuote(ctx context.Context, symbol string) (*PriceQuote, error) {
	path := "/api/v1/crypto/marketdata/best_bid_ask/"

	var result struct {
		Results []PriceQuote `json:"results"`
	}
	req := c.client.R().
		SetHeaders(c.signHeaders("GET", path, "")).
		SetQueryParam("symbol", symbol).
		SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", path, req); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("no quote returned for symbol %s", symbol)
	}
	return &result.Results[0], nil
}

// GetHoldings fetches the current crypto positions.
func (c *Client) GetHoldings(ctx context.Context) ([]Holding, error) {
	path := "/api/v1/crypto/trading/holdings/"

	var result struct {
		Results []Holding `json:"results"`
	}
	req := c.client.R().
		SetHeaders(c.signHeaders("GET", path, "")).
		SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", path, req); err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	return result.Results, nil
}

// PlaceOrder places a market order.
func (c *Client) PlaceOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderResponse, error) {
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, fmt.Errorf("invalid order side %q", side)
	}

	path := "/api/v1/crypto/trading/orders/"
	body := fmt.Sprintf(
		`{"client_order_id":%q,"symbol":%q,"side":%q,"type":%q,"market_order_config":{"asset_quantity":"%s"}}`,
		uuid.NewString(), symbol, side, OrderTypeMarket,
		strconv.FormatFloat(quantity, 'f', -1, 64),
	)

	var order OrderResponse
	req := c.client.R().
		SetHeaders(c.signHeaders("POST", path, body)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&order)

	if _, err := c.doRequest(ctx, "POST", path, req); err != nil {
		c.logger.Error("Failed to create order after multiple attempts",
			zap.Error(err),
			zap.String("symbol", symbol),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	c.logger.Info("Successfully created order",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.String("state", order.State))
	return &order, nil
}
