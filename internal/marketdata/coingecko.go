package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Quote is a single price observation for a coin.
type Quote struct {
	CoinID    string
	Currency  string
	Price     float64
	Timestamp time.Time
}

// ClientInterface defines the interface for the CoinGecko market data client.
type ClientInterface interface {
	GetPrice(ctx context.Context, coinID, vsCurrency string) (*Quote, error)
	GetPrices(ctx context.Context, coinIDs []string, vsCurrency string) (map[string]*Quote, error)
	Ping(ctx context.Context) error
}

// Client is a client for the CoinGecko REST API with request-level
// caching. It implements the ClientInterface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	cache   *Cache
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new CoinGecko API client.
func NewClient(cfg *config.CoinGecko, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	cache := NewCache(time.Duration(cfg.CacheTTL) * time.Second)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
		cache:   cache,
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

// simplePrice fetches /simple/price, serving from the cache when the
// same endpoint+params were fetched within the TTL.
func (c *Client) simplePrice(ctx context.Context, coinIDs []string, vsCurrency string) (SimplePrice, time.Time, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(coinIDs, ","))
	params.Set("vs_currencies", vsCurrency)
	cacheKey := "/simple/price?" + params.Encode()

	if prices, fetchedAt, ok := c.cache.Get(cacheKey); ok {
		c.logger.Debug("Serving prices from cache", zap.String("key", cacheKey))
		return prices, fetchedAt, nil
	}

	var prices SimplePrice
	req := c.client.R().
		SetQueryParamsFromValues(params).
		SetResult(&prices).
		SetHeader("Accept", "application/json")

	_, err := c.doRequest(ctx, "GET", "/simple/price", req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to get prices: %w", err)
	}

	fetchedAt := time.Now()
	c.cache.Set(cacheKey, prices)
	return prices, fetchedAt, nil
}

// GetPrice fetches the current price of a single coin.
func (c *Client) GetPrice(ctx context.Context, coinID, vsCurrency string) (*Quote, error) {
	quotes, err := c.GetPrices(ctx, []string{coinID}, vsCurrency)
	if err != nil {
		return nil, err
	}
	quote, ok := quotes[coinID]
	if !ok {
		return nil, fmt.Errorf("no price returned for coin %q", coinID)
	}
	return quote, nil
}

// GetPrices fetches current prices for multiple coins in one request.
func (c *Client) GetPrices(ctx context.Context, coinIDs []string, vsCurrency string) (map[string]*Quote, error) {
	prices, fetchedAt, err := c.simplePrice(ctx, coinIDs, vsCurrency)
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]*Quote, len(coinIDs))
	for _, id := range coinIDs {
		currencies, ok := prices[id]
		if !ok {
			c.logger.Warn("No price returned for coin", zap.String("coin_id", id))
			continue
		}
		price, ok := currencies[vsCurrency]
		if !ok {
			c.logger.Warn("No price in requested currency",
				zap.String("coin_id", id), zap.String("currency", vsCurrency))
			continue
		}
		quotes[id] = &Quote{
			CoinID:    id,
			Currency:  vsCurrency,
			Price:     price,
			Timestamp: fetchedAt,
		}
	}
	return quotes, nil
}

// Ping checks API connectivity.
func (c *Client) Ping(ctx context.Context) error {
	req := c.client.R()
	if _, err := c.doRequest(ctx, "GET", "/ping", req); err != nil {
		return fmt.Errorf("coingecko ping failed: %w", err)
	}
	return nil
}
