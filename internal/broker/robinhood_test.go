package broker

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var testSeed = make([]byte, ed25519.SeedSize)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:     resty.New().SetBaseURL(server.URL),
		apiKey:     "test_api_key",
		privateKey: ed25519.NewKeyFromSeed(testSeed),
		logger:     zap.NewNop(), // Use a no-op logger for tests
		limiter:    rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return c, server
}

func TestNewClient(t *testing.T) {
	t.Run("ValidSeed", func(t *testing.T) {
		cfg := &config.Robinhood{
			ApiKey:         "key",
			PrivateKey:     base64.StdEncoding.EncodeToString(testSeed),
			BaseURL:        "https://trading.robinhood.com",
			RateLimit:      5,
			RateLimitBurst: 2,
		}
		c, err := NewClient(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("InvalidBase64", func(t *testing.T) {
		cfg := &config.Robinhood{PrivateKey: "not-base64!!"}
		_, err := NewClient(cfg, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("WrongSeedLength", func(t *testing.T) {
		cfg := &config.Robinhood{PrivateKey: base64.StdEncoding.EncodeToString([]byte("short"))}
		_, err := NewClient(cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestSignHeaders(t *testing.T) {
	c := &Client{
		apiKey:     "test_api_key",
		privateKey: ed25519.NewKeyFromSeed(testSeed),
		logger:     zap.NewNop(),
	}

	headers := c.signHeaders("POST", "/api/v1/crypto/trading/orders/", `{"symbol":"BTC-USD"}`)
	assert.Equal(t, "test_api_key", headers["x-api-key"])
	assert.NotEmpty(t, headers["x-timestamp"])

	// The signature must verify against the public key for the exact
	// timestamp+method+path+body message.
	signature, err := base64.StdEncoding.DecodeString(headers["x-signature"])
	require.NoError(t, err)
	message := headers["x-timestamp"] + "POST" + "/api/v1/crypto/trading/orders/" + `{"symbol":"BTC-USD"}`
	publicKey := c.privateKey.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(publicKey, []byte(message), signature))

	// A tampered body must not verify.
	assert.False(t, ed25519.Verify(publicKey, []byte(message+"x"), signature))
}

func TestGetAccount(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/crypto/trading/accounts/", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("x-signature"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"account_number": "A123", "status": "active", "buying_power": "1000.00"}`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	account, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A123", account.AccountNumber)
	assert.Equal(t, "1000.00", account.BuyingPower)
}

func TestGetQuote(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/crypto/marketdata/best_bid_ask/", r.URL.Path)
			assert.Equal(t, "BTC-USD", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results": [{"symbol": "BTC-USD", "price": "65000.50"}]}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		quote, err := c.GetQuote(context.Background(), "BTC-USD")
		require.NoError(t, err)
		assert.Equal(t, "BTC-USD", quote.Symbol)
		assert.Equal(t, "65000.50", quote.Price)
	})

	t.Run("EmptyResults", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results": []}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetQuote(context.Background(), "BTC-USD")
		assert.Error(t, err)
	})
}

func TestPlaceOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/crypto/trading/orders/", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"symbol":"BTC-USD"`)
			assert.Contains(t, string(body), `"side":"buy"`)
			assert.Contains(t, string(body), `"asset_quantity":"0.01"`)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "order-123",
				"symbol": "BTC-USD",
				"side": "buy",
				"state": "filled",
				"filled_asset_quantity": "0.01",
				"average_price": "65000.00"
			}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		order, err := c.PlaceOrder(context.Background(), "BTC-USD", OrderSideBuy, 0.01)
		require.NoError(t, err)
		assert.Equal(t, "order-123", order.ID)
		assert.Equal(t, "filled", order.State)
		assert.Equal(t, "0.01", order.FilledQuantity)
	})

	t.Run("InvalidSide", func(t *testing.T) {
		c, server := setupTestServer(http.NotFoundHandler())
		defer server.Close()

		_, err := c.PlaceOrder(context.Background(), "BTC-USD", "hold", 1)
		assert.Error(t, err)
	})

	t.Run("Rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors": [{"detail": "insufficient buying power"}]}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.PlaceOrder(context.Background(), "BTC-USD", OrderSideBuy, 100)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create order")
	})
}
