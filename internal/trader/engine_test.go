package trader

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"crypto-trade-bot-go/internal/backtest"
	"crypto-trade-bot-go/internal/broker"
	"crypto-trade-bot-go/internal/config"
	"crypto-trade-bot-go/internal/database"
	"crypto-trade-bot-go/internal/marketdata"
	"crypto-trade-bot-go/internal/models"
	"crypto-trade-bot-go/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// mockVenue implements broker.ClientInterface for engine tests.
type mockVenue struct {
	quotes      map[string]string
	buyingPower string
	holdings    []broker.Holding
	placed      []placedOrder
	quoteErr    error
	orderErr    error
}

type placedOrder struct {
	symbol   string
	side     string
	quantity float64
}

func (m *mockVenue) GetAccount(ctx context.Context) (*broker.Account, error) {
	return &broker.Account{AccountNumber: "A123", Status: "active", BuyingPower: m.buyingPower}, nil
}

func (m *mockVenue) GetQuote(ctx context.Context, symbol string) (*broker.PriceQuote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	price, ok := m.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &broker.PriceQuote{Symbol: symbol, Price: price}, nil
}

func (m *mockVenue) GetHoldings(ctx context.Context) ([]broker.Holding, error) {
	return m.holdings, nil
}

func (m *mockVenue) PlaceOrder(ctx context.Context, symbol, side string, quantity float64) (*broker.OrderResponse, error) {
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.placed = append(m.placed, placedOrder{symbol: symbol, side: side, quantity: quantity})
	return &broker.OrderResponse{
		ID:             fmt.Sprintf("order-%d", len(m.placed)),
		Symbol:         symbol,
		Side:           side,
		State:          "filled",
		FilledQuantity: fmt.Sprintf("%f", quantity),
		AveragePrice:   m.quotes[symbol],
	}, nil
}

var _ broker.ClientInterface = (*mockVenue)(nil)

// scriptedSignals returns a fixed signal set every tick.
type scriptedSignals map[string]backtest.Signal

func (scriptedSignals) Name() string { return "scripted" }

func (s scriptedSignals) GenerateSignals(snapshot MarketSnapshot) map[string]backtest.Signal {
	return s
}

func newTestEngine(t *testing.T, venue *mockVenue, signals SignalGenerator, dryRun bool) (*Engine, *risk.Manager, *gorm.DB) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	cfg := &config.Config{
		Trading: config.Trading{
			Symbols:      []string{"BTC-USD"},
			TradingFee:   0.001,
			DryRun:       dryRun,
			TickInterval: 1,
		},
		Risk: config.Risk{
			MaxPositionSize: 0.1,
			MaxDrawdown:     0.05,
			InitialCapital:  10000,
		},
	}
	riskManager := risk.NewManager(cfg.Risk, zap.NewNop())
	engine := NewEngine(zap.NewNop(), cfg, nil, venue, riskManager, signals, db)
	return engine, riskManager, db
}

func countTrades(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Trade{}).Count(&count).Error)
	return count
}

func TestTickExecutesRiskSizedBuy(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "9000",
	}
	engine, riskManager, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalBuy}, false)

	require.NoError(t, engine.tick(context.Background()))

	// 10% of the 10000 balance at price 100 is 10 units.
	require.Len(t, venue.placed, 1)
	assert.Equal(t, broker.OrderSideBuy, venue.placed[0].side)
	assert.InDelta(t, 10.0, venue.placed[0].quantity, 1e-9)

	// Balance resynced from the venue after the confirmed fill.
	assert.InDelta(t, 9000.0, riskManager.CurrentBalance(), 1e-9)

	assert.Equal(t, int64(1), countTrades(t, db))
	var trade models.Trade
	require.NoError(t, db.First(&trade).Error)
	assert.Equal(t, "BTC-USD", trade.Symbol)
	assert.Equal(t, broker.OrderSideBuy, trade.Side)
	assert.False(t, trade.IsSimulation)
}

func TestTickSellsEntireHolding(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
		holdings:    []broker.Holding{{AssetCode: "BTC", Quantity: "2.5"}},
	}
	engine, _, _ := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalSell}, false)

	require.NoError(t, engine.tick(context.Background()))

	require.Len(t, venue.placed, 1)
	assert.Equal(t, broker.OrderSideSell, venue.placed[0].side)
	assert.InDelta(t, 2.5, venue.placed[0].quantity, 1e-9)
}

func TestTickSellWithoutHoldingIsNoop(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
	}
	engine, _, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalSell}, false)

	require.NoError(t, engine.tick(context.Background()))

	assert.Empty(t, venue.placed)
	assert.Equal(t, int64(0), countTrades(t, db))
}

func TestTickHoldPlacesNoOrders(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
	}
	engine, _, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalHold}, false)

	require.NoError(t, engine.tick(context.Background()))

	assert.Empty(t, venue.placed)
	assert.Equal(t, int64(0), countTrades(t, db))
}

func TestTickKillSwitchBlocksAllOrders(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
	}
	engine, riskManager, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalBuy}, false)

	riskManager.ActivateKillSwitch()
	require.NoError(t, engine.tick(context.Background()))

	assert.Empty(t, venue.placed)
	assert.Equal(t, int64(0), countTrades(t, db))
}

func TestTickLatchesKillSwitchOnDrawdownBreach(t *testing.T) {
	// The settlement read reports a balance 20% below the peak.
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "8000",
	}
	engine, riskManager, _ := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalBuy}, false)

	require.NoError(t, engine.tick(context.Background()))
	assert.False(t, riskManager.IsTradingAllowed())

	// Next tick must place nothing.
	require.NoError(t, engine.tick(context.Background()))
	assert.Len(t, venue.placed, 1)
}

func TestTickDryRunSimulatesWithoutVenueOrders(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
	}
	engine, riskManager, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalBuy}, true)

	require.NoError(t, engine.tick(context.Background()))

	assert.Empty(t, venue.placed)
	// No fill was confirmed, so the balance must stay committed as-is.
	assert.InDelta(t, 10000.0, riskManager.CurrentBalance(), 1e-9)

	var trade models.Trade
	require.NoError(t, db.First(&trade).Error)
	assert.True(t, trade.IsSimulation)
	assert.InDelta(t, 10.0, trade.Quantity, 1e-9)
}

func TestTickQuoteFailureAbortsBeforeAnyOrder(t *testing.T) {
	venue := &mockVenue{
		quoteErr:    fmt.Errorf("venue unavailable"),
		buyingPower: "10000",
	}
	engine, riskManager, db := newTestEngine(t, venue,
		scriptedSignals{"BTC-USD": backtest.SignalBuy}, false)

	assert.Error(t, engine.tick(context.Background()))
	assert.Empty(t, venue.placed)
	assert.Equal(t, int64(0), countTrades(t, db))
	// Committed state is untouched by the failed tick.
	assert.InDelta(t, 10000.0, riskManager.CurrentBalance(), 1e-9)
}

func TestHoldStrategyNeverTrades(t *testing.T) {
	signals := HoldStrategy{}.GenerateSignals(MarketSnapshot{"BTC-USD": 100, "ETH-USD": 200})
	require.Len(t, signals, 2)
	for _, signal := range signals {
		assert.Equal(t, backtest.SignalHold, signal)
	}
}

func TestAssetCode(t *testing.T) {
	assert.Equal(t, "BTC", assetCode("BTC-USD"))
	assert.Equal(t, "DOGE", assetCode("DOGE-USD"))
	assert.Equal(t, "BTC", assetCode("BTC"))
}

// mockMarket implements marketdata.ClientInterface for archive tests.
type mockMarket struct {
	quotes map[string]*marketdata.Quote
}

func (m *mockMarket) GetPrice(ctx context.Context, coinID, vsCurrency string) (*marketdata.Quote, error) {
	quote, ok := m.quotes[coinID]
	if !ok {
		return nil, fmt.Errorf("no price for %s", coinID)
	}
	return quote, nil
}

func (m *mockMarket) GetPrices(ctx context.Context, coinIDs []string, vsCurrency string) (map[string]*marketdata.Quote, error) {
	return m.quotes, nil
}

func (m *mockMarket) Ping(ctx context.Context) error { return nil }

var _ marketdata.ClientInterface = (*mockMarket)(nil)

func TestTickArchivesReferencePrices(t *testing.T) {
	venue := &mockVenue{
		quotes:      map[string]string{"BTC-USD": "100"},
		buyingPower: "10000",
	}
	engine, _, db := newTestEngine(t, venue, scriptedSignals{}, false)
	engine.cfg.CoinGecko = config.CoinGecko{Coins: []string{"bitcoin"}, VsCurrency: "usd"}
	engine.market = &mockMarket{quotes: map[string]*marketdata.Quote{
		"bitcoin": {CoinID: "bitcoin", Currency: "usd", Price: 65000, Timestamp: time.Unix(1700000000, 0)},
	}}

	require.NoError(t, engine.tick(context.Background()))

	var price models.Price
	require.NoError(t, db.First(&price).Error)
	assert.Equal(t, "bitcoin", price.Symbol)
	assert.Equal(t, int64(1700000000), price.Timestamp)
	assert.InDelta(t, 65000.0, price.Value, 1e-9)
}
