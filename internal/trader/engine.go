package trader

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"crypto-trade-bot-go/internal/backtest"
	"crypto-trade-bot-go/internal/broker"
	"crypto-trade-bot-go/internal/config"
	"crypto-trade-bot-go/internal/database"
	"crypto-trade-bot-go/internal/marketdata"
	"crypto-trade-bot-go/internal/models"
	"crypto-trade-bot-go/internal/risk"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tradeLogTimeout bounds how long a tick may block on persisting a trade.
const tradeLogTimeout = 5 * time.Second

// Engine is the core trading engine that runs the polling-based decision loop.
// Each tick fully resolves in sequence: fetch quotes, generate signals, gate
// through the risk manager, execute, settle, persist. Balance updates happen
// strictly after a confirmed fill, never speculatively.
type Engine struct {
	logger     *zap.Logger
	cfg        *config.Config
	market     marketdata.ClientInterface
	venue      broker.ClientInterface
	risk       *risk.Manager
	signals    SignalGenerator
	db         *gorm.DB
	priceStore *database.PriceStore
}

// NewEngine creates a new trading engine.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	market marketdata.ClientInterface,
	venue broker.ClientInterface,
	riskManager *risk.Manager,
	signals SignalGenerator,
	db *gorm.DB,
) *Engine {
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		market:     market,
		venue:      venue,
		risk:       riskManager,
		signals:    signals,
		db:         db,
		priceStore: database.NewPriceStore(db),
	}
}

// Run starts the trading engine's main loop.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing trading engine...")
	if err := e.initialize(ctx); err != nil {
		e.logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	e.logger.Info("Engine initialized successfully.", zap.String("signal_generator", e.signals.Name()))

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting decision loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("Tick failed", zap.Error(err))
			}
		}
	}
}

// initialize syncs the risk manager with the venue's view of the account.
// In dry-run mode the configured initial capital stands in for it.
func (e *Engine) initialize(ctx context.Context) error {
	if e.cfg.Trading.DryRun {
		e.logger.Warn("Dry run enabled. No real orders will be placed.")
		return nil
	}

	account, err := e.venue.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch trading account: %w", err)
	}
	buyingPower, err := strconv.ParseFloat(account.BuyingPower, 64)
	if err != nil {
		return fmt.Errorf("could not parse buying power %q: %w", account.BuyingPower, err)
	}

	e.risk.UpdateBalance(buyingPower)
	e.logger.Info("Synced account balance",
		zap.String("account", account.AccountNumber),
		zap.Float64("buying_power", buyingPower))
	return nil
}

// tick performs a single round of the decision loop.
func (e *Engine) tick(ctx context.Context) error {
	e.archiveReferencePrices(ctx)

	snapshot, err := e.fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	signals := e.signals.GenerateSignals(snapshot)

	for _, symbol := range e.cfg.Trading.Symbols {
		signal, ok := signals[symbol]
		if !ok || (signal != backtest.SignalBuy && signal != backtest.SignalSell) {
			continue
		}

		// The kill switch is the single hard-stop authority; a latched
		// switch halts the whole tick, not just one symbol.
		if !e.risk.IsTradingAllowed() {
			e.logger.Warn("Kill switch active, skipping all trades this tick")
			return nil
		}

		if err := e.executeSignal(ctx, symbol, signal, snapshot); err != nil {
			e.logger.Error("Failed to execute signal",
				zap.String("symbol", symbol),
				zap.String("signal", string(signal)),
				zap.Error(err))
		}
	}

	return nil
}

// archiveReferencePrices stores the configured CoinGecko prices for later
// backtesting. Failures are logged and skipped: reference data must never
// stall the decision loop.
func (e *Engine) archiveReferencePrices(ctx context.Context) {
	coins := e.cfg.CoinGecko.Coins
	if len(coins) == 0 {
		return
	}

	quotes, err := e.market.GetPrices(ctx, coins, e.cfg.CoinGecko.VsCurrency)
	if err != nil {
		e.logger.Warn("Could not fetch reference prices", zap.Error(err))
		return
	}

	prices := make([]models.Price, 0, len(quotes))
	for _, quote := range quotes {
		prices = append(prices, models.Price{
			Symbol:    quote.CoinID,
			Timestamp: quote.Timestamp.Unix(),
			Value:     quote.Price,
		})
	}

	storeCtx, cancel := context.WithTimeout(ctx, tradeLogTimeout)
	defer cancel()
	if err := e.priceStore.StoreBatch(storeCtx, prices); err != nil {
		e.logger.Warn("Could not archive reference prices", zap.Error(err))
	}
}

// fetchSnapshot quotes every configured trading symbol at the venue.
func (e *Engine) fetchSnapshot(ctx context.Context) (MarketSnapshot, error) {
	snapshot := make(MarketSnapshot, len(e.cfg.Trading.Symbols))
	for _, symbol := range e.cfg.Trading.Symbols {
		quote, err := e.venue.GetQuote(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("could not get quote for %s: %w", symbol, err)
		}
		price, err := strconv.ParseFloat(quote.Price, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid quote price %q for %s", quote.Price, symbol)
		}
		snapshot[symbol] = price
	}
	return snapshot, nil
}

// executeSignal sizes, validates, executes and settles a single order.
func (e *Engine) executeSignal(ctx context.Context, symbol string, signal backtest.Signal, snapshot MarketSnapshot) error {
	price := snapshot[symbol]
	l := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("signal", string(signal)),
		zap.Float64("price", price),
	)

	var side string
	var quantity float64

	switch signal {
	case backtest.SignalBuy:
		side = broker.OrderSideBuy
		notional := e.risk.CurrentBalance() * e.risk.MaxPositionSize()
		// Soft rejection: the caller skips this one order, trading stays enabled.
		if !e.risk.CheckPositionSize(notional) {
			l.Warn("Position size rejected by risk manager", zap.Float64("notional", notional))
			return nil
		}
		quantity = floorQuantity(notional / price)
	case backtest.SignalSell:
		side = broker.OrderSideSell
		if e.cfg.Trading.DryRun {
			// No real holdings to inspect; simulate an all-out sell of
			// one position-cap worth at the current price.
			quantity = floorQuantity(e.risk.CurrentBalance() * e.risk.MaxPositionSize() / price)
		} else {
			held, err := e.heldQuantity(ctx, symbol)
			if err != nil {
				return err
			}
			// Sell the entire position; nothing held means nothing to do.
			quantity = floorQuantity(held)
		}
	}

	if quantity <= 0 {
		l.Debug("Nothing to trade", zap.String("side", side))
		return nil
	}

	fillPrice, fillQuantity, orderID, err := e.placeOrder(ctx, symbol, side, quantity, price)
	if err != nil {
		return err
	}

	// Settlement: re-read the account only after the confirmed fill. If
	// the settlement read fails the balance stays at its last committed
	// value rather than guessing.
	if !e.cfg.Trading.DryRun {
		if equity, err := e.accountEquity(ctx, snapshot); err != nil {
			l.Warn("Could not refresh balance after fill", zap.Error(err))
		} else {
			e.risk.UpdateBalance(equity)
			if e.risk.CheckDrawdown() {
				l.Warn("Drawdown limit breached, trading halted until reset")
			}
		}
	}

	e.recordTrade(ctx, models.Trade{
		Symbol:        symbol,
		Side:          side,
		Price:         fillPrice,
		Quantity:      fillQuantity,
		QuoteQuantity: fillPrice * fillQuantity,
		OrderID:       orderID,
		Timestamp:     time.Now().Unix(),
		IsSimulation:  e.cfg.Trading.DryRun,
	})
	return nil
}

// placeOrder submits the order to the venue, or simulates the fill in
// dry-run mode.
func (e *Engine) placeOrder(ctx context.Context, symbol, side string, quantity, price float64) (fillPrice, fillQuantity float64, orderID string, err error) {
	l := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
	)

	if e.cfg.Trading.DryRun {
		l.Warn("[Dry Run] Simulating order execution")
		fill := price * (1 + e.cfg.Trading.TradingFee)
		if side == broker.OrderSideSell {
			fill = price * (1 - e.cfg.Trading.TradingFee)
		}
		return fill, quantity, "", nil
	}

	l.Info("Executing trade...")
	order, err := e.venue.PlaceOrder(ctx, symbol, side, quantity)
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to place %s order for %s: %w", side, symbol, err)
	}

	fillQuantity, _ = strconv.ParseFloat(order.FilledQuantity, 64)
	fillPrice, _ = strconv.ParseFloat(order.AveragePrice, 64)
	if fillPrice == 0 {
		fillPrice = price
	}
	if fillQuantity == 0 {
		fillQuantity = quantity
	}
	l.Info("Trade executed successfully.", zap.String("order_id", order.ID), zap.String("state", order.State))
	return fillPrice, fillQuantity, order.ID, nil
}

// heldQuantity returns how much of the symbol's base asset the account holds.
func (e *Engine) heldQuantity(ctx context.Context, symbol string) (float64, error) {
	holdings, err := e.venue.GetHoldings(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not fetch holdings: %w", err)
	}

	asset := assetCode(symbol)
	for _, holding := range holdings {
		if holding.AssetCode == asset {
			quantity, err := strconv.ParseFloat(holding.Quantity, 64)
			if err != nil {
				return 0, fmt.Errorf("could not parse holding quantity %q: %w", holding.Quantity, err)
			}
			return quantity, nil
		}
	}
	return 0, nil
}

// accountEquity values the account as buying power plus marked holdings.
func (e *Engine) accountEquity(ctx context.Context, snapshot MarketSnapshot) (float64, error) {
	account, err := e.venue.GetAccount(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not fetch account: %w", err)
	}
	equity, err := strconv.ParseFloat(account.BuyingPower, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse buying power %q: %w", account.BuyingPower, err)
	}

	holdings, err := e.venue.GetHoldings(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not fetch holdings: %w", err)
	}
	for _, holding := range holdings {
		quantity, err := strconv.ParseFloat(holding.Quantity, 64)
		if err != nil {
			continue
		}
		for symbol, price := range snapshot {
			if assetCode(symbol) == holding.AssetCode {
				equity += quantity * price
				break
			}
		}
	}
	return equity, nil
}

// recordTrade persists the trade with a bounded timeout so a slow log
// sink cannot stall the decision loop. A failed write is logged and the
// loop moves on: the venue remains the source of truth for fills.
func (e *Engine) recordTrade(ctx context.Context, trade models.Trade) {
	logCtx, cancel := context.WithTimeout(ctx, tradeLogTimeout)
	defer cancel()

	if err := e.db.WithContext(logCtx).Create(&trade).Error; err != nil {
		e.logger.Error("Failed to save trade record to database", zap.Error(err))
		return
	}
	e.logger.Info("Successfully saved trade record",
		zap.Uint("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side))
}

// assetCode extracts the base asset from a trading pair, "BTC-USD" -> "BTC".
func assetCode(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// floorQuantity floors a quantity to the venue's 8-decimal precision.
func floorQuantity(quantity float64) float64 {
	return math.Floor(quantity*1e8) / 1e8
}
