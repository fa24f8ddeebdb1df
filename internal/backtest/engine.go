package backtest

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrMissingPrices means the engine was handed a series with no
	// usable close prices. Fatal configuration error, raised before any
	// simulation happens.
	ErrMissingPrices = errors.New("price series must contain close prices")

	// ErrSignalMismatch means the signal series is not aligned 1:1 with
	// the price series.
	ErrSignalMismatch = errors.New("signals must have the same length as the price series")

	// ErrAlreadyRun means Run was called twice on the same engine. The
	// engine is single-use: construct a new one per backtest.
	ErrAlreadyRun = errors.New("backtest engine has already run")
)

// Config holds the simulation parameters.
type Config struct {
	InitialCapital float64
	TradingFee     float64 // flat fraction applied to both sides
	TradingDays    int     // periods per year used for annualization; 252 if zero
}

// Engine deterministically replays a price series against a signal series
// under an all-in/all-out execution model: a BUY spends as much cash as
// affordable on whole units, a SELL liquidates the entire position. No
// shorting, no partial sizing. It never touches a live venue.
type Engine struct {
	series    Series
	cfg       Config
	cash      float64
	positions int64
	history   []Snapshot
	hasRun    bool
	logger    *zap.Logger
}

// NewEngine validates the price series and prepares a single-use engine.
func NewEngine(series Series, cfg Config, logger *zap.Logger) (*Engine, error) {
	if len(series) == 0 {
		return nil, ErrMissingPrices
	}
	for i, p := range series {
		if p.Close <= 0 {
			return nil, fmt.Errorf("%w: non-positive close %f at index %d", ErrMissingPrices, p.Close, i)
		}
		if i > 0 && p.Timestamp.Before(series[i-1].Timestamp) {
			return nil, fmt.Errorf("price series is not time-ordered at index %d", i)
		}
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %f", cfg.InitialCapital)
	}
	if cfg.TradingDays == 0 {
		cfg.TradingDays = 252
	}
	return &Engine{
		series: series,
		cfg:    cfg,
		cash:   cfg.InitialCapital,
		logger: logger,
	}, nil
}

// Run executes the simulation. All validation happens before the first
// step, so a failed Run never leaves a partial history behind. The first
// price point only seeds the series; trading starts on the second.
func (e *Engine) Run(signals []Signal) error {
	if e.hasRun {
		return ErrAlreadyRun
	}
	if len(signals) != len(e.series) {
		return fmt.Errorf("%w: %d signals for %d prices", ErrSignalMismatch, len(signals), len(e.series))
	}
	e.hasRun = true

	e.logger.Info("Starting backtest",
		zap.Int("steps", len(e.series)-1),
		zap.Float64("initial_capital", e.cfg.InitialCapital))

	for i := 1; i < len(e.series); i++ {
		price := e.series[i].Close
		signal := signals[i]

		switch signal {
		case SignalBuy:
			unitCost := price * (1 + e.cfg.TradingFee)
			units := int64(e.cash / unitCost)
			if units > 0 {
				e.cash -= float64(units) * unitCost
				e.positions += units
				e.logger.Debug("Buy", zap.Int64("units", units), zap.Float64("price", price))
			} else {
				e.logger.Debug("Not enough cash to buy", zap.Float64("cash", e.cash), zap.Float64("price", price))
			}
		case SignalSell:
			if e.positions > 0 {
				proceeds := float64(e.positions) * price * (1 - e.cfg.TradingFee)
				e.cash += proceeds
				e.logger.Debug("Sell", zap.Int64("units", e.positions), zap.Float64("price", price))
				e.positions = 0
			} else {
				e.logger.Debug("No positions to sell")
			}
		}

		e.history = append(e.history, Snapshot{
			Timestamp: e.series[i].Timestamp,
			Price:     price,
			Signal:    signal,
			Cash:      e.cash,
			Positions: e.positions,
			Equity:    e.cash + float64(e.positions)*price,
		})
	}

	if n := len(e.history); n > 0 {
		e.logger.Info("Backtest complete", zap.Float64("final_equity", e.history[n-1].Equity))
	} else {
		e.logger.Info("Backtest complete, series too short to trade")
	}
	return nil
}

// Results returns the step-by-step ledger in timestamp order. Empty, not
// an error, if Run was never invoked.
func (e *Engine) Results() []Snapshot {
	if len(e.history) == 0 {
		e.logger.Warn("No backtesting history found, run the backtest first")
		return nil
	}
	results := make([]Snapshot, len(e.history))
	copy(results, e.history)
	return results
}
