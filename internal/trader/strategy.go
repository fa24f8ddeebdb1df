package trader

import "crypto-trade-bot-go/internal/backtest"

// MarketSnapshot maps a trading symbol to its last observed price.
type MarketSnapshot map[string]float64

// SignalGenerator maps market data to a discrete action per symbol. The
// engine treats it as a black box: it is called once per tick and its
// output is gated by the risk manager before any order is placed.
type SignalGenerator interface {
	// Name returns the unique name of the signal generator.
	Name() string

	// GenerateSignals returns an action for each symbol it has an
	// opinion on. Symbols absent from the result are treated as HOLD.
	GenerateSignals(snapshot MarketSnapshot) map[string]backtest.Signal
}

// HoldStrategy never trades. Useful as a safe default and for dry-running
// the loop against live market data.
type HoldStrategy struct{}

func (HoldStrategy) Name() string { return "hold" }

func (HoldStrategy) GenerateSignals(snapshot MarketSnapshot) map[string]backtest.Signal {
	signals := make(map[string]backtest.Signal, len(snapshot))
	for symbol := range snapshot {
		signals[symbol] = backtest.SignalHold
	}
	return signals
}
