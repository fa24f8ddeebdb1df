package backtest

import "time"

// Signal is a discrete per-step trade instruction. Anything other than
// BUY or SELL is treated as HOLD by the engine.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// ParseSignal maps a string to a Signal, defaulting to HOLD for
// unrecognized values.
func ParseSignal(s string) Signal {
	switch Signal(s) {
	case SignalBuy:
		return SignalBuy
	case SignalSell:
		return SignalSell
	default:
		return SignalHold
	}
}

// PricePoint is a single close price observation.
type PricePoint struct {
	Timestamp time.Time
	Close     float64
}

// Series is a time-ordered sequence of price points.
type Series []PricePoint

// Snapshot is the per-step ledger entry appended after each simulated step.
type Snapshot struct {
	Timestamp time.Time
	Price     float64
	Signal    Signal
	Cash      float64
	Positions int64
	Equity    float64
}
