package backtest

import "math"

// Metrics summarizes a completed backtest, derived entirely from the
// equity curve in the history.
type Metrics struct {
	InitialCapital   float64
	FinalEquity      float64
	TotalReturn      float64
	AnnualizedReturn float64
	// SharpeRatio is NaN when the equity curve is flat or too short to
	// have a return deviation. Callers must treat NaN as "undefined",
	// not as zero risk.
	SharpeRatio float64
	MaxDrawdown float64
}

// PerformanceMetrics computes the summary metrics for a completed run.
// The second return value is false if there is no history to measure.
func (e *Engine) PerformanceMetrics() (Metrics, bool) {
	if len(e.history) == 0 {
		e.logger.Warn("No backtesting history found, run the backtest first")
		return Metrics{}, false
	}

	finalEquity := e.history[len(e.history)-1].Equity
	totalReturn := finalEquity/e.cfg.InitialCapital - 1
	steps := float64(len(e.history))
	tradingDays := float64(e.cfg.TradingDays)
	annualized := math.Pow(1+totalReturn, tradingDays/steps) - 1

	return Metrics{
		InitialCapital:   e.cfg.InitialCapital,
		FinalEquity:      finalEquity,
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		SharpeRatio:      e.sharpeRatio(tradingDays),
		MaxDrawdown:      e.maxDrawdown(),
	}, true
}

// sharpeRatio annualizes the mean step return over its sample standard
// deviation. The first equity change is undefined and dropped.
func (e *Engine) sharpeRatio(tradingDays float64) float64 {
	var returns []float64
	for i := 1; i < len(e.history); i++ {
		prev := e.history[i-1].Equity
		if prev != 0 {
			returns = append(returns, (e.history[i].Equity-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return math.NaN()
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return math.NaN()
	}
	return math.Sqrt(tradingDays) * mean / stdDev
}

// maxDrawdown is the largest running peak-to-current drop over the whole
// equity curve, as a fraction of the running peak.
func (e *Engine) maxDrawdown() float64 {
	peak := e.history[0].Equity
	maxDrawdown := 0.0
	for _, snap := range e.history {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		if peak > 0 {
			drawdown := (peak - snap.Equity) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}
