package risk

import (
	"sync"

	"crypto-trade-bot-go/internal/config"
	"go.uber.org/zap"
)

// Manager is the gatekeeping authority for whether a trade may proceed.
// It tracks account balance against its historical peak, enforces a
// position-size cap, and latches a kill switch when the drawdown limit
// is breached.
//
// All methods are safe for concurrent use; the live loop is sequential
// today, but the peak/balance fields are read-modify-write and must stay
// consistent if ticks are ever parallelized across symbols.
type Manager struct {
	mu sync.Mutex

	maxPositionSize float64 // fraction of current balance
	maxDrawdown     float64 // fraction of initial capital
	initialCapital  float64

	currentBalance   float64
	peakBalance      float64
	killSwitchActive bool

	logger *zap.Logger
}

// NewManager creates a risk manager seeded with the initial capital.
func NewManager(cfg config.Risk, logger *zap.Logger) *Manager {
	return &Manager{
		maxPositionSize: cfg.MaxPositionSize,
		maxDrawdown:     cfg.MaxDrawdown,
		initialCapital:  cfg.InitialCapital,
		currentBalance:  cfg.InitialCapital,
		peakBalance:     cfg.InitialCapital,
		logger:          logger,
	}
}

// UpdateBalance records the account balance after a confirmed settlement
// and advances the peak balance if a new high was reached.
func (m *Manager) UpdateBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentBalance = balance
	if balance > m.peakBalance {
		m.peakBalance = balance
	}
}

// CheckDrawdown reports whether the drawdown from the peak balance,
// measured against the initial capital, exceeds the configured limit.
// A breach latches the kill switch; the latch survives any later balance
// recovery and is only cleared by Reset.
func (m *Manager) CheckDrawdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	drawdown := (m.peakBalance - m.currentBalance) / m.initialCapital
	if drawdown > m.maxDrawdown {
		m.logger.Warn("Maximum drawdown exceeded, activating kill switch",
			zap.Float64("drawdown", drawdown),
			zap.Float64("max_drawdown", m.maxDrawdown))
		m.killSwitchActive = true
		return true
	}
	return false
}

// CheckPositionSize reports whether a position of the given quote-currency
// size fits within the per-trade allocation limit. Pure predicate, no
// side effects.
func (m *Manager) CheckPositionSize(positionSize float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxAllowed := m.currentBalance * m.maxPositionSize
	if positionSize > maxAllowed {
		m.logger.Warn("Position size exceeds maximum allowed",
			zap.Float64("position_size", positionSize),
			zap.Float64("max_allowed", maxAllowed))
		return false
	}
	return true
}

// IsTradingAllowed reports whether the kill switch permits new orders.
// Callers must consult this before every order submission.
func (m *Manager) IsTradingAllowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.killSwitchActive {
		m.logger.Warn("Trading is disabled due to kill switch activation")
		return false
	}
	return true
}

// ActivateKillSwitch manually halts trading. Idempotent.
func (m *Manager) ActivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.killSwitchActive = true
	m.logger.Warn("Kill switch manually activated")
}

// Reset restores the manager to its initial state: balance and peak back
// to the initial capital, kill switch cleared. Used between backtest runs
// and for deliberate operator recovery after a halt.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentBalance = m.initialCapital
	m.peakBalance = m.initialCapital
	m.killSwitchActive = false
	m.logger.Info("Risk manager reset to initial state")
}

// CurrentBalance returns the last recorded balance.
func (m *Manager) CurrentBalance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBalance
}

// PeakBalance returns the highest balance observed since construction or
// the last Reset.
func (m *Manager) PeakBalance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakBalance
}

// MaxPositionSize returns the configured per-trade allocation fraction.
func (m *Manager) MaxPositionSize() float64 {
	return m.maxPositionSize
}
