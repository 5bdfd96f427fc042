package risk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ctbglobal/risk-engine/internal/config"
	"github.com/ctbglobal/risk-engine/internal/errors"
	"github.com/ctbglobal/risk-engine/internal/logger"
	"github.com/ctbglobal/risk-engine/internal/monitoring"
)

// Manager is the portfolio risk engine for one trading session. It owns the
// open-position map, the realized outcome history and the high-water-mark,
// and serializes every public method behind an internal lock. It only ever
// signals: callers execute trades and act on emergency stops themselves.
type Manager struct {
	mu        sync.RWMutex
	limits    config.RiskLimits
	positions map[string]PositionRisk
	tracker   *Tracker
	log       *logger.Logger
	now       func() time.Time
}

// NewManager creates a risk manager with the given policy limits. The
// logger may be nil.
func NewManager(limits config.RiskLimits, log *logger.Logger) (*Manager, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		limits:    limits,
		positions: make(map[string]PositionRisk),
		tracker:   NewTracker(),
		log:       log,
		now:       time.Now,
	}

	log.Info("risk manager initialized: max position %s%%, max daily loss %s%%, max drawdown %s%%, max positions %d",
		limits.MaxPositionSizePercent, limits.MaxDailyLossPercent, limits.MaxDrawdownPercent, limits.MaxOpenPositions)

	return m, nil
}

// Limits returns the policy record the manager was constructed with
func (m *Manager) Limits() config.RiskLimits {
	return m.limits
}

// SetDailyStartValue snapshots the portfolio value used as the daily-loss
// baseline for the current trading day
func (m *Manager) SetDailyStartValue(value decimal.Decimal) error {
	if value.LessThanOrEqual(decimal.Zero) {
		return errors.NewInvalidParameter("risk", "set_daily_start_value", "value must be positive, got %s", value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.SetDailyStartValue(value, m.now())
	m.log.Info("daily start value set to %s", value)
	return nil
}

// ValidateOrder runs an intended order through the policy pipeline and
// returns the decision: approved (possibly with a reduced quantity) or
// rejected with the first applicable reason. It is a pure decision
// function with no effect on tracked state.
func (m *Manager) ValidateOrder(symbol string, side Side, quantity, price, portfolioValue, availableBalance decimal.Decimal) (Decision, error) {
	if symbol == "" {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "symbol must not be empty")
	}
	if side != SideBuy && side != SideSell {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "unknown order side %q", side)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "quantity must be positive, got %s", quantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "price must be positive, got %s", price)
	}
	if portfolioValue.LessThanOrEqual(decimal.Zero) {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "portfolio value must be positive, got %s", portfolioValue)
	}
	if availableBalance.IsNegative() {
		return Decision{}, errors.NewInvalidParameter("risk", "validate_order", "available balance must not be negative, got %s", availableBalance)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c := &candidate{
		symbol:           symbol,
		side:             side,
		quantity:         quantity,
		price:            price,
		portfolioValue:   portfolioValue,
		availableBalance: availableBalance,
	}

	for _, step := range validationPipeline {
		if reason := step.apply(m, c); reason != "" {
			monitoring.RecordValidation(symbol, "rejected")
			m.log.Risk("order rejected (%s): %s %s %s @ %s - %s", step.name, side, quantity, symbol, price, reason)
			return Decision{Approved: false, Reason: reason, Quantity: decimal.Zero}, nil
		}
	}

	if c.quantity.LessThanOrEqual(decimal.Zero) {
		reason := "quantity reduced to zero by risk limits"
		monitoring.RecordValidation(symbol, "rejected")
		m.log.Risk("order rejected: %s %s %s - %s", side, symbol, quantity, reason)
		return Decision{Approved: false, Reason: reason, Quantity: decimal.Zero}, nil
	}

	reason := "order validated"
	result := "approved"
	if len(c.notes) > 0 {
		reason = "approved with adjustments: " + strings.Join(c.notes, "; ")
		result = "adjusted"
		m.log.Risk("order adjusted: %s %s %s -> %s @ %s", side, symbol, quantity, c.quantity, price)
	}
	monitoring.RecordValidation(symbol, result)

	return Decision{Approved: true, Reason: reason, Quantity: c.quantity}, nil
}

// CalculateStopLossTakeProfit computes protective exit levels for an entry.
// A non-zero volatility widens the stop distance by (1+volatility) to avoid
// premature stop-outs in turbulent markets. The returned levels always
// satisfy reward/risk >= MinRiskRewardRatio; the take-profit is pushed out
// if the configured percentages fall short.
func (m *Manager) CalculateStopLossTakeProfit(symbol string, side Side, entryPrice, volatility decimal.Decimal) (stopLoss, takeProfit decimal.Decimal, err error) {
	if side != SideBuy && side != SideSell {
		return decimal.Zero, decimal.Zero, errors.NewInvalidParameter("risk", "calculate_stops", "unknown order side %q", side)
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, errors.NewInvalidParameter("risk", "calculate_stops", "entry price must be positive, got %s", entryPrice)
	}
	if volatility.IsNegative() {
		return decimal.Zero, decimal.Zero, errors.NewInvalidParameter("risk", "calculate_stops", "volatility must not be negative, got %s", volatility)
	}

	widening := one.Add(volatility)
	stopPercent := m.limits.StopLossPercent.Mul(widening)
	takePercent := m.limits.TakeProfitPercent.Mul(widening)

	stopDistance := percentOf(entryPrice, stopPercent)
	takeDistance := percentOf(entryPrice, takePercent)

	// Push the target out until reward/risk meets the configured floor
	minReward := stopDistance.Mul(m.limits.MinRiskRewardRatio)
	if takeDistance.LessThan(minReward) {
		takeDistance = minReward
	}

	if side == SideBuy {
		stopLoss = entryPrice.Sub(stopDistance)
		takeProfit = entryPrice.Add(takeDistance)
	} else {
		stopLoss = entryPrice.Add(stopDistance)
		takeProfit = entryPrice.Sub(takeDistance)
	}

	if stopLoss.LessThanOrEqual(decimal.Zero) || takeProfit.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, errors.NewInvalidParameter("risk", "calculate_stops",
			"stop distance %s%% too wide for a positive exit level at entry %s", stopPercent, entryPrice)
	}

	m.log.Risk("exit levels for %s %s @ %s: stop %s, target %s", side, symbol, entryPrice, stopLoss, takeProfit)
	return stopLoss, takeProfit, nil
}

// UpdatePosition inserts or overwrites the tracked position for a symbol,
// recomputing unrealized P&L, risk percent and risk level from scratch
func (m *Manager) UpdatePosition(symbol string, size, entryPrice, currentPrice decimal.Decimal) error {
	if symbol == "" {
		return errors.NewInvalidParameter("risk", "update_position", "symbol must not be empty")
	}
	if size.IsZero() {
		return errors.NewInvalidParameter("risk", "update_position", "size must not be zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return errors.NewInvalidParameter("risk", "update_position", "entry price must be positive, got %s", entryPrice)
	}
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return errors.NewInvalidParameter("risk", "update_position", "current price must be positive, got %s", currentPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	unrealizedPnL := currentPrice.Sub(entryPrice).Mul(size)
	notional := entryPrice.Mul(size).Abs()
	riskPercent := unrealizedPnL.Div(notional).Mul(hundred)

	m.positions[symbol] = PositionRisk{
		Symbol:        symbol,
		Size:          size,
		EntryPrice:    entryPrice,
		CurrentPrice:  currentPrice,
		UnrealizedPnL: unrealizedPnL,
		RiskPercent:   riskPercent,
		RiskLevel:     positionRiskLevel(riskPercent),
	}

	return nil
}

// RemovePosition closes out a symbol, records the realized P&L in the
// outcome history and updates the loss streak. Removing an untracked
// symbol is a no-op unless StrictPositionRemoval is set, in which case it
// fails with MissingPosition before recording anything.
func (m *Manager) RemovePosition(symbol string, realizedPnL decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; !exists && m.limits.StrictPositionRemoval {
		return errors.NewMissingPosition("risk", "remove_position", symbol)
	}

	delete(m.positions, symbol)
	m.tracker.RecordRealizedPnL(realizedPnL)
	monitoring.UpdateLossStreak(m.tracker.ConsecutiveLosses())

	m.log.Risk("position %s closed with realized pnl %s (loss streak %d)",
		symbol, realizedPnL, m.tracker.ConsecutiveLosses())

	return nil
}

// AssessPortfolioRisk aggregates the tracked state into a fresh snapshot.
// The snapshot is consistent: it is computed under the lock and not
// retained by the manager.
func (m *Manager) AssessPortfolioRisk(portfolioValue decimal.Decimal) (PortfolioRisk, error) {
	if portfolioValue.LessThanOrEqual(decimal.Zero) {
		return PortfolioRisk{}, errors.NewInvalidParameter("risk", "assess_portfolio_risk", "portfolio value must be positive, got %s", portfolioValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.RollDay(m.now(), portfolioValue)

	totalExposure := decimal.Zero
	unrealizedPnL := decimal.Zero
	largestExposure := decimal.Zero
	for _, pos := range m.positions {
		exposure := pos.Exposure()
		totalExposure = totalExposure.Add(exposure)
		unrealizedPnL = unrealizedPnL.Add(pos.UnrealizedPnL)
		if exposure.GreaterThan(largestExposure) {
			largestExposure = exposure
		}
	}

	correlationRisk := decimal.Zero
	if totalExposure.IsPositive() {
		correlationRisk = largestExposure.Div(totalExposure).Mul(hundred)
	}

	currentDrawdown := decimal.Zero
	if hwm := m.tracker.HighWaterMark(); hwm.IsPositive() && portfolioValue.LessThan(hwm) {
		currentDrawdown = hwm.Sub(portfolioValue).Div(hwm).Mul(hundred)
	}

	history := m.tracker.History()
	initialEquity := portfolioValue
	for _, pnl := range history {
		initialEquity = initialEquity.Sub(pnl)
	}

	snapshot := PortfolioRisk{
		TotalValue:      portfolioValue,
		TotalExposure:   totalExposure,
		UnrealizedPnL:   unrealizedPnL,
		DailyPnL:        m.tracker.DailyPnL(portfolioValue),
		MaxDrawdown:     MaxDrawdownPercent(history, initialEquity),
		CurrentDrawdown: currentDrawdown,
		VaR95:           HistoricalVaR95(history),
		SharpeRatio:     SharpeRatio(history, m.limits.SharpeAnnualization),
		RiskLevel:       determinePortfolioRiskLevel(currentDrawdown, len(m.positions), correlationRisk),
		OpenPositions:   len(m.positions),
		CorrelationRisk: correlationRisk,
	}

	monitoring.UpdatePortfolio(
		currentDrawdown.InexactFloat64(),
		totalExposure.InexactFloat64(),
		len(m.positions),
		snapshot.RiskLevel.Rank(),
	)

	return snapshot, nil
}

// Portfolio risk level thresholds, evaluated most severe first
var (
	portfolioDrawdownCrit   = decimal.NewFromInt(10)
	portfolioDrawdownHigh   = decimal.NewFromInt(5)
	portfolioDrawdownMedium = decimal.NewFromInt(2)

	portfolioCorrCrit   = decimal.NewFromInt(35)
	portfolioCorrHigh   = decimal.NewFromInt(25)
	portfolioCorrMedium = decimal.NewFromInt(15)
)

// determinePortfolioRiskLevel buckets the portfolio by drawdown, position
// count and concentration; the most severe matching threshold wins
func determinePortfolioRiskLevel(drawdown decimal.Decimal, openPositions int, correlationRisk decimal.Decimal) RiskLevel {
	switch {
	case drawdown.GreaterThanOrEqual(portfolioDrawdownCrit) || openPositions >= 10 || correlationRisk.GreaterThanOrEqual(portfolioCorrCrit):
		return RiskLevelCritical
	case drawdown.GreaterThanOrEqual(portfolioDrawdownHigh) || openPositions >= 8 || correlationRisk.GreaterThanOrEqual(portfolioCorrHigh):
		return RiskLevelHigh
	case drawdown.GreaterThanOrEqual(portfolioDrawdownMedium) || openPositions >= 4 || correlationRisk.GreaterThanOrEqual(portfolioCorrMedium):
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// CheckEmergencyStop raises the high-water-mark to the current value, then
// evaluates the stop rules in order: drawdown, daily loss, loss streak.
// It only signals; the caller halts trading.
func (m *Manager) CheckEmergencyStop(currentValue decimal.Decimal) (bool, string, error) {
	if currentValue.LessThanOrEqual(decimal.Zero) {
		return false, "", errors.NewInvalidParameter("risk", "check_emergency_stop", "current value must be positive, got %s", currentValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.RollDay(m.now(), currentValue)
	hwm := m.tracker.ObserveValue(currentValue)

	drawdown := hwm.Sub(currentValue).Div(hwm).Mul(hundred)
	if drawdown.GreaterThanOrEqual(m.limits.MaxDrawdownPercent) {
		return m.signalStop("drawdown", fmt.Sprintf("maximum drawdown exceeded: %s%% >= %s%%",
			drawdown.Round(2), m.limits.MaxDrawdownPercent))
	}

	if start := m.tracker.DailyStartValue(); start.IsPositive() {
		dailyLoss := start.Sub(currentValue).Div(start).Mul(hundred)
		if dailyLoss.GreaterThanOrEqual(m.limits.MaxDailyLossPercent) {
			return m.signalStop("daily_loss", fmt.Sprintf("maximum daily loss exceeded: %s%% >= %s%%",
				dailyLoss.Round(2), m.limits.MaxDailyLossPercent))
		}
	}

	if m.tracker.ConsecutiveLosses() >= m.limits.MaxConsecutiveLosses {
		return m.signalStop("loss_streak", fmt.Sprintf("consecutive loss limit reached: %d",
			m.tracker.ConsecutiveLosses()))
	}

	return false, "", nil
}

// signalStop records and logs an emergency stop signal; callers hold the lock
func (m *Manager) signalStop(rule, reason string) (bool, string, error) {
	monitoring.RecordEmergencyStop(rule)
	m.log.Risk("EMERGENCY STOP: %s", reason)
	return true, reason, nil
}

// Position returns the tracked position for a symbol
func (m *Manager) Position(symbol string) (PositionRisk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	return pos, ok
}

// Positions returns a copy of the open positions, sorted by symbol
func (m *Manager) Positions() []PositionRisk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PositionRisk, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ConsecutiveLosses returns the current realized loss streak
func (m *Manager) ConsecutiveLosses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tracker.ConsecutiveLosses()
}

// HighWaterMark returns the running maximum observed portfolio value
func (m *Manager) HighWaterMark() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tracker.HighWaterMark()
}

// CoolingOff reports whether new orders are currently rejected because of
// the realized loss streak
func (m *Manager) CoolingOff() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tracker.ConsecutiveLosses() >= m.limits.MaxConsecutiveLosses
}
