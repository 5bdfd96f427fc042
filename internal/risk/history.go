package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// maxHistoryEntries caps the realized P&L history at a rolling month
const maxHistoryEntries = 30

// Tracker holds the realized outcome history a Manager reasons over: daily
// P&L entries, the loss streak, the portfolio high-water-mark and the daily
// baseline. It is not safe for concurrent use; the owning Manager
// serializes access under its own lock.
type Tracker struct {
	pnlHistory        []decimal.Decimal
	consecutiveLosses int
	highWaterMark     decimal.Decimal
	dailyStartValue   decimal.Decimal
	currentDay        time.Time
}

// NewTracker creates an empty outcome tracker
func NewTracker() *Tracker {
	return &Tracker{
		pnlHistory: make([]decimal.Decimal, 0, maxHistoryEntries),
	}
}

// RecordRealizedPnL appends a realized outcome and updates the loss streak.
// A profit resets the streak, a loss increments it, zero is neutral.
func (t *Tracker) RecordRealizedPnL(pnl decimal.Decimal) {
	t.pnlHistory = append(t.pnlHistory, pnl)
	if len(t.pnlHistory) > maxHistoryEntries {
		t.pnlHistory = t.pnlHistory[len(t.pnlHistory)-maxHistoryEntries:]
	}

	switch {
	case pnl.IsPositive():
		t.consecutiveLosses = 0
	case pnl.IsNegative():
		t.consecutiveLosses++
	}
}

// ConsecutiveLosses returns the current realized loss streak
func (t *Tracker) ConsecutiveLosses() int {
	return t.consecutiveLosses
}

// History returns a copy of the realized P&L entries, oldest first
func (t *Tracker) History() []decimal.Decimal {
	out := make([]decimal.Decimal, len(t.pnlHistory))
	copy(out, t.pnlHistory)
	return out
}

// ObserveValue raises the high-water-mark if the portfolio value exceeds it
// and returns the current mark
func (t *Tracker) ObserveValue(value decimal.Decimal) decimal.Decimal {
	if value.GreaterThan(t.highWaterMark) {
		t.highWaterMark = value
	}
	return t.highWaterMark
}

// HighWaterMark returns the running maximum observed portfolio value
func (t *Tracker) HighWaterMark() decimal.Decimal {
	return t.highWaterMark
}

// SetDailyStartValue snapshots the portfolio value used as the daily-loss
// baseline and pins the current trading day
func (t *Tracker) SetDailyStartValue(value decimal.Decimal, now time.Time) {
	t.dailyStartValue = value
	t.currentDay = day(now)
}

// DailyStartValue returns the daily-loss baseline
func (t *Tracker) DailyStartValue() decimal.Decimal {
	return t.dailyStartValue
}

// RollDay re-baselines the daily start value when a new trading day is
// observed. Returns true if the day rolled.
func (t *Tracker) RollDay(now time.Time, portfolioValue decimal.Decimal) bool {
	if day(now).Equal(t.currentDay) {
		return false
	}
	t.dailyStartValue = portfolioValue
	t.currentDay = day(now)
	return true
}

// DailyPnL is the portfolio value change since the daily baseline, zero
// when no baseline has been set
func (t *Tracker) DailyPnL(portfolioValue decimal.Decimal) decimal.Decimal {
	if t.dailyStartValue.IsZero() {
		return decimal.Zero
	}
	return portfolioValue.Sub(t.dailyStartValue)
}

func day(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
