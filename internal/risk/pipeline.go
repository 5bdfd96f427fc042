package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ctbglobal/risk-engine/internal/monitoring"
)

// quantityPrecision is the decimal places order quantities are truncated to
const quantityPrecision = 8

// candidate is the order flowing through the validation pipeline. Steps
// either reject it outright or shrink its quantity, appending a note for
// every limit they apply.
type candidate struct {
	symbol           string
	side             Side
	quantity         decimal.Decimal
	price            decimal.Decimal
	portfolioValue   decimal.Decimal
	availableBalance decimal.Decimal
	notes            []string
}

func (c *candidate) note(format string, args ...interface{}) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

// policyStep is one ordered rule of the validation pipeline. A non-empty
// return rejects the order; an empty return passes it on, possibly with a
// reduced quantity.
type policyStep struct {
	name  string
	apply func(m *Manager, c *candidate) (rejectReason string)
}

// validationPipeline is evaluated in order; the first rejection wins and
// later steps only ever shrink the candidate quantity
var validationPipeline = []policyStep{
	{"cooling_off", (*Manager).checkCoolingOff},
	{"position_count", (*Manager).checkPositionCount},
	{"position_size", (*Manager).capPositionSize},
	{"balance", (*Manager).capBalance},
	{"optimal_size", (*Manager).capOptimalSize},
}

// checkCoolingOff rejects every order while the realized loss streak is at
// or above the limit. The streak is lifted only by a profitable close.
func (m *Manager) checkCoolingOff(c *candidate) string {
	if m.tracker.ConsecutiveLosses() >= m.limits.MaxConsecutiveLosses {
		return fmt.Sprintf("cooling off after %d consecutive losses", m.tracker.ConsecutiveLosses())
	}
	return ""
}

// checkPositionCount rejects orders that would open a new symbol beyond the
// open-position cap. Orders for symbols already tracked pass through.
func (m *Manager) checkPositionCount(c *candidate) string {
	if _, exists := m.positions[c.symbol]; exists {
		return ""
	}
	if len(m.positions) >= m.limits.MaxOpenPositions {
		return fmt.Sprintf("maximum open positions (%d) reached", m.limits.MaxOpenPositions)
	}
	return ""
}

// capPositionSize shrinks the quantity so the position notional stays within
// the per-position share of portfolio value
func (m *Manager) capPositionSize(c *candidate) string {
	maxNotional := percentOf(c.portfolioValue, m.limits.MaxPositionSizePercent)
	maxQuantity := maxNotional.Div(c.price).RoundDown(quantityPrecision)
	if c.quantity.GreaterThan(maxQuantity) {
		c.quantity = maxQuantity
		c.note("quantity capped at %s%% of portfolio value", m.limits.MaxPositionSizePercent)
		monitoring.RecordAdjustment("position_size")
	}
	return ""
}

// capBalance shrinks BUY quantities to what the available balance can pay for
func (m *Manager) capBalance(c *candidate) string {
	if c.side != SideBuy {
		return ""
	}
	cost := c.quantity.Mul(c.price)
	if cost.GreaterThan(c.availableBalance) {
		c.quantity = c.availableBalance.Div(c.price).RoundDown(quantityPrecision)
		c.note("quantity reduced to available balance %s", c.availableBalance)
		monitoring.RecordAdjustment("balance")
	}
	return ""
}

// capOptimalSize applies the Kelly-derived sizing cap once enough realized
// outcomes exist; with insufficient history the quantity passes unchanged
func (m *Manager) capOptimalSize(c *candidate) string {
	kelly, ok := KellyFraction(m.tracker.History(), m.limits.KellyMinSamples)
	if !ok {
		return ""
	}

	fraction := kelly.Mul(m.limits.KellyFraction)
	maxQuantity := fraction.Mul(c.portfolioValue).Div(c.price).RoundDown(quantityPrecision)
	if c.quantity.GreaterThan(maxQuantity) {
		c.quantity = maxQuantity
		c.note("quantity capped at kelly fraction %s", fraction.Round(4))
		monitoring.RecordAdjustment("optimal_size")
	}
	return ""
}
