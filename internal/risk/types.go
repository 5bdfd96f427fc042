package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ctbglobal/risk-engine/internal/errors"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string, rejecting anything but BUY/SELL
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", errors.NewInvalidParameter("risk", "parse_side", "unknown order side %q", s)
	}
}

// RiskLevel classifies position and portfolio risk severity
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Rank orders risk levels by severity, low to critical
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return 0
	}
}

// PositionRisk describes one open position. Size is signed: positive for
// long, negative for short. UnrealizedPnL and RiskPercent are always
// recomputed from size/entry/current, never stored independently.
type PositionRisk struct {
	Symbol        string          `json:"symbol"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RiskPercent   decimal.Decimal `json:"risk_percent"`
	RiskLevel     RiskLevel       `json:"risk_level"`
}

// Exposure is the absolute notional of the position at the current price
func (p PositionRisk) Exposure() decimal.Decimal {
	return p.Size.Mul(p.CurrentPrice).Abs()
}

// PortfolioRisk is an ephemeral snapshot produced by AssessPortfolioRisk
type PortfolioRisk struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalExposure   decimal.Decimal `json:"total_exposure"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	DailyPnL        decimal.Decimal `json:"daily_pnl"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	CurrentDrawdown decimal.Decimal `json:"current_drawdown"`
	VaR95           decimal.Decimal `json:"var_95"`
	SharpeRatio     decimal.Decimal `json:"sharpe_ratio"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	OpenPositions   int             `json:"open_positions"`
	CorrelationRisk decimal.Decimal `json:"correlation_risk"`
}

// Decision is the outcome of ValidateOrder. Quantity carries the possibly
// reduced size when approved, zero when rejected.
type Decision struct {
	Approved bool            `json:"approved"`
	Reason   string          `json:"reason"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Err converts a rejection into a RiskLimitExceeded error for callers that
// prefer error-shaped flow control. Approved decisions return nil.
func (d Decision) Err() error {
	if d.Approved {
		return nil
	}
	return errors.NewRiskLimitExceeded("risk", "validate_order", d.Reason)
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Position risk level thresholds on |risk percent|
var (
	positionRiskMedium = decimal.NewFromInt(1)
	positionRiskHigh   = decimal.NewFromInt(4)
	positionRiskCrit   = decimal.NewFromInt(8)
)

// positionRiskLevel buckets a position's risk percent magnitude
func positionRiskLevel(riskPercent decimal.Decimal) RiskLevel {
	magnitude := riskPercent.Abs()
	switch {
	case magnitude.LessThan(positionRiskMedium):
		return RiskLevelLow
	case magnitude.LessThan(positionRiskHigh):
		return RiskLevelMedium
	case magnitude.LessThan(positionRiskCrit):
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// percentOf returns value * percent / 100
func percentOf(value, percent decimal.Decimal) decimal.Decimal {
	return value.Mul(percent).Div(hundred)
}
