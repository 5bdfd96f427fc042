package config

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ctbglobal/risk-engine/internal/errors"
)

// RiskLimits is the immutable policy record the risk engine is constructed
// with. All percentage fields are expressed as whole percents (10 = 10%).
type RiskLimits struct {
	// Per-position limits
	MaxPositionSizePercent decimal.Decimal `json:"max_position_size_percent"` // max % of portfolio per position
	MaxOpenPositions       int             `json:"max_open_positions"`        // cap on concurrent symbols

	// Portfolio-level stop thresholds
	MaxDailyLossPercent decimal.Decimal `json:"max_daily_loss_percent"`
	MaxDrawdownPercent  decimal.Decimal `json:"max_drawdown_percent"`

	// Protective exit defaults
	StopLossPercent    decimal.Decimal `json:"stop_loss_percent"`
	TakeProfitPercent  decimal.Decimal `json:"take_profit_percent"`
	MinRiskRewardRatio decimal.Decimal `json:"min_risk_reward_ratio"`

	// Loss-streak policy
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	// Optimal-sizing policy. KellyFraction scales the raw Kelly estimate
	// (0.5 = half-Kelly); KellyMinSamples gates the estimate until enough
	// realized outcomes exist.
	KellyFraction   decimal.Decimal `json:"kelly_fraction"`
	KellyMinSamples int             `json:"kelly_min_samples"`

	// Annualization factor applied to the raw Sharpe ratio. Crypto trades
	// every day, so the default is sqrt(365).
	SharpeAnnualization decimal.Decimal `json:"sharpe_annualization"`

	// When true, removing an untracked position is an error instead of a no-op
	StrictPositionRemoval bool `json:"strict_position_removal"`
}

// DefaultRiskLimits returns the standard policy thresholds
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSizePercent: decimal.NewFromInt(10),
		MaxOpenPositions:       10,
		MaxDailyLossPercent:    decimal.NewFromInt(5),
		MaxDrawdownPercent:     decimal.NewFromInt(15),
		StopLossPercent:        decimal.NewFromInt(2),
		TakeProfitPercent:      decimal.NewFromInt(6),
		MinRiskRewardRatio:     decimal.NewFromInt(2),
		MaxConsecutiveLosses:   5,
		KellyFraction:          decimal.RequireFromString("0.5"),
		KellyMinSamples:        10,
		SharpeAnnualization:    decimal.NewFromFloat(math.Sqrt(365)),
		StrictPositionRemoval:  false,
	}
}

// LoadRiskLimits reads policy thresholds from the environment on top of defaults
func LoadRiskLimits() RiskLimits {
	limits := DefaultRiskLimits()

	limits.MaxPositionSizePercent = getEnvDecimal("RISK_MAX_POSITION_SIZE_PERCENT", "10")
	limits.MaxOpenPositions = getEnvInt("RISK_MAX_OPEN_POSITIONS", 10)
	limits.MaxDailyLossPercent = getEnvDecimal("RISK_MAX_DAILY_LOSS_PERCENT", "5")
	limits.MaxDrawdownPercent = getEnvDecimal("RISK_MAX_DRAWDOWN_PERCENT", "15")
	limits.StopLossPercent = getEnvDecimal("RISK_STOP_LOSS_PERCENT", "2")
	limits.TakeProfitPercent = getEnvDecimal("RISK_TAKE_PROFIT_PERCENT", "6")
	limits.MinRiskRewardRatio = getEnvDecimal("RISK_MIN_RISK_REWARD_RATIO", "2")
	limits.MaxConsecutiveLosses = getEnvInt("RISK_MAX_CONSECUTIVE_LOSSES", 5)
	limits.KellyFraction = getEnvDecimal("RISK_KELLY_FRACTION", "0.5")
	limits.KellyMinSamples = getEnvInt("RISK_KELLY_MIN_SAMPLES", 10)
	limits.StrictPositionRemoval = getEnvBool("RISK_STRICT_POSITION_REMOVAL", false)

	return limits
}

// Validate checks the limits for internally consistent, usable values
func (l RiskLimits) Validate() error {
	if l.MaxPositionSizePercent.LessThanOrEqual(decimal.Zero) || l.MaxPositionSizePercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.NewConfigurationError("config", "validate",
			"max_position_size_percent must be in (0, 100], got %s", l.MaxPositionSizePercent)
	}
	if l.MaxOpenPositions <= 0 {
		return errors.NewConfigurationError("config", "validate",
			"max_open_positions must be positive, got %d", l.MaxOpenPositions)
	}
	if l.MaxDailyLossPercent.LessThanOrEqual(decimal.Zero) {
		return errors.NewConfigurationError("config", "validate",
			"max_daily_loss_percent must be positive, got %s", l.MaxDailyLossPercent)
	}
	if l.MaxDrawdownPercent.LessThanOrEqual(decimal.Zero) {
		return errors.NewConfigurationError("config", "validate",
			"max_drawdown_percent must be positive, got %s", l.MaxDrawdownPercent)
	}
	if l.StopLossPercent.LessThanOrEqual(decimal.Zero) || l.StopLossPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return errors.NewConfigurationError("config", "validate",
			"stop_loss_percent must be in (0, 100), got %s", l.StopLossPercent)
	}
	if l.TakeProfitPercent.LessThanOrEqual(decimal.Zero) {
		return errors.NewConfigurationError("config", "validate",
			"take_profit_percent must be positive, got %s", l.TakeProfitPercent)
	}
	if l.MinRiskRewardRatio.LessThanOrEqual(decimal.Zero) {
		return errors.NewConfigurationError("config", "validate",
			"min_risk_reward_ratio must be positive, got %s", l.MinRiskRewardRatio)
	}
	if l.MaxConsecutiveLosses <= 0 {
		return errors.NewConfigurationError("config", "validate",
			"max_consecutive_losses must be positive, got %d", l.MaxConsecutiveLosses)
	}
	if l.KellyFraction.LessThanOrEqual(decimal.Zero) || l.KellyFraction.GreaterThan(decimal.NewFromInt(1)) {
		return errors.NewConfigurationError("config", "validate",
			"kelly_fraction must be in (0, 1], got %s", l.KellyFraction)
	}
	if l.KellyMinSamples < 2 {
		return errors.NewConfigurationError("config", "validate",
			"kelly_min_samples must be at least 2, got %d", l.KellyMinSamples)
	}
	if l.SharpeAnnualization.LessThanOrEqual(decimal.Zero) {
		return errors.NewConfigurationError("config", "validate",
			"sharpe_annualization must be positive, got %s", l.SharpeAnnualization)
	}
	return nil
}
