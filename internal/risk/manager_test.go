package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctbglobal/risk-engine/internal/config"
	"github.com/ctbglobal/risk-engine/internal/errors"
)

// TestNewManager_InvalidLimits tests that unusable limits fail construction
func TestNewManager_InvalidLimits(t *testing.T) {
	limits := config.DefaultRiskLimits()
	limits.MaxOpenPositions = 0

	_, err := NewManager(limits, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

// TestCalculateStopLossTakeProfit_Buy tests the baseline long exit levels:
// 2% stop and 6% target from a 50,000 entry
func TestCalculateStopLossTakeProfit_Buy(t *testing.T) {
	m := newTestManager(t)

	stop, take, err := m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, stop.Equal(d("49000")), "stop = %s", stop)
	assert.True(t, take.Equal(d("53000")), "take = %s", take)
}

// TestCalculateStopLossTakeProfit_Sell tests that short exits mirror longs:
// stop above the entry, target below
func TestCalculateStopLossTakeProfit_Sell(t *testing.T) {
	m := newTestManager(t)

	stop, take, err := m.CalculateStopLossTakeProfit("BTCUSDT", SideSell, d("50000"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, stop.Equal(d("51000")), "stop = %s", stop)
	assert.True(t, take.Equal(d("47000")), "take = %s", take)
}

// TestCalculateStopLossTakeProfit_Volatility tests that volatility widens
// both distances proportionally
func TestCalculateStopLossTakeProfit_Volatility(t *testing.T) {
	m := newTestManager(t)

	// 1.5x widening: stop 3%, target 9%
	stop, take, err := m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), d("0.5"))
	require.NoError(t, err)

	assert.True(t, stop.Equal(d("48500")), "stop = %s", stop)
	assert.True(t, take.Equal(d("54500")), "take = %s", take)
}

// TestCalculateStopLossTakeProfit_MinRiskReward tests that a configured
// target below the reward floor is pushed out to stop distance * ratio
func TestCalculateStopLossTakeProfit_MinRiskReward(t *testing.T) {
	limits := config.DefaultRiskLimits()
	limits.TakeProfitPercent = d("3") // below 2x the 2% stop
	m, err := NewManager(limits, nil)
	require.NoError(t, err)

	stop, take, err := m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), decimal.Zero)
	require.NoError(t, err)

	risk := d("50000").Sub(stop)
	reward := take.Sub(d("50000"))
	assert.True(t, stop.Equal(d("49000")))
	assert.True(t, take.Equal(d("52000")), "take = %s", take)
	assert.True(t, reward.GreaterThanOrEqual(risk.Mul(limits.MinRiskRewardRatio)))
}

// TestCalculateStopLossTakeProfit_RatioHoldsUnderVolatility tests that the
// reward floor is enforced on the widened distances, not the raw percents
func TestCalculateStopLossTakeProfit_RatioHoldsUnderVolatility(t *testing.T) {
	limits := config.DefaultRiskLimits()
	limits.TakeProfitPercent = d("3")
	m, err := NewManager(limits, nil)
	require.NoError(t, err)

	for _, vol := range []string{"0", "0.2", "0.5", "1", "2"} {
		t.Run(vol, func(t *testing.T) {
			stop, take, err := m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), d(vol))
			require.NoError(t, err)

			risk := d("50000").Sub(stop)
			reward := take.Sub(d("50000"))
			assert.True(t, reward.GreaterThanOrEqual(risk.Mul(limits.MinRiskRewardRatio)),
				"reward %s below %sx risk %s at volatility %s", reward, limits.MinRiskRewardRatio, risk, vol)
		})
	}
}

// TestCalculateStopLossTakeProfit_Invalid tests input validation and the
// positive exit level guard
func TestCalculateStopLossTakeProfit_Invalid(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.CalculateStopLossTakeProfit("BTCUSDT", Side("HOLD"), d("50000"), decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)

	_, _, err = m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)

	_, _, err = m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), d("-0.1"))
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)

	// A 2% stop widened 100x exceeds the entry and cannot yield a positive level
	_, _, err = m.CalculateStopLossTakeProfit("BTCUSDT", SideBuy, d("50000"), d("99"))
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)
}

// TestUpdatePosition_Long tests P&L and risk classification for a long
func TestUpdatePosition_Long(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdatePosition("BTCUSDT", d("0.5"), d("50000"), d("51000")))

	pos, ok := m.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL.Equal(d("500")))
	assert.True(t, pos.RiskPercent.Equal(d("2")))
	assert.Equal(t, RiskLevelMedium, pos.RiskLevel)
	assert.True(t, pos.Exposure().Equal(d("25500")))
}

// TestUpdatePosition_Short tests that a short in profit when price falls
// and at risk when price rises, with positive exposure either way
func TestUpdatePosition_Short(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdatePosition("ETHUSDT", d("-2"), d("3000"), d("3150")))

	pos, ok := m.Position("ETHUSDT")
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL.Equal(d("-300")))
	assert.True(t, pos.RiskPercent.Equal(d("-5")))
	assert.Equal(t, RiskLevelHigh, pos.RiskLevel)
	assert.True(t, pos.Exposure().Equal(d("6300")))
}

// TestUpdatePosition_Overwrite tests that a second update fully recomputes
// the tracked record
func TestUpdatePosition_Overwrite(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdatePosition("BTCUSDT", d("0.5"), d("50000"), d("51000")))
	require.NoError(t, m.UpdatePosition("BTCUSDT", d("0.5"), d("50000"), d("47000")))

	pos, ok := m.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL.Equal(d("-1500")))
	assert.True(t, pos.RiskPercent.Equal(d("-6")))
	assert.Equal(t, RiskLevelHigh, pos.RiskLevel)
	assert.Len(t, m.Positions(), 1)
}

// TestUpdatePosition_RiskLevelBuckets tests the |risk percent| thresholds
// at 1, 4 and 8
func TestUpdatePosition_RiskLevelBuckets(t *testing.T) {
	m := newTestManager(t)

	cases := []struct {
		current string
		level   RiskLevel
	}{
		{"100.5", RiskLevelLow},      // 0.5%
		{"101", RiskLevelMedium},     // exactly 1%
		{"103.99", RiskLevelMedium},  // just under 4%
		{"104", RiskLevelHigh},       // exactly 4%
		{"108", RiskLevelCritical},   // exactly 8%
		{"92", RiskLevelCritical},    // -8%, magnitude counts
	}

	for _, tc := range cases {
		require.NoError(t, m.UpdatePosition("BTCUSDT", d("1"), d("100"), d(tc.current)))
		pos, _ := m.Position("BTCUSDT")
		assert.Equal(t, tc.level, pos.RiskLevel, "current price %s", tc.current)
	}
}

// TestUpdatePosition_Invalid tests parameter validation
func TestUpdatePosition_Invalid(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.UpdatePosition("", d("1"), d("100"), d("100")), errors.ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdatePosition("BTCUSDT", decimal.Zero, d("100"), d("100")), errors.ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdatePosition("BTCUSDT", d("1"), decimal.Zero, d("100")), errors.ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdatePosition("BTCUSDT", d("1"), d("100"), d("-1")), errors.ErrInvalidParameter)
}

// TestRemovePosition_LossStreak tests the streak rules over a close
// sequence: losses add exactly one, profits reset, break-even is neutral
func TestRemovePosition_LossStreak(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.RemovePosition("BTCUSDT", d("10")))
	assert.Equal(t, 0, m.ConsecutiveLosses())

	require.NoError(t, m.RemovePosition("BTCUSDT", d("-5")))
	assert.Equal(t, 1, m.ConsecutiveLosses())

	require.NoError(t, m.RemovePosition("BTCUSDT", d("-5")))
	assert.Equal(t, 2, m.ConsecutiveLosses())

	require.NoError(t, m.RemovePosition("BTCUSDT", decimal.Zero))
	assert.Equal(t, 2, m.ConsecutiveLosses())

	require.NoError(t, m.RemovePosition("BTCUSDT", d("0.01")))
	assert.Equal(t, 0, m.ConsecutiveLosses())
}

// TestRemovePosition_Strict tests that strict mode surfaces an untracked
// symbol as MissingPosition without touching the history
func TestRemovePosition_Strict(t *testing.T) {
	limits := config.DefaultRiskLimits()
	limits.StrictPositionRemoval = true
	m, err := NewManager(limits, nil)
	require.NoError(t, err)

	err = m.RemovePosition("GHOSTUSDT", d("-10"))
	assert.ErrorIs(t, err, errors.ErrMissingPosition)
	assert.Equal(t, 0, m.ConsecutiveLosses())

	require.NoError(t, m.UpdatePosition("BTCUSDT", d("1"), d("100"), d("100")))
	require.NoError(t, m.RemovePosition("BTCUSDT", d("-10")))
	assert.Equal(t, 1, m.ConsecutiveLosses())
}

// TestAssessPortfolioRisk_Empty tests the snapshot over a clean book
func TestAssessPortfolioRisk_Empty(t *testing.T) {
	m := newTestManager(t)

	snapshot, err := m.AssessPortfolioRisk(d("10000"))
	require.NoError(t, err)

	assert.True(t, snapshot.TotalValue.Equal(d("10000")))
	assert.True(t, snapshot.TotalExposure.IsZero())
	assert.True(t, snapshot.CorrelationRisk.IsZero())
	assert.True(t, snapshot.VaR95.IsZero())
	assert.True(t, snapshot.SharpeRatio.IsZero())
	assert.Equal(t, 0, snapshot.OpenPositions)
	assert.Equal(t, RiskLevelLow, snapshot.RiskLevel)
}

// TestAssessPortfolioRisk_Aggregation tests exposure, unrealized P&L and
// concentration over a two-position book
func TestAssessPortfolioRisk_Aggregation(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdatePosition("BTCUSDT", d("0.1"), d("50000"), d("51000")))
	require.NoError(t, m.UpdatePosition("ETHUSDT", d("1"), d("3000"), d("2900")))

	snapshot, err := m.AssessPortfolioRisk(d("10000"))
	require.NoError(t, err)

	assert.True(t, snapshot.TotalExposure.Equal(d("8000")), "exposure = %s", snapshot.TotalExposure)
	assert.True(t, snapshot.UnrealizedPnL.IsZero())
	assert.Equal(t, 2, snapshot.OpenPositions)

	// Largest position is 5100 of 8000 total = 63.75%
	assert.True(t, snapshot.CorrelationRisk.Equal(d("63.75")), "correlation = %s", snapshot.CorrelationRisk)
	assert.Equal(t, RiskLevelCritical, snapshot.RiskLevel)
}

// TestAssessPortfolioRisk_Drawdown tests that the current drawdown is
// measured against the high-water-mark without raising it
func TestAssessPortfolioRisk_Drawdown(t *testing.T) {
	m := newTestManager(t)

	stopped, _, err := m.CheckEmergencyStop(d("10000"))
	require.NoError(t, err)
	require.False(t, stopped)

	snapshot, err := m.AssessPortfolioRisk(d("9400"))
	require.NoError(t, err)

	assert.True(t, snapshot.CurrentDrawdown.Equal(d("6")), "drawdown = %s", snapshot.CurrentDrawdown)
	assert.Equal(t, RiskLevelHigh, snapshot.RiskLevel)
	assert.True(t, m.HighWaterMark().Equal(d("10000")))
}

// TestAssessPortfolioRisk_DailyPnL tests the daily P&L against the baseline
func TestAssessPortfolioRisk_DailyPnL(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.SetDailyStartValue(d("10000")))

	snapshot, err := m.AssessPortfolioRisk(d("10500"))
	require.NoError(t, err)
	assert.True(t, snapshot.DailyPnL.Equal(d("500")))

	snapshot, err = m.AssessPortfolioRisk(d("9800"))
	require.NoError(t, err)
	assert.True(t, snapshot.DailyPnL.Equal(d("-200")))
}

// TestDeterminePortfolioRiskLevel_Thresholds tests each axis against its
// documented cutoffs in isolation
func TestDeterminePortfolioRiskLevel_Thresholds(t *testing.T) {
	cases := []struct {
		name      string
		drawdown  string
		positions int
		corr      string
		want      RiskLevel
	}{
		{"all clear", "0", 0, "0", RiskLevelLow},
		{"drawdown medium", "2", 0, "0", RiskLevelMedium},
		{"drawdown high", "5", 0, "0", RiskLevelHigh},
		{"drawdown critical", "10", 0, "0", RiskLevelCritical},
		{"positions medium", "0", 4, "0", RiskLevelMedium},
		{"positions high", "0", 8, "0", RiskLevelHigh},
		{"positions critical", "0", 10, "0", RiskLevelCritical},
		{"concentration medium", "0", 0, "15", RiskLevelMedium},
		{"concentration high", "0", 0, "25", RiskLevelHigh},
		{"concentration critical", "0", 0, "35", RiskLevelCritical},
		{"most severe axis wins", "2", 1, "35", RiskLevelCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := determinePortfolioRiskLevel(d(tc.drawdown), tc.positions, d(tc.corr))
			assert.Equal(t, tc.want, got)
		})
	}
}

// TestDeterminePortfolioRiskLevel_Monotonic tests that worsening any input
// while holding the others fixed never lowers the level
func TestDeterminePortfolioRiskLevel_Monotonic(t *testing.T) {
	drawdowns := []string{"0", "1.99", "2", "5", "9.99", "10", "50"}
	positionCounts := []int{0, 3, 4, 7, 8, 10, 15}
	correlations := []string{"0", "14.99", "15", "25", "34.99", "35", "100"}

	for _, dd := range drawdowns {
		for _, pc := range positionCounts {
			prev := -1
			for _, corr := range correlations {
				rank := determinePortfolioRiskLevel(d(dd), pc, d(corr)).Rank()
				assert.GreaterOrEqual(t, rank, prev, "dd=%s positions=%d corr=%s", dd, pc, corr)
				prev = rank
			}
		}
	}
	for _, dd := range drawdowns {
		for _, corr := range correlations {
			prev := -1
			for _, pc := range positionCounts {
				rank := determinePortfolioRiskLevel(d(dd), pc, d(corr)).Rank()
				assert.GreaterOrEqual(t, rank, prev, "dd=%s positions=%d corr=%s", dd, pc, corr)
				prev = rank
			}
		}
	}
	for _, pc := range positionCounts {
		for _, corr := range correlations {
			prev := -1
			for _, dd := range drawdowns {
				rank := determinePortfolioRiskLevel(d(dd), pc, d(corr)).Rank()
				assert.GreaterOrEqual(t, rank, prev, "dd=%s positions=%d corr=%s", dd, pc, corr)
				prev = rank
			}
		}
	}
}

// TestCheckEmergencyStop_Drawdown tests that value falling from a 10,000
// peak to 8,000 breaches a 15% drawdown limit
func TestCheckEmergencyStop_Drawdown(t *testing.T) {
	m := newTestManager(t)

	stopped, _, err := m.CheckEmergencyStop(d("10000"))
	require.NoError(t, err)
	require.False(t, stopped)

	stopped, reason, err := m.CheckEmergencyStop(d("8000"))
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Contains(t, reason, "maximum drawdown")
}

// TestCheckEmergencyStop_DailyLoss tests that a 6% intraday loss trips a
// 5% daily limit
func TestCheckEmergencyStop_DailyLoss(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.SetDailyStartValue(d("10000")))

	stopped, reason, err := m.CheckEmergencyStop(d("9400"))
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Contains(t, reason, "daily loss")
}

// TestCheckEmergencyStop_LossStreak tests that a full loss streak signals
// a stop even with a flat portfolio
func TestCheckEmergencyStop_LossStreak(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < m.Limits().MaxConsecutiveLosses; i++ {
		require.NoError(t, m.RemovePosition("BTCUSDT", d("-10")))
	}

	stopped, reason, err := m.CheckEmergencyStop(d("10000"))
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Contains(t, reason, "consecutive loss")
}

// TestCheckEmergencyStop_Healthy tests the no-signal path
func TestCheckEmergencyStop_Healthy(t *testing.T) {
	m := newTestManager(t)

	stopped, reason, err := m.CheckEmergencyStop(d("10000"))
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, reason)
}

// TestCheckEmergencyStop_RaisesHighWaterMark tests the observation side
// effect: every check raises the mark, never lowers it
func TestCheckEmergencyStop_RaisesHighWaterMark(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.CheckEmergencyStop(d("10000"))
	require.NoError(t, err)
	assert.True(t, m.HighWaterMark().Equal(d("10000")))

	_, _, err = m.CheckEmergencyStop(d("12000"))
	require.NoError(t, err)
	assert.True(t, m.HighWaterMark().Equal(d("12000")))

	stopped, _, err := m.CheckEmergencyStop(d("11000"))
	require.NoError(t, err)
	assert.False(t, stopped) // 8.33% drawdown is under the 15% limit
	assert.True(t, m.HighWaterMark().Equal(d("12000")))
}

// TestCheckEmergencyStop_DayRoll tests that the daily baseline re-anchors
// at the first observation of a new trading day
func TestCheckEmergencyStop_DayRoll(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.SetDailyStartValue(d("10000")))

	stopped, _, err := m.CheckEmergencyStop(d("9400"))
	require.NoError(t, err)
	require.True(t, stopped)

	// Next day the 9,400 close becomes the new baseline; no daily loss yet
	m.now = func() time.Time { return base.Add(24 * time.Hour) }
	stopped, _, err = m.CheckEmergencyStop(d("9400"))
	require.NoError(t, err)
	assert.False(t, stopped)
}

// TestCheckEmergencyStop_Invalid tests input validation
func TestCheckEmergencyStop_Invalid(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.CheckEmergencyStop(decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)

	_, _, err = m.CheckEmergencyStop(d("-100"))
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)
}

// TestSetDailyStartValue_Invalid tests that a non-positive baseline is refused
func TestSetDailyStartValue_Invalid(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.SetDailyStartValue(decimal.Zero), errors.ErrInvalidParameter)
	assert.ErrorIs(t, m.SetDailyStartValue(d("-1")), errors.ErrInvalidParameter)
}

// TestPositions_SortedCopy tests that the accessor returns a stable,
// detached view
func TestPositions_SortedCopy(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdatePosition("ETHUSDT", d("1"), d("3000"), d("3000")))
	require.NoError(t, m.UpdatePosition("BTCUSDT", d("0.1"), d("50000"), d("50000")))
	require.NoError(t, m.UpdatePosition("SOLUSDT", d("10"), d("150"), d("150")))

	positions := m.Positions()
	require.Len(t, positions, 3)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, "ETHUSDT", positions[1].Symbol)
	assert.Equal(t, "SOLUSDT", positions[2].Symbol)

	positions[0].Symbol = "MUTATED"
	fresh := m.Positions()
	assert.Equal(t, "BTCUSDT", fresh[0].Symbol)
}
