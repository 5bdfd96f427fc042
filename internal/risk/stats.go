package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Statistical helpers over the realized P&L history. All take the history
// oldest-first and never mutate it.

// HistoricalVaR95 estimates 95% Value-at-Risk by historical simulation:
// the magnitude of the 5th-percentile entry of the sorted history. Returns
// zero for an empty history.
func HistoricalVaR95(history []decimal.Decimal) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}

	sorted := make([]decimal.Decimal, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	index := len(sorted) * 5 / 100
	return sorted[index].Abs()
}

// SharpeRatio is mean return over population standard deviation, scaled by
// the annualization factor. Returns zero for an empty history or zero
// volatility.
func SharpeRatio(history []decimal.Decimal, annualization decimal.Decimal) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}

	mean := decimal.Avg(history[0], history[1:]...)

	variance := decimal.Zero
	for _, pnl := range history {
		diff := pnl.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(history))))

	// decimal has no square root; the drop to float64 here only affects the
	// reported ratio, never a balance or limit comparison
	stdDev := math.Sqrt(variance.InexactFloat64())
	if stdDev == 0 || math.IsNaN(stdDev) {
		return decimal.Zero
	}

	return mean.Div(decimal.NewFromFloat(stdDev)).Mul(annualization)
}

// MaxDrawdownPercent walks the equity curve reconstructed from the realized
// history on top of initialEquity and returns the largest peak-to-trough
// decline as a percentage of the peak
func MaxDrawdownPercent(history []decimal.Decimal, initialEquity decimal.Decimal) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}

	equity := initialEquity
	peak := initialEquity
	maxDD := decimal.Zero

	for _, pnl := range history {
		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			drawdown := peak.Sub(equity).Div(peak).Mul(hundred)
			if drawdown.GreaterThan(maxDD) {
				maxDD = drawdown
			}
		}
	}

	return maxDD
}

// KellyFraction estimates the Kelly bet fraction f = W - (1-W)/R from the
// realized history, where W is the win rate and R the payoff ratio (mean
// win over mean loss magnitude). The result is clamped to [0, 1]. The
// second return is false when the history holds fewer than minSamples
// entries or no decided (non-zero) outcomes, in which case sizing should
// be skipped entirely.
func KellyFraction(history []decimal.Decimal, minSamples int) (decimal.Decimal, bool) {
	if len(history) < minSamples {
		return decimal.Zero, false
	}

	var winSum, lossSum decimal.Decimal
	wins, losses := 0, 0
	for _, pnl := range history {
		switch {
		case pnl.IsPositive():
			winSum = winSum.Add(pnl)
			wins++
		case pnl.IsNegative():
			lossSum = lossSum.Add(pnl.Abs())
			losses++
		}
	}

	decided := wins + losses
	if decided == 0 {
		return decimal.Zero, false
	}
	if losses == 0 {
		// No losing trades on record: full Kelly degenerates to the win rate
		return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(decided))), true
	}
	if wins == 0 {
		return decimal.Zero, true
	}

	winRate := decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(decided)))
	avgWin := winSum.Div(decimal.NewFromInt(int64(wins)))
	avgLoss := lossSum.Div(decimal.NewFromInt(int64(losses)))
	payoff := avgWin.Div(avgLoss)

	kelly := winRate.Sub(one.Sub(winRate).Div(payoff))
	if kelly.IsNegative() {
		return decimal.Zero, true
	}
	if kelly.GreaterThan(one) {
		return one, true
	}
	return kelly, true
}
