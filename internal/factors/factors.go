// Package factors implements the alpha factor library: pure, deterministic
// functions over a price window and precomputed indicator values. Every
// factor returns a neutral 0 when history is insufficient or the
// normalizer is zero; none of them can fail.
package factors

import (
	"math"

	"alpha-tick-bot-go/internal/market"
	"alpha-tick-bot-go/internal/models"
)

// Velocity is the OLS slope of the last `period` closes against bar index
// 0..period-1, normalized by the current volatility measure so the result
// is unitless and comparable across instruments.
func Velocity(closes []float64, period int, volatility float64) float64 {
	if len(closes) < period || period < 2 || volatility == 0 {
		return 0
	}
	window := closes[len(closes)-period:]

	// Closed-form least squares: x is 0..n-1, so the sums are cheap.
	n := float64(period)
	sumX := n * (n - 1) / 2
	sumXX := n * (n - 1) * (2*n - 1) / 6
	var sumY, sumXY float64
	for i, y := range window {
		sumY += y
		sumXY += float64(i) * y
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return slope / volatility
}

// ZScore measures overextension: the distance of the current close from
// the current moving average, in units of the population standard
// deviation of the window around that average.
func ZScore(closes []float64, period int, movingAverage float64) float64 {
	if len(closes) < period || period == 0 || movingAverage == 0 {
		return 0
	}
	window := closes[len(closes)-period:]

	var sumSq float64
	for _, c := range window {
		d := c - movingAverage
		sumSq += d * d
	}
	stdDev := math.Sqrt(sumSq / float64(period))
	if stdDev == 0 {
		return 0
	}
	return (window[period-1] - movingAverage) / stdDev
}

// RSIAlpha maps RSI from [0,100] to roughly [-2.5, +2.5] centered at 50.
func RSIAlpha(rsi float64) float64 {
	return (rsi - 50) / 20
}

// Compute evaluates the full factor snapshot for one market snapshot.
func Compute(snap *market.Snapshot, cfg models.StrategyConfig) models.FactorSnapshot {
	return models.FactorSnapshot{
		Velocity:     Velocity(snap.Closes, cfg.VelocityPeriod, snap.ATR),
		FastVelocity: Velocity(snap.Closes, cfg.FastVelocityPeriod, snap.ATR),
		ZScore:       ZScore(snap.Closes, cfg.ZScorePeriod, snap.SMA),
		RSI:          RSIAlpha(snap.RSI),
	}
}
