// Package risk converts account equity, risk budget and stop distance into
// a tradable quantity that respects the exchange's step and minimum
// constraints. Quantities are only ever rounded down; when the result
// lands below the broker minimum the sizer reports ErrNonTradable instead
// of silently rounding up.
package risk

import (
	"math"

	"alpha-tick-bot-go/internal/models"
)

// Stats summarizes historical performance for Kelly sizing.
type Stats struct {
	WinRate     float64 // fraction of winning trades, in [0,1]
	PayoffRatio float64 // average win / average loss, in R
	Samples     int
}

// PerformanceFeed is the optional historical-performance collaborator.
// The second return reports whether stats are available at all.
type PerformanceFeed interface {
	Stats() (Stats, bool)
}

// Sizer computes order quantities. Rules are captured once at startup;
// exchange constraints do not change mid-session.
type Sizer struct {
	cfg   models.RiskConfig
	rules models.SymbolRules
	perf  PerformanceFeed // may be nil
}

// NewSizer builds a sizer. perf may be nil to disable the Kelly path.
func NewSizer(cfg models.RiskConfig, rules models.SymbolRules, perf PerformanceFeed) *Sizer {
	return &Sizer{cfg: cfg, rules: rules, perf: perf}
}

// Quantity returns the volume to trade for the given equity and stop
// distance, or ErrNonTradable when no valid quantity exists.
func (s *Sizer) Quantity(equity, stopDistance float64) (float64, error) {
	if equity <= 0 || stopDistance <= 0 || s.rules.PointValue <= 0 {
		return 0, models.ErrNonTradable
	}

	riskFraction := s.cfg.RiskPercent / 100.0
	if s.cfg.UseKelly {
		if kelly, ok := s.kellyFraction(); ok {
			riskFraction = kelly
		}
	}

	riskAmount := equity * riskFraction
	qty := riskAmount / (stopDistance * s.rules.PointValue)

	qty = s.roundToStep(qty)
	if qty < s.rules.MinQty || qty <= 0 {
		return 0, models.ErrNonTradable
	}
	if s.rules.MaxQty > 0 && qty > s.rules.MaxQty {
		qty = s.roundToStep(s.rules.MaxQty)
	}
	return qty, nil
}

// kellyFraction computes the fractional Kelly bet size:
// f = kellyFraction * (winRate - (1-winRate)/payoffRatio), capped at
// kellyCap. Returns false when the sample is too small or the edge is
// non-positive, which sends the caller back to fixed-percent sizing.
func (s *Sizer) kellyFraction() (float64, bool) {
	if s.perf == nil {
		return 0, false
	}
	stats, ok := s.perf.Stats()
	if !ok || stats.Samples < s.cfg.KellyMinSamples || stats.PayoffRatio <= 0 {
		return 0, false
	}

	kelly := stats.WinRate - (1-stats.WinRate)/stats.PayoffRatio
	fraction := s.cfg.KellyFraction * kelly
	if fraction <= 0 {
		return 0, false
	}
	return math.Min(fraction, s.cfg.KellyCap), true
}

// roundToStep floors a quantity to the exchange step size.
func (s *Sizer) roundToStep(qty float64) float64 {
	step := s.rules.StepSize
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}
