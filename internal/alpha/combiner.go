// Package alpha combines the factor snapshot into a single bounded score
// plus a 0-10 quality estimate, using a regime-keyed weight table.
package alpha

import (
	"math"

	"alpha-tick-bot-go/internal/models"
)

// clipLimit bounds each factor before weighting, so the composite score is
// bounded no matter how extreme the raw inputs get.
const clipLimit = 4.0

// Combiner holds the weight table and quality constants. It is stateless
// between calls; Combine is a pure function of its inputs.
type Combiner struct {
	cfg models.StrategyConfig
}

// NewCombiner assumes cfg already passed config.Validate.
func NewCombiner(cfg models.StrategyConfig) *Combiner {
	return &Combiner{cfg: cfg}
}

// Combine clips each factor to [-clipLimit, clipLimit], applies the weight
// row for the regime, and derives the quality score.
func (c *Combiner) Combine(f models.FactorSnapshot, r models.Regime) models.CompositeSignal {
	w, ok := c.cfg.Weights[r]
	if !ok {
		w = c.cfg.Weights[models.RegimeRanging]
	}

	score := clip(f.Velocity)*w.Velocity +
		clip(f.FastVelocity)*w.FastVelocity +
		clip(f.ZScore)*w.ZScore +
		clip(f.RSI)*w.RSI

	return models.CompositeSignal{
		Score:   score,
		Quality: c.quality(f, score),
	}
}

// quality = (alignmentWeight*alignment + strengthWeight*strength) * 10.
// Alignment rewards velocity and fast velocity agreeing on direction;
// strength saturates at the reference magnitude. Monotonic in both.
func (c *Combiner) quality(f models.FactorSnapshot, score float64) float64 {
	alignment := 0.5
	if f.Velocity != 0 && f.FastVelocity != 0 && sameSign(f.Velocity, f.FastVelocity) {
		alignment = 1.0
	}

	strength := math.Min(math.Abs(score)/c.cfg.ReferenceMagnitude, 1.0)

	q := (c.cfg.AlignmentWeight*alignment + c.cfg.StrengthWeight*strength) * 10.0
	return math.Max(0, math.Min(q, 10))
}

func clip(v float64) float64 {
	return math.Max(-clipLimit, math.Min(v, clipLimit))
}

func sameSign(a, b float64) bool {
	return (a > 0) == (b > 0)
}
