package alpha

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"alpha-tick-bot-go/internal/models"
)

func testStrategyConfig() models.StrategyConfig {
	return models.StrategyConfig{
		Weights: map[models.Regime]models.FactorWeights{
			models.RegimeTrending: {Velocity: 0.35, FastVelocity: 0.35, ZScore: 0.10, RSI: 0.20},
			models.RegimeRanging:  {Velocity: 0.20, FastVelocity: 0.15, ZScore: 0.45, RSI: 0.20},
			models.RegimeChoppy:   {Velocity: 0.10, FastVelocity: 0.10, ZScore: 0.50, RSI: 0.30},
		},
		AlignmentWeight:    0.6,
		StrengthWeight:     0.4,
		ReferenceMagnitude: 1.5,
	}
}

func TestCombineTrendingScenario(t *testing.T) {
	c := NewCombiner(testStrategyConfig())
	f := models.FactorSnapshot{Velocity: 2.0, FastVelocity: 1.8, ZScore: 0.5, RSI: 1.0}

	sig := c.Combine(f, models.RegimeTrending)

	// 0.35*2.0 + 0.35*1.8 + 0.10*0.5 + 0.20*1.0
	assert.InDelta(t, 1.58, sig.Score, 1e-9)
	assert.InDelta(t, 10.0, sig.Quality, 1e-9, "aligned and saturated strength should max out quality")
}

func TestCombineClipsExtremeFactors(t *testing.T) {
	c := NewCombiner(testStrategyConfig())
	f := models.FactorSnapshot{Velocity: 100, FastVelocity: -100, ZScore: 9, RSI: 0}

	sig := c.Combine(f, models.RegimeTrending)

	// Clipped to +4, -4 and +4: 0.35*4 - 0.35*4 + 0.10*4
	assert.InDelta(t, 0.4, sig.Score, 1e-9)
}

func TestCombineUnknownRegimeFallsBackToRanging(t *testing.T) {
	c := NewCombiner(testStrategyConfig())
	f := models.FactorSnapshot{Velocity: 1, FastVelocity: 1, ZScore: 1, RSI: 1}

	got := c.Combine(f, models.Regime("UNKNOWN"))
	want := c.Combine(f, models.RegimeRanging)
	assert.Equal(t, want, got)
}

func TestQualityPenalizesDisagreement(t *testing.T) {
	c := NewCombiner(testStrategyConfig())

	aligned := c.Combine(models.FactorSnapshot{Velocity: 1, FastVelocity: 1}, models.RegimeTrending)
	opposed := c.Combine(models.FactorSnapshot{Velocity: 1, FastVelocity: -1}, models.RegimeTrending)

	assert.Greater(t, aligned.Quality, opposed.Quality)
}

func TestQualityZeroFactorBreaksAlignment(t *testing.T) {
	c := NewCombiner(testStrategyConfig())
	sig := c.Combine(models.FactorSnapshot{Velocity: 1.5, FastVelocity: 0}, models.RegimeTrending)

	// Alignment 0.5, strength 0.35 (score 0.525 vs reference 1.5).
	assert.InDelta(t, (0.6*0.5+0.4*0.35)*10, sig.Quality, 1e-9)
}

func TestQualityStaysInRange(t *testing.T) {
	c := NewCombiner(testStrategyConfig())
	sig := c.Combine(models.FactorSnapshot{Velocity: 4, FastVelocity: 4, ZScore: 4, RSI: 4}, models.RegimeTrending)

	assert.LessOrEqual(t, sig.Quality, 10.0)
	assert.GreaterOrEqual(t, sig.Quality, 0.0)
}
