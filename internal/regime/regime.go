// Package regime classifies market conditions from the volatility buffer.
package regime

import "alpha-tick-bot-go/internal/models"

// Thresholds on the ratio of current volatility to its moving average.
const (
	choppyBelow   = 0.8
	trendingAbove = 1.2
)

// Classify compares current volatility against its baseline over the last
// `baselinePeriod` samples. Fewer samples than the baseline needs defaults
// to RANGING, the safe middle ground.
func Classify(volHistory []float64, baselinePeriod int) models.Regime {
	if len(volHistory) < baselinePeriod || baselinePeriod == 0 {
		return models.RegimeRanging
	}

	current := volHistory[len(volHistory)-1]
	tail := volHistory[len(volHistory)-baselinePeriod:]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	baseline := sum / float64(baselinePeriod)
	if baseline == 0 {
		return models.RegimeRanging
	}

	volRatio := current / baseline
	switch {
	case volRatio < choppyBelow:
		return models.RegimeChoppy
	case volRatio > trendingAbove:
		return models.RegimeTrending
	default:
		return models.RegimeRanging
	}
}
