// Package market owns the price/indicator data layer: an append-only
// sliding window of OHLC bars with incrementally maintained ATR, RSI and
// moving-average buffers. The trading core consumes it through the Feed
// interface and never manages indicator lifecycles itself.
package market

import (
	"math"
	"time"

	"alpha-tick-bot-go/internal/models"
)

// Feed is the read-only market-data collaborator consumed by the update
// driver. It returns ErrInsufficientData instead of partial buffers.
type Feed interface {
	Snapshot() (*Snapshot, error)
}

// Snapshot is one update's view of the market: the close window plus the
// precomputed indicator buffers, all aligned to the latest bar.
type Snapshot struct {
	Symbol   string
	BarIndex int64 // monotonically increasing
	Time     time.Time

	Closes []float64 // oldest first
	Close  float64

	ATR        float64   // current volatility measure
	ATRHistory []float64 // oldest first, for the regime baseline
	SMA        float64   // moving average over the z-score lookback, 0 until ready
	RSI        float64   // 50 (neutral) until the warmup completes

	Spread float64
}

// Len returns the number of bars in the window.
func (s *Snapshot) Len() int { return len(s.Closes) }

// Series maintains the sliding bar window and its indicator buffers for a
// single instrument. It is not safe for concurrent use; the update loop is
// the only writer (single-writer model).
type Series struct {
	symbol   string
	capacity int

	atrPeriod int
	rsiPeriod int
	smaPeriod int

	bars    []models.Bar
	atrHist []float64

	barIndex int64
	spread   float64

	// Wilder smoothing state.
	atr        float64
	atrSamples int
	trWarmup   []float64
	avgGain    float64
	avgLoss    float64
	rsiSamples int
	rsi        float64
	prevClose  float64
	hasPrev    bool
}

// NewSeries sizes the window to the longest lookback the strategy needs.
func NewSeries(symbol string, cfg models.StrategyConfig) *Series {
	capacity := cfg.MinHistory() + 64
	return &Series{
		symbol:    symbol,
		capacity:  capacity,
		atrPeriod: cfg.ATRPeriod,
		rsiPeriod: cfg.RSIPeriod,
		smaPeriod: cfg.ZScorePeriod,
		bars:      make([]models.Bar, 0, capacity),
		atrHist:   make([]float64, 0, capacity),
		rsi:       50,
	}
}

// Append pushes one closed bar into the window and advances every
// indicator. Bars must arrive in time order.
func (s *Series) Append(bar models.Bar) {
	s.barIndex++

	if s.hasPrev {
		s.updateATR(bar)
		s.updateRSI(bar.Close)
	}
	s.prevClose = bar.Close
	s.hasPrev = true

	s.bars = append(s.bars, bar)
	if len(s.bars) > s.capacity {
		s.bars = s.bars[1:]
	}
	// Only real ATR values feed the volatility baseline. Warmup padding
	// would deflate it and mislabel a steady market as trending.
	if s.atrSamples >= s.atrPeriod {
		s.atrHist = append(s.atrHist, s.atr)
		if len(s.atrHist) > s.capacity {
			s.atrHist = s.atrHist[1:]
		}
	}
}

// SetSpread records the most recent bid/ask spread for the filter stage.
func (s *Series) SetSpread(spread float64) { s.spread = spread }

// Len returns the number of bars currently held.
func (s *Series) Len() int { return len(s.bars) }

// Snapshot implements Feed. It refuses to hand out buffers before the
// volatility and RSI warmups finish: garbage indicators are worse than a
// skipped update.
func (s *Series) Snapshot() (*Snapshot, error) {
	if s.atrSamples < s.atrPeriod || len(s.bars) < s.rsiPeriod+1 {
		return nil, models.ErrInsufficientData
	}

	closes := make([]float64, len(s.bars))
	for i, b := range s.bars {
		closes[i] = b.Close
	}
	atrHist := make([]float64, len(s.atrHist))
	copy(atrHist, s.atrHist)

	last := s.bars[len(s.bars)-1]
	return &Snapshot{
		Symbol:     s.symbol,
		BarIndex:   s.barIndex,
		Time:       last.OpenTime,
		Closes:     closes,
		Close:      last.Close,
		ATR:        s.atr,
		ATRHistory: atrHist,
		SMA:        s.currentSMA(closes),
		RSI:        s.currentRSI(),
		Spread:     s.spread,
	}, nil
}

func (s *Series) currentSMA(closes []float64) float64 {
	if len(closes) < s.smaPeriod {
		return 0
	}
	tail := closes[len(closes)-s.smaPeriod:]
	sum := 0.0
	for _, c := range tail {
		sum += c
	}
	return sum / float64(s.smaPeriod)
}

func (s *Series) currentRSI() float64 {
	if s.rsiSamples < s.rsiPeriod {
		return 50
	}
	return s.rsi
}

// updateATR applies Wilder smoothing: simple average over the first period,
// then atr = (atr*(n-1) + tr) / n.
func (s *Series) updateATR(bar models.Bar) {
	tr := math.Max(bar.High-bar.Low,
		math.Max(math.Abs(bar.High-s.prevClose), math.Abs(bar.Low-s.prevClose)))

	if s.atrSamples < s.atrPeriod {
		s.trWarmup = append(s.trWarmup, tr)
		s.atrSamples++
		if s.atrSamples == s.atrPeriod {
			sum := 0.0
			for _, v := range s.trWarmup {
				sum += v
			}
			s.atr = sum / float64(s.atrPeriod)
			s.trWarmup = nil
		}
		return
	}
	n := float64(s.atrPeriod)
	s.atr = (s.atr*(n-1) + tr) / n
	s.atrSamples++
}

func (s *Series) updateRSI(close float64) {
	delta := close - s.prevClose
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	n := float64(s.rsiPeriod)
	if s.rsiSamples < s.rsiPeriod {
		// Accumulate the seed averages.
		s.avgGain += gain / n
		s.avgLoss += loss / n
		s.rsiSamples++
	} else {
		s.avgGain = (s.avgGain*(n-1) + gain) / n
		s.avgLoss = (s.avgLoss*(n-1) + loss) / n
		s.rsiSamples++
	}

	if s.avgLoss == 0 {
		s.rsi = 100
		return
	}
	rs := s.avgGain / s.avgLoss
	s.rsi = 100 - 100/(1+rs)
}
