package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"alpha-tick-bot-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in every zero-valued knob. Only hard parameters get
// defaults; the symbol must always come from the file.
func applyDefaults(cfg *models.Config) {
	s := &cfg.Strategy
	if cfg.Timeframe == "" {
		cfg.Timeframe = "5m"
	}
	if s.VelocityPeriod == 0 {
		s.VelocityPeriod = 20
	}
	if s.FastVelocityPeriod == 0 {
		s.FastVelocityPeriod = 10
	}
	if s.ZScorePeriod == 0 {
		s.ZScorePeriod = 100
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = 14
	}
	if s.VolMAPeriod == 0 {
		s.VolMAPeriod = 50
	}
	if s.Weights == nil {
		s.Weights = map[models.Regime]models.FactorWeights{
			models.RegimeTrending: {Velocity: 0.35, FastVelocity: 0.35, ZScore: 0.10, RSI: 0.20},
			models.RegimeRanging:  {Velocity: 0.20, FastVelocity: 0.15, ZScore: 0.45, RSI: 0.20},
			models.RegimeChoppy:   {Velocity: 0.10, FastVelocity: 0.10, ZScore: 0.50, RSI: 0.30},
		}
	}
	if s.EntryThresholds == nil {
		s.EntryThresholds = map[models.Regime]float64{
			models.RegimeTrending: 0.65,
			models.RegimeRanging:  0.80,
			models.RegimeChoppy:   1.00,
		}
	}
	if s.MinQualityScore == 0 {
		s.MinQualityScore = 5.0
	}
	if s.AlignmentWeight == 0 {
		s.AlignmentWeight = 0.6
	}
	if s.StrengthWeight == 0 {
		s.StrengthWeight = 0.4
	}
	if s.ReferenceMagnitude == 0 {
		s.ReferenceMagnitude = 1.5
	}
	if s.MaxOpenPositions == 0 {
		s.MaxOpenPositions = 1
	}
	if s.CooldownSec == 0 {
		s.CooldownSec = 1800
	}

	r := &cfg.Risk
	if r.RiskPercent == 0 {
		r.RiskPercent = 2.0
	}
	if r.ATRMultiplier == 0 {
		r.ATRMultiplier = 1.8
	}
	if r.KellyFraction == 0 {
		r.KellyFraction = 0.25
	}
	if r.KellyCap == 0 {
		r.KellyCap = 0.10
	}
	if r.KellyMinSamples == 0 {
		r.KellyMinSamples = 10
	}

	l := &cfg.Lifecycle
	if l.TP1Multiple == 0 {
		l.TP1Multiple = 1.5
	}
	if l.TP2Multiple == 0 {
		l.TP2Multiple = 3.0
	}
	if l.TP3Multiple == 0 {
		l.TP3Multiple = 5.0
	}
	if l.BreakEvenR == 0 {
		l.BreakEvenR = 1.0
	}
	if l.BreakEvenEpsilonR == 0 {
		l.BreakEvenEpsilonR = 0.05
	}
	if l.TrailStartR == 0 {
		l.TrailStartR = 2.0
	}
	if l.TrailDistanceR == 0 {
		l.TrailDistanceR = 1.5
	}

	p := &cfg.Paper
	if p.InitialEquity == 0 {
		p.InitialEquity = 10000
	}
	if p.MinQty == 0 {
		p.MinQty = 0.001
	}
	if p.StepSize == 0 {
		p.StepSize = 0.001
	}
	if p.PointValue == 0 {
		p.PointValue = 1.0
	}
}

// Validate rejects configurations the engine cannot run safely with.
func Validate(cfg *models.Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	s := cfg.Strategy
	for regime, w := range s.Weights {
		sum := w.Velocity + w.FastVelocity + w.ZScore + w.RSI
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("config: %s weights sum to %.4f, want 1.0", regime, sum)
		}
	}
	for _, regime := range []models.Regime{models.RegimeTrending, models.RegimeRanging, models.RegimeChoppy} {
		if _, ok := s.Weights[regime]; !ok {
			return fmt.Errorf("config: missing weight row for regime %s", regime)
		}
		if _, ok := s.EntryThresholds[regime]; !ok {
			return fmt.Errorf("config: missing entry threshold for regime %s", regime)
		}
	}
	if s.MinQualityScore < 0 || s.MinQualityScore > 10 {
		return fmt.Errorf("config: min_quality_score %.2f outside [0,10]", s.MinQualityScore)
	}
	l := cfg.Lifecycle
	if !(l.TP1Multiple < l.TP2Multiple && l.TP2Multiple < l.TP3Multiple) {
		return fmt.Errorf("config: tp multiples must be strictly increasing, got %.2f/%.2f/%.2f",
			l.TP1Multiple, l.TP2Multiple, l.TP3Multiple)
	}
	if cfg.Risk.RiskPercent <= 0 || cfg.Risk.RiskPercent > 10 {
		return fmt.Errorf("config: risk_percent %.2f outside (0,10]", cfg.Risk.RiskPercent)
	}
	return nil
}
