package models

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbol    string `json:"symbol"`     // 交易对/品种, e.g. "BTCUSDT"
	Timeframe string `json:"timeframe"`  // bar interval, e.g. "5m"
	IsTestnet bool   `json:"is_testnet"` // 是否使用测试网
	DBPath    string `json:"db_path"`    // badger 数据库文件路径

	Strategy  StrategyConfig  `json:"strategy"`
	Risk      RiskConfig      `json:"risk"`
	Lifecycle LifecycleConfig `json:"lifecycle"`
	Paper     PaperConfig     `json:"paper"`
	LogConfig LogConfig       `json:"log"`
}

// StrategyConfig holds every knob of the signal pipeline. All constants
// that were empirically chosen live here rather than in code.
type StrategyConfig struct {
	VelocityPeriod     int `json:"velocity_period"`      // OLS slope lookback
	FastVelocityPeriod int `json:"fast_velocity_period"` // short slope lookback
	ZScorePeriod       int `json:"zscore_period"`        // mean-reversion lookback
	RSIPeriod          int `json:"rsi_period"`
	ATRPeriod          int `json:"atr_period"`
	VolMAPeriod        int `json:"vol_ma_period"` // regime volatility baseline

	// Regime weight table. Each row must sum to 1.0.
	Weights map[Regime]FactorWeights `json:"weights"`

	// Regime-adaptive entry thresholds on |score|.
	EntryThresholds map[Regime]float64 `json:"entry_thresholds"`

	MinQualityScore float64 `json:"min_quality_score"`

	// Quality score composition. The 0.6/0.4 split and the reference
	// magnitude are empirical; they stay configurable on purpose.
	AlignmentWeight    float64 `json:"alignment_weight"`
	StrengthWeight     float64 `json:"strength_weight"`
	ReferenceMagnitude float64 `json:"reference_magnitude"`

	MaxOpenPositions int     `json:"max_open_positions"`
	CooldownSec      int     `json:"cooldown_sec"` // min seconds between confirmed entries
	MaxSpread        float64 `json:"max_spread"`   // price units; 0 disables the filter
}

// FactorWeights is one row of the regime weight table.
type FactorWeights struct {
	Velocity     float64 `json:"velocity"`
	FastVelocity float64 `json:"fast_velocity"`
	ZScore       float64 `json:"zscore"`
	RSI          float64 `json:"rsi"`
}

// RiskConfig drives position sizing.
type RiskConfig struct {
	RiskPercent     float64 `json:"risk_percent"`      // fixed-fraction risk per trade
	ATRMultiplier   float64 `json:"atr_multiplier"`    // stop distance = ATR * multiplier
	UseKelly        bool    `json:"use_kelly"`         // enable fractional-Kelly sizing
	KellyFraction   float64 `json:"kelly_fraction"`    // fraction of full Kelly, e.g. 0.25
	KellyCap        float64 `json:"kelly_cap"`         // hard cap on the Kelly fraction, e.g. 0.10
	KellyMinSamples int     `json:"kelly_min_samples"` // below this, fall back to fixed percent
}

// LifecycleConfig drives partial exits and stop management. All level
// arithmetic uses the original risk distance captured at entry.
type LifecycleConfig struct {
	TP1Multiple float64 `json:"tp1_multiple"` // close 1/3 of remaining
	TP2Multiple float64 `json:"tp2_multiple"` // close 1/2 of remaining
	TP3Multiple float64 `json:"tp3_multiple"` // close everything

	BreakEvenR        float64 `json:"break_even_r"`         // profit (in R) that arms breakeven
	BreakEvenEpsilonR float64 `json:"break_even_epsilon_r"` // stop offset past entry, as a fraction of R

	TrailStartR    float64 `json:"trail_start_r"`    // profit (in R) that arms trailing
	TrailDistanceR float64 `json:"trail_distance_r"` // trail distance behind price, in R
}

// PaperConfig configures the simulated gateway used by replay mode.
type PaperConfig struct {
	InitialEquity float64 `json:"initial_equity"`
	Spread        float64 `json:"spread"`    // constant spread assumed during replay
	FeeRate       float64 `json:"fee_rate"`  // taker fee per fill
	MinQty        float64 `json:"min_qty"`   // simulated LOT_SIZE minimum
	StepSize      float64 `json:"step_size"` // simulated LOT_SIZE step
	PointValue    float64 `json:"point_value"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// MinHistory returns the longest lookback any factor or the regime
// classifier needs before the pipeline can evaluate an entry.
func (s StrategyConfig) MinHistory() int {
	min := s.VelocityPeriod
	for _, n := range []int{
		s.FastVelocityPeriod,
		s.ZScorePeriod,
		s.RSIPeriod + 1,
		s.ATRPeriod + 1,
		s.VolMAPeriod,
	} {
		if n > min {
			min = n
		}
	}
	return min
}
