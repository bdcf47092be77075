package models

import (
	"errors"
	"time"
)

// Direction 定义了交易方向的类型
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the closing side for a position opened in this direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for BUY and -1 for SELL, used to fold long/short
// profit arithmetic into a single expression.
func (d Direction) Sign() float64 {
	if d == Buy {
		return 1
	}
	return -1
}

// Regime is a coarse market-condition label derived per update.
type Regime string

const (
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
	RegimeChoppy   Regime = "CHOPPY"
)

// Bar 代表一根K线
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// FactorSnapshot holds the factor values computed for a single update.
// It is ephemeral: recomputed every bar, never stored.
type FactorSnapshot struct {
	Velocity     float64 `json:"velocity"`
	FastVelocity float64 `json:"fast_velocity"`
	ZScore       float64 `json:"zscore"`
	RSI          float64 `json:"rsi"`
}

// CompositeSignal is the output of the alpha combiner: a bounded score
// and a 0-10 quality estimate.
type CompositeSignal struct {
	Score   float64 `json:"score"`
	Quality float64 `json:"quality"`
}

// SymbolRules holds the exchange trading constraints for one instrument.
type SymbolRules struct {
	MinQty     float64 `json:"min_qty"`
	MaxQty     float64 `json:"max_qty"`
	StepSize   float64 `json:"step_size"`
	PointValue float64 `json:"point_value"` // account-currency P&L per unit of price move per unit of volume
}

// Position is the gateway's view of one live position. The ticket is the
// broker-assigned identity and is stable for the position's lifetime.
type Position struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopPrice  float64   `json:"stop_price"`
	TakeProfit float64   `json:"take_profit"`
	Volume     float64   `json:"volume"`
	OpenTime   time.Time `json:"open_time"`
}

// PositionBook is the lifecycle manager's persistent side table, keyed by
// ticket. RiskDistance is captured exactly once at entry and never
// recomputed; the TP markers guarantee each partial exit fires at most once.
type PositionBook struct {
	RiskDistance map[int64]float64 `json:"risk_distance"`
	TP1Done      map[int64]bool    `json:"tp1_done"`
	TP2Done      map[int64]bool    `json:"tp2_done"`
}

// NewPositionBook returns an empty book with all side tables allocated.
func NewPositionBook() *PositionBook {
	return &PositionBook{
		RiskDistance: make(map[int64]float64),
		TP1Done:      make(map[int64]bool),
		TP2Done:      make(map[int64]bool),
	}
}

// Purge removes every side-table entry for a ticket.
func (b *PositionBook) Purge(ticket int64) {
	delete(b.RiskDistance, ticket)
	delete(b.TP1Done, ticket)
	delete(b.TP2Done, ticket)
}

// Action 定义了一次评估周期的最终动作
type Action string

const (
	ActionNone Action = "NONE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Evaluation is the per-update result exposed for external telemetry.
type Evaluation struct {
	Symbol  string         `json:"symbol"`
	Time    time.Time      `json:"time"`
	Regime  Regime         `json:"regime"`
	Factors FactorSnapshot `json:"factors"`
	Score   float64        `json:"score"`
	Quality float64        `json:"quality"`
	Action  Action         `json:"action"`
	Reason  string         `json:"reason"`
	Ticket  int64          `json:"ticket,omitempty"`
}

// Sentinel errors shared across the core. None of them is fatal: the
// update driver treats each as a skip condition and completes the cycle.
var (
	// ErrInsufficientData means a window is shorter than the required
	// lookback. Factor computations return a neutral default instead of
	// surfacing it; data feeds return it rather than partial buffers.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNonTradable means sizing resolved below the broker minimum or the
	// stop distance was invalid. The entry attempt is skipped, never
	// rounded up.
	ErrNonTradable = errors.New("non-tradable quantity")

	// ErrTicketNotFound means a broker ticket is no longer live.
	ErrTicketNotFound = errors.New("ticket not found")
)
