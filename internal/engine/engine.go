// Package engine runs the per-update pipeline: position management first,
// then the gate chain, then signal evaluation and order submission. One
// update always runs to completion; every rejection is a skip, never a
// process failure.
package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/alpha"
	"alpha-tick-bot-go/internal/factors"
	"alpha-tick-bot-go/internal/gateway"
	"alpha-tick-bot-go/internal/lifecycle"
	"alpha-tick-bot-go/internal/market"
	"alpha-tick-bot-go/internal/models"
	"alpha-tick-bot-go/internal/regime"
	"alpha-tick-bot-go/internal/risk"
)

// Engine is the single writer of all trading state. It must be driven by
// exactly one goroutine; updates never overlap.
type Engine struct {
	symbol    string
	cfg       models.StrategyConfig
	riskCfg   models.RiskConfig
	lifeCfg   models.LifecycleConfig
	feed      market.Feed
	combiner  *alpha.Combiner
	sizer     *risk.Sizer
	gw        gateway.Gateway
	lifecycle *lifecycle.Manager
	observer  Observer
	logger    *zap.SugaredLogger

	lastEntry time.Time
}

// New wires the pipeline together. A nil observer is replaced with a no-op.
func New(cfg models.Config, feed market.Feed, sizer *risk.Sizer, gw gateway.Gateway, manager *lifecycle.Manager, observer Observer, logger *zap.SugaredLogger) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		symbol:    cfg.Symbol,
		cfg:       cfg.Strategy,
		riskCfg:   cfg.Risk,
		lifeCfg:   cfg.Lifecycle,
		feed:      feed,
		combiner:  alpha.NewCombiner(cfg.Strategy),
		sizer:     sizer,
		gw:        gw,
		lifecycle: manager,
		observer:  observer,
		logger:    logger,
	}
}

// Update runs one full cycle for the bar that just closed and reports
// what happened. The returned error covers infrastructure failures only
// (feed or broker unreachable); trade rejections come back as an
// Evaluation with ActionNone and a reason.
func (e *Engine) Update(bar models.Bar) (models.Evaluation, error) {
	ev := models.Evaluation{
		Symbol: e.symbol,
		Time:   bar.OpenTime,
		Action: models.ActionNone,
	}

	// Existing positions come first, on every update, including the
	// indicator warmup after a restart: reconciliation, exits and stop
	// moves depend only on the close, never on the factor pipeline.
	// Purging dead tickets here also keeps the capacity gate honest.
	if err := e.lifecycle.Manage(e.symbol, bar.Close); err != nil {
		ev.Reason = fmt.Sprintf("manage positions: %v", err)
		e.observer.OnEvaluation(ev)
		return ev, fmt.Errorf("manage positions: %w", err)
	}

	snap, err := e.feed.Snapshot()
	if errors.Is(err, models.ErrInsufficientData) {
		ev.Reason = "warming up"
		e.observer.OnEvaluation(ev)
		return ev, nil
	}
	if err != nil {
		return ev, fmt.Errorf("market snapshot: %w", err)
	}
	ev.Time = snap.Time

	if reason, ok := e.entryGate(snap); !ok {
		ev.Reason = reason
		e.observer.OnEvaluation(ev)
		return ev, nil
	}

	ev.Factors = factors.Compute(snap, e.cfg)
	ev.Regime = regime.Classify(snap.ATRHistory, e.cfg.VolMAPeriod)
	signal := e.combiner.Combine(ev.Factors, ev.Regime)
	ev.Score, ev.Quality = signal.Score, signal.Quality

	threshold := e.cfg.EntryThresholds[ev.Regime]
	if abs(ev.Score) < threshold {
		ev.Reason = fmt.Sprintf("|score| %.3f below %s threshold %.2f", abs(ev.Score), ev.Regime, threshold)
		e.observer.OnEvaluation(ev)
		return ev, nil
	}
	if ev.Quality < e.cfg.MinQualityScore {
		ev.Reason = fmt.Sprintf("quality %.1f below minimum %.1f", ev.Quality, e.cfg.MinQualityScore)
		e.observer.OnEvaluation(ev)
		return ev, nil
	}

	ticket, reason, err := e.enter(snap, ev.Score)
	if err != nil {
		return ev, err
	}
	if ticket == 0 {
		ev.Reason = reason
		e.observer.OnEvaluation(ev)
		return ev, nil
	}

	ev.Ticket = ticket
	if ev.Score > 0 {
		ev.Action = models.ActionBuy
	} else {
		ev.Action = models.ActionSell
	}
	e.lastEntry = snap.Time
	e.observer.OnEvaluation(ev)
	return ev, nil
}

// entryGate applies the cheap rejections that precede any factor math:
// capacity, cooldown, spread, history.
func (e *Engine) entryGate(snap *market.Snapshot) (string, bool) {
	if open := e.lifecycle.OpenCount(); open >= e.cfg.MaxOpenPositions {
		return fmt.Sprintf("open positions %d at capacity %d", open, e.cfg.MaxOpenPositions), false
	}
	cooldown := time.Duration(e.cfg.CooldownSec) * time.Second
	if !e.lastEntry.IsZero() && snap.Time.Sub(e.lastEntry) < cooldown {
		return fmt.Sprintf("cooldown, %.0fs since last entry", snap.Time.Sub(e.lastEntry).Seconds()), false
	}
	if e.cfg.MaxSpread > 0 && snap.Spread > e.cfg.MaxSpread {
		return fmt.Sprintf("spread %.5f above limit %.5f", snap.Spread, e.cfg.MaxSpread), false
	}
	if snap.Len() < e.cfg.MinHistory() {
		return fmt.Sprintf("history %d below minimum %d", snap.Len(), e.cfg.MinHistory()), false
	}
	return "", true
}

// enter sizes and submits the order, then seeds lifecycle state for the
// new ticket. A zero ticket with a reason means the entry was skipped.
func (e *Engine) enter(snap *market.Snapshot, score float64) (int64, string, error) {
	direction := models.Buy
	if score < 0 {
		direction = models.Sell
	}

	stopDistance := snap.ATR * e.riskCfg.ATRMultiplier
	equity, err := e.gw.Equity()
	if err != nil {
		return 0, "", fmt.Errorf("read equity: %w", err)
	}

	quantity, err := e.sizer.Quantity(equity, stopDistance)
	if errors.Is(err, models.ErrNonTradable) {
		return 0, fmt.Sprintf("non-tradable size: %v", err), nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("size position: %w", err)
	}

	stop := snap.Close - direction.Sign()*stopDistance
	takeProfit := snap.Close + direction.Sign()*e.lifeCfg.TP3Multiple*stopDistance

	ticket, err := e.gw.PlaceOrder(gateway.OrderRequest{
		Symbol:     snap.Symbol,
		Direction:  direction,
		Quantity:   quantity,
		Price:      snap.Close,
		Stop:       stop,
		TakeProfit: takeProfit,
	})
	if err != nil {
		// A rejected order is a skipped entry, not a dead process.
		e.logger.Errorf("order rejected: %v", err)
		return 0, fmt.Sprintf("order rejected: %v", err), nil
	}

	if err := e.lifecycle.Track(models.Position{
		Ticket:     ticket,
		Symbol:     snap.Symbol,
		Direction:  direction,
		EntryPrice: snap.Close,
		StopPrice:  stop,
		TakeProfit: takeProfit,
		Volume:     quantity,
		OpenTime:   snap.Time,
	}); err != nil {
		return ticket, "", fmt.Errorf("track ticket %d: %w", ticket, err)
	}
	return ticket, "", nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
