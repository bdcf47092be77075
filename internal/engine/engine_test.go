package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/gateway"
	"alpha-tick-bot-go/internal/lifecycle"
	"alpha-tick-bot-go/internal/market"
	"alpha-tick-bot-go/internal/models"
	"alpha-tick-bot-go/internal/persistence"
	"alpha-tick-bot-go/internal/risk"
)

// stubFeed hands out a fixed snapshot or error.
type stubFeed struct {
	snap *market.Snapshot
	err  error
}

func (f *stubFeed) Snapshot() (*market.Snapshot, error) { return f.snap, f.err }

// recordingGateway is a flat broker that records the orders it receives.
type recordingGateway struct {
	positions []models.Position
	orders    []gateway.OrderRequest
	nextID    int64
	orderErr  error
	listErr   error
	listCalls int
}

func (g *recordingGateway) PlaceOrder(req gateway.OrderRequest) (int64, error) {
	if g.orderErr != nil {
		return 0, g.orderErr
	}
	g.orders = append(g.orders, req)
	g.nextID++
	return g.nextID, nil
}

func (g *recordingGateway) ModifyStop(int64, float64) error   { return nil }
func (g *recordingGateway) ClosePartial(int64, float64) error { return nil }
func (g *recordingGateway) CloseAll(int64) error              { return nil }
func (g *recordingGateway) Equity() (float64, error)          { return 10000, nil }
func (g *recordingGateway) ListOpenPositions(string) ([]models.Position, error) {
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.positions, nil
}
func (g *recordingGateway) SymbolRules(string) (models.SymbolRules, error) {
	return models.SymbolRules{}, nil
}

// recordingObserver keeps every evaluation it sees.
type recordingObserver struct {
	evals []models.Evaluation
}

func (o *recordingObserver) OnEvaluation(ev models.Evaluation) { o.evals = append(o.evals, ev) }

func testConfig() models.Config {
	return models.Config{
		Symbol: "BTCUSDT",
		Strategy: models.StrategyConfig{
			VelocityPeriod:     5,
			FastVelocityPeriod: 3,
			ZScorePeriod:       5,
			RSIPeriod:          2,
			ATRPeriod:          2,
			VolMAPeriod:        3,
			Weights: map[models.Regime]models.FactorWeights{
				models.RegimeTrending: {Velocity: 0.35, FastVelocity: 0.35, ZScore: 0.10, RSI: 0.20},
				models.RegimeRanging:  {Velocity: 0.20, FastVelocity: 0.15, ZScore: 0.45, RSI: 0.20},
				models.RegimeChoppy:   {Velocity: 0.10, FastVelocity: 0.10, ZScore: 0.50, RSI: 0.30},
			},
			EntryThresholds: map[models.Regime]float64{
				models.RegimeTrending: 0.65,
				models.RegimeRanging:  0.80,
				models.RegimeChoppy:   1.00,
			},
			MinQualityScore:    3.0,
			AlignmentWeight:    0.6,
			StrengthWeight:     0.4,
			ReferenceMagnitude: 1.5,
			MaxOpenPositions:   1,
			CooldownSec:        60,
		},
		Risk: models.RiskConfig{RiskPercent: 2, ATRMultiplier: 1.8},
		Lifecycle: models.LifecycleConfig{
			TP1Multiple: 1.5, TP2Multiple: 3.0, TP3Multiple: 5.0,
			BreakEvenR: 1.0, BreakEvenEpsilonR: 0.05,
			TrailStartR: 2.0, TrailDistanceR: 1.5,
		},
	}
}

// trendingSnapshot produces an aligned bullish setup in a TRENDING regime.
func trendingSnapshot(at time.Time) *market.Snapshot {
	return &market.Snapshot{
		Symbol:     "BTCUSDT",
		Time:       at,
		Closes:     []float64{100, 101, 102, 103, 104},
		Close:      104,
		ATR:        2.0,
		ATRHistory: []float64{1, 1, 2}, // ratio 1.5, trending
		SMA:        102,
		RSI:        100,
	}
}

// flatSnapshot produces no signal at all.
func flatSnapshot(at time.Time) *market.Snapshot {
	return &market.Snapshot{
		Symbol:     "BTCUSDT",
		Time:       at,
		Closes:     []float64{100, 100, 100, 100, 100},
		Close:      100,
		ATR:        1.0,
		ATRHistory: []float64{1, 1, 1},
		SMA:        100,
		RSI:        50,
	}
}

// closedBar is the bar the driver hands to Update alongside the feed state.
func closedBar(at time.Time, close float64) models.Bar {
	return models.Bar{OpenTime: at, Open: close, High: close, Low: close, Close: close}
}

func newTestEngine(t *testing.T, cfg models.Config, feed market.Feed, gw gateway.Gateway, obs Observer) *Engine {
	t.Helper()
	logger := zap.NewNop().Sugar()
	manager, err := lifecycle.NewManager(cfg.Lifecycle, gw, persistence.NewMemoryRepository(),
		models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, logger)
	require.NoError(t, err)
	sizer := risk.NewSizer(cfg.Risk, models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, nil)
	return New(cfg, feed, sizer, gw, manager, obs, logger)
}

func TestUpdatePlacesBuyOnTrendingSignal(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{}
	eng := newTestEngine(t, testConfig(), &stubFeed{snap: trendingSnapshot(now)}, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, ev.Action)
	assert.Equal(t, models.RegimeTrending, ev.Regime)
	assert.Equal(t, int64(1), ev.Ticket)
	assert.InDelta(t, 0.9914, ev.Score, 1e-3)

	require.Len(t, gw.orders, 1)
	order := gw.orders[0]
	assert.Equal(t, models.Buy, order.Direction)
	assert.InDelta(t, 100.4, order.Stop, 1e-9, "stop sits 1.8 ATR below the close")
	assert.InDelta(t, 122.0, order.TakeProfit, 1e-9, "take profit sits at the final ladder level")
	assert.InDelta(t, 55.555, order.Quantity, 1e-9)
}

func TestUpdateSeedsLifecycleState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{}
	logger := zap.NewNop().Sugar()
	cfg := testConfig()
	manager, err := lifecycle.NewManager(cfg.Lifecycle, gw, persistence.NewMemoryRepository(),
		models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, logger)
	require.NoError(t, err)
	sizer := risk.NewSizer(cfg.Risk, models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, nil)
	eng := New(cfg, &stubFeed{snap: trendingSnapshot(now)}, sizer, gw, manager, nil, logger)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	require.Equal(t, models.ActionBuy, ev.Action)

	assert.InDelta(t, 3.6, manager.Book().RiskDistance[ev.Ticket], 1e-9,
		"the new ticket's risk distance equals the stop distance at entry")
}

func TestUpdateCooldownBlocksSecondEntry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Strategy.MaxOpenPositions = 5 // keep the capacity gate out of the way
	feed := &stubFeed{snap: trendingSnapshot(now)}
	gw := &recordingGateway{}
	eng := newTestEngine(t, cfg, feed, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	require.Equal(t, models.ActionBuy, ev.Action)

	feed.snap = trendingSnapshot(now.Add(30 * time.Second))
	ev, err = eng.Update(closedBar(now.Add(30*time.Second), 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "cooldown")

	feed.snap = trendingSnapshot(now.Add(2 * time.Minute))
	ev, err = eng.Update(closedBar(now.Add(2*time.Minute), 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, ev.Action, "the clock must release after the cooldown")
}

func TestUpdateCapacityGate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{
		positions: []models.Position{{
			Ticket: 42, Symbol: "BTCUSDT", Direction: models.Buy,
			EntryPrice: 100, StopPrice: 99, Volume: 1,
		}},
	}
	eng := newTestEngine(t, testConfig(), &stubFeed{snap: trendingSnapshot(now)}, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "capacity")
	assert.Empty(t, gw.orders)
}

func TestUpdateSpreadGate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Strategy.MaxSpread = 0.5
	snap := trendingSnapshot(now)
	snap.Spread = 1.0
	gw := &recordingGateway{}
	eng := newTestEngine(t, cfg, &stubFeed{snap: snap}, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "spread")
}

func TestUpdateScoreBelowThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{}
	eng := newTestEngine(t, testConfig(), &stubFeed{snap: flatSnapshot(now)}, gw, nil)

	ev, err := eng.Update(closedBar(now, 100))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "threshold")
	assert.Empty(t, gw.orders)
}

func TestUpdateQualityGate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Strategy.MinQualityScore = 9.5 // above the ~8.6 this setup scores
	gw := &recordingGateway{}
	eng := newTestEngine(t, cfg, &stubFeed{snap: trendingSnapshot(now)}, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "quality")
}

func TestUpdateNonTradableSize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	gw := &recordingGateway{}
	logger := zap.NewNop().Sugar()
	manager, err := lifecycle.NewManager(cfg.Lifecycle, gw, persistence.NewMemoryRepository(),
		models.SymbolRules{MinQty: 1000, StepSize: 1, PointValue: 1}, logger)
	require.NoError(t, err)
	sizer := risk.NewSizer(cfg.Risk, models.SymbolRules{MinQty: 1000, StepSize: 1, PointValue: 1}, nil)
	eng := New(cfg, &stubFeed{snap: trendingSnapshot(now)}, sizer, gw, manager, nil, logger)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "non-tradable")
	assert.Empty(t, gw.orders)
}

func TestUpdateWarmingUp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{}
	eng := newTestEngine(t, testConfig(), &stubFeed{err: models.ErrInsufficientData}, gw, nil)

	ev, err := eng.Update(closedBar(now, 100))
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Equal(t, "warming up", ev.Reason)
}

func TestUpdateManagesPositionsDuringWarmup(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{
		positions: []models.Position{{
			Ticket: 11, Symbol: "BTCUSDT", Direction: models.Buy,
			EntryPrice: 100, StopPrice: 99, Volume: 1,
		}},
	}
	logger := zap.NewNop().Sugar()
	cfg := testConfig()
	manager, err := lifecycle.NewManager(cfg.Lifecycle, gw, persistence.NewMemoryRepository(),
		models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, logger)
	require.NoError(t, err)
	sizer := risk.NewSizer(cfg.Risk, models.SymbolRules{MinQty: 0.001, StepSize: 0.001, PointValue: 1}, nil)
	eng := New(cfg, &stubFeed{err: models.ErrInsufficientData}, sizer, gw, manager, nil, logger)

	for i := 0; i < 5; i++ {
		ev, err := eng.Update(closedBar(now.Add(time.Duration(i)*time.Minute), 100.5))
		require.NoError(t, err)
		assert.Equal(t, "warming up", ev.Reason)
	}

	assert.Equal(t, 5, gw.listCalls, "live positions are reconciled on every update, indicators ready or not")
	assert.InDelta(t, 1.0, manager.Book().RiskDistance[11], 1e-9,
		"the open ticket is adopted while the feed is still warming up")
}

func TestUpdateManageFailureStillNotifiesObserver(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := &recordingObserver{}
	gw := &recordingGateway{listErr: assert.AnError}
	eng := newTestEngine(t, testConfig(), &stubFeed{snap: trendingSnapshot(now)}, gw, obs)

	ev, err := eng.Update(closedBar(now, 104))
	require.Error(t, err)
	assert.Equal(t, models.ActionNone, ev.Action)

	require.Len(t, obs.evals, 1, "a failed update still produces an evaluation")
	assert.Contains(t, obs.evals[0].Reason, "manage positions")
}

func TestUpdateRejectedOrderIsASkip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &recordingGateway{orderErr: assert.AnError}
	eng := newTestEngine(t, testConfig(), &stubFeed{snap: trendingSnapshot(now)}, gw, nil)

	ev, err := eng.Update(closedBar(now, 104))
	require.NoError(t, err, "a broker rejection must not kill the update loop")
	assert.Equal(t, models.ActionNone, ev.Action)
	assert.Contains(t, ev.Reason, "order rejected")
}

func TestObserverSeesEveryUpdate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := &recordingObserver{}
	feed := &stubFeed{snap: flatSnapshot(now)}
	eng := newTestEngine(t, testConfig(), feed, &recordingGateway{}, obs)

	_, err := eng.Update(closedBar(now, 100))
	require.NoError(t, err)
	feed.snap = trendingSnapshot(now.Add(time.Minute))
	_, err = eng.Update(closedBar(now.Add(time.Minute), 104))
	require.NoError(t, err)

	require.Len(t, obs.evals, 2)
	assert.Equal(t, models.ActionNone, obs.evals[0].Action)
	assert.Equal(t, models.ActionBuy, obs.evals[1].Action)
}
