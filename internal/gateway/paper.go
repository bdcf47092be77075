package gateway

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/models"
	"alpha-tick-bot-go/internal/risk"
)

// ClosedTrade records one realized exit (partial or full) for reporting.
type ClosedTrade struct {
	Ticket     int64
	Symbol     string
	Direction  models.Direction
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	Fee        float64
	Reason     string // "STOP", "TAKE_PROFIT", "PARTIAL", "CLOSE"
	EntryTime  time.Time
	ExitTime   time.Time
}

// PaperGateway 实现了 Gateway 接口，模拟经纪商行为用于回放与测试。
// Fills happen at the marked price plus half the configured spread; stops
// and take profits are checked against each bar's high/low path.
type PaperGateway struct {
	cfg    models.PaperConfig
	logger *zap.SugaredLogger

	mu           sync.Mutex
	cash         float64
	positions    map[int64]*models.Position
	nextTicket   int64
	currentPrice float64
	currentTime  time.Time

	tradeLog    []ClosedTrade
	equityCurve []float64
	totalFees   float64
}

// NewPaperGateway returns a simulated gateway seeded with initial equity.
func NewPaperGateway(cfg models.PaperConfig, logger *zap.SugaredLogger) *PaperGateway {
	return &PaperGateway{
		cfg:        cfg,
		logger:     logger,
		cash:       cfg.InitialEquity,
		positions:  make(map[int64]*models.Position),
		nextTicket: 1,
	}
}

// MarkPrice advances the simulation by one bar: protective stops and take
// profits fill on the bar's extremes, then the equity curve is extended.
func (g *PaperGateway) MarkPrice(bar models.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.currentPrice = bar.Close
	g.currentTime = bar.OpenTime

	for ticket, pos := range g.positions {
		switch pos.Direction {
		case models.Buy:
			if pos.StopPrice > 0 && bar.Low <= pos.StopPrice {
				g.closeLocked(ticket, pos.Volume, pos.StopPrice, "STOP")
			} else if pos.TakeProfit > 0 && bar.High >= pos.TakeProfit {
				g.closeLocked(ticket, pos.Volume, pos.TakeProfit, "TAKE_PROFIT")
			}
		case models.Sell:
			if pos.StopPrice > 0 && bar.High >= pos.StopPrice {
				g.closeLocked(ticket, pos.Volume, pos.StopPrice, "STOP")
			} else if pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit {
				g.closeLocked(ticket, pos.Volume, pos.TakeProfit, "TAKE_PROFIT")
			}
		}
	}

	g.equityCurve = append(g.equityCurve, g.equityLocked())
}

// PlaceOrder fills immediately at the marked price adjusted by half the
// configured spread. There is no rejection model beyond a zero quantity.
func (g *PaperGateway) PlaceOrder(req OrderRequest) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Quantity <= 0 {
		return 0, fmt.Errorf("paper gateway: rejected order with quantity %.8f", req.Quantity)
	}

	fillPrice := g.currentPrice + req.Direction.Sign()*g.cfg.Spread/2
	fee := fillPrice * req.Quantity * g.cfg.FeeRate
	g.cash -= fee
	g.totalFees += fee

	ticket := g.nextTicket
	g.nextTicket++
	g.positions[ticket] = &models.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		EntryPrice: fillPrice,
		StopPrice:  req.Stop,
		TakeProfit: req.TakeProfit,
		Volume:     req.Quantity,
		OpenTime:   g.currentTime,
	}

	g.logger.Infof("[paper] filled %s %.5f %s @ %.5f (ticket %d, stop %.5f, tp %.5f)",
		req.Direction, req.Quantity, req.Symbol, fillPrice, ticket, req.Stop, req.TakeProfit)
	return ticket, nil
}

// ModifyStop replaces the stop on a live position.
func (g *PaperGateway) ModifyStop(ticket int64, newStop float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return fmt.Errorf("paper gateway: modify stop: %w: %d", models.ErrTicketNotFound, ticket)
	}
	pos.StopPrice = newStop
	return nil
}

// ClosePartial realizes part of a position at the marked price.
func (g *PaperGateway) ClosePartial(ticket int64, quantity float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return fmt.Errorf("paper gateway: close partial: %w: %d", models.ErrTicketNotFound, ticket)
	}
	if quantity <= 0 || quantity > pos.Volume+1e-9 {
		return fmt.Errorf("paper gateway: close partial: invalid quantity %.8f of %.8f", quantity, pos.Volume)
	}
	exitPrice := g.currentPrice - pos.Direction.Sign()*g.cfg.Spread/2
	g.closeLocked(ticket, quantity, exitPrice, "PARTIAL")
	return nil
}

// CloseAll flattens a position at the marked price.
func (g *PaperGateway) CloseAll(ticket int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return fmt.Errorf("paper gateway: close all: %w: %d", models.ErrTicketNotFound, ticket)
	}
	exitPrice := g.currentPrice - pos.Direction.Sign()*g.cfg.Spread/2
	g.closeLocked(ticket, pos.Volume, exitPrice, "CLOSE")
	return nil
}

// ListOpenPositions returns copies of every live position.
func (g *PaperGateway) ListOpenPositions(symbol string) ([]models.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.Position, 0, len(g.positions))
	for _, pos := range g.positions {
		if pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// Equity returns cash plus unrealized P&L.
func (g *PaperGateway) Equity() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equityLocked(), nil
}

// SymbolRules returns the simulated exchange constraints.
func (g *PaperGateway) SymbolRules(symbol string) (models.SymbolRules, error) {
	return models.SymbolRules{
		MinQty:     g.cfg.MinQty,
		MaxQty:     0,
		StepSize:   g.cfg.StepSize,
		PointValue: g.cfg.PointValue,
	}, nil
}

// Stats implements risk.PerformanceFeed using this session's realized
// trades, which lets the Kelly path run during replay.
func (g *PaperGateway) Stats() (risk.Stats, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range g.tradeLog {
		if t.Profit > 0 {
			wins++
			winSum += t.Profit
		} else if t.Profit < 0 {
			losses++
			lossSum += -t.Profit
		}
	}
	total := wins + losses
	if total == 0 || losses == 0 || wins == 0 {
		return risk.Stats{}, false
	}
	return risk.Stats{
		WinRate:     float64(wins) / float64(total),
		PayoffRatio: (winSum / float64(wins)) / (lossSum / float64(losses)),
		Samples:     total,
	}, true
}

// TradeLog returns a copy of all realized trades.
func (g *PaperGateway) TradeLog() []ClosedTrade {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ClosedTrade, len(g.tradeLog))
	copy(out, g.tradeLog)
	return out
}

// EquityCurve returns a copy of the per-bar equity series.
func (g *PaperGateway) EquityCurve() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, len(g.equityCurve))
	copy(out, g.equityCurve)
	return out
}

// InitialEquity returns the configured starting balance.
func (g *PaperGateway) InitialEquity() float64 { return g.cfg.InitialEquity }

// TotalFees returns the accumulated simulated fees.
func (g *PaperGateway) TotalFees() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalFees
}

// closeLocked realizes quantity of a position at exitPrice. Caller holds
// the mutex.
func (g *PaperGateway) closeLocked(ticket int64, quantity, exitPrice float64, reason string) {
	pos := g.positions[ticket]

	profit := (exitPrice - pos.EntryPrice) * quantity * pos.Direction.Sign()
	fee := exitPrice * quantity * g.cfg.FeeRate
	g.cash += profit - fee
	g.totalFees += fee

	g.tradeLog = append(g.tradeLog, ClosedTrade{
		Ticket:     ticket,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		Quantity:   quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Profit:     profit - fee,
		Fee:        fee,
		Reason:     reason,
		EntryTime:  pos.OpenTime,
		ExitTime:   g.currentTime,
	})

	pos.Volume -= quantity
	if pos.Volume <= 1e-9 {
		delete(g.positions, ticket)
	}
}

// equityLocked computes cash plus unrealized P&L. Caller holds the mutex.
func (g *PaperGateway) equityLocked() float64 {
	equity := g.cash
	for _, pos := range g.positions {
		equity += (g.currentPrice - pos.EntryPrice) * pos.Volume * pos.Direction.Sign()
	}
	return equity
}
