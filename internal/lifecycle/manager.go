// Package lifecycle owns every open position from entry to flat: the
// partial take-profit ladder, the breakeven move, the trailing stop, and
// reconciliation against the broker's live position set.
package lifecycle

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/gateway"
	"alpha-tick-bot-go/internal/models"
	"alpha-tick-bot-go/internal/persistence"
)

// Manager drives the per-ticket exit state machine.
//
// All level arithmetic uses the risk distance captured when the ticket was
// first seen. The broker-side stop moves to breakeven and then trails, but
// the captured distance never changes, so TP levels stay fixed in price.
// Manager is not safe for concurrent use; the engine is its only caller.
type Manager struct {
	cfg    models.LifecycleConfig
	gw     gateway.Gateway
	repo   persistence.StateRepository
	rules  models.SymbolRules
	logger *zap.SugaredLogger

	book      *models.PositionBook
	openCount int
}

// NewManager loads the persisted position book (if any) and returns a
// manager ready for the first update.
func NewManager(cfg models.LifecycleConfig, gw gateway.Gateway, repo persistence.StateRepository, rules models.SymbolRules, logger *zap.SugaredLogger) (*Manager, error) {
	book, err := repo.LoadBook()
	if err != nil {
		return nil, fmt.Errorf("load position book: %w", err)
	}
	if book == nil {
		book = models.NewPositionBook()
	} else {
		logger.Infof("restored position book with %d tracked ticket(s)", len(book.RiskDistance))
	}
	return &Manager{
		cfg:    cfg,
		gw:     gw,
		repo:   repo,
		rules:  rules,
		logger: logger,
		book:   book,
	}, nil
}

// Track registers a freshly opened position. The risk distance is captured
// exactly once; repeated calls for a known ticket are no-ops.
func (m *Manager) Track(pos models.Position) error {
	if _, ok := m.book.RiskDistance[pos.Ticket]; ok {
		return nil
	}
	distance := math.Abs(pos.EntryPrice - pos.StopPrice)
	if distance <= 0 {
		return fmt.Errorf("ticket %d: entry %.5f and stop %.5f give no risk distance", pos.Ticket, pos.EntryPrice, pos.StopPrice)
	}
	m.book.RiskDistance[pos.Ticket] = distance
	m.logger.Infof("tracking ticket %d, risk distance %.5f", pos.Ticket, distance)
	return m.persist()
}

// OpenCount reports how many live positions the last Manage call saw.
func (m *Manager) OpenCount() int {
	return m.openCount
}

// Book exposes the side table for telemetry. Callers must not mutate it.
func (m *Manager) Book() *models.PositionBook {
	return m.book
}

// Manage runs one update over every live position on the symbol:
// reconcile the book against the broker, walk the TP ladder, then move the
// stop to breakeven or trail it. price is the current close.
func (m *Manager) Manage(symbol string, price float64) error {
	positions, err := m.gw.ListOpenPositions(symbol)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	dirty := m.reconcile(symbol, positions)
	m.openCount = len(positions)

	for _, pos := range positions {
		changed, err := m.managePosition(pos, price)
		if err != nil {
			// One broken ticket must not stall the others.
			m.logger.Errorf("manage ticket %d: %v", pos.Ticket, err)
		}
		dirty = dirty || changed
	}

	if dirty {
		return m.persist()
	}
	return nil
}

// reconcile drops book entries whose tickets are gone from the broker and
// adopts live tickets the book has never seen. Returns true when the book
// changed.
func (m *Manager) reconcile(symbol string, positions []models.Position) bool {
	live := make(map[int64]models.Position, len(positions))
	for _, pos := range positions {
		live[pos.Ticket] = pos
	}

	dirty := false
	for ticket := range m.book.RiskDistance {
		if _, ok := live[ticket]; ok {
			continue
		}
		m.logger.Infof("ticket %d no longer live, purging its state", ticket)
		m.book.Purge(ticket)
		dirty = true
	}

	for ticket, pos := range live {
		if _, ok := m.book.RiskDistance[ticket]; ok {
			continue
		}
		// Adoption path: rebuild the risk distance from the live stop.
		// Without a stop the position stays unmanaged rather than
		// guessed at.
		distance := math.Abs(pos.EntryPrice - pos.StopPrice)
		if pos.StopPrice <= 0 || distance <= 0 {
			m.logger.Warnf("adopted ticket %d has no usable stop, leaving it unmanaged", ticket)
			continue
		}
		m.logger.Infof("adopted ticket %d on %s, risk distance %.5f rebuilt from live stop", ticket, symbol, distance)
		m.book.RiskDistance[ticket] = distance
		dirty = true
	}

	return dirty
}

// managePosition walks one ticket through the ladder and stop rules.
// Returns true when the book changed.
func (m *Manager) managePosition(pos models.Position, price float64) (bool, error) {
	distance, ok := m.book.RiskDistance[pos.Ticket]
	if !ok || distance <= 0 {
		return false, nil // unmanaged
	}

	sign := pos.Direction.Sign()
	rMultiple := (price - pos.EntryPrice) * sign / distance
	remaining := pos.Volume
	dirty := false

	// TP ladder, in order. A bar that gaps past two levels triggers both
	// in the same update; the done markers keep each level single-shot.
	if !m.book.TP1Done[pos.Ticket] && rMultiple >= m.cfg.TP1Multiple {
		closed, err := m.partialClose(pos.Ticket, remaining/3.0, "TP1")
		if err != nil {
			return dirty, err
		}
		m.book.TP1Done[pos.Ticket] = true
		remaining -= closed
		dirty = true
	}
	if !m.book.TP2Done[pos.Ticket] && rMultiple >= m.cfg.TP2Multiple {
		closed, err := m.partialClose(pos.Ticket, remaining/2.0, "TP2")
		if err != nil {
			return dirty, err
		}
		m.book.TP2Done[pos.Ticket] = true
		remaining -= closed
		dirty = true
	}
	if rMultiple >= m.cfg.TP3Multiple {
		if err := m.gw.CloseAll(pos.Ticket); err != nil {
			return dirty, fmt.Errorf("TP3 close: %w", err)
		}
		m.logger.Infof("ticket %d hit TP3 at %.2fR, fully closed", pos.Ticket, rMultiple)
		m.book.Purge(pos.Ticket)
		m.openCount--
		return true, nil
	}

	// Stop management. Breakeven and trailing each propose a stop; the
	// most favorable proposal wins, and the stop only ever tightens.
	candidate := pos.StopPrice
	reason := ""
	if rMultiple >= m.cfg.BreakEvenR {
		be := pos.EntryPrice + sign*m.cfg.BreakEvenEpsilonR*distance
		if tightens(pos.Direction, candidate, be) {
			candidate, reason = be, "breakeven"
		}
	}
	if rMultiple >= m.cfg.TrailStartR {
		trail := price - sign*m.cfg.TrailDistanceR*distance
		if tightens(pos.Direction, candidate, trail) {
			candidate, reason = trail, "trail"
		}
	}
	if reason != "" {
		if err := m.gw.ModifyStop(pos.Ticket, candidate); err != nil {
			return dirty, fmt.Errorf("%s stop move: %w", reason, err)
		}
		m.logger.Infof("ticket %d %s: stop %.5f -> %.5f at %.2fR", pos.Ticket, reason, pos.StopPrice, candidate, rMultiple)
	}

	return dirty, nil
}

// partialClose floors the requested quantity to the lot step and sends it.
// A request that rounds below the exchange minimum is skipped; the caller
// still marks the level done so it is never retried.
func (m *Manager) partialClose(ticket int64, quantity float64, level string) (float64, error) {
	qty := floorToStep(quantity, m.rules.StepSize)
	if qty <= 0 || qty < m.rules.MinQty {
		m.logger.Warnf("ticket %d %s: %.8f rounds below the minimum lot, skipping the partial", ticket, level, quantity)
		return 0, nil
	}
	if err := m.gw.ClosePartial(ticket, qty); err != nil {
		return 0, fmt.Errorf("%s partial close: %w", level, err)
	}
	m.logger.Infof("ticket %d %s: closed %.8f", ticket, level, qty)
	return qty, nil
}

func (m *Manager) persist() error {
	if err := m.repo.SaveBook(m.book); err != nil {
		return fmt.Errorf("save position book: %w", err)
	}
	return nil
}

// tightens reports whether candidate is strictly better protection than
// current for the given direction. A zero current stop accepts anything.
func tightens(dir models.Direction, current, candidate float64) bool {
	if current <= 0 {
		return true
	}
	if dir == models.Buy {
		return candidate > current
	}
	return candidate < current
}

func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}
