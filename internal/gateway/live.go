package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/models"
)

// requestTimeout bounds every REST call so an update can never queue
// behind slow broker I/O.
const requestTimeout = 10 * time.Second

// LiveGateway 实现了 Gateway 接口，用于与币安合约交易所进行交互。
// It assumes one-way position mode: at most one live position per symbol.
//
// The gateway keeps no lifecycle state. The per-symbol ticket map below is
// execution plumbing only: it routes stop modifications for the one live
// position a symbol can hold. The mapping is dropped as soon as the broker
// reports the symbol flat, so an exit through the broker's own stop cannot
// leave a stale identity behind. After a restart the map is empty and
// adopted positions get a synthetic, symbol-derived ticket (stable while
// the position lives).
type LiveGateway struct {
	client *futures.Client
	logger *zap.SugaredLogger

	mu      sync.Mutex
	tickets map[string]int64 // symbol -> ticket of the live position
}

// NewLiveGateway builds a gateway against the live or testnet futures API.
func NewLiveGateway(apiKey, secretKey string, testnet bool, logger *zap.SugaredLogger) *LiveGateway {
	futures.UseTestnet = testnet
	return &LiveGateway{
		client:  binance.NewFuturesClient(apiKey, secretKey),
		logger:  logger,
		tickets: make(map[string]int64),
	}
}

// clientOrderID tags orders with a compact base62 timestamp so fills can
// be traced back to this process in the exchange UI.
func clientOrderID() string {
	return "atb-" + string(base62.FormatInt(time.Now().UnixNano()))
}

// PlaceOrder submits a market entry followed by a close-position stop and
// take-profit. A failure on the protective orders closes the entry again:
// an unprotected position is worse than no position.
func (g *LiveGateway) PlaceOrder(req OrderRequest) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	entry, err := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Direction)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(req.Quantity)).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("place entry order: %w", err)
	}

	if err := g.placeStop(ctx, req.Symbol, req.Direction, req.Stop); err != nil {
		g.logger.Errorf("stop placement failed after entry, flattening %s: %v", req.Symbol, err)
		if closeErr := g.closePosition(ctx, req.Symbol); closeErr != nil {
			g.logger.Errorf("emergency flatten failed for %s: %v", req.Symbol, closeErr)
		}
		return 0, fmt.Errorf("place protective stop: %w", err)
	}
	if req.TakeProfit > 0 {
		if err := g.placeTakeProfit(ctx, req.Symbol, req.Direction, req.TakeProfit); err != nil {
			// Not fatal: the lifecycle manager exits via TP3 anyway.
			g.logger.Warnf("take-profit placement failed for %s: %v", req.Symbol, err)
		}
	}

	g.mu.Lock()
	g.tickets[req.Symbol] = entry.OrderID
	g.mu.Unlock()

	g.logger.Infof("[live] placed %s %.5f %s (ticket %d)", req.Direction, req.Quantity, req.Symbol, entry.OrderID)
	return entry.OrderID, nil
}

// ModifyStop cancels the existing close-position stop order and installs a
// new one at newStop.
func (g *LiveGateway) ModifyStop(ticket int64, newStop float64) error {
	symbol, pos, err := g.resolve(ticket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := g.cancelStopOrders(ctx, symbol); err != nil {
		return fmt.Errorf("cancel old stop: %w", err)
	}
	if err := g.placeStop(ctx, symbol, pos.Direction, newStop); err != nil {
		return fmt.Errorf("place new stop: %w", err)
	}
	return nil
}

// ClosePartial sends a reduce-only market order for part of the position.
func (g *LiveGateway) ClosePartial(ticket int64, quantity float64) error {
	symbol, pos, err := g.resolve(ticket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err = g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(pos.Direction.Opposite())).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(quantity)).
		ReduceOnly(true).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("close partial: %w", err)
	}
	return nil
}

// CloseAll flattens the position and removes its protective orders.
func (g *LiveGateway) CloseAll(ticket int64) error {
	symbol, _, err := g.resolve(ticket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := g.closePosition(ctx, symbol); err != nil {
		return err
	}
	if err := g.cancelStopOrders(ctx, symbol); err != nil {
		g.logger.Warnf("leftover protective orders on %s: %v", symbol, err)
	}

	g.forget(symbol)
	return nil
}

// ListOpenPositions reads the live position set and joins it with the
// current stop order, which reconciliation uses to rebuild risk distances
// after a restart.
func (g *LiveGateway) ListOpenPositions(symbol string) ([]models.Position, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	risks, err := g.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	stopPrice, err := g.currentStopPrice(ctx, symbol)
	if err != nil {
		g.logger.Warnf("could not read stop orders for %s: %v", symbol, err)
	}

	var out []models.Position
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		direction := models.Buy
		if amt < 0 {
			direction = models.Sell
			amt = -amt
		}
		out = append(out, models.Position{
			Ticket:     g.ticketFor(symbol),
			Symbol:     symbol,
			Direction:  direction,
			EntryPrice: entry,
			StopPrice:  stopPrice,
			Volume:     amt,
		})
	}
	if len(out) == 0 {
		// The position is gone, broker-side stop fills included. Drop the
		// ticket so the next entry starts with a fresh identity.
		g.forget(symbol)
	}
	return out, nil
}

// Equity returns the margin balance (wallet + unrealized P&L).
func (g *LiveGateway) Equity() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get account: %w", err)
	}
	equity, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse margin balance %q: %w", account.TotalMarginBalance, err)
	}
	return equity, nil
}

// SymbolRules reads the LOT_SIZE filter from exchange info. USDT-margined
// linear contracts have a point value of 1.
func (g *LiveGateway) SymbolRules(symbol string) (models.SymbolRules, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return models.SymbolRules{}, fmt.Errorf("exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			return models.SymbolRules{}, fmt.Errorf("symbol %s has no LOT_SIZE filter", symbol)
		}
		minQty, _ := strconv.ParseFloat(lot.MinQuantity, 64)
		maxQty, _ := strconv.ParseFloat(lot.MaxQuantity, 64)
		step, _ := strconv.ParseFloat(lot.StepSize, 64)
		return models.SymbolRules{
			MinQty:     minQty,
			MaxQty:     maxQty,
			StepSize:   step,
			PointValue: 1,
		}, nil
	}
	return models.SymbolRules{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// resolve maps a ticket back to its symbol and live position.
func (g *LiveGateway) resolve(ticket int64) (string, *models.Position, error) {
	g.mu.Lock()
	symbol := ""
	for s, t := range g.tickets {
		if t == ticket {
			symbol = s
			break
		}
	}
	g.mu.Unlock()
	if symbol == "" {
		return "", nil, fmt.Errorf("%w: %d", models.ErrTicketNotFound, ticket)
	}

	positions, err := g.ListOpenPositions(symbol)
	if err != nil {
		return "", nil, err
	}
	for i := range positions {
		return symbol, &positions[i], nil
	}
	return "", nil, fmt.Errorf("%w: %d (no live position on %s)", models.ErrTicketNotFound, ticket, symbol)
}

// ticketFor prefers the entry order id recorded at placement; otherwise it
// falls back to a symbol-derived synthetic ticket (post-restart adoption).
// A symbol has exactly one ticket at a time.
func (g *LiveGateway) ticketFor(symbol string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ticket, ok := g.tickets[symbol]; ok {
		return ticket
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	ticket := int64(h.Sum32())
	g.tickets[symbol] = ticket
	return ticket
}

// forget drops the symbol's ticket mapping once no live position remains.
func (g *LiveGateway) forget(symbol string) {
	g.mu.Lock()
	delete(g.tickets, symbol)
	g.mu.Unlock()
}

func (g *LiveGateway) placeStop(ctx context.Context, symbol string, dir models.Direction, stop float64) error {
	if stop <= 0 {
		return fmt.Errorf("invalid stop price %.5f", stop)
	}
	_, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(dir.Opposite())).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatQty(stop)).
		ClosePosition(true).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	return err
}

func (g *LiveGateway) placeTakeProfit(ctx context.Context, symbol string, dir models.Direction, tp float64) error {
	_, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(dir.Opposite())).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(formatQty(tp)).
		ClosePosition(true).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	return err
}

func (g *LiveGateway) closePosition(ctx context.Context, symbol string) error {
	positions, err := g.ListOpenPositions(symbol)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		_, err := g.client.NewCreateOrderService().
			Symbol(symbol).
			Side(futures.SideType(pos.Direction.Opposite())).
			Type(futures.OrderTypeMarket).
			Quantity(formatQty(pos.Volume)).
			ReduceOnly(true).
			NewClientOrderID(clientOrderID()).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("flatten %s: %w", symbol, err)
		}
	}
	return nil
}

// cancelStopOrders removes every close-position conditional order.
func (g *LiveGateway) cancelStopOrders(ctx context.Context, symbol string) error {
	orders, err := g.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Type != futures.OrderTypeStopMarket {
			continue // leave the TP backstop in place
		}
		_, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// currentStopPrice returns the stop of the live close-position stop order,
// or 0 when none exists.
func (g *LiveGateway) currentStopPrice(ctx context.Context, symbol string) (float64, error) {
	orders, err := g.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, o := range orders {
		if o.Type == futures.OrderTypeStopMarket {
			stop, err := strconv.ParseFloat(o.StopPrice, 64)
			if err != nil {
				return 0, err
			}
			return stop, nil
		}
	}
	return 0, nil
}

// formatQty renders prices/quantities the way the REST API expects.
func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
