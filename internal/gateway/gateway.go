// Package gateway defines the execution collaborator the trading core
// drives. Implementations execute commands and return confirmations; they
// never retain position lifecycle state; that belongs to the lifecycle
// manager.
package gateway

import "alpha-tick-bot-go/internal/models"

// OrderRequest describes one entry order.
type OrderRequest struct {
	Symbol     string
	Direction  models.Direction
	Quantity   float64
	Price      float64
	Stop       float64
	TakeProfit float64
}

// Gateway 定义了所有执行网关必须提供的通用方法。
// All calls are synchronous and report definitive success or failure;
// a silent no-op is a bug in the implementation.
type Gateway interface {
	// PlaceOrder submits an entry and returns the broker-assigned ticket.
	PlaceOrder(req OrderRequest) (int64, error)

	// ModifyStop replaces the protective stop of a live position.
	ModifyStop(ticket int64, newStop float64) error

	// ClosePartial closes part of a live position at market.
	ClosePartial(ticket int64, quantity float64) error

	// CloseAll flattens a live position at market.
	CloseAll(ticket int64) error

	// ListOpenPositions returns every live position for the instrument.
	ListOpenPositions(symbol string) ([]models.Position, error)

	// Equity returns the current account equity for sizing.
	Equity() (float64, error)

	// SymbolRules returns the exchange trading constraints.
	SymbolRules(symbol string) (models.SymbolRules, error)
}
