package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/openalpha/spotex/book"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/types"
)

// DefaultDepth is the snapshot depth used when the caller does not ask for
// a specific number of levels.
const DefaultDepth = 10

// Snapshot is an aggregated point-in-time view of one book.
type Snapshot struct {
	Bids []book.Level `json:"bid_levels"`
	Asks []book.Level `json:"ask_levels"`
}

// Orderbook returns the top limit levels per side for a ticker. The ticker
// must exist even when no orders rest on it.
func (e *Engine) Orderbook(ctx context.Context, ticker string, limit int) (*Snapshot, error) {
	if limit <= 0 {
		limit = DefaultDepth
	}

	bk, ok := e.books.Get(ticker)
	if !ok {
		err := e.store.View(ctx, func(tx *ledger.Tx) error {
			_, err := tx.InstrumentByTicker(ctx, ticker)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &Snapshot{Bids: []book.Level{}, Asks: []book.Level{}}, nil
	}

	bids, asks := bk.Depth(limit)
	return &Snapshot{Bids: bids, Asks: asks}, nil
}

// Tape returns the most recent trades for a ticker, newest first.
func (e *Engine) Tape(ctx context.Context, ticker string, limit int) ([]types.Trade, error) {
	if limit <= 0 {
		limit = DefaultDepth
	}
	var trades []types.Trade
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		inst, err := tx.InstrumentByTicker(ctx, ticker)
		if err != nil {
			return err
		}
		trades, err = tx.TradesByInstrument(ctx, inst.ID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []types.Trade{}
	}
	return trades, nil
}

// OrdersForUser lists the caller's orders, oldest first.
func (e *Engine) OrdersForUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error) {
	var orders []types.Order
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		orders, err = tx.OrdersByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []types.Order{}
	}
	return orders, nil
}

// OrderForUser fetches one order, refusing callers who do not own it.
func (e *Engine) OrderForUser(ctx context.Context, userID, orderID uuid.UUID) (*types.Order, error) {
	var o *types.Order
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		o, err = tx.OrderByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, types.ErrAccessDenied
	}
	return o, nil
}
