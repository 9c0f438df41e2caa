package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/types"
)

// CancelOrder cancels a resting limit order owned by userID and releases the
// remaining encumbrance. Market and terminal orders cannot be cancelled.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*types.Order, error) {
	// Peek outside any lock to learn which instrument serializes this
	// cancel. Ownership and state are re-checked under the lock.
	var ticker string
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		ticker = o.Ticker
		return nil
	})
	if err != nil {
		return nil, err
	}

	lock := e.instrumentLock(ticker)
	lock.Lock()
	defer lock.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	o, err := tx.OrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Ticker = ticker
	if o.UserID != userID {
		return nil, types.ErrAccessDenied
	}
	if o.Type == types.OrderTypeMarket {
		return nil, fmt.Errorf("market orders cannot be cancelled: %w", types.ErrInvalidOrderState)
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("order is %s: %w", o.Status, types.ErrInvalidOrderState)
	}

	if err := e.releaseRemaining(ctx, tx, o); err != nil {
		return nil, err
	}
	o.Cancel()
	if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if bk, ok := e.books.Get(ticker); ok {
		bk.Remove(orderID)
		e.publishDepth(bk)
	}
	e.col.RecordOrder(ticker, o.Side.String(), o.Type.String(), o.Status.String())
	e.log.Debug("order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("ticker", ticker),
		zap.Int64("released_qty", o.Remaining()))
	return o, nil
}

// releaseRemaining returns the unfilled part of a live limit order's
// encumbrance: cash for buys, instrument units for sells.
func (e *Engine) releaseRemaining(ctx context.Context, tx *ledger.Tx, o *types.Order) error {
	remaining := o.Remaining()
	if remaining == 0 {
		return nil
	}
	wallet, err := tx.WalletByUser(ctx, o.UserID)
	if err != nil {
		return err
	}
	if o.Side == types.SideBuy {
		cash, err := tx.InstrumentByTicker(ctx, types.QuoteTicker)
		if err != nil {
			return fmt.Errorf("cash instrument: %w", err)
		}
		return tx.Release(ctx, wallet.ID, cash.ID, remaining*o.Price)
	}
	return tx.Release(ctx, wallet.ID, o.InstrumentID, remaining)
}
