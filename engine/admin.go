package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/types"
)

// DeleteInstrument cancels every live order on the instrument, releasing the
// encumbrances, and then removes the instrument; orders and trades cascade.
// Cancelling first matters for buy orders: their reservations are in cash,
// which does not cascade with the instrument and would otherwise leak.
func (e *Engine) DeleteInstrument(ctx context.Context, ticker string) error {
	lock := e.instrumentLock(ticker)
	lock.Lock()
	defer lock.Unlock()

	err := e.store.Update(ctx, func(tx *ledger.Tx) error {
		inst, err := tx.InstrumentByTicker(ctx, ticker)
		if err != nil {
			return err
		}
		orders, err := tx.LiveOrdersByInstrument(ctx, inst.ID)
		if err != nil {
			return err
		}
		if err := e.cancelLive(ctx, tx, orders); err != nil {
			return err
		}
		return tx.DeleteInstrument(ctx, ticker)
	})
	if err != nil {
		return err
	}

	e.books.Drop(ticker)
	e.log.Info("instrument deleted", zap.String("ticker", ticker))
	return nil
}

// CancelUserOrders cancels every live order the user has, per instrument so
// each cancellation serializes with that instrument's order flow. Run before
// deleting a user: the cascade would drop their rows but not their book
// entries, and buy reservations must be released while the balance rows
// still exist for the accounting to stay auditable.
func (e *Engine) CancelUserOrders(ctx context.Context, userID uuid.UUID) error {
	var orders []types.Order
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		orders, err = tx.LiveOrdersByUser(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	for i := range orders {
		if _, err := e.CancelOrder(ctx, userID, orders[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// cancelLive releases and cancels the given live orders inside the caller's
// transaction.
func (e *Engine) cancelLive(ctx context.Context, tx *ledger.Tx, orders []types.Order) error {
	for i := range orders {
		o := &orders[i]
		if err := e.releaseRemaining(ctx, tx, o); err != nil {
			return err
		}
		o.Cancel()
		if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
			return err
		}
	}
	return nil
}
