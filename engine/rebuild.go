package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/openalpha/spotex/book"
	"github.com/openalpha/spotex/ledger"
)

// RebuildBooks reconstructs every in-memory book from the ledger's live
// limit orders. Orders are scanned in admission order (created_at, then id)
// so the rebuilt FIFO sequence matches the original priority. Run at startup
// before serving requests.
func (e *Engine) RebuildBooks(ctx context.Context) error {
	var n int
	err := e.store.View(ctx, func(tx *ledger.Tx) error {
		orders, err := tx.LiveOrders(ctx)
		if err != nil {
			return err
		}
		for i := range orders {
			o := &orders[i]
			e.books.GetOrCreate(o.Ticker).Add(book.Entry{
				OrderID: o.ID,
				UserID:  o.UserID,
				Side:    o.Side,
				Price:   o.Price,
				Qty:     o.Qty,
				Filled:  o.Filled,
				Seq:     e.nextSeq(),
			})
		}
		n = len(orders)
		return nil
	})
	if err != nil {
		return err
	}

	for _, ticker := range e.books.Tickers() {
		if bk, ok := e.books.Get(ticker); ok {
			e.publishDepth(bk)
		}
	}
	e.log.Info("books rebuilt", zap.Int("orders", n), zap.Strings("tickers", e.books.Tickers()))
	return nil
}
