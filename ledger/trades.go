package ledger

import (
	"context"
	"fmt"

	"github.com/openalpha/spotex/types"
)

// InsertTrade records an executed fill and returns its id.
func (t *Tx) InsertTrade(ctx context.Context, tr *types.Trade) (int64, error) {
	id, err := t.insertReturningID(ctx,
		`INSERT INTO transactions (instrument_id, wallet_id, amount, price, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tr.InstrumentID, tr.WalletID, tr.Qty, tr.Price, tr.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

// TradesByInstrument returns the newest trades for an instrument, most
// recent first.
func (t *Tx) TradesByInstrument(ctx context.Context, instrumentID int64, limit int) ([]types.Trade, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(
		`SELECT t.id, t.instrument_id, i.ticker, t.wallet_id, t.amount, t.price, t.created_at
		 FROM transactions t
		 JOIN instruments i ON i.id = t.instrument_id
		 WHERE t.instrument_id = ?
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ?`), instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("trades by instrument: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var tr types.Trade
		if err := rows.Scan(&tr.ID, &tr.InstrumentID, &tr.Ticker, &tr.WalletID,
			&tr.Qty, &tr.Price, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
