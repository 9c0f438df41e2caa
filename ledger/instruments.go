package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openalpha/spotex/types"
)

// CreateInstrument inserts an instrument and returns it with the generated id.
func (t *Tx) CreateInstrument(ctx context.Context, name, ticker string, now time.Time) (*types.Instrument, error) {
	id, err := t.insertReturningID(ctx,
		`INSERT INTO instruments (ticker, name, created_at) VALUES (?, ?, ?)`,
		ticker, name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("instrument %s: %w", ticker, types.ErrConflict)
		}
		return nil, fmt.Errorf("create instrument: %w", err)
	}
	return &types.Instrument{ID: id, Ticker: ticker, Name: name, CreatedAt: now}, nil
}

// InstrumentByTicker fetches an instrument by its ticker.
func (t *Tx) InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error) {
	var inst types.Instrument
	err := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT id, ticker, name, created_at FROM instruments WHERE ticker = ?`), ticker).
		Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrInstrumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("instrument by ticker: %w", err)
	}
	return &inst, nil
}

// ListInstruments returns all instruments in creation order.
func (t *Tx) ListInstruments(ctx context.Context) ([]types.Instrument, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, ticker, name, created_at FROM instruments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []types.Instrument
	for rows.Next() {
		var inst types.Instrument
		if err := rows.Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DeleteInstrument removes an instrument; balances, orders and trades cascade.
func (t *Tx) DeleteInstrument(ctx context.Context, ticker string) error {
	res, err := t.tx.ExecContext(ctx, t.rebind(
		`DELETE FROM instruments WHERE ticker = ?`), ticker)
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrInstrumentNotFound
	}
	return nil
}
