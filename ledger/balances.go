package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openalpha/spotex/types"
)

// balanceForUpdate reads a balance row under a row lock. A missing row is
// returned as a zero balance, not an error: absence and emptiness are the
// same thing for admission checks.
func (t *Tx) balanceForUpdate(ctx context.Context, walletID, instrumentID int64) (types.Balance, error) {
	b := types.Balance{WalletID: walletID, InstrumentID: instrumentID}
	err := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT amount, reserved FROM balances WHERE wallet_id = ? AND instrument_id = ?`)+t.forUpdate(),
		walletID, instrumentID).Scan(&b.Amount, &b.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("balance for update: %w", err)
	}
	return b, nil
}

// BalanceForUpdate reads a balance under a row lock. Missing rows read as
// zero. Use for admission checks that must not race concurrent spenders.
func (t *Tx) BalanceForUpdate(ctx context.Context, walletID, instrumentID int64) (types.Balance, error) {
	return t.balanceForUpdate(ctx, walletID, instrumentID)
}

// Balance reads a balance without locking. Missing rows read as zero.
func (t *Tx) Balance(ctx context.Context, walletID, instrumentID int64) (types.Balance, error) {
	b := types.Balance{WalletID: walletID, InstrumentID: instrumentID}
	err := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT amount, reserved FROM balances WHERE wallet_id = ? AND instrument_id = ?`),
		walletID, instrumentID).Scan(&b.Amount, &b.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("balance: %w", err)
	}
	return b, nil
}

// upsertAmount adds delta to a balance's amount, creating the row on demand.
// Both backends understand the same ON CONFLICT clause.
func (t *Tx) upsertAmount(ctx context.Context, walletID, instrumentID, delta int64) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`INSERT INTO balances (wallet_id, instrument_id, amount, reserved) VALUES (?, ?, ?, 0)
		 ON CONFLICT (wallet_id, instrument_id) DO UPDATE SET amount = balances.amount + ?`),
		walletID, instrumentID, delta, delta)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// EnsureBalance creates an empty balance row if none exists. Registration
// uses it so fresh accounts report a zero cash balance instead of nothing.
func (t *Tx) EnsureBalance(ctx context.Context, walletID, instrumentID int64) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`INSERT INTO balances (wallet_id, instrument_id, amount, reserved) VALUES (?, ?, 0, 0)
		 ON CONFLICT (wallet_id, instrument_id) DO NOTHING`),
		walletID, instrumentID)
	if err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}

// Deposit credits amount to the wallet's balance, creating it on first use.
func (t *Tx) Deposit(ctx context.Context, walletID, instrumentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount %d: %w", amount, types.ErrValidation)
	}
	return t.upsertAmount(ctx, walletID, instrumentID, amount)
}

// Withdraw debits amount. It fails when the unreserved part cannot cover it,
// which keeps reserved ≤ amount intact.
func (t *Tx) Withdraw(ctx context.Context, walletID, instrumentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount %d: %w", amount, types.ErrValidation)
	}
	b, err := t.balanceForUpdate(ctx, walletID, instrumentID)
	if err != nil {
		return err
	}
	if b.Available() < amount {
		return types.ErrInsufficientFunds
	}
	_, err = t.tx.ExecContext(ctx, t.rebind(
		`UPDATE balances SET amount = amount - ? WHERE wallet_id = ? AND instrument_id = ?`),
		amount, walletID, instrumentID)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return nil
}

// Reserve encumbers amount for a live order. Fails when the available
// (unreserved) balance cannot cover it.
func (t *Tx) Reserve(ctx context.Context, walletID, instrumentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount %d: %w", amount, types.ErrValidation)
	}
	b, err := t.balanceForUpdate(ctx, walletID, instrumentID)
	if err != nil {
		return err
	}
	if b.Available() < amount {
		return types.ErrInsufficientFunds
	}
	_, err = t.tx.ExecContext(ctx, t.rebind(
		`UPDATE balances SET reserved = reserved + ? WHERE wallet_id = ? AND instrument_id = ?`),
		amount, walletID, instrumentID)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	return nil
}

// Release returns an encumbrance to the available balance. Releasing more
// than is reserved indicates an accounting bug upstream.
func (t *Tx) Release(ctx context.Context, walletID, instrumentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("release amount %d: %w", amount, types.ErrValidation)
	}
	b, err := t.balanceForUpdate(ctx, walletID, instrumentID)
	if err != nil {
		return err
	}
	if b.Reserved < amount {
		return types.ErrInsufficientReserved
	}
	_, err = t.tx.ExecContext(ctx, t.rebind(
		`UPDATE balances SET reserved = reserved - ? WHERE wallet_id = ? AND instrument_id = ?`),
		amount, walletID, instrumentID)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Transfer moves amount between wallets. The source must have it available
// (settlement releases encumbrances before transferring). The destination
// row is created on demand. A self-transfer only checks availability.
func (t *Tx) Transfer(ctx context.Context, fromWallet, toWallet, instrumentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount %d: %w", amount, types.ErrValidation)
	}
	from, err := t.balanceForUpdate(ctx, fromWallet, instrumentID)
	if err != nil {
		return err
	}
	if from.Available() < amount {
		return types.ErrInsufficientFunds
	}
	if fromWallet == toWallet {
		return nil
	}
	_, err = t.tx.ExecContext(ctx, t.rebind(
		`UPDATE balances SET amount = amount - ? WHERE wallet_id = ? AND instrument_id = ?`),
		amount, fromWallet, instrumentID)
	if err != nil {
		return fmt.Errorf("transfer debit: %w", err)
	}
	return t.upsertAmount(ctx, toWallet, instrumentID, amount)
}

// BalancesByWallet returns ticker → total amount for every balance row the
// wallet has. Reserved funds are included in the total.
func (t *Tx) BalancesByWallet(ctx context.Context, walletID int64) (map[string]int64, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(
		`SELECT i.ticker, b.amount FROM balances b
		 JOIN instruments i ON i.id = b.instrument_id
		 WHERE b.wallet_id = ?`), walletID)
	if err != nil {
		return nil, fmt.Errorf("balances by wallet: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var ticker string
		var amount int64
		if err := rows.Scan(&ticker, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[ticker] = amount
	}
	return out, rows.Err()
}
