package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openalpha/spotex/types"
)

// CreateUser inserts a user. The api key must be unique.
func (t *Tx) CreateUser(ctx context.Context, u *types.User) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`INSERT INTO users (id, name, role, api_key, created_at) VALUES (?, ?, ?, ?, ?)`),
		u.ID.String(), u.Name, u.Role.String(), u.APIKey, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user api key: %w", types.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (t *Tx) scanUser(row *sql.Row) (*types.User, error) {
	var (
		u        types.User
		id, role string
	)
	if err := row.Scan(&id, &u.Name, &role, &u.APIKey, &u.CreatedAt); err != nil {
		return nil, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.ID = parsedID
	u.Role, err = types.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByID fetches a user by primary key.
func (t *Tx) UserByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT id, name, role, api_key, created_at FROM users WHERE id = ?`), id.String())
	u, err := t.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

// UserByAPIKey fetches a user by api key.
func (t *Tx) UserByAPIKey(ctx context.Context, key string) (*types.User, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT id, name, role, api_key, created_at FROM users WHERE api_key = ?`), key)
	u, err := t.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by api key: %w", err)
	}
	return u, nil
}

// SetUserRole updates a user's role.
func (t *Tx) SetUserRole(ctx context.Context, id uuid.UUID, role types.Role) error {
	res, err := t.tx.ExecContext(ctx, t.rebind(
		`UPDATE users SET role = ? WHERE id = ?`), role.String(), id.String())
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user; wallets, balances and orders cascade.
func (t *Tx) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, t.rebind(`DELETE FROM users WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrUserNotFound
	}
	return nil
}

// CreateWallet inserts the user's wallet and returns its id.
func (t *Tx) CreateWallet(ctx context.Context, userID uuid.UUID) (int64, error) {
	id, err := t.insertReturningID(ctx,
		`INSERT INTO wallets (user_id) VALUES (?)`, userID.String())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("wallet for user: %w", types.ErrConflict)
		}
		return 0, fmt.Errorf("create wallet: %w", err)
	}
	return id, nil
}

// WalletByUser fetches the wallet owned by userID.
func (t *Tx) WalletByUser(ctx context.Context, userID uuid.UUID) (*types.Wallet, error) {
	var w types.Wallet
	var uid string
	err := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT id, user_id FROM wallets WHERE user_id = ?`), userID.String()).
		Scan(&w.ID, &uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("wallet by user: %w", err)
	}
	w.UserID, err = uuid.Parse(uid)
	if err != nil {
		return nil, fmt.Errorf("parse wallet user id: %w", err)
	}
	return &w, nil
}
