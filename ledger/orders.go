package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openalpha/spotex/types"
)

const orderColumns = `o.id, o.user_id, o.instrument_id, o.order_type, o.status, o.direction,
	o.qty, o.price, o.filled, o.created_at`

type orderScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderScanner, withTicker bool) (*types.Order, error) {
	var (
		o                          types.Order
		id, userID                 string
		orderType, status, dirName string
	)
	dest := []any{&id, &userID, &o.InstrumentID, &orderType, &status, &dirName,
		&o.Qty, &o.Price, &o.Filled, &o.CreatedAt}
	if withTicker {
		dest = append(dest, &o.Ticker)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if o.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse order id: %w", err)
	}
	if o.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse order user id: %w", err)
	}
	if o.Type, err = types.ParseOrderType(orderType); err != nil {
		return nil, err
	}
	if o.Status, err = types.ParseOrderStatus(status); err != nil {
		return nil, err
	}
	if o.Side, err = types.ParseSide(dirName); err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOrder persists a freshly admitted order.
func (t *Tx) InsertOrder(ctx context.Context, o *types.Order) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`INSERT INTO orders (id, user_id, instrument_id, order_type, status, direction, qty, price, filled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID.String(), o.UserID.String(), o.InstrumentID, o.Type.String(), o.Status.String(),
		o.Side.String(), o.Qty, o.Price, o.Filled, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// OrderByID fetches an order with its instrument ticker resolved.
func (t *Tx) OrderByID(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT `+orderColumns+`, i.ticker FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.id = ?`), id.String())
	o, err := scanOrder(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order by id: %w", err)
	}
	return o, nil
}

// OrderForUpdate fetches an order under a row lock. The ticker is not
// resolved; callers hold the instrument already.
func (t *Tx) OrderForUpdate(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = ?`)+t.forUpdate(), id.String())
	o, err := scanOrder(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order for update: %w", err)
	}
	return o, nil
}

// UpdateOrderFill persists a fill's effect on filled quantity and status.
func (t *Tx) UpdateOrderFill(ctx context.Context, id uuid.UUID, filled int64, status types.OrderStatus) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`UPDATE orders SET filled = ?, status = ? WHERE id = ?`),
		filled, status.String(), id.String())
	if err != nil {
		return fmt.Errorf("update order fill: %w", err)
	}
	return nil
}

// UpdateOrderStatus sets only the status.
func (t *Tx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(
		`UPDATE orders SET status = ? WHERE id = ?`), status.String(), id.String())
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (t *Tx) queryOrders(ctx context.Context, query string, args ...any) ([]types.Order, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		o, err := scanOrder(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// OrdersByUser returns the user's orders, oldest first.
func (t *Tx) OrdersByUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error) {
	return t.queryOrders(ctx,
		`SELECT `+orderColumns+`, i.ticker FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.user_id = ?
		 ORDER BY o.created_at, o.id`, userID.String())
}

// liveStatuses matches orders that still rest in the book.
const liveStatuses = `o.status IN ('NEW', 'PARTIALLY_EXECUTED')`

// LiveOrders returns every resting limit order across instruments in
// admission order. This is the book rebuild feed.
func (t *Tx) LiveOrders(ctx context.Context) ([]types.Order, error) {
	return t.queryOrders(ctx,
		`SELECT `+orderColumns+`, i.ticker FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE `+liveStatuses+` AND o.order_type = 'LIMIT'
		 ORDER BY o.created_at, o.id`)
}

// LiveOrdersByInstrument returns resting limit orders for one instrument.
func (t *Tx) LiveOrdersByInstrument(ctx context.Context, instrumentID int64) ([]types.Order, error) {
	return t.queryOrders(ctx,
		`SELECT `+orderColumns+`, i.ticker FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE `+liveStatuses+` AND o.order_type = 'LIMIT' AND o.instrument_id = ?
		 ORDER BY o.created_at, o.id`, instrumentID)
}

// LiveOrdersByUser returns the user's resting limit orders.
func (t *Tx) LiveOrdersByUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error) {
	return t.queryOrders(ctx,
		`SELECT `+orderColumns+`, i.ticker FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE `+liveStatuses+` AND o.order_type = 'LIMIT' AND o.user_id = ?
		 ORDER BY o.created_at, o.id`, userID.String())
}
