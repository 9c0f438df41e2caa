package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/book"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
	"github.com/openalpha/spotex/types"
)

// PlaceRequest is an admitted order request. Price must be 0 for market
// orders and positive for limit orders.
type PlaceRequest struct {
	Ticker string
	Side   types.Side
	Type   types.OrderType
	Qty    int64
	Price  int64
}

func (r PlaceRequest) validate() error {
	if r.Ticker == "" {
		return fmt.Errorf("ticker required: %w", types.ErrValidation)
	}
	if r.Side != types.SideBuy && r.Side != types.SideSell {
		return fmt.Errorf("direction required: %w", types.ErrValidation)
	}
	if r.Qty < types.MinQty {
		return fmt.Errorf("qty %d below minimum: %w", r.Qty, types.ErrValidation)
	}
	switch r.Type {
	case types.OrderTypeLimit:
		if r.Price <= 0 {
			return fmt.Errorf("limit price %d: %w", r.Price, types.ErrValidation)
		}
	case types.OrderTypeMarket:
		if r.Price != 0 {
			return fmt.Errorf("market order carries no price: %w", types.ErrValidation)
		}
	default:
		return fmt.Errorf("order type required: %w", types.ErrValidation)
	}
	return nil
}

// fill records one match so the book can be updated after commit.
type fill struct {
	makerID    uuid.UUID
	makerPrice int64
	qty        int64
}

// placement accumulates per-request state shared between admission, the
// matching loop and the post-commit book apply.
type placement struct {
	tx      *ledger.Tx
	inst    *types.Instrument
	cash    *types.Instrument
	wallet  *types.Wallet
	order   *types.Order
	bk      *book.Book
	fills   []fill
	stale   []uuid.UUID // book entries whose ledger order is already terminal
	trades  []TradeEvent
	wallets map[uuid.UUID]int64 // user -> wallet id, lazily resolved
}

func (p *placement) walletOf(ctx context.Context, userID uuid.UUID) (int64, error) {
	if id, ok := p.wallets[userID]; ok {
		return id, nil
	}
	w, err := p.tx.WalletByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	p.wallets[userID] = w.ID
	return w.ID, nil
}

// PlaceOrder admits, matches and settles one order. The whole placement runs
// in a single transaction under the instrument mutex; market orders fill
// completely or the transaction rolls back.
func (e *Engine) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceRequest) (*types.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()

	lock := e.instrumentLock(req.Ticker)
	lock.Lock()
	defer lock.Unlock()

	order, err := e.placeLocked(ctx, userID, req)
	if err != nil {
		e.col.RecordRejection(req.Ticker, rejectionReason(err))
		return nil, err
	}

	e.col.RecordOrder(req.Ticker, req.Side.String(), req.Type.String(), order.Status.String())
	e.col.RecordOrderLatency(req.Ticker, req.Type.String(), timer.ElapsedMs())
	e.log.Debug("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("ticker", req.Ticker),
		zap.String("side", req.Side.String()),
		zap.String("type", req.Type.String()),
		zap.Int64("qty", order.Qty),
		zap.Int64("price", order.Price),
		zap.Int64("filled", order.Filled),
		zap.String("status", order.Status.String()))
	return order, nil
}

func (e *Engine) placeLocked(ctx context.Context, userID uuid.UUID, req PlaceRequest) (*types.Order, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p := &placement{
		tx:      tx,
		bk:      e.books.GetOrCreate(req.Ticker),
		wallets: make(map[uuid.UUID]int64),
	}
	if p.inst, err = tx.InstrumentByTicker(ctx, req.Ticker); err != nil {
		return nil, err
	}
	if p.cash, err = tx.InstrumentByTicker(ctx, types.QuoteTicker); err != nil {
		return nil, fmt.Errorf("cash instrument: %w", err)
	}
	if p.wallet, err = tx.WalletByUser(ctx, userID); err != nil {
		return nil, err
	}
	p.wallets[userID] = p.wallet.ID

	p.order = &types.Order{
		ID:           uuid.New(),
		UserID:       userID,
		InstrumentID: p.inst.ID,
		Ticker:       p.inst.Ticker,
		Type:         req.Type,
		Status:       types.OrderStatusNew,
		Side:         req.Side,
		Qty:          req.Qty,
		Price:        req.Price,
		CreatedAt:    e.now(),
	}

	if err := e.admit(ctx, p); err != nil {
		return nil, err
	}
	if err := tx.InsertOrder(ctx, p.order); err != nil {
		return nil, err
	}
	if err := e.match(ctx, p); err != nil {
		return nil, err
	}

	// All-or-nothing for market orders: a partial fill must not survive.
	if p.order.Type == types.OrderTypeMarket && p.order.Remaining() > 0 {
		return nil, types.ErrInsufficientLiquidity
	}

	var seq uint64
	rests := p.order.Type == types.OrderTypeLimit && p.order.Remaining() > 0
	if rests {
		seq = e.nextSeq()
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Committed: mirror the result into the book while the instrument lock
	// is still held.
	for _, id := range p.stale {
		p.bk.Remove(id)
	}
	for _, f := range p.fills {
		p.bk.Fill(f.makerID, f.qty)
	}
	if rests {
		p.bk.Add(book.Entry{
			OrderID: p.order.ID,
			UserID:  p.order.UserID,
			Side:    p.order.Side,
			Price:   p.order.Price,
			Qty:     p.order.Qty,
			Filled:  p.order.Filled,
			Seq:     seq,
		})
	}

	e.col.RecordFills(p.inst.Ticker, len(p.fills))
	e.publishTrades(p.inst.Ticker, p.trades)
	e.publishDepth(p.bk)
	return p.order, nil
}

// admit runs the pre-trade checks and, for limit orders, reserves the
// encumbrance backing the order while it rests.
func (e *Engine) admit(ctx context.Context, p *placement) error {
	o := p.order
	switch o.Type {
	case types.OrderTypeLimit:
		if o.Side == types.SideBuy {
			return p.tx.Reserve(ctx, p.wallet.ID, p.cash.ID, o.Qty*o.Price)
		}
		return p.tx.Reserve(ctx, p.wallet.ID, p.inst.ID, o.Qty)

	case types.OrderTypeMarket:
		if o.Side == types.SideBuy {
			cost, ok := p.bk.MarketBuyCost(o.Qty)
			if !ok {
				return types.ErrInsufficientLiquidity
			}
			bal, err := p.tx.BalanceForUpdate(ctx, p.wallet.ID, p.cash.ID)
			if err != nil {
				return err
			}
			if bal.Available() < cost {
				return types.ErrInsufficientFunds
			}
			return nil
		}
		if !p.bk.MarketSellable(o.Qty) {
			return types.ErrInsufficientLiquidity
		}
		bal, err := p.tx.BalanceForUpdate(ctx, p.wallet.ID, p.inst.ID)
		if err != nil {
			return err
		}
		if bal.Available() < o.Qty {
			return types.ErrInsufficientFunds
		}
		return nil
	}
	return types.ErrValidation
}

// match walks the opposite side best price first, FIFO within a level, and
// settles each fill at the maker's resting price.
func (e *Engine) match(ctx context.Context, p *placement) error {
	taker := p.order
	market := taker.Type == types.OrderTypeMarket

	var loopErr error
	p.bk.EachCrossing(taker.Side, taker.Price, market, func(m book.Entry) bool {
		if taker.Remaining() == 0 {
			return false
		}

		maker, err := p.tx.OrderForUpdate(ctx, m.OrderID)
		if err != nil {
			if errors.Is(err, types.ErrOrderNotFound) {
				p.stale = append(p.stale, m.OrderID)
				return true
			}
			loopErr = err
			return false
		}
		if !maker.Active() {
			// The ledger already closed this order; the cached entry is
			// stale and must not trade.
			p.stale = append(p.stale, m.OrderID)
			return true
		}

		qty := taker.Remaining()
		if maker.Remaining() < qty {
			qty = maker.Remaining()
		}
		if err := e.settleFill(ctx, p, maker, qty); err != nil {
			loopErr = err
			return false
		}
		p.fills = append(p.fills, fill{makerID: maker.ID, makerPrice: maker.Price, qty: qty})
		return taker.Remaining() > 0
	})
	return loopErr
}

// settleFill moves funds for one fill. The maker's encumbrance is released at
// the maker's resting price, the taker's at its own limit price; the cash leg
// settles at the maker price, so any difference stays with the taker.
func (e *Engine) settleFill(ctx context.Context, p *placement, maker *types.Order, qty int64) error {
	taker := p.order
	price := maker.Price
	now := e.now()

	makerWallet, err := p.walletOf(ctx, maker.UserID)
	if err != nil {
		return err
	}
	takerWallet := p.wallet.ID

	if maker.Side == types.SideBuy {
		if err := p.tx.Release(ctx, makerWallet, p.cash.ID, qty*maker.Price); err != nil {
			return fmt.Errorf("release maker cash: %w", err)
		}
	} else {
		if err := p.tx.Release(ctx, makerWallet, p.inst.ID, qty); err != nil {
			return fmt.Errorf("release maker units: %w", err)
		}
	}

	if taker.Type == types.OrderTypeLimit {
		if taker.Side == types.SideBuy {
			if err := p.tx.Release(ctx, takerWallet, p.cash.ID, qty*taker.Price); err != nil {
				return fmt.Errorf("release taker cash: %w", err)
			}
		} else {
			if err := p.tx.Release(ctx, takerWallet, p.inst.ID, qty); err != nil {
				return fmt.Errorf("release taker units: %w", err)
			}
		}
	}

	buyerWallet, sellerWallet := takerWallet, makerWallet
	if taker.Side == types.SideSell {
		buyerWallet, sellerWallet = makerWallet, takerWallet
	}

	if err := p.tx.Transfer(ctx, sellerWallet, buyerWallet, p.inst.ID, qty); err != nil {
		return fmt.Errorf("transfer units: %w", err)
	}
	if err := p.tx.Transfer(ctx, buyerWallet, sellerWallet, p.cash.ID, qty*price); err != nil {
		return fmt.Errorf("transfer cash: %w", err)
	}

	trade := &types.Trade{
		InstrumentID: p.inst.ID,
		Ticker:       p.inst.Ticker,
		WalletID:     sellerWallet,
		Qty:          qty,
		Price:        price,
		CreatedAt:    now,
	}
	if _, err := p.tx.InsertTrade(ctx, trade); err != nil {
		return err
	}

	if err := maker.Fill(qty); err != nil {
		return err
	}
	if err := taker.Fill(qty); err != nil {
		return err
	}
	if err := p.tx.UpdateOrderFill(ctx, maker.ID, maker.Filled, maker.Status); err != nil {
		return err
	}
	if err := p.tx.UpdateOrderFill(ctx, taker.ID, taker.Filled, taker.Status); err != nil {
		return err
	}

	p.trades = append(p.trades, TradeEvent{
		Ticker:    p.inst.Ticker,
		Qty:       qty,
		Price:     price,
		Timestamp: now,
	})
	return nil
}

// rejectionReason maps a placement error to a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, types.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, types.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, types.ErrInstrumentNotFound),
		errors.Is(err, types.ErrUserNotFound),
		errors.Is(err, types.ErrWalletNotFound):
		return "not_found"
	case errors.Is(err, types.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
