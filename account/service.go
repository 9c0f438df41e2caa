// Package account manages users, wallets, deposits and the instrument
// catalogue. Order flow lives in the engine; this package covers everything
// around it, delegating back to the engine where deletions touch live
// orders.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/types"
)

// Service implements registration, balance administration and the
// instrument catalogue.
type Service struct {
	store  *ledger.Store
	engine *engine.Engine
	log    *zap.Logger
}

// NewService creates a Service.
func NewService(store *ledger.Store, eng *engine.Engine, log *zap.Logger) *Service {
	return &Service{store: store, engine: eng, log: log.Named("account")}
}

// Register creates a user with a fresh api key, their wallet and a zero cash
// balance.
func (s *Service) Register(ctx context.Context, name string) (*types.User, error) {
	if len(name) < 3 {
		return nil, fmt.Errorf("name must be at least 3 characters: %w", types.ErrValidation)
	}

	u := &types.User{
		ID:        uuid.New(),
		Name:      name,
		Role:      types.RoleUser,
		APIKey:    "key-" + uuid.NewString(),
		CreatedAt: nowUTC(),
	}
	err := s.store.Update(ctx, func(tx *ledger.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		walletID, err := tx.CreateWallet(ctx, u.ID)
		if err != nil {
			return err
		}
		cash, err := tx.InstrumentByTicker(ctx, types.QuoteTicker)
		if err != nil {
			return fmt.Errorf("cash instrument: %w", err)
		}
		return tx.EnsureBalance(ctx, walletID, cash.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("name", name))
	return u, nil
}

// CreateAdmin creates a user with the ADMIN role. Used by bootstrap tooling,
// not exposed over HTTP.
func (s *Service) CreateAdmin(ctx context.Context, name string) (*types.User, error) {
	u, err := s.Register(ctx, name)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, func(tx *ledger.Tx) error {
		return tx.SetUserRole(ctx, u.ID, types.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}
	u.Role = types.RoleAdmin
	return u, nil
}

// DeleteUser cancels the user's live orders, releasing their encumbrances,
// then removes the user; wallet, balances and orders cascade.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	var u *types.User
	err := s.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		u, err = tx.UserByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.engine.CancelUserOrders(ctx, id); err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, func(tx *ledger.Tx) error {
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user deleted", zap.String("user_id", id.String()))
	return u, nil
}

// UserByAPIKey resolves an api key to its user.
func (s *Service) UserByAPIKey(ctx context.Context, key string) (*types.User, error) {
	var u *types.User
	err := s.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		u, err = tx.UserByAPIKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Balances returns ticker to total amount for the user's wallet, reserved
// funds included.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	var out map[string]int64
	err := s.store.View(ctx, func(tx *ledger.Tx) error {
		w, err := tx.WalletByUser(ctx, userID)
		if err != nil {
			return err
		}
		out, err = tx.BalancesByWallet(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deposit credits amount of an instrument to the user's wallet.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount %d: %w", amount, types.ErrValidation)
	}
	return s.store.Update(ctx, func(tx *ledger.Tx) error {
		wallet, inst, err := s.resolve(ctx, tx, userID, ticker)
		if err != nil {
			return err
		}
		return tx.Deposit(ctx, wallet.ID, inst.ID, amount)
	})
}

// Withdraw debits amount from the user's wallet. Funds reserved by live
// orders cannot be withdrawn.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount %d: %w", amount, types.ErrValidation)
	}
	return s.store.Update(ctx, func(tx *ledger.Tx) error {
		wallet, inst, err := s.resolve(ctx, tx, userID, ticker)
		if err != nil {
			return err
		}
		return tx.Withdraw(ctx, wallet.ID, inst.ID, amount)
	})
}

func (s *Service) resolve(ctx context.Context, tx *ledger.Tx, userID uuid.UUID, ticker string) (*types.Wallet, *types.Instrument, error) {
	if _, err := tx.UserByID(ctx, userID); err != nil {
		return nil, nil, err
	}
	wallet, err := tx.WalletByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	inst, err := tx.InstrumentByTicker(ctx, ticker)
	if err != nil {
		return nil, nil, err
	}
	return wallet, inst, nil
}

// CreateInstrument adds a tradable instrument.
func (s *Service) CreateInstrument(ctx context.Context, name, ticker string) (*types.Instrument, error) {
	if name == "" || !types.ValidTicker(ticker) {
		return nil, fmt.Errorf("instrument name and 2-10 uppercase ticker required: %w", types.ErrValidation)
	}
	var inst *types.Instrument
	err := s.store.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		inst, err = tx.CreateInstrument(ctx, name, ticker, nowUTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("instrument created", zap.String("ticker", ticker))
	return inst, nil
}

// DeleteInstrument removes an instrument after cancelling its live orders.
// The cash instrument cannot be removed.
func (s *Service) DeleteInstrument(ctx context.Context, ticker string) error {
	if ticker == types.QuoteTicker {
		return fmt.Errorf("cash instrument cannot be deleted: %w", types.ErrValidation)
	}
	return s.engine.DeleteInstrument(ctx, ticker)
}

// ListInstruments returns the catalogue in creation order.
func (s *Service) ListInstruments(ctx context.Context) ([]types.Instrument, error) {
	var out []types.Instrument
	err := s.store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = tx.ListInstruments(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.Instrument{}
	}
	return out, nil
}

// EnsureQuoteInstrument creates the cash instrument if it does not exist.
func (s *Service) EnsureQuoteInstrument(ctx context.Context) error {
	return s.store.Update(ctx, func(tx *ledger.Tx) error {
		_, err := tx.InstrumentByTicker(ctx, types.QuoteTicker)
		if err == nil {
			return nil
		}
		if !errors.Is(err, types.ErrInstrumentNotFound) {
			return err
		}
		_, err = tx.CreateInstrument(ctx, "Russian Ruble", types.QuoteTicker, nowUTC())
		return err
	})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
