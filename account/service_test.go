package account

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
	"github.com/openalpha/spotex/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.Open(ledger.DriverSQLite, "file::memory:?_fk=1", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Bootstrap(ctx))

	eng := engine.New(store, zap.NewNop(), metrics.NewCollector(), nil)
	s := NewService(store, eng, zap.NewNop())
	require.NoError(t, s.EnsureQuoteInstrument(ctx))
	return s
}

func TestRegister(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, u.Role)
	assert.NotEmpty(t, u.APIKey)

	// Fresh accounts report a zero cash balance, not an empty map.
	balances, err := s.Balances(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"RUB": 0}, balances)

	got, err := s.UserByAPIKey(ctx, u.APIKey)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Register(ctx, "ab")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCreateAdmin(t *testing.T) {
	s := newTestService(t)

	u, err := s.CreateAdmin(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, u.Role)

	got, err := s.UserByAPIKey(context.Background(), u.APIKey)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, got.Role)
}

func TestDepositWithdraw(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, s.Deposit(ctx, u.ID, "RUB", 100))
	require.NoError(t, s.Withdraw(ctx, u.ID, "RUB", 30))

	balances, err := s.Balances(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balances["RUB"])

	t.Run("overdraw", func(t *testing.T) {
		assert.ErrorIs(t, s.Withdraw(ctx, u.ID, "RUB", 1000), types.ErrInsufficientFunds)
	})
	t.Run("non-positive amounts", func(t *testing.T) {
		assert.ErrorIs(t, s.Deposit(ctx, u.ID, "RUB", 0), types.ErrValidation)
		assert.ErrorIs(t, s.Withdraw(ctx, u.ID, "RUB", -5), types.ErrValidation)
	})
	t.Run("unknown user", func(t *testing.T) {
		assert.ErrorIs(t, s.Deposit(ctx, uuid.New(), "RUB", 10), types.ErrUserNotFound)
	})
	t.Run("unknown instrument", func(t *testing.T) {
		assert.ErrorIs(t, s.Deposit(ctx, u.ID, "XX", 10), types.ErrInstrumentNotFound)
	})
}

func TestWithdrawBlockedByReservation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice")
	require.NoError(t, err)
	_, err = s.CreateInstrument(ctx, "Bitcoin", "BTC")
	require.NoError(t, err)
	require.NoError(t, s.Deposit(ctx, u.ID, "RUB", 100))

	_, err = s.engine.PlaceOrder(ctx, u.ID, engine.PlaceRequest{
		Ticker: "BTC", Side: types.SideBuy, Type: types.OrderTypeLimit, Qty: 1, Price: 100,
	})
	require.NoError(t, err)

	// The full 100 backs the resting bid; nothing is withdrawable.
	assert.ErrorIs(t, s.Withdraw(ctx, u.ID, "RUB", 1), types.ErrInsufficientFunds)
}

func TestInstrumentCatalogue(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	inst, err := s.CreateInstrument(ctx, "Bitcoin", "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", inst.Ticker)

	_, err = s.CreateInstrument(ctx, "Bitcoin again", "BTC")
	assert.ErrorIs(t, err, types.ErrConflict)

	for _, ticker := range []string{"b", "TOOLONGTICKER", "btc", "A"} {
		_, err := s.CreateInstrument(ctx, "bad", ticker)
		assert.ErrorIs(t, err, types.ErrValidation, ticker)
	}

	list, err := s.ListInstruments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "RUB", list[0].Ticker)
	assert.Equal(t, "BTC", list[1].Ticker)

	require.NoError(t, s.DeleteInstrument(ctx, "BTC"))
	assert.ErrorIs(t, s.DeleteInstrument(ctx, "RUB"), types.ErrValidation)
}

func TestDeleteUserReleasesNothingForOthers(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, err := s.Register(ctx, "alice")
	require.NoError(t, err)
	bob, err := s.Register(ctx, "bobby")
	require.NoError(t, err)
	_, err = s.CreateInstrument(ctx, "Bitcoin", "BTC")
	require.NoError(t, err)

	require.NoError(t, s.Deposit(ctx, alice.ID, "RUB", 100))
	require.NoError(t, s.Deposit(ctx, bob.ID, "RUB", 100))

	_, err = s.engine.PlaceOrder(ctx, alice.ID, engine.PlaceRequest{
		Ticker: "BTC", Side: types.SideBuy, Type: types.OrderTypeLimit, Qty: 1, Price: 50,
	})
	require.NoError(t, err)

	deleted, err := s.DeleteUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, deleted.ID)

	_, err = s.UserByAPIKey(ctx, alice.APIKey)
	assert.ErrorIs(t, err, types.ErrUserNotFound)

	// Alice's resting bid must be gone from the book, not just her rows.
	snap, err := s.engine.Orderbook(ctx, "BTC", 10)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)

	balances, err := s.Balances(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balances["RUB"])

	_, err = s.DeleteUser(ctx, uuid.New())
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}
