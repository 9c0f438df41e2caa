package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/account"
	apitypes "github.com/openalpha/spotex/api/types"
	"github.com/openalpha/spotex/api/websocket"
	"github.com/openalpha/spotex/config"
	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
	"github.com/openalpha/spotex/types"
)

type testAPI struct {
	srv      *Server
	accounts *account.Service

	adminKey string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.Open(ledger.DriverSQLite, "file::memory:?_fk=1", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Bootstrap(ctx))

	log := zap.NewNop()
	col := metrics.NewCollector()
	hub := websocket.NewHub(log, col)
	eng := engine.New(store, log, col, hub)
	accounts := account.NewService(store, eng, log)
	require.NoError(t, accounts.EnsureQuoteInstrument(ctx))

	admin, err := accounts.CreateAdmin(ctx, "admin")
	require.NoError(t, err)

	cfg := &config.Config{
		ListenAddr:     ":0",
		AuthCacheTTL:   time.Minute,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
	return &testAPI{
		srv:      NewServer(cfg, eng, accounts, hub, col, log),
		accounts: accounts,
		adminKey: admin.APIKey,
	}
}

// do performs one request against the router, marshalling body as JSON when
// present and attaching the api key when non-empty.
func (a *testAPI) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set("Authorization", "TOKEN "+key)
	}
	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]any](t, rec)["detail"].(string)
}

// register creates a user over the API and returns their id and key.
func (a *testAPI) register(t *testing.T, name string) apitypes.UserResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/public/register", "", apitypes.RegisterRequest{Name: name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[apitypes.UserResponse](t, rec)
}

func (a *testAPI) createInstrument(t *testing.T, name, ticker string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/admin/instrument", a.adminKey,
		apitypes.InstrumentRequest{Name: name, Ticker: ticker})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (a *testAPI) deposit(t *testing.T, user apitypes.UserResponse, ticker string, amount int64) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/admin/balance/deposit", a.adminKey,
		apitypes.BalanceChangeRequest{UserID: user.ID, Ticker: ticker, Amount: amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (a *testAPI) placeOrder(t *testing.T, key string, req apitypes.OrderRequest) apitypes.PlaceOrderResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/order", key, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[apitypes.PlaceOrderResponse](t, rec)
}

func ptr(v int64) *int64 { return &v }

func TestRegisterAndAuth(t *testing.T) {
	a := newTestAPI(t)

	user := a.register(t, "alice")
	assert.NotEmpty(t, user.APIKey)
	assert.Equal(t, "USER", user.Role)

	t.Run("fresh user has zero cash balance", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/balance", user.APIKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		balances := decodeBody[map[string]int64](t, rec)
		assert.Equal(t, int64(0), balances[types.QuoteTicker])
	})

	t.Run("short name rejected", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/public/register", "", apitypes.RegisterRequest{Name: "ab"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing token prefix", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
		req.Header.Set("Authorization", "Bearer "+user.APIKey)
		rec := httptest.NewRecorder()
		a.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid authorization format", detail(t, rec))
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/balance", "key-bogus", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid API key", detail(t, rec))
	})

	t.Run("user blocked from admin surface", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/instrument", user.APIKey,
			apitypes.InstrumentRequest{Name: "Bitcoin", Ticker: "BTC"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Access denied: Admin rights required", detail(t, rec))
	})
}

func TestOrderFlow(t *testing.T) {
	a := newTestAPI(t)
	a.createInstrument(t, "Bitcoin", "BTC")

	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	a.deposit(t, alice, "RUB", 10_000)
	a.deposit(t, bob, "BTC", 5)

	sell := a.placeOrder(t, bob.APIKey, apitypes.OrderRequest{
		Direction: "SELL", Ticker: "BTC", Qty: 3, Price: ptr(100),
	})

	t.Run("resting ask visible in orderbook", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/public/orderbook/BTC", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decodeBody[engine.Snapshot](t, rec)
		require.Len(t, snap.Asks, 1)
		assert.Equal(t, int64(100), snap.Asks[0].Price)
		assert.Equal(t, int64(3), snap.Asks[0].Qty)
		assert.Empty(t, snap.Bids)
	})

	buy := a.placeOrder(t, alice.APIKey, apitypes.OrderRequest{
		Direction: "BUY", Ticker: "BTC", Qty: 2, Price: ptr(110),
	})

	t.Run("trade settled at maker price", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/public/transactions/BTC", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		trades := decodeBody[[]apitypes.TradeResponse](t, rec)
		require.Len(t, trades, 1)
		assert.Equal(t, int64(100), trades[0].Price)
		assert.Equal(t, int64(2), trades[0].Amount)

		rec = a.do(t, http.MethodGet, "/api/v1/balance", alice.APIKey, nil)
		balances := decodeBody[map[string]int64](t, rec)
		assert.Equal(t, int64(10_000-200), balances["RUB"])
		assert.Equal(t, int64(2), balances["BTC"])
	})

	t.Run("taker order fully executed", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/order/"+buy.OrderID.String(), alice.APIKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		o := decodeBody[apitypes.OrderResponse](t, rec)
		assert.Equal(t, "EXECUTED", o.Status)
		require.NotNil(t, o.Filled)
		assert.Equal(t, int64(2), *o.Filled)
	})

	t.Run("orders hidden from other users", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/order/"+buy.OrderID.String(), bob.APIKey, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("list includes both terminal and live orders", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/order", bob.APIKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		orders := decodeBody[[]apitypes.OrderResponse](t, rec)
		require.Len(t, orders, 1)
		assert.Equal(t, "PARTIALLY_EXECUTED", orders[0].Status)
	})

	t.Run("cancel releases the remainder", func(t *testing.T) {
		rec := a.do(t, http.MethodDelete, "/api/v1/order/"+sell.OrderID.String(), bob.APIKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodGet, "/api/v1/balance", bob.APIKey, nil)
		balances := decodeBody[map[string]int64](t, rec)
		assert.Equal(t, int64(3), balances["BTC"])
		assert.Equal(t, int64(200), balances["RUB"])
	})

	t.Run("cancel of cancelled order rejected", func(t *testing.T) {
		rec := a.do(t, http.MethodDelete, "/api/v1/order/"+sell.OrderID.String(), bob.APIKey, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Order cannot be cancelled", detail(t, rec))
	})
}

func TestPlaceOrderValidation(t *testing.T) {
	a := newTestAPI(t)
	a.createInstrument(t, "Bitcoin", "BTC")
	alice := a.register(t, "alice")
	a.deposit(t, alice, "RUB", 1_000)

	cases := []struct {
		name string
		req  apitypes.OrderRequest
		code int
	}{
		{"zero price", apitypes.OrderRequest{Direction: "BUY", Ticker: "BTC", Qty: 1, Price: ptr(0)}, http.StatusUnprocessableEntity},
		{"negative price", apitypes.OrderRequest{Direction: "SELL", Ticker: "BTC", Qty: 1, Price: ptr(-5)}, http.StatusUnprocessableEntity},
		{"zero qty", apitypes.OrderRequest{Direction: "BUY", Ticker: "BTC", Qty: 0, Price: ptr(10)}, http.StatusUnprocessableEntity},
		{"bad direction", apitypes.OrderRequest{Direction: "HOLD", Ticker: "BTC", Qty: 1, Price: ptr(10)}, http.StatusUnprocessableEntity},
		{"unknown ticker", apitypes.OrderRequest{Direction: "BUY", Ticker: "DOGE", Qty: 1, Price: ptr(10)}, http.StatusNotFound},
		{"market without liquidity", apitypes.OrderRequest{Direction: "BUY", Ticker: "BTC", Qty: 1}, http.StatusBadRequest},
		{"limit beyond funds", apitypes.OrderRequest{Direction: "BUY", Ticker: "BTC", Qty: 100, Price: ptr(100)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/v1/order", alice.APIKey, tc.req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminBalanceRoutes(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")

	a.deposit(t, alice, "RUB", 500)

	t.Run("withdraw within funds", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/balance/withdraw", a.adminKey,
			apitypes.BalanceChangeRequest{UserID: alice.ID, Ticker: "RUB", Amount: 200})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodGet, "/api/v1/balance", alice.APIKey, nil)
		assert.Equal(t, int64(300), decodeBody[map[string]int64](t, rec)["RUB"])
	})

	t.Run("overdraw rejected", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/balance/withdraw", a.adminKey,
			apitypes.BalanceChangeRequest{UserID: alice.ID, Ticker: "RUB", Amount: 1_000})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Not enough funds", detail(t, rec))
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/balance/deposit", a.adminKey,
			apitypes.BalanceChangeRequest{UserID: alice.ID, Ticker: "RUB", Amount: -5})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/balance/deposit", a.adminKey,
			apitypes.BalanceChangeRequest{UserID: alice.ID, Ticker: "ETH", Amount: 10})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Instrument not found", detail(t, rec))
	})
}

func TestInstrumentRoutes(t *testing.T) {
	a := newTestAPI(t)
	a.createInstrument(t, "Bitcoin", "BTC")

	t.Run("duplicate ticker conflicts", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/v1/admin/instrument", a.adminKey,
			apitypes.InstrumentRequest{Name: "Bitcoin again", Ticker: "BTC"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("catalogue lists cash first", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/public/instrument", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decodeBody[[]apitypes.InstrumentResponse](t, rec)
		require.Len(t, list, 2)
		assert.Equal(t, "RUB", list[0].Ticker)
		assert.Equal(t, "BTC", list[1].Ticker)
	})

	t.Run("delete cancels live orders", func(t *testing.T) {
		bob := a.register(t, "bobby")
		a.deposit(t, bob, "BTC", 4)
		a.placeOrder(t, bob.APIKey, apitypes.OrderRequest{Direction: "SELL", Ticker: "BTC", Qty: 4, Price: ptr(50)})

		rec := a.do(t, http.MethodDelete, "/api/v1/admin/instrument/BTC", a.adminKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodGet, "/api/v1/balance", bob.APIKey, nil)
		assert.NotContains(t, decodeBody[map[string]int64](t, rec), "BTC")

		rec = a.do(t, http.MethodGet, "/api/v1/public/orderbook/BTC", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cash instrument protected", func(t *testing.T) {
		rec := a.do(t, http.MethodDelete, "/api/v1/admin/instrument/RUB", a.adminKey, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestDeleteUserEvictsAuth(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")

	// Warm the auth cache.
	rec := a.do(t, http.MethodGet, "/api/v1/balance", alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/v1/admin/user/"+alice.ID.String(), a.adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeBody[apitypes.UserResponse](t, rec)
	assert.Equal(t, alice.ID, deleted.ID)

	rec = a.do(t, http.MethodGet, "/api/v1/balance", alice.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/v1/admin/user/"+alice.ID.String(), a.adminKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmptyMarketDataRoutes(t *testing.T) {
	a := newTestAPI(t)
	a.createInstrument(t, "Bitcoin", "BTC")

	rec := a.do(t, http.MethodGet, "/api/v1/public/orderbook/BTC?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[engine.Snapshot](t, rec)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)

	rec = a.do(t, http.MethodGet, "/api/v1/public/transactions/BTC", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/public/orderbook/DOGE", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, fmt.Sprintf("{%q:%q}\n", "detail", "Instrument not found"), rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	store, err := ledger.Open(ledger.DriverSQLite, "file::memory:?_fk=1", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Bootstrap(context.Background()))

	log := zap.NewNop()
	col := metrics.NewCollector()
	hub := websocket.NewHub(log, col)
	eng := engine.New(store, log, col, hub)
	accounts := account.NewService(store, eng, log)
	require.NoError(t, accounts.EnsureQuoteInstrument(context.Background()))

	cfg := &config.Config{AuthCacheTTL: time.Minute, RateLimitRPS: 1, RateLimitBurst: 2}
	srv := NewServer(cfg, eng, accounts, hub, col, log)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/instrument", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
