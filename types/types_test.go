package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFill(t *testing.T) {
	o := &Order{Qty: 10, Status: OrderStatusNew}

	require.NoError(t, o.Fill(4))
	assert.Equal(t, OrderStatusPartiallyExecuted, o.Status)
	assert.Equal(t, int64(6), o.Remaining())
	assert.True(t, o.Active())

	require.NoError(t, o.Fill(6))
	assert.Equal(t, OrderStatusExecuted, o.Status)
	assert.Equal(t, int64(0), o.Remaining())
	assert.False(t, o.Active())

	err := o.Fill(1)
	assert.Error(t, err)
}

func TestOrderFillRejectsBadQty(t *testing.T) {
	o := &Order{Qty: 5, Status: OrderStatusNew}
	assert.Error(t, o.Fill(0))
	assert.Error(t, o.Fill(-1))
	assert.Error(t, o.Fill(6))
	assert.Equal(t, OrderStatusNew, o.Status)
	assert.Equal(t, int64(0), o.Filled)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderStatusNew.Terminal())
	assert.False(t, OrderStatusPartiallyExecuted.Terminal())
	assert.True(t, OrderStatusExecuted.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	_, err = ParseSide("buy")
	assert.Error(t, err)
	_, err = ParseSide("")
	assert.Error(t, err)
}

func TestSideJSON(t *testing.T) {
	b, err := json.Marshal(SideSell)
	require.NoError(t, err)
	assert.Equal(t, `"SELL"`, string(b))

	var s Side
	require.NoError(t, json.Unmarshal([]byte(`"BUY"`), &s))
	assert.Equal(t, SideBuy, s)

	assert.Error(t, json.Unmarshal([]byte(`"HOLD"`), &s))
}

func TestValidTicker(t *testing.T) {
	cases := []struct {
		ticker string
		ok     bool
	}{
		{"RUB", true},
		{"BTC", true},
		{"AB", true},
		{"ABCDEFGHIJ", true},
		{"A", false},
		{"ABCDEFGHIJK", false},
		{"btc", false},
		{"BTC1", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.ticker, func(t *testing.T) {
			assert.Equal(t, tc.ok, ValidTicker(tc.ticker))
		})
	}
}

func TestBalanceAvailable(t *testing.T) {
	b := Balance{Amount: 100, Reserved: 30}
	assert.Equal(t, int64(70), b.Available())
}
