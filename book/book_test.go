package book

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/spotex/types"
)

func newEntry(seq uint64, side types.Side, price, qty int64) Entry {
	return Entry{
		OrderID: uuid.New(),
		UserID:  uuid.New(),
		Side:    side,
		Price:   price,
		Qty:     qty,
		Seq:     seq,
	}
}

func TestAddAndBest(t *testing.T) {
	b := New("BTC")

	b.Add(newEntry(1, types.SideBuy, 100, 5))
	b.Add(newEntry(2, types.SideBuy, 102, 3))
	b.Add(newEntry(3, types.SideSell, 110, 4))
	b.Add(newEntry(4, types.SideSell, 108, 2))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Level{Price: 102, Qty: 3}, bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, Level{Price: 108, Qty: 2}, ask)

	bids, asks := b.Len()
	assert.Equal(t, 2, bids)
	assert.Equal(t, 2, asks)
}

func TestRemoveCleansEmptyLevel(t *testing.T) {
	b := New("BTC")
	e := newEntry(1, types.SideSell, 100, 5)
	b.Add(e)

	require.True(t, b.Contains(e.OrderID))
	require.True(t, b.Remove(e.OrderID))
	assert.False(t, b.Contains(e.OrderID))
	assert.False(t, b.Remove(e.OrderID))

	_, ok := b.BestAsk()
	assert.False(t, ok)
}

func TestDepthAggregation(t *testing.T) {
	b := New("BTC")
	b.Add(newEntry(1, types.SideBuy, 100, 5))
	b.Add(newEntry(2, types.SideBuy, 100, 7))
	b.Add(newEntry(3, types.SideBuy, 99, 1))
	b.Add(newEntry(4, types.SideSell, 101, 2))
	b.Add(newEntry(5, types.SideSell, 103, 9))
	b.Add(newEntry(6, types.SideSell, 103, 1))

	bids, asks := b.Depth(10)
	assert.Equal(t, []Level{{Price: 100, Qty: 12}, {Price: 99, Qty: 1}}, bids)
	assert.Equal(t, []Level{{Price: 101, Qty: 2}, {Price: 103, Qty: 10}}, asks)

	bids, asks = b.Depth(1)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 1)
	assert.Equal(t, int64(100), bids[0].Price)
	assert.Equal(t, int64(101), asks[0].Price)
}

func TestEachCrossingFIFO(t *testing.T) {
	b := New("BTC")
	first := newEntry(1, types.SideSell, 100, 5)
	second := newEntry(2, types.SideSell, 100, 5)
	cheaper := newEntry(3, types.SideSell, 99, 5)
	b.Add(first)
	b.Add(second)
	b.Add(cheaper)

	var visited []uuid.UUID
	b.EachCrossing(types.SideBuy, 100, false, func(e Entry) bool {
		visited = append(visited, e.OrderID)
		return true
	})

	// Best price first, then admission order within the level.
	require.Len(t, visited, 3)
	assert.Equal(t, cheaper.OrderID, visited[0])
	assert.Equal(t, first.OrderID, visited[1])
	assert.Equal(t, second.OrderID, visited[2])
}

func TestEachCrossingPriceBound(t *testing.T) {
	b := New("BTC")
	b.Add(newEntry(1, types.SideSell, 100, 1))
	b.Add(newEntry(2, types.SideSell, 105, 1))
	b.Add(newEntry(3, types.SideSell, 110, 1))

	var prices []int64
	b.EachCrossing(types.SideBuy, 105, false, func(e Entry) bool {
		prices = append(prices, e.Price)
		return true
	})
	assert.Equal(t, []int64{100, 105}, prices)

	prices = nil
	b.EachCrossing(types.SideBuy, 0, true, func(e Entry) bool {
		prices = append(prices, e.Price)
		return true
	})
	assert.Equal(t, []int64{100, 105, 110}, prices)
}

func TestEachCrossingSellSide(t *testing.T) {
	b := New("BTC")
	b.Add(newEntry(1, types.SideBuy, 100, 1))
	b.Add(newEntry(2, types.SideBuy, 98, 1))
	b.Add(newEntry(3, types.SideBuy, 95, 1))

	var prices []int64
	b.EachCrossing(types.SideSell, 98, false, func(e Entry) bool {
		prices = append(prices, e.Price)
		return true
	})
	assert.Equal(t, []int64{100, 98}, prices)
}

func TestMarketBuyCost(t *testing.T) {
	b := New("BTC")
	b.Add(newEntry(1, types.SideSell, 100, 3))
	b.Add(newEntry(2, types.SideSell, 105, 2))

	cost, ok := b.MarketBuyCost(4)
	require.True(t, ok)
	assert.Equal(t, int64(3*100+1*105), cost)

	cost, ok = b.MarketBuyCost(5)
	require.True(t, ok)
	assert.Equal(t, int64(3*100+2*105), cost)

	_, ok = b.MarketBuyCost(6)
	assert.False(t, ok)

	empty := New("ETH")
	_, ok = empty.MarketBuyCost(1)
	assert.False(t, ok)
}

func TestMarketSellable(t *testing.T) {
	b := New("BTC")
	b.Add(newEntry(1, types.SideBuy, 100, 3))
	b.Add(newEntry(2, types.SideBuy, 95, 1))

	assert.True(t, b.MarketSellable(4))
	assert.False(t, b.MarketSellable(5))
	assert.False(t, New("ETH").MarketSellable(1))
}

func TestFill(t *testing.T) {
	b := New("BTC")
	e := newEntry(1, types.SideSell, 100, 10)
	b.Add(e)

	remaining := b.Fill(e.OrderID, 4)
	assert.Equal(t, int64(6), remaining)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(6), ask.Qty)

	remaining = b.Fill(e.OrderID, 6)
	assert.Equal(t, int64(0), remaining)
	assert.False(t, b.Contains(e.OrderID))

	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestPartialFillKeepsQueuePosition(t *testing.T) {
	b := New("BTC")
	first := newEntry(1, types.SideSell, 100, 10)
	second := newEntry(2, types.SideSell, 100, 10)
	b.Add(first)
	b.Add(second)

	b.Fill(first.OrderID, 4)

	var visited []uuid.UUID
	b.EachCrossing(types.SideBuy, 100, false, func(e Entry) bool {
		visited = append(visited, e.OrderID)
		return true
	})
	require.Len(t, visited, 2)
	assert.Equal(t, first.OrderID, visited[0])
}

func TestSet(t *testing.T) {
	s := NewSet()

	_, ok := s.Get("BTC")
	assert.False(t, ok)

	b1 := s.GetOrCreate("BTC")
	b2 := s.GetOrCreate("BTC")
	assert.Same(t, b1, b2)

	s.GetOrCreate("ETH")
	assert.Equal(t, []string{"BTC", "ETH"}, s.Tickers())

	s.Drop("BTC")
	_, ok = s.Get("BTC")
	assert.False(t, ok)
}
