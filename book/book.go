package book

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/huandu/skiplist"

	"github.com/openalpha/spotex/types"
)

const btreeDegree = 32 // B-tree degree, affects node size and cache efficiency

// Entry is the book's view of a resting limit order. Seq is the admission
// sequence number; together with the order ID it forms the FIFO key within a
// price level.
type Entry struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Side    types.Side
	Price   int64
	Qty     int64
	Filled  int64
	Seq     uint64
}

// Remaining returns the unfilled quantity.
func (e Entry) Remaining() int64 {
	return e.Qty - e.Filled
}

// Level is an aggregated price level as exposed in depth snapshots.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// entryKey orders entries within a price level: admission sequence first,
// order ID as the total tie-break.
type entryKey struct {
	seq uint64
	id  uuid.UUID
}

// entryKeyCmp implements skiplist.Comparable for entryKey ascending.
type entryKeyCmp struct{}

func (entryKeyCmp) Compare(lhs, rhs interface{}) int {
	l := lhs.(entryKey)
	r := rhs.(entryKey)
	if l.seq < r.seq {
		return -1
	}
	if l.seq > r.seq {
		return 1
	}
	return bytes.Compare(l.id[:], r.id[:])
}

func (entryKeyCmp) CalcScore(key interface{}) float64 {
	return float64(key.(entryKey).seq)
}

// priceLevel holds the FIFO queue of entries resting at one price.
type priceLevel struct {
	price   int64
	qty     int64 // sum of remaining quantities
	entries *skiplist.SkipList
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{
		price:   price,
		entries: skiplist.New(entryKeyCmp{}),
	}
}

func (pl *priceLevel) add(e *Entry) {
	pl.entries.Set(entryKey{seq: e.Seq, id: e.OrderID}, e)
	pl.qty += e.Remaining()
}

func (pl *priceLevel) remove(e *Entry) {
	if pl.entries.Remove(entryKey{seq: e.Seq, id: e.OrderID}) != nil {
		pl.qty -= e.Remaining()
	}
}

func (pl *priceLevel) empty() bool {
	return pl.entries.Len() == 0
}

// each visits entries in FIFO order until fn returns false.
func (pl *priceLevel) each(fn func(*Entry) bool) bool {
	for elem := pl.entries.Front(); elem != nil; elem = elem.Next() {
		if !fn(elem.Value.(*Entry)) {
			return false
		}
	}
	return true
}

// levelItem wraps a price level for use in btree, ascending by price.
type levelItem struct {
	price int64
	level *priceLevel
}

func (a *levelItem) Less(b btree.Item) bool {
	return a.price < b.(*levelItem).price
}

// bookSide is one side of the book: a btree of price levels plus the
// iteration direction. Bids iterate descending, asks ascending.
type bookSide struct {
	tree *btree.BTree
	desc bool
}

func newBookSide(desc bool) *bookSide {
	return &bookSide{
		tree: btree.New(btreeDegree),
		desc: desc,
	}
}

func (s *bookSide) get(price int64) *priceLevel {
	item := s.tree.Get(&levelItem{price: price})
	if item == nil {
		return nil
	}
	return item.(*levelItem).level
}

func (s *bookSide) getOrCreate(price int64) *priceLevel {
	level := s.get(price)
	if level == nil {
		level = newPriceLevel(price)
		s.tree.ReplaceOrInsert(&levelItem{price: price, level: level})
	}
	return level
}

func (s *bookSide) remove(price int64) {
	s.tree.Delete(&levelItem{price: price})
}

// best returns the top-of-book level: Max for bids, Min for asks.
func (s *bookSide) best() *priceLevel {
	var item btree.Item
	if s.desc {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*levelItem).level
}

// iterate visits price levels best-first until fn returns false.
func (s *bookSide) iterate(fn func(*priceLevel) bool) {
	wrapped := func(item btree.Item) bool {
		return fn(item.(*levelItem).level)
	}
	if s.desc {
		s.tree.Descend(wrapped)
	} else {
		s.tree.Ascend(wrapped)
	}
}

// Book is the in-memory order book for one instrument. It is a cache over
// the ledger: authoritative only for matching order, rebuildable at any time
// from live limit orders. Readers take the read lock; all mutation happens
// under the instrument's placement serialization, so snapshots are never
// torn and never observe a half-applied match.
type Book struct {
	mu     sync.RWMutex
	ticker string
	bids   *bookSide
	asks   *bookSide
	orders map[uuid.UUID]*Entry
}

// New creates an empty book for ticker.
func New(ticker string) *Book {
	return &Book{
		ticker: ticker,
		bids:   newBookSide(true),
		asks:   newBookSide(false),
		orders: make(map[uuid.UUID]*Entry),
	}
}

// Ticker returns the instrument ticker this book serves.
func (b *Book) Ticker() string {
	return b.ticker
}

func (b *Book) side(s types.Side) *bookSide {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

// Add inserts a resting entry.
func (b *Book) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := e
	b.side(e.Side).getOrCreate(e.Price).add(&entry)
	b.orders[e.OrderID] = &entry
}

// Remove deletes the entry for orderID. It reports whether the entry was
// present.
func (b *Book) Remove(orderID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.orders[orderID]
	if !ok {
		return false
	}
	side := b.side(entry.Side)
	level := side.get(entry.Price)
	if level != nil {
		level.remove(entry)
		if level.empty() {
			side.remove(entry.Price)
		}
	}
	delete(b.orders, orderID)
	return true
}

// Fill advances an entry's filled quantity and drops it once exhausted.
// It returns the remaining quantity after the fill.
func (b *Book) Fill(orderID uuid.UUID, qty int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.orders[orderID]
	if !ok {
		return 0
	}
	if qty > entry.Remaining() {
		qty = entry.Remaining()
	}
	entry.Filled += qty

	side := b.side(entry.Side)
	level := side.get(entry.Price)
	if level != nil {
		level.qty -= qty
	}
	if entry.Remaining() == 0 {
		if level != nil {
			level.remove(entry)
			if level.empty() {
				side.remove(entry.Price)
			}
		}
		delete(b.orders, orderID)
		return 0
	}
	return entry.Remaining()
}

// Contains reports whether orderID rests in the book.
func (b *Book) Contains(orderID uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.orders[orderID]
	return ok
}

// Len returns the number of resting orders per side.
func (b *Book) Len() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.orders {
		if e.Side == types.SideBuy {
			bids++
		} else {
			asks++
		}
	}
	return bids, asks
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	level := b.bids.best()
	if level == nil {
		return Level{}, false
	}
	return Level{Price: level.price, Qty: level.qty}, true
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	level := b.asks.best()
	if level == nil {
		return Level{}, false
	}
	return Level{Price: level.price, Qty: level.qty}, true
}

// Depth returns up to limit aggregated levels per side: bids descending,
// asks ascending.
func (b *Book) Depth(limit int) (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = make([]Level, 0, limit)
	b.bids.iterate(func(level *priceLevel) bool {
		if len(bids) >= limit {
			return false
		}
		bids = append(bids, Level{Price: level.price, Qty: level.qty})
		return true
	})

	asks = make([]Level, 0, limit)
	b.asks.iterate(func(level *priceLevel) bool {
		if len(asks) >= limit {
			return false
		}
		asks = append(asks, Level{Price: level.price, Qty: level.qty})
		return true
	})
	return bids, asks
}

// MarketBuyCost walks the asks in matching order and returns the total cost
// of buying qty. ok is false when the book cannot cover the quantity.
func (b *Book) MarketBuyCost(qty int64) (cost int64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	remaining := qty
	b.asks.iterate(func(level *priceLevel) bool {
		fill := level.qty
		if fill > remaining {
			fill = remaining
		}
		cost += fill * level.price
		remaining -= fill
		return remaining > 0
	})
	return cost, remaining == 0
}

// MarketSellable reports whether the bids can absorb qty.
func (b *Book) MarketSellable(qty int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	remaining := qty
	b.bids.iterate(func(level *priceLevel) bool {
		remaining -= level.qty
		return remaining > 0
	})
	return remaining <= 0
}

// EachCrossing visits entries on the side opposite takerSide that a taker at
// limitPrice crosses, best price first and FIFO within a level. Market takers
// pass market=true and cross every level. Visiting stops when fn returns
// false. The book is not mutated; callers apply fills afterwards.
func (b *Book) EachCrossing(takerSide types.Side, limitPrice int64, market bool, fn func(Entry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.side(takerSide.Opposite()).iterate(func(level *priceLevel) bool {
		if !market && !crosses(takerSide, limitPrice, level.price) {
			return false
		}
		return level.each(func(e *Entry) bool {
			return fn(*e)
		})
	})
}

// crosses reports whether a taker at limitPrice matches a maker level.
func crosses(takerSide types.Side, limitPrice, levelPrice int64) bool {
	if takerSide == types.SideBuy {
		return levelPrice <= limitPrice
	}
	return levelPrice >= limitPrice
}
