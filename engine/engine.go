// Package engine admits, matches and settles orders. One placement runs as a
// single ledger transaction under a per-instrument mutex: admission checks,
// the matching loop and settlement all commit atomically, and the in-memory
// book is only touched after the commit, while the mutex is still held. A
// rolled-back placement therefore leaves no trace in either the ledger or
// the book.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openalpha/spotex/book"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
)

// snapshotDepth is how many levels depth events carry.
const snapshotDepth = 20

// TradeEvent is published for every executed fill.
type TradeEvent struct {
	Ticker    string    `json:"ticker"`
	Qty       int64     `json:"qty"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// DepthEvent is published after every book mutation.
type DepthEvent struct {
	Ticker    string       `json:"ticker"`
	Bids      []book.Level `json:"bid_levels"`
	Asks      []book.Level `json:"ask_levels"`
	Timestamp time.Time    `json:"timestamp"`
}

// Feed receives market-data events after commit. Implementations must not
// block: publishing happens while the instrument lock is held.
type Feed interface {
	PublishTrade(TradeEvent)
	PublishDepth(DepthEvent)
}

// MultiFeed fans events out to several feeds.
type MultiFeed []Feed

func (m MultiFeed) PublishTrade(ev TradeEvent) {
	for _, f := range m {
		f.PublishTrade(ev)
	}
}

func (m MultiFeed) PublishDepth(ev DepthEvent) {
	for _, f := range m {
		f.PublishDepth(ev)
	}
}

// Engine coordinates the ledger, the books and the market-data feed.
type Engine struct {
	store *ledger.Store
	books *book.Set
	log   *zap.Logger
	col   *metrics.Collector
	feed  Feed

	seq atomic.Uint64

	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// New creates an engine. feed may be nil.
func New(store *ledger.Store, log *zap.Logger, col *metrics.Collector, feed Feed) *Engine {
	return &Engine{
		store: store,
		books: book.NewSet(),
		log:   log.Named("engine"),
		col:   col,
		feed:  feed,
		locks: make(map[string]*sync.Mutex),
	}
}

// Books exposes the book set for read paths.
func (e *Engine) Books() *book.Set {
	return e.books
}

// instrumentLock returns the mutex serializing all order flow for a ticker.
func (e *Engine) instrumentLock(ticker string) *sync.Mutex {
	e.mu.RLock()
	m, ok := e.locks[ticker]
	e.mu.RUnlock()
	if ok {
		return m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.locks[ticker]; ok {
		return m
	}
	m = &sync.Mutex{}
	e.locks[ticker] = m
	return m
}

// nextSeq returns the next admission sequence number. Callers must hold the
// instrument lock, which makes book order equal to commit order.
func (e *Engine) nextSeq() uint64 {
	return e.seq.Add(1)
}

func (e *Engine) now() time.Time {
	return time.Now().UTC()
}

// publishDepth pushes the current depth snapshot and refreshes book gauges.
func (e *Engine) publishDepth(bk *book.Book) {
	bids, asks := bk.Depth(snapshotDepth)

	var bestBid, bestAsk int64
	if len(bids) > 0 {
		bestBid = bids[0].Price
	}
	if len(asks) > 0 {
		bestAsk = asks[0].Price
	}
	nBids, nAsks := bk.Len()
	e.col.UpdateBook(bk.Ticker(), nBids, nAsks, bestBid, bestAsk)

	if e.feed != nil {
		e.feed.PublishDepth(DepthEvent{
			Ticker:    bk.Ticker(),
			Bids:      bids,
			Asks:      asks,
			Timestamp: e.now(),
		})
	}
}

// publishTrades pushes trade events and bumps trade counters.
func (e *Engine) publishTrades(ticker string, events []TradeEvent) {
	for _, ev := range events {
		e.col.RecordTrade(ticker, ev.Qty, ev.Qty*ev.Price)
		if e.feed != nil {
			e.feed.PublishTrade(ev)
		}
	}
}
