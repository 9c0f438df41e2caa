// Package projection mirrors market data into Redis so read-heavy consumers
// can poll the tape and depth snapshots without touching the matching path.
// The publisher is an engine feed: events are queued and written by a
// background worker, and a circuit breaker keeps a dead Redis from piling up
// timed-out writes.
package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/engine"
)

const (
	tapeKeyPrefix  = "tape:"
	depthKeyPrefix = "depth:"

	tapeLength = 1000
	depthTTL   = time.Minute

	queueSize    = 1024
	writeTimeout = 2 * time.Second
)

type event struct {
	trade *engine.TradeEvent
	depth *engine.DepthEvent
}

// Publisher implements engine.Feed against Redis.
type Publisher struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
	queue   chan event
	done    chan struct{}
	log     *zap.Logger
}

// NewPublisher connects a publisher to addr. Call Run before use and Close
// to drain.
func NewPublisher(addr string, log *zap.Logger) *Publisher {
	log = log.Named("projection")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Publisher{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		breaker: breaker,
		queue:   make(chan event, queueSize),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Ping verifies the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Run consumes the queue until Close. Meant to run as a goroutine.
func (p *Publisher) Run() {
	for ev := range p.queue {
		p.write(ev)
	}
	close(p.done)
}

// Close stops the worker after the queued events are written.
func (p *Publisher) Close() error {
	close(p.queue)
	<-p.done
	return p.rdb.Close()
}

// PublishTrade implements engine.Feed. Non-blocking: when the queue is full
// the event is dropped, Redis is a projection and the ledger keeps the tape.
func (p *Publisher) PublishTrade(ev engine.TradeEvent) {
	p.offer(event{trade: &ev})
}

// PublishDepth implements engine.Feed.
func (p *Publisher) PublishDepth(ev engine.DepthEvent) {
	p.offer(event{depth: &ev})
}

// offer enqueues without blocking; on overflow the oldest queued event is
// discarded to make room.
func (p *Publisher) offer(ev event) {
	for {
		select {
		case p.queue <- ev:
			return
		default:
		}
		select {
		case <-p.queue:
			p.log.Warn("projection queue full, oldest event dropped")
		default:
		}
	}
}

func (p *Publisher) write(ev event) {
	_, err := p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		switch {
		case ev.trade != nil:
			return nil, p.writeTrade(ctx, *ev.trade)
		case ev.depth != nil:
			return nil, p.writeDepth(ctx, *ev.depth)
		}
		return nil, nil
	})
	if err != nil && err != gobreaker.ErrOpenState && err != gobreaker.ErrTooManyRequests {
		p.log.Warn("projection write failed", zap.Error(err))
	}
}

// writeTrade prepends the trade to the per-ticker tape list, capped at
// tapeLength entries.
func (p *Publisher) writeTrade(ctx context.Context, ev engine.TradeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	key := tapeKeyPrefix + ev.Ticker
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, tapeLength-1)
	_, err = pipe.Exec(ctx)
	return err
}

// writeDepth overwrites the per-ticker snapshot. The TTL lets stale snapshots
// expire when the exchange stops publishing.
func (p *Publisher) writeDepth(ctx context.Context, ev engine.DepthEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, depthKeyPrefix+ev.Ticker, data, depthTTL).Err()
}
