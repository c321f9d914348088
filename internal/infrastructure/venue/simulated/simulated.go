package simulated

import (
	"context"
	"math/rand"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/domain/interfaces"
)

const (
	DefaultInterval = 250 * time.Millisecond

	startMid = 0.075
	tick     = 0.000001
)

// Connector emits a random walk book at a fixed interval. The same seed
// yields the same sequence of books.
type Connector struct {
	interval time.Duration
	seed     int64
}

func New(interval time.Duration, seed int64) *Connector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Connector{interval: interval, seed: seed}
}

func (c *Connector) ID() domain.ExchangeID {
	return domain.Simulated
}

func (c *Connector) Connect(ctx context.Context, pair string) (domain.Exchange[domain.OrderBook], error) {
	if err := ctx.Err(); err != nil {
		return domain.Exchange[domain.OrderBook]{}, err
	}
	conn := &tickerConn{done: make(chan struct{})}
	out := make(chan domain.OrderBook)
	go c.run(out, conn.done)
	return domain.Exchange[domain.OrderBook]{
		ID:     domain.Simulated,
		Conn:   conn,
		Stream: out,
	}, nil
}

func (c *Connector) run(out chan<- domain.OrderBook, done <-chan struct{}) {
	defer close(out)

	walk := NewWalk(c.seed)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			select {
			case out <- walk.Next():
			case <-done:
				return
			}
		}
	}
}

// Walk generates consecutive books around a drifting mid price.
type Walk struct {
	rnd *rand.Rand
	mid float64
}

func NewWalk(seed int64) *Walk {
	return &Walk{rnd: rand.New(rand.NewSource(seed)), mid: startMid}
}

// Next moves the mid price by up to ten ticks and lays out Depth levels on
// each side, one to three ticks apart.
func (w *Walk) Next() domain.OrderBook {
	w.mid += float64(w.rnd.Intn(21)-10) * tick
	if w.mid < 100*tick {
		w.mid = 100 * tick
	}

	var book domain.OrderBook
	bid, ask := w.mid-tick, w.mid+tick
	for i := 0; i < domain.Depth; i++ {
		book.Bid[i] = domain.PriceLevel{Price: bid, Amount: w.amount()}
		book.Ask[i] = domain.PriceLevel{Price: ask, Amount: w.amount()}
		bid -= float64(1+w.rnd.Intn(3)) * tick
		ask += float64(1+w.rnd.Intn(3)) * tick
	}
	return book
}

func (w *Walk) amount() float64 {
	return float64(1+w.rnd.Intn(2000)) / 100
}

type tickerConn struct {
	once sync.Once
	done chan struct{}
}

var _ interfaces.Connection = (*tickerConn)(nil)

func (c *tickerConn) Close(ctx context.Context) error {
	c.once.Do(func() { close(c.done) })
	return nil
}
