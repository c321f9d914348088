package aggregator

import (
	"context"
	"math"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/domain/interfaces"
	"orderbook/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Option configures Build.
type Option func(*options)

type options struct {
	logger         *logrus.Entry
	metrics        *metrics.Metrics
	excludeOnClose bool
}

// WithLogger sets the logger used by the pipeline and its composite connection.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records pipeline activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithExcludeOnClose resets a source to the sentinel book once its stream
// ends, instead of keeping its last snapshot in every later merge.
func WithExcludeOnClose() Option {
	return func(o *options) {
		o.excludeOnClose = true
	}
}

type tagged struct {
	index int
	book  domain.OrderBook
	ended bool
}

type pipeline struct {
	agg     *Aggregator
	in      <-chan tagged
	out     chan<- domain.Consolidated
	stop    <-chan struct{}
	opts    options
	pending int
}

// Build fans the streams of exchanges into one Aggregator and returns the
// consolidated handle. Every book that arrives, from whichever source is
// ready first, is applied and followed by exactly one consolidated book on
// the returned stream. The stream is closed once every source stream has
// ended or the returned connection is closed. Closing it stops reading from
// the sources and then closes their connections in order.
func Build(exchanges []domain.Exchange[domain.OrderBook], opts ...Option) (domain.Exchange[domain.Consolidated], error) {
	o := options{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithField("component", "aggregator")

	ids := make([]domain.ExchangeID, 0, len(exchanges))
	for _, ex := range exchanges {
		ids = append(ids, ex.ID)
	}
	agg, err := New(ids)
	if err != nil {
		return domain.Exchange[domain.Consolidated]{}, err
	}

	var (
		stop     = make(chan struct{})
		stopOnce sync.Once
		in       = make(chan tagged)
		out      = make(chan domain.Consolidated)
	)
	halt := ConnFunc(func(context.Context) error {
		stopOnce.Do(func() { close(stop) })
		return nil
	})

	var g errgroup.Group
	for i, ex := range exchanges {
		g.Go(func() error {
			forward(i, ex.Stream, in, stop)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(in)
	}()

	p := &pipeline{
		agg:     agg,
		in:      in,
		out:     out,
		stop:    stop,
		opts:    o,
		pending: len(exchanges),
	}
	go p.run()

	conns := make([]interfaces.Connection, 0, len(exchanges)+1)
	conns = append(conns, halt)
	for _, ex := range exchanges {
		conns = append(conns, ex.Conn)
	}

	return domain.Exchange[domain.Consolidated]{
		ID:     domain.Aggregate,
		Conn:   NewMultiConn(conns, o.logger, o.metrics),
		Stream: out,
	}, nil
}

// forward tags every book of one source with its slot index. It reports the
// end of the stream as a separate item so the consumer can react to it.
func forward(index int, stream <-chan domain.OrderBook, in chan<- tagged, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case book, ok := <-stream:
			item := tagged{index: index, book: book, ended: !ok}
			select {
			case in <- item:
			case <-stop:
				return
			}
			if !ok {
				return
			}
		}
	}
}

func (p *pipeline) run() {
	defer close(p.out)

	for {
		select {
		case <-p.stop:
			return
		case item, ok := <-p.in:
			if !ok {
				return
			}
			if item.ended {
				p.sourceEnded(item.index)
				continue
			}
			consolidated, ok := p.apply(item)
			if !ok {
				continue
			}
			select {
			case p.out <- consolidated:
			case <-p.stop:
				return
			}
		}
	}
}

func (p *pipeline) apply(item tagged) (domain.Consolidated, bool) {
	id := p.agg.ids[item.index]
	start := time.Now()
	if err := p.agg.Update(item.index, item.book); err != nil {
		p.opts.metrics.UpdateRejected(id.String())
		p.opts.logger.WithError(err).WithField("exchange", id).Warn("drop invalid order book")
		return domain.Consolidated{}, false
	}
	book, sources := p.agg.Aggregate()

	spread := book.Spread()
	if math.IsInf(spread, 0) {
		spread = 0
	}
	p.opts.metrics.SourceUpdated(id.String())
	p.opts.metrics.AggregateEmitted(spread, time.Since(start).Seconds())
	return domain.Consolidated{Book: book, Sources: sources}, true
}

func (p *pipeline) sourceEnded(index int) {
	id := p.agg.ids[index]
	p.pending--
	p.opts.metrics.SourceEnded(id.String())

	log := p.opts.logger.WithFields(logrus.Fields{
		"exchange": id,
		"active":   p.pending,
	})
	if p.opts.excludeOnClose {
		// index comes from Build, it is always in range
		_ = p.agg.Reset(index)
		log.Warn("source stream ended, excluded from consolidated book")
		return
	}
	log.Warn("source stream ended, last snapshot kept")
}
