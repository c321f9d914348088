package book

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"orderbook/internal/application/service/aggregator"
	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/domain/interfaces"
	"orderbook/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoConnectors = errors.New("no venue connectors configured")
	ErrEmptyPair    = errors.New("market pair is empty")
)

// Connector opens the order book stream of one venue for a market pair.
type Connector interface {
	ID() domain.ExchangeID
	Connect(ctx context.Context, pair string) (domain.Exchange[domain.OrderBook], error)
}

// Config tunes the service.
type Config struct {
	Pair                 string
	ExcludeClosedSources bool
}

// Service opens consolidated summary streams over a fixed set of venues.
type Service struct {
	connectors []Connector
	cfg        Config
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

func NewService(connectors []Connector, cfg Config, logger *logrus.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg.Pair = strings.ToLower(strings.TrimSpace(cfg.Pair))
	return &Service{
		connectors: connectors,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
}

// Pair returns the normalised market pair.
func (s *Service) Pair() string {
	return s.cfg.Pair
}

// Venues lists the connectors in merge priority order.
func (s *Service) Venues() []domain.ExchangeID {
	ids := make([]domain.ExchangeID, 0, len(s.connectors))
	for _, c := range s.connectors {
		ids = append(ids, c.ID())
	}
	return ids
}

// Open connects every venue concurrently and returns a stream of summaries,
// one per accepted venue update. When any venue fails to connect the venues
// that did connect are closed again and the error is returned. Closing the
// returned connection tears down every venue.
func (s *Service) Open(ctx context.Context) (domain.Exchange[domain.Summary], error) {
	if len(s.connectors) == 0 {
		return domain.Exchange[domain.Summary]{}, ErrNoConnectors
	}
	if s.cfg.Pair == "" {
		return domain.Exchange[domain.Summary]{}, ErrEmptyPair
	}

	exchanges, err := s.connectAll(ctx)
	if err != nil {
		return domain.Exchange[domain.Summary]{}, err
	}

	opts := []aggregator.Option{
		aggregator.WithLogger(s.logger.WithField("pair", s.cfg.Pair)),
		aggregator.WithMetrics(s.metrics),
	}
	if s.cfg.ExcludeClosedSources {
		opts = append(opts, aggregator.WithExcludeOnClose())
	}
	agg, err := aggregator.Build(exchanges, opts...)
	if err != nil {
		s.closeAll(ctx, exchanges)
		return domain.Exchange[domain.Summary]{}, fmt.Errorf("build aggregator: %w", err)
	}

	var (
		done     = make(chan struct{})
		doneOnce sync.Once
		out      = make(chan domain.Summary)
	)
	go func() {
		defer close(out)
		for item := range agg.Stream {
			select {
			case out <- domain.NewSummary(item.Book, item.Sources):
			case <-done:
				return
			}
		}
	}()

	conn := aggregator.NewMultiConn([]interfaces.Connection{
		aggregator.ConnFunc(func(context.Context) error {
			doneOnce.Do(func() { close(done) })
			return nil
		}),
		agg.Conn,
	}, s.logger.WithField("component", "book"), s.metrics)

	return domain.Exchange[domain.Summary]{
		ID:     domain.Aggregate,
		Conn:   conn,
		Stream: out,
	}, nil
}

func (s *Service) connectAll(ctx context.Context) ([]domain.Exchange[domain.OrderBook], error) {
	exchanges := make([]domain.Exchange[domain.OrderBook], len(s.connectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.connectors {
		g.Go(func() error {
			ex, err := c.Connect(gctx, s.cfg.Pair)
			if err != nil {
				return fmt.Errorf("connect %s: %w", c.ID(), err)
			}
			exchanges[i] = ex
			s.logger.WithFields(logrus.Fields{
				"exchange": c.ID(),
				"pair":     s.cfg.Pair,
			}).Info("venue connected")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.closeAll(ctx, exchanges)
		return nil, err
	}
	return exchanges, nil
}

func (s *Service) closeAll(ctx context.Context, exchanges []domain.Exchange[domain.OrderBook]) {
	conns := make([]interfaces.Connection, 0, len(exchanges))
	for _, ex := range exchanges {
		if ex.Conn != nil {
			conns = append(conns, ex.Conn)
		}
	}
	_ = aggregator.NewMultiConn(conns, s.logger.WithField("component", "book"), s.metrics).Close(context.WithoutCancel(ctx))
}
