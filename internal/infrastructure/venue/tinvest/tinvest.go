package tinvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/domain/interfaces"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"
)

const DefaultEndpoint = "invest-public-api.tinkoff.ru:443"

var ErrNilOrderBook = errors.New("order book payload is nil")

// Config holds the API credentials. Instrument, when set, is subscribed
// instead of the market pair passed to Connect.
type Config struct {
	Token              string
	Endpoint           string
	AppName            string
	InsecureSkipVerify bool
	Instrument         string
}

// Connector streams order books from the T-Invest market data stream.
type Connector struct {
	cfg    Config
	logger *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) *Connector {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Connector{cfg: cfg, logger: logger}
}

func (c *Connector) ID() domain.ExchangeID {
	return domain.TInvest
}

func (c *Connector) Connect(ctx context.Context, pair string) (domain.Exchange[domain.OrderBook], error) {
	instrument := strings.TrimSpace(c.cfg.Instrument)
	if instrument == "" {
		instrument = pair
	}
	logger := c.logger.WithFields(logrus.Fields{
		"component":  "venue",
		"exchange":   domain.TInvest,
		"instrument": instrument,
	})

	// the client outlives the connect call, it is stopped by Close
	clientCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	client, err := investgo.NewClient(clientCtx, investgo.Config{
		EndPoint:           c.cfg.Endpoint,
		Token:              c.cfg.Token,
		AppName:            c.cfg.AppName,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
	}, c.logger)
	if err != nil {
		cancel()
		return domain.Exchange[domain.OrderBook]{}, fmt.Errorf("create invest api client: %w", err)
	}

	stream, err := client.NewMarketDataStreamClient().MarketDataStream()
	if err != nil {
		_ = client.Stop()
		cancel()
		return domain.Exchange[domain.OrderBook]{}, fmt.Errorf("create market data stream: %w", err)
	}

	books, err := stream.SubscribeOrderBook([]string{instrument}, domain.Depth)
	if err != nil {
		stream.Stop()
		_ = client.Stop()
		cancel()
		return domain.Exchange[domain.OrderBook]{}, fmt.Errorf("subscribe order books: %w", err)
	}

	conn := &streamConn{
		done: make(chan struct{}),
		stop: func() error {
			stream.Stop()
			defer cancel()
			return client.Stop()
		},
	}

	listening := make(chan struct{})
	go func() {
		defer close(listening)
		if err := stream.Listen(); err != nil {
			logger.WithError(err).Warn("market data stream stopped")
		}
	}()

	out := make(chan domain.OrderBook)
	go pump(books, out, conn.done, listening, logger)

	return domain.Exchange[domain.OrderBook]{
		ID:     domain.TInvest,
		Conn:   conn,
		Stream: out,
	}, nil
}

func pump(books <-chan *pb.OrderBook, out chan<- domain.OrderBook, done, listening <-chan struct{}, logger *logrus.Entry) {
	defer close(out)
	for {
		select {
		case <-done:
			return
		case <-listening:
			return
		case msg, ok := <-books:
			if !ok {
				return
			}
			book, err := Convert(msg)
			if err != nil {
				logger.WithError(err).Warn("skip order book")
				continue
			}
			select {
			case out <- book:
			case <-done:
				return
			}
		}
	}
}

// Convert maps an API order book onto a fixed depth book. Short sides are
// padded with sentinel levels.
func Convert(msg *pb.OrderBook) (domain.OrderBook, error) {
	if msg == nil {
		return domain.OrderBook{}, ErrNilOrderBook
	}
	book := domain.NewOrderBook()
	fill(book.Bid[:], msg.GetBids())
	fill(book.Ask[:], msg.GetAsks())
	return book, nil
}

func fill(levels []domain.PriceLevel, orders []*pb.Order) {
	for i, order := range orders {
		if i == len(levels) {
			return
		}
		levels[i] = domain.PriceLevel{
			Price:  quotationToFloat(order.GetPrice()),
			Amount: float64(order.GetQuantity()),
		}
	}
}

func quotationToFloat(q *pb.Quotation) float64 {
	if q == nil {
		return 0
	}
	return q.ToFloat()
}

type streamConn struct {
	once sync.Once
	done chan struct{}
	stop func() error
}

var _ interfaces.Connection = (*streamConn)(nil)

func (c *streamConn) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		if stopErr := c.stop(); stopErr != nil {
			err = fmt.Errorf("stop invest api client: %w", stopErr)
		}
	})
	return err
}
