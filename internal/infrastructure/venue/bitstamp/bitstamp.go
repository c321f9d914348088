package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/infrastructure/venue"

	"github.com/sirupsen/logrus"
)

const DefaultURL = "wss://ws.bitstamp.net"

// Connector subscribes to the live order book channel of a pair.
type Connector struct {
	url    string
	logger *logrus.Logger
}

func New(url string, logger *logrus.Logger) *Connector {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Connector{url: url, logger: logger}
}

func (c *Connector) ID() domain.ExchangeID {
	return domain.Bitstamp
}

type subscribeRequest struct {
	Event string `json:"event"`
	Data  struct {
		Channel string `json:"channel"`
	} `json:"data"`
}

func (c *Connector) Connect(ctx context.Context, pair string) (domain.Exchange[domain.OrderBook], error) {
	conn, err := venue.Dial(ctx, c.url, c.logger.WithFields(logrus.Fields{
		"component": "venue",
		"exchange":  domain.Bitstamp,
		"pair":      pair,
	}))
	if err != nil {
		return domain.Exchange[domain.OrderBook]{}, err
	}

	var req subscribeRequest
	req.Event = "bts:subscribe"
	req.Data.Channel = "order_book_" + strings.ToLower(pair)
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close(ctx)
		return domain.Exchange[domain.OrderBook]{}, fmt.Errorf("subscribe %s: %w", req.Data.Channel, err)
	}

	return domain.Exchange[domain.OrderBook]{
		ID:     domain.Bitstamp,
		Conn:   conn,
		Stream: conn.Stream(Parse),
	}, nil
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type bookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// Parse decodes a channel frame. Only "data" events carry a book.
func Parse(msg []byte) (domain.OrderBook, bool, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event != "data" {
		return domain.OrderBook{}, false, nil
	}

	var data bookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("decode book: %w", err)
	}
	book, err := venue.ParseBook(data.Bids, data.Asks)
	if err != nil {
		return domain.OrderBook{}, false, err
	}
	return book, true, nil
}
