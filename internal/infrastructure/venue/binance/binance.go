package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/infrastructure/venue"

	"github.com/sirupsen/logrus"
)

const DefaultURL = "wss://stream.binance.com:9443/ws"

// Connector streams partial book depth snapshots (depth20, 100ms).
type Connector struct {
	baseURL string
	logger  *logrus.Logger
}

func New(baseURL string, logger *logrus.Logger) *Connector {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Connector{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (c *Connector) ID() domain.ExchangeID {
	return domain.Binance
}

func (c *Connector) Connect(ctx context.Context, pair string) (domain.Exchange[domain.OrderBook], error) {
	url := fmt.Sprintf("%s/%s@depth20@100ms", c.baseURL, strings.ToLower(pair))
	conn, err := venue.Dial(ctx, url, c.logger.WithFields(logrus.Fields{
		"component": "venue",
		"exchange":  domain.Binance,
		"pair":      pair,
	}))
	if err != nil {
		return domain.Exchange[domain.OrderBook]{}, err
	}
	return domain.Exchange[domain.OrderBook]{
		ID:     domain.Binance,
		Conn:   conn,
		Stream: conn.Stream(Parse),
	}, nil
}

type depthMessage struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// Parse decodes a partial depth message. Frames without lastUpdateId, such as
// subscription results, carry no book.
func Parse(msg []byte) (domain.OrderBook, bool, error) {
	var m depthMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("decode depth: %w", err)
	}
	if m.LastUpdateID == 0 && m.Bids == nil && m.Asks == nil {
		return domain.OrderBook{}, false, nil
	}
	book, err := venue.ParseBook(m.Bids, m.Asks)
	if err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("depth %d: %w", m.LastUpdateID, err)
	}
	return book, true, nil
}
