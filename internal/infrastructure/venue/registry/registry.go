package registry

import (
	"fmt"

	"orderbook/internal/application/service/book"
	"orderbook/internal/config"
	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/infrastructure/metrics"
	"orderbook/internal/infrastructure/venue/binance"
	"orderbook/internal/infrastructure/venue/bitstamp"
	"orderbook/internal/infrastructure/venue/simulated"
	"orderbook/internal/infrastructure/venue/tinvest"

	"github.com/sirupsen/logrus"
)

// Connectors builds one connector per configured venue, keeping the
// configured order.
func Connectors(cfg *config.Config, logger *logrus.Logger) ([]book.Connector, error) {
	connectors := make([]book.Connector, 0, len(cfg.Market.Venues))
	for _, name := range cfg.Market.Venues {
		switch domain.ExchangeID(name) {
		case domain.Binance:
			connectors = append(connectors, binance.New(cfg.Market.BinanceURL, logger))
		case domain.Bitstamp:
			connectors = append(connectors, bitstamp.New(cfg.Market.BitstampURL, logger))
		case domain.TInvest:
			connectors = append(connectors, tinvest.New(tinvest.Config{
				Token:              cfg.Invest.Token,
				Endpoint:           cfg.Invest.Endpoint,
				AppName:            cfg.Invest.AppName,
				InsecureSkipVerify: cfg.Invest.InsecureSkipVerify,
				Instrument:         cfg.Invest.Instrument,
			}, logger))
		case domain.Simulated:
			connectors = append(connectors, simulated.New(cfg.Simulated.Interval, cfg.Simulated.Seed))
		default:
			return nil, fmt.Errorf("venue %q: %w", name, config.ErrUnknownVenue)
		}
	}
	return connectors, nil
}

// NewService wires the configured venues into a book service.
func NewService(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (*book.Service, error) {
	connectors, err := Connectors(cfg, logger)
	if err != nil {
		return nil, err
	}
	return book.NewService(connectors, book.Config{
		Pair:                 cfg.Market.Pair,
		ExcludeClosedSources: cfg.Market.ExcludeClosedSources,
	}, logger, m), nil
}
