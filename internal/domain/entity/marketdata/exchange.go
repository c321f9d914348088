package marketdata

import "orderbook/internal/domain/interfaces"

// ExchangeID names a venue contributing a book stream.
type ExchangeID string

const (
	Binance   ExchangeID = "binance"
	Bitstamp  ExchangeID = "bitstamp"
	TInvest   ExchangeID = "tinvest"
	Simulated ExchangeID = "simulated"

	// Aggregate identifies the consolidated stream built over several venues.
	Aggregate ExchangeID = "aggregate"
)

func (id ExchangeID) String() string {
	return string(id)
}

// Exchange is the handle a venue connector hands over: an identifier, the
// connection to close and the stream of items it produces. The stream is
// closed by the producer when the venue stops sending.
type Exchange[T any] struct {
	ID     ExchangeID
	Conn   interfaces.Connection
	Stream <-chan T
}

// Consolidated is one emission of the aggregate stream.
type Consolidated struct {
	Book    OrderBook
	Sources Sources
}
