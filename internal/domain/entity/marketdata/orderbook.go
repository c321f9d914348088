package marketdata

import (
	"errors"
	"fmt"
	"math"
)

// Depth is the number of price levels tracked per side.
const Depth = 10

var (
	ErrNaNLevel     = errors.New("price level is NaN")
	ErrUnsortedBook = errors.New("order book side is not sorted")
)

// PriceLevel holds a price/amount pair for one side of a book.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// OrderBook keeps exactly Depth levels per side.
// Bids are sorted by price descending, asks ascending.
type OrderBook struct {
	Bid [Depth]PriceLevel
	Ask [Depth]PriceLevel
}

// NewOrderBook returns an empty book: bids at price 0, asks at +Inf.
// Sentinel levels always lose against real ones in a merge.
func NewOrderBook() OrderBook {
	var book OrderBook
	for i := range book.Ask {
		book.Ask[i] = PriceLevel{Price: math.Inf(1)}
	}
	return book
}

// OrderBookFrom builds a book from [price, amount] pairs.
func OrderBookFrom(bid, ask [Depth][2]float64) OrderBook {
	var book OrderBook
	for i := 0; i < Depth; i++ {
		book.Bid[i] = PriceLevel{Price: bid[i][0], Amount: bid[i][1]}
		book.Ask[i] = PriceLevel{Price: ask[i][0], Amount: ask[i][1]}
	}
	return book
}

// Validate checks that no level is NaN and both sides keep their ordering.
func (b OrderBook) Validate() error {
	for i := 0; i < Depth; i++ {
		if isNaNLevel(b.Bid[i]) {
			return fmt.Errorf("bid %d: %w", i, ErrNaNLevel)
		}
		if isNaNLevel(b.Ask[i]) {
			return fmt.Errorf("ask %d: %w", i, ErrNaNLevel)
		}
		if i == 0 {
			continue
		}
		if b.Bid[i-1].Price < b.Bid[i].Price {
			return fmt.Errorf("bid %d above bid %d: %w", i, i-1, ErrUnsortedBook)
		}
		if b.Ask[i-1].Price > b.Ask[i].Price {
			return fmt.Errorf("ask %d below ask %d: %w", i, i-1, ErrUnsortedBook)
		}
	}
	return nil
}

// Spread is the distance between the best ask and the best bid.
func (b OrderBook) Spread() float64 {
	return b.Ask[0].Price - b.Bid[0].Price
}

// IsEmpty reports whether the level is a sentinel rather than real liquidity.
func (l PriceLevel) IsEmpty() bool {
	return l.Amount == 0 && (l.Price == 0 || math.IsInf(l.Price, 1))
}

func isNaNLevel(l PriceLevel) bool {
	return math.IsNaN(l.Price) || math.IsNaN(l.Amount)
}

// Sources attributes every level of a consolidated book to its venue.
// Sources.Bid[i] contributed OrderBook.Bid[i].
type Sources struct {
	Bid [Depth]ExchangeID
	Ask [Depth]ExchangeID
}
