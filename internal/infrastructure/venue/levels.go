package venue

import (
	"errors"
	"fmt"
	"strconv"

	domain "orderbook/internal/domain/entity/marketdata"
)

var (
	ErrShortSide = errors.New("order book side is shorter than depth")
	ErrBadLevel  = errors.New("malformed price level")
)

// ParseLevels converts the first Depth [price, amount] string pairs of a venue
// message. Levels past Depth are ignored.
func ParseLevels(raw [][]string) ([domain.Depth]domain.PriceLevel, error) {
	var levels [domain.Depth]domain.PriceLevel
	if len(raw) < domain.Depth {
		return levels, fmt.Errorf("got %d levels: %w", len(raw), ErrShortSide)
	}
	for i := 0; i < domain.Depth; i++ {
		level, err := parseLevel(raw[i])
		if err != nil {
			return levels, fmt.Errorf("level %d: %w", i, err)
		}
		levels[i] = level
	}
	return levels, nil
}

// ParseBook builds a book from both sides of a venue message.
func ParseBook(bids, asks [][]string) (domain.OrderBook, error) {
	var (
		book domain.OrderBook
		err  error
	)
	if book.Bid, err = ParseLevels(bids); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	if book.Ask, err = ParseLevels(asks); err != nil {
		return domain.OrderBook{}, fmt.Errorf("asks: %w", err)
	}
	return book, nil
}

func parseLevel(pair []string) (domain.PriceLevel, error) {
	if len(pair) < 2 {
		return domain.PriceLevel{}, ErrBadLevel
	}
	price, err := strconv.ParseFloat(pair[0], 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("price %q: %w", pair[0], ErrBadLevel)
	}
	amount, err := strconv.ParseFloat(pair[1], 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("amount %q: %w", pair[1], ErrBadLevel)
	}
	return domain.PriceLevel{Price: price, Amount: amount}, nil
}
