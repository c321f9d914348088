package marketdata

import (
	"time"

	"github.com/google/uuid"
)

// Level is a consolidated price level tagged with the venue it came from.
type Level struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// Summary is the outward representation of a consolidated book. Sentinel
// levels are left out, so either side may hold fewer than Depth levels.
type Summary struct {
	ID     uuid.UUID `json:"id"`
	Spread float64   `json:"spread"`
	Bids   []Level   `json:"bids"`
	Asks   []Level   `json:"asks"`
	At     time.Time `json:"at"`
}

// NewSummary renders a consolidated book and its attribution. Spread stays
// zero until both sides carry a real level.
func NewSummary(book OrderBook, sources Sources) Summary {
	summary := Summary{
		ID:   uuid.New(),
		Bids: toLevels(book.Bid, sources.Bid),
		Asks: toLevels(book.Ask, sources.Ask),
		At:   time.Now().UTC(),
	}
	if !book.Bid[0].IsEmpty() && !book.Ask[0].IsEmpty() {
		summary.Spread = book.Spread()
	}
	return summary
}

func toLevels(levels [Depth]PriceLevel, ids [Depth]ExchangeID) []Level {
	out := make([]Level, 0, Depth)
	for i := range levels {
		if levels[i].IsEmpty() {
			continue
		}
		out = append(out, Level{
			Exchange: ids[i].String(),
			Price:    levels[i].Price,
			Amount:   levels[i].Amount,
		})
	}
	return out
}
