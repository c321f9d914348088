package aggregator

import (
	"errors"
	"fmt"

	domain "orderbook/internal/domain/entity/marketdata"
)

var (
	ErrNoSources       = errors.New("at least one source is required")
	ErrDuplicateSource = errors.New("duplicate source id")
	ErrIndexOutOfRange = errors.New("source index out of range")
)

// Aggregator keeps the latest book of every configured source and merges
// them into one consolidated book. It is not safe for concurrent use: the
// pipeline gives it a single owning goroutine.
type Aggregator struct {
	ids   []domain.ExchangeID
	books []domain.OrderBook
}

// New creates an aggregator whose slot i belongs to ids[i]. Every slot
// starts with the sentinel book.
func New(ids []domain.ExchangeID) (*Aggregator, error) {
	if len(ids) == 0 {
		return nil, ErrNoSources
	}
	seen := make(map[domain.ExchangeID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, id)
		}
		seen[id] = struct{}{}
	}

	books := make([]domain.OrderBook, len(ids))
	for i := range books {
		books[i] = domain.NewOrderBook()
	}
	return &Aggregator{
		ids:   append([]domain.ExchangeID(nil), ids...),
		books: books,
	}, nil
}

// Len returns the number of sources.
func (a *Aggregator) Len() int {
	return len(a.ids)
}

// IDs returns the source ids in slot order.
func (a *Aggregator) IDs() []domain.ExchangeID {
	return append([]domain.ExchangeID(nil), a.ids...)
}

// Update replaces the whole snapshot of source index. Books with NaN levels
// or broken side ordering are rejected and leave the slot untouched.
func (a *Aggregator) Update(index int, book domain.OrderBook) error {
	if err := a.checkIndex(index); err != nil {
		return err
	}
	if err := book.Validate(); err != nil {
		return fmt.Errorf("update %s: %w", a.ids[index], err)
	}
	a.books[index] = book
	return nil
}

// Reset puts source index back to the sentinel book.
func (a *Aggregator) Reset(index int) error {
	if err := a.checkIndex(index); err != nil {
		return err
	}
	a.books[index] = domain.NewOrderBook()
	return nil
}

// Aggregate merges the current snapshots into a consolidated book of Depth
// levels per side and reports which source contributed each level.
func (a *Aggregator) Aggregate() (domain.OrderBook, domain.Sources) {
	var (
		book    domain.OrderBook
		sources domain.Sources
	)
	book.Bid, sources.Bid = a.merge(bidSide, higherPrice)
	book.Ask, sources.Ask = a.merge(askSide, lowerPrice)

	for i := 1; i < domain.Depth; i++ {
		if book.Bid[i-1].Price < book.Bid[i].Price || book.Ask[i-1].Price > book.Ask[i].Price {
			panic(fmt.Sprintf("aggregator: consolidated book out of order at level %d", i))
		}
	}
	return book, sources
}

type side func(book *domain.OrderBook) *[domain.Depth]domain.PriceLevel

func bidSide(book *domain.OrderBook) *[domain.Depth]domain.PriceLevel { return &book.Bid }
func askSide(book *domain.OrderBook) *[domain.Depth]domain.PriceLevel { return &book.Ask }

func higherPrice(a, b float64) bool { return a > b }
func lowerPrice(a, b float64) bool  { return a < b }

// merge is a k-way merge over one side of every source. Each output level
// takes the strictly better candidate, so on equal prices the source that
// comes first in configuration order wins. Sources always hold Depth levels,
// so a cursor never runs past the end.
func (a *Aggregator) merge(levels side, better func(a, b float64) bool) ([domain.Depth]domain.PriceLevel, [domain.Depth]domain.ExchangeID) {
	var (
		out     [domain.Depth]domain.PriceLevel
		ids     [domain.Depth]domain.ExchangeID
		cursors = make([]int, len(a.books))
	)

	for slot := 0; slot < domain.Depth; slot++ {
		best := 0
		candidate := levels(&a.books[0])[cursors[0]]
		for src := 1; src < len(a.books); src++ {
			level := levels(&a.books[src])[cursors[src]]
			if better(level.Price, candidate.Price) {
				best, candidate = src, level
			}
		}
		out[slot] = candidate
		ids[slot] = a.ids[best]
		cursors[best]++
	}
	return out, ids
}

func (a *Aggregator) checkIndex(index int) error {
	if index < 0 || index >= len(a.books) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(a.books))
	}
	return nil
}
