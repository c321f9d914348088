package tinvest

import (
	"math"
	"testing"

	domain "orderbook/internal/domain/entity/marketdata"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertPadsShortSides(t *testing.T) {
	book, err := Convert(&pb.OrderBook{
		Depth: domain.Depth,
		Bids: []*pb.Order{
			{Price: &pb.Quotation{Units: 250, Nano: 500000000}, Quantity: 12},
			{Price: &pb.Quotation{Units: 250, Nano: 0}, Quantity: 3},
		},
		Asks: []*pb.Order{
			{Price: &pb.Quotation{Units: 251}, Quantity: 7},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PriceLevel{Price: 250.5, Amount: 12}, book.Bid[0])
	assert.Equal(t, domain.PriceLevel{Price: 250, Amount: 3}, book.Bid[1])
	assert.Equal(t, domain.PriceLevel{Price: 251, Amount: 7}, book.Ask[0])
	for i := 2; i < domain.Depth; i++ {
		assert.True(t, book.Bid[i].IsEmpty())
	}
	for i := 1; i < domain.Depth; i++ {
		assert.True(t, math.IsInf(book.Ask[i].Price, 1))
	}
	require.NoError(t, book.Validate())
}

func TestConvertTruncatesDeepBooks(t *testing.T) {
	msg := &pb.OrderBook{}
	for i := 0; i < 2*domain.Depth; i++ {
		msg.Bids = append(msg.Bids, &pb.Order{Price: &pb.Quotation{Units: int64(100 - i)}, Quantity: 1})
		msg.Asks = append(msg.Asks, &pb.Order{Price: &pb.Quotation{Units: int64(101 + i)}, Quantity: 1})
	}
	book, err := Convert(msg)
	require.NoError(t, err)
	assert.Equal(t, float64(100-domain.Depth+1), book.Bid[domain.Depth-1].Price)
	assert.Equal(t, float64(101+domain.Depth-1), book.Ask[domain.Depth-1].Price)
}

func TestConvertNil(t *testing.T) {
	_, err := Convert(nil)
	require.ErrorIs(t, err, ErrNilOrderBook)

	book, err := Convert(&pb.OrderBook{Bids: []*pb.Order{{Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, domain.PriceLevel{Price: 0, Amount: 1}, book.Bid[0])
}
