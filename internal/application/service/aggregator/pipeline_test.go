package aggregator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type source struct {
	ch   chan domain.OrderBook
	conn *fakeConn
}

func newSources(log *closeLog, ids ...domain.ExchangeID) ([]source, []domain.Exchange[domain.OrderBook]) {
	sources := make([]source, 0, len(ids))
	exchanges := make([]domain.Exchange[domain.OrderBook], 0, len(ids))
	for _, id := range ids {
		s := source{
			ch:   make(chan domain.OrderBook),
			conn: &fakeConn{name: id.String(), log: log},
		}
		sources = append(sources, s)
		exchanges = append(exchanges, domain.Exchange[domain.OrderBook]{
			ID:     id,
			Conn:   s.conn,
			Stream: s.ch,
		})
	}
	return sources, exchanges
}

func quietLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func send(t *testing.T, ch chan<- domain.OrderBook, book domain.OrderBook) {
	t.Helper()
	select {
	case ch <- book:
	case <-time.After(waitTimeout):
		t.Fatal("source send blocked")
	}
}

func receive(t *testing.T, stream <-chan domain.Consolidated) domain.Consolidated {
	t.Helper()
	select {
	case item, ok := <-stream:
		require.True(t, ok, "aggregate stream closed early")
		return item
	case <-time.After(waitTimeout):
		t.Fatal("no aggregate emitted")
	}
	return domain.Consolidated{}
}

func requireClosed(t *testing.T, stream <-chan domain.Consolidated) {
	t.Helper()
	select {
	case _, ok := <-stream:
		require.False(t, ok, "expected aggregate stream to be closed")
	case <-time.After(waitTimeout):
		t.Fatal("aggregate stream not closed")
	}
}

func TestBuildRejectsBadSources(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, ErrNoSources)

	_, exchanges := newSources(&closeLog{}, domain.Binance, domain.Binance)
	_, err = Build(exchanges)
	require.ErrorIs(t, err, ErrDuplicateSource)
}

func TestPipelineEmitsOnePerUpdate(t *testing.T) {
	log := &closeLog{}
	srcs, exchanges := newSources(log, domain.Binance, domain.Bitstamp)

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer agg.Conn.Close(context.Background())
	assert.Equal(t, domain.Aggregate, agg.ID)

	send(t, srcs[0].ch, makeBook(
		[][2]float64{{100, 1.0}, {95, 0.5}},
		[][2]float64{{110, 0.25}, {115, 0.5}},
	))
	first := receive(t, agg.Stream)
	assert.Equal(t, domain.PriceLevel{Price: 100, Amount: 1.0}, first.Book.Bid[0])
	assert.Equal(t, domain.Binance, first.Sources.Bid[0])

	send(t, srcs[1].ch, makeBook(
		[][2]float64{{101, 1.5}, {94, 0.4}},
		[][2]float64{{112, 0.25}, {118, 0.5}},
	))
	second := receive(t, agg.Stream)
	assert.Equal(t, domain.PriceLevel{Price: 101, Amount: 1.5}, second.Book.Bid[0])
	assert.Equal(t, domain.Bitstamp, second.Sources.Bid[0])
	assert.Equal(t, domain.PriceLevel{Price: 100, Amount: 1.0}, second.Book.Bid[1])
	assert.Equal(t, domain.Binance, second.Sources.Bid[1])
	assert.Equal(t, domain.PriceLevel{Price: 110, Amount: 0.25}, second.Book.Ask[0])
	assert.Equal(t, domain.Binance, second.Sources.Ask[0])
	assert.Equal(t, domain.PriceLevel{Price: 112, Amount: 0.25}, second.Book.Ask[1])
	assert.Equal(t, domain.Bitstamp, second.Sources.Ask[1])
}

func TestPipelineKeepsPerSourceOrder(t *testing.T) {
	srcs, exchanges := newSources(&closeLog{}, domain.Binance, domain.Bitstamp)

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer agg.Conn.Close(context.Background())

	const updates = 50
	go func() {
		for i := 1; i <= updates; i++ {
			srcs[0].ch <- makeBook([][2]float64{{float64(i), 1}}, nil)
		}
	}()
	go func() {
		for i := 1; i <= updates; i++ {
			srcs[1].ch <- makeBook(nil, [][2]float64{{float64(1000 - i), 1}})
		}
	}()

	lastBid, lastAsk := 0.0, math.Inf(1)
	for i := 0; i < 2*updates; i++ {
		item := receive(t, agg.Stream)
		require.GreaterOrEqual(t, item.Book.Bid[0].Price, lastBid)
		require.LessOrEqual(t, item.Book.Ask[0].Price, lastAsk)
		lastBid, lastAsk = item.Book.Bid[0].Price, item.Book.Ask[0].Price
	}
	assert.Equal(t, float64(updates), lastBid)
	assert.Equal(t, float64(1000-updates), lastAsk)
}

func TestPipelineDropsInvalidBooks(t *testing.T) {
	srcs, exchanges := newSources(&closeLog{}, domain.Binance)

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer agg.Conn.Close(context.Background())

	send(t, srcs[0].ch, makeBook([][2]float64{{math.NaN(), 1}}, nil))
	send(t, srcs[0].ch, makeBook([][2]float64{{1, 1}, {2, 1}}, nil))
	send(t, srcs[0].ch, makeBook([][2]float64{{3, 1}}, nil))

	item := receive(t, agg.Stream)
	assert.Equal(t, 3.0, item.Book.Bid[0].Price)
}

func TestPipelineFreezesEndedSource(t *testing.T) {
	srcs, exchanges := newSources(&closeLog{}, domain.Binance, domain.Bitstamp)

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer agg.Conn.Close(context.Background())

	send(t, srcs[0].ch, makeBook([][2]float64{{100, 1}}, nil))
	receive(t, agg.Stream)
	close(srcs[0].ch)

	for i := 0; i < 5; i++ {
		send(t, srcs[1].ch, makeBook([][2]float64{{float64(90 + i), 1}}, nil))
		item := receive(t, agg.Stream)
		assert.Equal(t, 100.0, item.Book.Bid[0].Price)
		assert.Equal(t, domain.Binance, item.Sources.Bid[0])
	}
}

func TestPipelineExcludesEndedSource(t *testing.T) {
	srcs, exchanges := newSources(&closeLog{}, domain.Binance, domain.Bitstamp)

	agg, err := Build(exchanges, WithLogger(quietLogger()), WithExcludeOnClose())
	require.NoError(t, err)
	defer agg.Conn.Close(context.Background())

	send(t, srcs[0].ch, makeBook([][2]float64{{100, 1}}, nil))
	receive(t, agg.Stream)
	close(srcs[0].ch)

	// the end of stream races with the next update from the other source
	excluded := false
	for i := 0; i < 100 && !excluded; i++ {
		send(t, srcs[1].ch, makeBook([][2]float64{{90, 1}}, nil))
		item := receive(t, agg.Stream)
		excluded = item.Sources.Bid[0] == domain.Bitstamp
		if !excluded {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.True(t, excluded, "ended source still leads the book")
}

func TestPipelineClosesWhenAllSourcesEnd(t *testing.T) {
	srcs, exchanges := newSources(&closeLog{}, domain.Binance, domain.Bitstamp)

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)

	close(srcs[0].ch)
	close(srcs[1].ch)
	requireClosed(t, agg.Stream)
}

func TestPipelineCloseClosesEveryConnection(t *testing.T) {
	log := &closeLog{}
	srcs, exchanges := newSources(log, domain.Binance, domain.Bitstamp, domain.TInvest)
	srcs[0].conn.err = errors.New("already closed")

	agg, err := Build(exchanges, WithLogger(quietLogger()))
	require.NoError(t, err)

	send(t, srcs[2].ch, makeBook([][2]float64{{1, 1}}, nil))
	receive(t, agg.Stream)

	require.NoError(t, agg.Conn.Close(context.Background()))
	assert.Equal(t, []string{"binance", "bitstamp", "tinvest"}, log.names())
	requireClosed(t, agg.Stream)

	require.NoError(t, agg.Conn.Close(context.Background()))
	assert.Len(t, log.names(), 3)
}
