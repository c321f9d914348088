package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saved struct {
	pair    string
	summary domain.Summary
}

type fakeStore struct {
	mu    sync.Mutex
	saves []saved
	err   error
}

func (s *fakeStore) SaveSummary(ctx context.Context, pair string, summary domain.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, saved{pair: pair, summary: summary})
	return nil
}

func (s *fakeStore) all() []saved {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]saved(nil), s.saves...)
}

func testLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func message(pair string, at time.Time) *SummaryMessage {
	return &SummaryMessage{
		Pair:    pair,
		Summary: &domain.Summary{ID: uuid.New(), At: at},
	}
}

func TestBatchWriterRejectsBeforeRun(t *testing.T) {
	w := NewBatchWriter(BatchConfig{Size: 2}, &fakeStore{}, testLogger())
	require.ErrorIs(t, w.Add(message("ethbtc", time.Now())), ErrBatchNotRunning)
	require.Error(t, w.Add(nil))
	require.Error(t, w.Add(&SummaryMessage{Pair: "ethbtc"}))
}

func TestBatchWriterFlushesNewestPerPairOnSize(t *testing.T) {
	store := &fakeStore{}
	w := NewBatchWriter(BatchConfig{Size: 3}, store, testLogger())
	w.Run(context.Background())

	base := time.Now()
	newest := message("ethbtc", base.Add(2*time.Second))
	require.NoError(t, w.Add(message("ethbtc", base)))
	require.NoError(t, w.Add(newest))
	assert.Empty(t, store.all())

	other := message("btcusdt", base)
	require.NoError(t, w.Add(other))

	saves := store.all()
	require.Len(t, saves, 2)
	byPair := map[string]uuid.UUID{}
	for _, s := range saves {
		byPair[s.pair] = s.summary.ID
	}
	assert.Equal(t, newest.Summary.ID, byPair["ethbtc"])
	assert.Equal(t, other.Summary.ID, byPair["btcusdt"])
}

func TestBatchWriterFlushesOnTimeout(t *testing.T) {
	store := &fakeStore{}
	w := NewBatchWriter(BatchConfig{Size: 100, Timeout: 10 * time.Millisecond}, store, testLogger())
	w.Run(context.Background())

	require.NoError(t, w.Add(message("ethbtc", time.Now())))
	assert.Eventually(t, func() bool { return len(store.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchWriterStopDrains(t *testing.T) {
	store := &fakeStore{}
	w := NewBatchWriter(BatchConfig{Size: 100}, store, testLogger())
	w.Run(context.Background())

	require.NoError(t, w.Add(message("ethbtc", time.Now())))
	require.NoError(t, w.Stop(context.Background()))
	assert.Len(t, store.all(), 1)

	require.NoError(t, w.Stop(context.Background()))
	assert.Len(t, store.all(), 1)
}

func TestBatchWriterReportsStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("redis down")}
	w := NewBatchWriter(BatchConfig{Size: 1}, store, testLogger())
	w.Run(context.Background())

	err := w.Add(message("ethbtc", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestBatchWriterRejectsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewBatchWriter(BatchConfig{Size: 10}, &fakeStore{}, testLogger())
	w.Run(ctx)
	cancel()
	require.ErrorIs(t, w.Add(message("ethbtc", time.Now())), context.Canceled)
}
