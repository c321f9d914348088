package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	"github.com/sirupsen/logrus"
)

var ErrBatchNotRunning = errors.New("batch buffer is not running")

// SummaryWriter persists the latest summary of a pair.
type SummaryWriter interface {
	SaveSummary(ctx context.Context, pair string, summary domain.Summary) error
}

// BatchConfig controls when buffered summaries are flushed.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// BatchWriter absorbs bursts of summaries. A flush writes only the newest
// summary of every pair in the batch.
type BatchWriter struct {
	summaries *batchBuffer[SummaryMessage]
}

func NewBatchWriter(cfg BatchConfig, store SummaryWriter, logger *logrus.Logger) *BatchWriter {
	log := logger.WithFields(logrus.Fields{
		"component": "batch_writer",
		"entity":    "summary",
	})
	return &BatchWriter{
		summaries: newBatchBuffer(cfg, func(ctx context.Context, batch []SummaryMessage) error {
			var errs []error
			for pair, summary := range latestPerPair(batch) {
				if err := store.SaveSummary(ctx, pair, summary); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}, log),
	}
}

// Run sets the base context for timer driven flushes.
func (b *BatchWriter) Run(ctx context.Context) {
	b.summaries.setContext(ctx)
}

// Stop flushes what is left using ctx.
func (b *BatchWriter) Stop(ctx context.Context) error {
	b.summaries.setContext(ctx)
	return b.summaries.drain(ctx)
}

// Add buffers a summary message.
func (b *BatchWriter) Add(msg *SummaryMessage) error {
	if msg == nil || msg.Summary == nil {
		return errors.New("summary is nil")
	}
	if msg.Pair == "" {
		return errors.New("summary pair is empty")
	}
	return b.summaries.enqueue(*msg)
}

func latestPerPair(batch []SummaryMessage) map[string]domain.Summary {
	latest := make(map[string]domain.Summary, 1)
	for _, msg := range batch {
		current, ok := latest[msg.Pair]
		if !ok || !msg.Summary.At.Before(current.At) {
			latest[msg.Pair] = *msg.Summary
		}
	}
	return latest
}

type batchBuffer[T any] struct {
	cfg     BatchConfig
	flushFn func(context.Context, []T) error
	logger  *logrus.Entry

	mu    sync.Mutex
	ctx   context.Context
	items []T
	timer *time.Timer
}

func newBatchBuffer[T any](cfg BatchConfig, flushFn func(context.Context, []T) error, logger *logrus.Entry) *batchBuffer[T] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	return &batchBuffer[T]{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger,
	}
}

func (bb *batchBuffer[T]) setContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	bb.mu.Lock()
	bb.ctx = ctx
	bb.mu.Unlock()
}

func (bb *batchBuffer[T]) enqueue(item T) error {
	bb.mu.Lock()
	ctx := bb.ctx
	if ctx == nil {
		bb.mu.Unlock()
		return ErrBatchNotRunning
	}
	if err := ctx.Err(); err != nil {
		bb.mu.Unlock()
		return err
	}

	bb.items = append(bb.items, item)
	var batch []T
	if len(bb.items) >= bb.cfg.Size {
		batch = bb.takeLocked()
	} else if bb.timer == nil && bb.cfg.Timeout > 0 {
		bb.timer = time.AfterFunc(bb.cfg.Timeout, bb.flushOnTimer)
	}
	bb.mu.Unlock()

	return bb.flush(ctx, batch)
}

func (bb *batchBuffer[T]) flushOnTimer() {
	bb.mu.Lock()
	ctx := bb.ctx
	batch := bb.takeLocked()
	bb.mu.Unlock()

	if err := bb.flush(ctx, batch); err != nil {
		bb.logger.WithError(err).Warn("batch flush failed")
	}
}

func (bb *batchBuffer[T]) takeLocked() []T {
	if bb.timer != nil {
		bb.timer.Stop()
		bb.timer = nil
	}
	if len(bb.items) == 0 {
		return nil
	}
	batch := make([]T, len(bb.items))
	copy(batch, bb.items)
	bb.items = bb.items[:0]
	return batch
}

func (bb *batchBuffer[T]) flush(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := bb.flushFn(ctx, batch); err != nil {
		return err
	}
	bb.logger.WithFields(logrus.Fields{
		"size":    len(batch),
		"took_ms": time.Since(start).Milliseconds(),
	}).Debug("flushed batch")
	return nil
}

func (bb *batchBuffer[T]) drain(ctx context.Context) error {
	bb.mu.Lock()
	batch := bb.takeLocked()
	bb.mu.Unlock()
	return bb.flush(ctx, batch)
}
