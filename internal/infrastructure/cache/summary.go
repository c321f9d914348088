package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "book:summary:"

var ErrSummaryNotFound = errors.New("summary not found")

// Client is the subset of the redis client used by the cache package.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

var _ Client = (*redis.Client)(nil)

// SummaryStore keeps the latest consolidated summary per market pair.
type SummaryStore struct {
	client Client
	ttl    time.Duration
}

// NewSummaryStore stores summaries for ttl; a zero ttl keeps them until
// overwritten.
func NewSummaryStore(client Client, ttl time.Duration) *SummaryStore {
	return &SummaryStore{client: client, ttl: ttl}
}

func summaryKey(pair string) string {
	return keyPrefix + pair
}

// SaveSummary overwrites the latest summary of pair.
func (s *SummaryStore) SaveSummary(ctx context.Context, pair string, summary domain.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, summaryKey(pair), body, s.ttl).Err(); err != nil {
		return fmt.Errorf("store summary %s: %w", pair, err)
	}
	return nil
}

// LatestSummary returns ErrSummaryNotFound when nothing was stored for pair
// or the entry expired.
func (s *SummaryStore) LatestSummary(ctx context.Context, pair string) (domain.Summary, error) {
	raw, err := s.client.Get(ctx, summaryKey(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Summary{}, ErrSummaryNotFound
	}
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load summary %s: %w", pair, err)
	}

	var summary domain.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.Summary{}, fmt.Errorf("decode summary %s: %w", pair, err)
	}
	return summary, nil
}
