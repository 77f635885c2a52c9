package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tradesim/internal/domain"
)

// SnapshotCache stores the most recent MarketData per market key as a JSON
// value. Each write replaces the previous value wholesale.
//
// Key schema:
//
//	md:{venue}:{symbol}
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(venue domain.Venue, symbol string) string {
	return "md:" + string(venue) + ":" + symbol
}

// Set replaces the stored snapshot for md's market.
func (sc *SnapshotCache) Set(ctx context.Context, md domain.MarketData) error {
	payload, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s %s: %w", md.Venue, md.Symbol, err)
	}
	key := snapshotKey(md.Venue, md.Symbol)
	if err := sc.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", key, err)
	}
	return nil
}

// Get returns the latest snapshot for a market. It returns domain.ErrNotFound
// when no snapshot has been stored.
func (sc *SnapshotCache) Get(ctx context.Context, venue domain.Venue, symbol string) (domain.MarketData, error) {
	key := snapshotKey(venue, symbol)
	payload, err := sc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketData{}, domain.ErrNotFound
		}
		return domain.MarketData{}, fmt.Errorf("redis: get snapshot %s: %w", key, err)
	}

	var md domain.MarketData
	if err := json.Unmarshal(payload, &md); err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", key, err)
	}
	return md, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
