package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calweaver/whalebot/internal/domain"
)

// MarketCache implements domain.MarketCache with JSON-serialized metadata
// under a per-condition key. Metadata changes rarely, so the TTL is long; a
// stale question or tag set only ever affects message text, never matching
// correctness for notional, price, and side gates.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive ttl falls back to 24 hours.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(conditionID string) string {
	return "whalebot:market:" + conditionID
}

// Set stores metadata for one instrument.
func (mc *MarketCache) Set(ctx context.Context, m domain.MarketMetadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ConditionID, err)
	}

	if err := mc.rdb.Set(ctx, marketKey(m.ConditionID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ConditionID, err)
	}
	return nil
}

// Get retrieves metadata by condition id. It returns domain.ErrNotFound when
// the key does not exist or has expired.
func (mc *MarketCache) Get(ctx context.Context, conditionID string) (domain.MarketMetadata, error) {
	data, err := mc.rdb.Get(ctx, marketKey(conditionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketMetadata{}, domain.ErrNotFound
		}
		return domain.MarketMetadata{}, fmt.Errorf("redis: get market %s: %w", conditionID, err)
	}

	var m domain.MarketMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.MarketMetadata{}, fmt.Errorf("redis: unmarshal market %s: %w", conditionID, err)
	}
	return m, nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
