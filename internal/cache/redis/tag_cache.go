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

const (
	sportsTagIDsKey = "whalebot:tags:sports"
	tagKeyPrefix    = "whalebot:tag:"

	// The sports tag-id set and the tag dictionary both come from slow-moving
	// gamma endpoints; a daily refresh is plenty.
	tagTTL = 24 * time.Hour
)

// TagCache implements domain.TagCache. It holds the gamma sports tag-id set,
// used for the sports shortcut during classification, and a per-id tag
// dictionary so enrichment can resolve tag labels without a gamma round trip.
type TagCache struct {
	rdb *redis.Client
}

// NewTagCache creates a TagCache backed by the given Client.
func NewTagCache(c *Client) *TagCache {
	return &TagCache{rdb: c.Underlying()}
}

// SetSportsTagIDs replaces the sports tag-id set.
func (tc *TagCache) SetSportsTagIDs(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("redis: marshal sports tag ids: %w", err)
	}
	if err := tc.rdb.Set(ctx, sportsTagIDsKey, data, tagTTL).Err(); err != nil {
		return fmt.Errorf("redis: set sports tag ids: %w", err)
	}
	return nil
}

// SportsTagIDs returns the cached sports tag-id set, or domain.ErrNotFound
// when it has expired or was never set.
func (tc *TagCache) SportsTagIDs(ctx context.Context) ([]string, error) {
	data, err := tc.rdb.Get(ctx, sportsTagIDsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get sports tag ids: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("redis: unmarshal sports tag ids: %w", err)
	}
	return ids, nil
}

// SetTag stores one tag in the dictionary.
func (tc *TagCache) SetTag(ctx context.Context, t domain.Tag) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis: marshal tag %s: %w", t.ID, err)
	}
	if err := tc.rdb.Set(ctx, tagKeyPrefix+t.ID, data, tagTTL).Err(); err != nil {
		return fmt.Errorf("redis: set tag %s: %w", t.ID, err)
	}
	return nil
}

// GetTag returns one tag by id, or domain.ErrNotFound.
func (tc *TagCache) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	data, err := tc.rdb.Get(ctx, tagKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Tag{}, domain.ErrNotFound
		}
		return domain.Tag{}, fmt.Errorf("redis: get tag %s: %w", id, err)
	}

	var t domain.Tag
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Tag{}, fmt.Errorf("redis: unmarshal tag %s: %w", id, err)
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.TagCache = (*TagCache)(nil)
