package domain

import (
	"context"
	"time"
)

// MarketCache provides fast metadata lookups so the gamma API is hit at most
// once per instrument per TTL window.
type MarketCache interface {
	Set(ctx context.Context, m MarketMetadata) error
	Get(ctx context.Context, conditionID string) (MarketMetadata, error)
}

// TagCache stores the sports tag-id set and the gamma tag dictionary.
type TagCache interface {
	SetSportsTagIDs(ctx context.Context, ids []string) error
	SportsTagIDs(ctx context.Context) ([]string, error)
	SetTag(ctx context.Context, t Tag) error
	GetTag(ctx context.Context, id string) (Tag, error)
}

// AlertsChannel is the signal-bus channel carrying dispatched alerts to the
// ops WebSocket hub.
const AlertsChannel = "whalebot:alerts"

// SignalBus carries the cross-process filter-reload flag and the ephemeral
// alert broadcast channel consumed by the ops WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	SetReloadFlag(ctx context.Context) error
	ConsumeReloadFlag(ctx context.Context) (bool, error)
}

// LockManager provides distributed locking so only one worker instance runs
// the poll loop at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
