package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarkerStore persists the global resumption marker. Get returns ErrNotFound
// before the first successful cycle.
type MarkerStore interface {
	Get(ctx context.Context) (Marker, error)
	Upsert(ctx context.Context, m Marker) error
}

// DedupStore persists processed-fill records. A record is "seen" only while
// its expiry lies in the future; expired records are logically absent even if
// physically retained until the next purge.
type DedupStore interface {
	IsProcessed(ctx context.Context, fillKey string) (bool, error)
	MarkProcessed(ctx context.Context, fillKey string, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int64, error)
}

// FilterStore reads subscriber filters and writes destination deactivations.
// ListActive returns only enabled filters whose destination is active, with
// any legacy exclude-list already migrated to the allow-list representation.
type FilterStore interface {
	ListActive(ctx context.Context) ([]UserFilter, error)
	DeactivateDestination(ctx context.Context, chatID, reason string) error
}

// TagCategoryStore caches keyword-classifier results per tag id.
type TagCategoryStore interface {
	Get(ctx context.Context, tagID string) ([]string, error)
	UpsertBatch(ctx context.Context, categories map[string][]string) error
	LoadAll(ctx context.Context) (map[string][]string, error)
}

// AlertRecord is one dispatched notification, kept for the ops surface and
// for cold-storage archival. The JSON shape is shared by the ops API, the
// WebSocket feed, and the archive files.
type AlertRecord struct {
	ID            int64     `json:"id"`
	ChatID        string    `json:"chat_id"`
	TxHash        string    `json:"tx_hash"`
	Wallet        string    `json:"wallet"`
	ConditionID   string    `json:"condition_id,omitempty"`
	Question      string    `json:"question"`
	Side          Side      `json:"side"`
	TotalSize     float64   `json:"total_size"`
	TotalNotional float64   `json:"total_notional"`
	VWAP          float64   `json:"vwap"`
	FillCount     int       `json:"fill_count"`
	SentAt        time.Time `json:"sent_at"`
}

// AlertStore persists the dispatched-alert audit log.
type AlertStore interface {
	Insert(ctx context.Context, rec AlertRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]AlertRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]AlertRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
