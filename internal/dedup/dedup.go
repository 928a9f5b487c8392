// Package dedup tracks which fills have already been handled. It layers an
// in-process TTL map over the durable record store: the map answers the hot
// path for fills re-fetched within the same process lifetime, the store
// carries the window across restarts. Fetch windows overlap on every cycle,
// so the deduplicator is what makes polling incremental.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calweaver/whalebot/internal/domain"
)

// Deduplicator is safe for concurrent use.
type Deduplicator struct {
	store domain.DedupStore
	ttl   time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // fill key -> expiry

	now func() time.Time
}

// New creates a Deduplicator with the given record TTL. The TTL must exceed
// the maximum plausible overlap between consecutive fetch windows; minutes,
// not seconds, to absorb retries and clock skew.
func New(store domain.DedupStore, ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		store: store,
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		now:   time.Now,
	}
}

// TTL returns the configured record lifetime.
func (d *Deduplicator) TTL() time.Duration {
	return d.ttl
}

// IsProcessed reports whether the fill key has an unexpired record, checking
// the in-process map before the store.
func (d *Deduplicator) IsProcessed(ctx context.Context, fillKey string) (bool, error) {
	d.mu.Lock()
	expiry, ok := d.seen[fillKey]
	if ok && d.now().Before(expiry) {
		d.mu.Unlock()
		return true, nil
	}
	if ok {
		delete(d.seen, fillKey)
	}
	d.mu.Unlock()

	processed, err := d.store.IsProcessed(ctx, fillKey)
	if err != nil {
		return false, fmt.Errorf("dedup: check %s: %w", fillKey, err)
	}
	return processed, nil
}

// MarkProcessed records the fill key in the store first, then in the
// in-process map. The durable write goes first so a crash mid-mark can only
// lose the cheap layer.
func (d *Deduplicator) MarkProcessed(ctx context.Context, fillKey string) error {
	if err := d.store.MarkProcessed(ctx, fillKey, d.ttl); err != nil {
		return fmt.Errorf("dedup: mark %s: %w", fillKey, err)
	}

	d.mu.Lock()
	d.seen[fillKey] = d.now().Add(d.ttl)
	d.mu.Unlock()
	return nil
}

// Prune drops expired entries from the in-process map. Called periodically by
// the housekeeper to bound memory; the store purges its own records.
func (d *Deduplicator) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}
