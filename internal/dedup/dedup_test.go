package dedup

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory domain.DedupStore with the same read-time expiry
// semantics as the real record store.
type memStore struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{records: make(map[string]time.Time), now: now}
}

func (s *memStore) IsProcessed(ctx context.Context, fillKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.records[fillKey]
	return ok && s.now().Before(expiry), nil
}

func (s *memStore) MarkProcessed(ctx context.Context, fillKey string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fillKey] = s.now().Add(ttl)
	return nil
}

func (s *memStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for key, expiry := range s.records {
		if !s.now().Before(expiry) {
			delete(s.records, key)
			purged++
		}
	}
	return purged, nil
}

// testClock drives both layers from a single settable time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestDedup(ttl time.Duration) (*Deduplicator, *memStore, *testClock) {
	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	d := New(store, ttl)
	d.now = clock.Now
	return d, store, clock
}

func TestDeduplicator_MarkThenSeen(t *testing.T) {
	d, _, _ := newTestDedup(15 * time.Minute)
	ctx := context.Background()

	key := "0xabc:0x1:cond1:Yes:BUY:20000:0.3"

	seen, err := d.IsProcessed(ctx, key)
	if err != nil {
		t.Fatalf("IsProcessed error = %v", err)
	}
	if seen {
		t.Error("unmarked key reported as processed")
	}

	if err := d.MarkProcessed(ctx, key); err != nil {
		t.Fatalf("MarkProcessed error = %v", err)
	}

	for i := 0; i < 3; i++ {
		seen, err = d.IsProcessed(ctx, key)
		if err != nil {
			t.Fatalf("IsProcessed error = %v", err)
		}
		if !seen {
			t.Fatalf("call %d: marked key reported as unprocessed within TTL", i)
		}
	}
}

func TestDeduplicator_TTLExpiry(t *testing.T) {
	d, _, clock := newTestDedup(15 * time.Minute)
	ctx := context.Background()

	if err := d.MarkProcessed(ctx, "key"); err != nil {
		t.Fatalf("MarkProcessed error = %v", err)
	}

	clock.Advance(14 * time.Minute)
	if seen, _ := d.IsProcessed(ctx, "key"); !seen {
		t.Error("key expired before TTL elapsed")
	}

	clock.Advance(2 * time.Minute)
	if seen, _ := d.IsProcessed(ctx, "key"); seen {
		t.Error("key still reported processed after TTL elapsed")
	}
}

func TestDeduplicator_SurvivesMemoryLoss(t *testing.T) {
	// A restart empties the in-process map; the store record must still
	// answer within the TTL window.
	d, store, clock := newTestDedup(15 * time.Minute)
	ctx := context.Background()

	if err := d.MarkProcessed(ctx, "key"); err != nil {
		t.Fatalf("MarkProcessed error = %v", err)
	}

	restarted := New(store, 15*time.Minute)
	restarted.now = clock.Now

	if seen, _ := restarted.IsProcessed(ctx, "key"); !seen {
		t.Error("restarted deduplicator lost the durable record")
	}
}

func TestDeduplicator_Prune(t *testing.T) {
	d, _, clock := newTestDedup(time.Minute)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := d.MarkProcessed(ctx, key); err != nil {
			t.Fatalf("MarkProcessed error = %v", err)
		}
	}

	if removed := d.Prune(); removed != 0 {
		t.Errorf("Prune removed %d live entries", removed)
	}

	clock.Advance(2 * time.Minute)
	if removed := d.Prune(); removed != 3 {
		t.Errorf("Prune removed %d, want 3", removed)
	}
}

func TestDeduplicator_ConcurrentMark(t *testing.T) {
	d, _, _ := newTestDedup(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.MarkProcessed(ctx, "shared")
			_, _ = d.IsProcessed(ctx, "shared")
		}()
	}
	wg.Wait()

	if seen, _ := d.IsProcessed(ctx, "shared"); !seen {
		t.Error("key lost under concurrent marking")
	}
}
