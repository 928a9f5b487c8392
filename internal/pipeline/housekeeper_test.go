package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calweaver/whalebot/internal/dedup"
)

type fakeArchiver struct {
	mu     sync.Mutex
	runs   int
	count  int64
	cutoff time.Time
}

func (a *fakeArchiver) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs++
	a.cutoff = before
	return a.count, nil
}

func TestHousekeeperRunOnce(t *testing.T) {
	store := newMemDedupStore()
	store.seen["expired"] = time.Now().Add(-time.Minute)
	store.seen["live"] = time.Now().Add(time.Hour)

	dd := dedup.New(store, 15*time.Minute)
	arch := &fakeArchiver{count: 7}

	h := NewHousekeeper(arch, store, dd, nil, 90, testLogger())
	if err := h.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if arch.runs != 1 {
		t.Errorf("archive runs = %d, want 1", arch.runs)
	}
	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	if diff := arch.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", arch.cutoff, wantCutoff)
	}

	store.mu.Lock()
	_, expiredKept := store.seen["expired"]
	_, liveKept := store.seen["live"]
	store.mu.Unlock()
	if expiredKept {
		t.Error("expired record kept, want purged")
	}
	if !liveKept {
		t.Error("live record purged, want kept")
	}
}

func TestHousekeeperWithoutArchiver(t *testing.T) {
	store := newMemDedupStore()
	store.seen["expired"] = time.Now().Add(-time.Minute)
	dd := dedup.New(store, 15*time.Minute)

	h := NewHousekeeper(nil, store, dd, nil, 90, testLogger())
	if err := h.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	store.mu.Lock()
	remaining := len(store.seen)
	store.mu.Unlock()
	if remaining != 0 {
		t.Errorf("records remaining = %d, want 0", remaining)
	}
}

func TestNextCronTime(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "monthly at 4am",
			expr:  "0 4 1 * *",
			after: time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 8, 1, 4, 0, 0, 0, time.UTC),
		},
		{
			name:  "same day later hour",
			expr:  "30 18 * * *",
			after: time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 7, 15, 18, 30, 0, 0, time.UTC),
		},
		{
			name:  "value list",
			expr:  "0 0 1,15 * *",
			after: time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, tt.after)
			if err != nil {
				t.Fatalf("nextCronTime() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("nextCronTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextCronTimeRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "0 4 1 *", "x 4 1 * *"} {
		if _, err := nextCronTime(expr, time.Now()); err == nil {
			t.Errorf("nextCronTime(%q) error = nil, want parse error", expr)
		}
	}
}
