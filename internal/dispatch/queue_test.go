package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(Item{ChatID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		item, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if item.ChatID != want {
			t.Errorf("Pop order: got %q, want %q", item.ChatID, want)
		}
	}
}

func TestQueue_PopBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan Item, 1)
	go func() {
		item, err := q.Pop(context.Background())
		if err != nil {
			t.Errorf("Pop: %v", err)
		}
		got <- item
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(Item{ChatID: "late"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case item := <-got:
		if item.ChatID != "late" {
			t.Errorf("ChatID = %q, want late", item.ChatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Enqueue")
	}
}

func TestQueue_CloseDrainsBacklog(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Item{ChatID: "1"})
	q.Enqueue(Item{ChatID: "2"})
	q.Close()

	if err := q.Enqueue(Item{ChatID: "3"}); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Enqueue after Close: err = %v, want ErrQueueClosed", err)
	}

	for _, want := range []string{"1", "2"} {
		item, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if item.ChatID != want {
			t.Errorf("Pop = %q, want %q", item.ChatID, want)
		}
	}

	if _, err := q.Pop(context.Background()); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Pop on drained closed queue: err = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_PopHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop: err = %v, want DeadlineExceeded", err)
	}
}
