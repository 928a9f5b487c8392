package categorize

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestInferTagCategories(t *testing.T) {
	cases := []struct {
		label string
		slug  string
		want  []string
	}{
		{"Presidential Election", "presidential-election", []string{"Politics", "Elections"}},
		{"NBA Finals", "nba-finals", []string{"Sports"}},
		{"Bitcoin", "bitcoin", []string{"Crypto"}},
		{"Donald Trump", "donald-trump", []string{"Trump"}},
		{"Q3 Earnings", "q3-earnings", []string{"Earnings"}},
		{"Obscure Topic", "obscure-topic", nil},
		{"", "", nil},
	}

	for _, tc := range cases {
		got := InferTagCategories(tc.label, tc.slug)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("InferTagCategories(%q, %q) = %v, want %v", tc.label, tc.slug, got, tc.want)
		}
	}
}

func TestInferTagCategories_Stable(t *testing.T) {
	first := InferTagCategories("Global Economy", "global-economy")
	second := InferTagCategories("Global Economy", "global-economy")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("inference not stable: %v vs %v", first, second)
	}
}

// memTagCategoryStore is an in-memory domain.TagCategoryStore.
type memTagCategoryStore struct {
	mu      sync.Mutex
	data    map[string][]string
	upserts int
}

func (s *memTagCategoryStore) Get(ctx context.Context, tagID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats, ok := s.data[tagID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cats, nil
}

func (s *memTagCategoryStore) UpsertBatch(ctx context.Context, categories map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cats := range categories {
		s.data[id] = cats
	}
	s.upserts++
	return nil
}

func (s *memTagCategoryStore) LoadAll(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.data))
	for id, cats := range s.data {
		out[id] = cats
	}
	return out, nil
}

// memTagCache is an in-memory domain.TagCache.
type memTagCache struct {
	mu     sync.Mutex
	tags   map[string]domain.Tag
	sports []string
}

func (c *memTagCache) SetSportsTagIDs(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sports = ids
	return nil
}

func (c *memTagCache) SportsTagIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sports == nil {
		return nil, domain.ErrNotFound
	}
	return c.sports, nil
}

func (c *memTagCache) SetTag(ctx context.Context, t domain.Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[t.ID] = t
	return nil
}

func (c *memTagCache) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tags[id]
	if !ok {
		return domain.Tag{}, domain.ErrNotFound
	}
	return t, nil
}

func newTestClassifier() (*Classifier, *memTagCategoryStore, *memTagCache) {
	store := &memTagCategoryStore{data: make(map[string][]string)}
	tags := &memTagCache{tags: make(map[string]domain.Tag)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClassifier(store, tags, logger), store, tags
}

func TestClassifier_InfersOncePerTag(t *testing.T) {
	c, store, _ := newTestClassifier()
	ctx := context.Background()

	tag := domain.Tag{ID: "101", Label: "Bitcoin", Slug: "bitcoin"}

	first, err := c.CategoriesForTag(ctx, tag)
	if err != nil {
		t.Fatalf("CategoriesForTag error = %v", err)
	}
	if !reflect.DeepEqual(first, []string{"Crypto"}) {
		t.Errorf("categories = %v, want [Crypto]", first)
	}

	// Second call must come from the in-process cache.
	if _, err := c.CategoriesForTag(ctx, tag); err != nil {
		t.Fatalf("CategoriesForTag error = %v", err)
	}
	if store.upserts != 1 {
		t.Errorf("store upserts = %d, want 1", store.upserts)
	}
}

func TestClassifier_ResolvesLabelFromDictionary(t *testing.T) {
	c, _, tags := newTestClassifier()
	ctx := context.Background()

	_ = tags.SetTag(ctx, domain.Tag{ID: "7", Label: "NFL Week 1", Slug: "nfl-week-1"})

	got, err := c.CategoriesForTag(ctx, domain.Tag{ID: "7"})
	if err != nil {
		t.Fatalf("CategoriesForTag error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Sports"}) {
		t.Errorf("categories = %v, want [Sports]", got)
	}
}

func TestClassifier_Classify(t *testing.T) {
	c, _, _ := newTestClassifier()
	ctx := context.Background()

	tags := []domain.Tag{
		{ID: "1", Label: "Presidential Election", Slug: "presidential-election"},
		{ID: "2", Label: "Donald Trump", Slug: "donald-trump"},
		{ID: "3", Label: "Lakers", Slug: "lakers"}, // no keyword hit, sports by id
	}
	sportsIDs := map[string]bool{"3": true}

	cats, sports, err := c.Classify(ctx, tags, sportsIDs)
	if err != nil {
		t.Fatalf("Classify error = %v", err)
	}
	if !sports {
		t.Error("sports flag = false, want true")
	}

	want := []string{"Elections", "Politics", "Sports", "Trump"}
	if !reflect.DeepEqual(cats, want) {
		t.Errorf("categories = %v, want %v", cats, want)
	}
}

func TestClassifier_Warm(t *testing.T) {
	c, store, _ := newTestClassifier()
	ctx := context.Background()

	store.data["55"] = []string{"Economy"}

	if err := c.Warm(ctx); err != nil {
		t.Fatalf("Warm error = %v", err)
	}

	// A warmed tag must not trigger a store upsert.
	got, err := c.CategoriesForTag(ctx, domain.Tag{ID: "55"})
	if err != nil {
		t.Fatalf("CategoriesForTag error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Economy"}) {
		t.Errorf("categories = %v, want [Economy]", got)
	}
	if store.upserts != 0 {
		t.Errorf("store upserts = %d, want 0 after warm", store.upserts)
	}
}
