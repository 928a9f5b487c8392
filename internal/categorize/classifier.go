// Package categorize maps gamma tags to the canonical category vocabulary.
// Inference runs once per tag; results are cached in memory and in the tag
// category store so classification survives restarts without re-inferring.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/calweaver/whalebot/internal/domain"
)

// Classifier derives market categories from tag sets.
type Classifier struct {
	store  domain.TagCategoryStore
	tags   domain.TagCache
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string][]string // tag id -> categories
}

// NewClassifier creates a Classifier backed by the given stores.
func NewClassifier(store domain.TagCategoryStore, tags domain.TagCache, logger *slog.Logger) *Classifier {
	return &Classifier{
		store:  store,
		tags:   tags,
		logger: logger.With(slog.String("component", "categorize")),
		cache:  make(map[string][]string),
	}
}

// Warm preloads all persisted tag categories into the in-process cache.
// Failures are non-fatal; the classifier falls back to per-tag loads.
func (c *Classifier) Warm(ctx context.Context) error {
	all, err := c.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("categorize: warm: %w", err)
	}

	c.mu.Lock()
	for id, cats := range all {
		c.cache[id] = cats
	}
	c.mu.Unlock()

	c.logger.Info("tag category cache warmed", slog.Int("tags", len(all)))
	return nil
}

// CategoriesForTag resolves the categories of a single tag: memory, then the
// persistent store, then keyword inference (persisting the new result). A tag
// with no label or slug is resolved through the tag dictionary cache first.
func (c *Classifier) CategoriesForTag(ctx context.Context, tag domain.Tag) ([]string, error) {
	c.mu.RLock()
	cached, ok := c.cache[tag.ID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	stored, err := c.store.Get(ctx, tag.ID)
	if err == nil && len(stored) > 0 {
		c.remember(tag.ID, stored)
		return stored, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("categorize: load tag %s: %w", tag.ID, err)
	}

	if tag.Label == "" && tag.Slug == "" {
		if dict, dictErr := c.tags.GetTag(ctx, tag.ID); dictErr == nil {
			tag.Label, tag.Slug = dict.Label, dict.Slug
		}
	}

	inferred := InferTagCategories(tag.Label, tag.Slug)
	c.logger.Debug("new tag categorised",
		slog.String("tag_id", tag.ID),
		slog.String("label", tag.Label),
		slog.Any("categories", inferred),
	)

	if err := c.store.UpsertBatch(ctx, map[string][]string{tag.ID: inferred}); err != nil {
		// Persisting is an optimisation; the inference result is still valid.
		c.logger.Warn("persist tag categories failed",
			slog.String("tag_id", tag.ID),
			slog.String("error", err.Error()),
		)
	}

	c.remember(tag.ID, inferred)
	return inferred, nil
}

// Classify derives the category set for a market's tags. The sports tag-id
// set adds the Sports category for tags the keyword table cannot see (league
// and team tags carry no sports keywords). Output is sorted and deduplicated.
func (c *Classifier) Classify(ctx context.Context, tags []domain.Tag, sportsTagIDs map[string]bool) ([]string, bool, error) {
	seen := make(map[string]struct{})
	sports := false

	for _, tag := range tags {
		cats, err := c.CategoriesForTag(ctx, tag)
		if err != nil {
			return nil, false, err
		}
		for _, cat := range cats {
			seen[cat] = struct{}{}
		}
		if sportsTagIDs[tag.ID] {
			seen["Sports"] = struct{}{}
			sports = true
		}
	}

	if len(seen) == 0 {
		return nil, sports, nil
	}

	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out, sports, nil
}

func (c *Classifier) remember(tagID string, categories []string) {
	c.mu.Lock()
	c.cache[tagID] = categories
	c.mu.Unlock()
}
