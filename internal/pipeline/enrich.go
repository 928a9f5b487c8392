package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/calweaver/whalebot/internal/categorize"
	"github.com/calweaver/whalebot/internal/domain"
)

// fallbackConcurrency bounds the per-item metadata lookups that run when the
// batch query leaves conditions unresolved.
const fallbackConcurrency = 4

// MetadataSource is the slice of the gamma client the enricher consumes.
type MetadataSource interface {
	MarketByCondition(ctx context.Context, conditionID string) (domain.MarketMetadata, error)
	MarketsByConditions(ctx context.Context, conditionIDs []string) (map[string]domain.MarketMetadata, error)
	SportsTagIDs(ctx context.Context) (map[string]bool, error)
	AllTags(ctx context.Context) ([]domain.Tag, error)
}

// Enricher resolves market metadata for aggregated trades: Redis cache first,
// then one batch gamma query, then bounded-concurrency per-item lookups for
// whatever the batch left unresolved. The batch is an optimization only; the
// per-item path alone is sufficient for correctness.
type Enricher struct {
	gamma      MetadataSource
	cache      domain.MarketCache
	tags       domain.TagCache
	classifier *categorize.Classifier
	logger     *slog.Logger

	mu             sync.Mutex
	sportsIDs      map[string]bool
	sportsIDsUntil time.Time

	now func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher(gamma MetadataSource, cache domain.MarketCache, tags domain.TagCache, classifier *categorize.Classifier, logger *slog.Logger) *Enricher {
	return &Enricher{
		gamma:      gamma,
		cache:      cache,
		tags:       tags,
		classifier: classifier,
		logger:     logger.With(slog.String("component", "enricher")),
		now:        time.Now,
	}
}

// Warm preloads the classifier's tag-category cache, the sports tag-id set,
// and the tag dictionary. Failures are logged and left for the first cycle to
// retry; a cold start must not block the worker.
func (e *Enricher) Warm(ctx context.Context) {
	if err := e.classifier.Warm(ctx); err != nil {
		e.logger.Warn("classifier warm failed", slog.String("error", err.Error()))
	}
	if _, err := e.sportsTagIDs(ctx); err != nil {
		e.logger.Warn("sports tag ids warm failed", slog.String("error", err.Error()))
	}
	e.syncTagDictionary(ctx)
}

// syncTagDictionary refreshes the per-id tag dictionary from gamma. The
// markets endpoint sometimes returns tags as bare ids; classification resolves
// their labels through this dictionary.
func (e *Enricher) syncTagDictionary(ctx context.Context) {
	tags, err := e.gamma.AllTags(ctx)
	if err != nil {
		e.logger.Warn("tag dictionary sync failed", slog.String("error", err.Error()))
		return
	}

	stored := 0
	for _, t := range tags {
		if err := e.tags.SetTag(ctx, t); err != nil {
			e.logger.Warn("tag dictionary write failed",
				slog.String("tag_id", t.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored++
	}
	e.logger.Info("tag dictionary synced", slog.Int("tags", stored))
}

// Enrich resolves metadata for every distinct condition id in trades, keyed
// by condition id. Conditions whose lookup failed are absent from the result;
// the caller decides what an unresolved trade means. Trades without a
// condition id need no entry.
func (e *Enricher) Enrich(ctx context.Context, trades []domain.AggregatedTrade) (map[string]domain.MarketMetadata, error) {
	ids := distinctConditions(trades)
	if len(ids) == 0 {
		return map[string]domain.MarketMetadata{}, nil
	}

	resolved := make(map[string]domain.MarketMetadata, len(ids))
	var misses []string

	for _, id := range ids {
		meta, err := e.cache.Get(ctx, id)
		if err == nil {
			resolved[id] = meta
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("market cache read failed",
				slog.String("condition_id", id),
				slog.String("error", err.Error()),
			)
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return resolved, nil
	}

	fetched, err := e.gamma.MarketsByConditions(ctx, misses)
	if err != nil {
		e.logger.Warn("batch metadata fetch failed, falling back to per-item lookups",
			slog.Int("conditions", len(misses)),
			slog.String("error", err.Error()),
		)
		fetched = map[string]domain.MarketMetadata{}
	}

	var unresolved []string
	for _, id := range misses {
		meta, ok := fetched[id]
		if !ok {
			unresolved = append(unresolved, id)
			continue
		}
		resolved[id] = e.finish(ctx, meta)
	}

	for id, meta := range e.lookupEach(ctx, unresolved) {
		resolved[id] = meta
	}

	return resolved, nil
}

// lookupEach fetches the unresolved remainder one condition at a time, a few
// in flight, each with a short constant-backoff retry budget. Conditions that
// still fail are simply absent from the result.
func (e *Enricher) lookupEach(ctx context.Context, ids []string) map[string]domain.MarketMetadata {
	if len(ids) == 0 {
		return nil
	}

	var mu sync.Mutex
	out := make(map[string]domain.MarketMetadata, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fallbackConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			var meta domain.MarketMetadata
			backoff := retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond))
			err := retry.Do(gctx, backoff, func(ctx context.Context) error {
				var lookupErr error
				meta, lookupErr = e.gamma.MarketByCondition(ctx, id)
				if lookupErr == nil {
					return nil
				}
				if errors.Is(lookupErr, domain.ErrNotFound) {
					return lookupErr
				}
				return retry.RetryableError(lookupErr)
			})
			if err != nil {
				e.logger.Warn("metadata lookup failed",
					slog.String("condition_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}

			finished := e.finish(gctx, meta)
			mu.Lock()
			out[id] = finished
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// finish classifies a freshly fetched market and writes it through to the
// cache. Classification failures degrade to an uncategorised market rather
// than dropping the trade.
func (e *Enricher) finish(ctx context.Context, meta domain.MarketMetadata) domain.MarketMetadata {
	sportsIDs, err := e.sportsTagIDs(ctx)
	if err != nil {
		e.logger.Warn("sports tag ids unavailable", slog.String("error", err.Error()))
		sportsIDs = map[string]bool{}
	}

	categories, sports, err := e.classifier.Classify(ctx, meta.Tags, sportsIDs)
	if err != nil {
		e.logger.Warn("classification failed",
			slog.String("condition_id", meta.ConditionID),
			slog.String("error", err.Error()),
		)
	} else {
		meta.Categories = categories
		meta.Sports = meta.Sports || sports
	}

	if err := e.cache.Set(ctx, meta); err != nil {
		e.logger.Warn("market cache write failed",
			slog.String("condition_id", meta.ConditionID),
			slog.String("error", err.Error()),
		)
	}
	return meta
}

// sportsTagIDs resolves the sports tag-id set: process memory, then the Redis
// tag cache, then the gamma sports endpoint, writing back on the way out.
func (e *Enricher) sportsTagIDs(ctx context.Context) (map[string]bool, error) {
	e.mu.Lock()
	if e.sportsIDs != nil && e.now().Before(e.sportsIDsUntil) {
		ids := e.sportsIDs
		e.mu.Unlock()
		return ids, nil
	}
	e.mu.Unlock()

	if cached, err := e.tags.SportsTagIDs(ctx); err == nil {
		set := make(map[string]bool, len(cached))
		for _, id := range cached {
			set[id] = true
		}
		e.remember(set)
		return set, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		e.logger.Warn("sports tag cache read failed", slog.String("error", err.Error()))
	}

	set, err := e.gamma.SportsTagIDs(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	if err := e.tags.SetSportsTagIDs(ctx, ids); err != nil {
		e.logger.Warn("sports tag cache write failed", slog.String("error", err.Error()))
	}

	e.remember(set)
	return set, nil
}

func (e *Enricher) remember(set map[string]bool) {
	e.mu.Lock()
	e.sportsIDs = set
	e.sportsIDsUntil = e.now().Add(time.Hour)
	e.mu.Unlock()
}

// distinctConditions returns the unique non-empty condition ids of trades, in
// first-appearance order.
func distinctConditions(trades []domain.AggregatedTrade) []string {
	seen := make(map[string]struct{}, len(trades))
	var ids []string
	for _, t := range trades {
		if t.ConditionID == "" {
			continue
		}
		if _, ok := seen[t.ConditionID]; ok {
			continue
		}
		seen[t.ConditionID] = struct{}{}
		ids = append(ids, t.ConditionID)
	}
	return ids
}
