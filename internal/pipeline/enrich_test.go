package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/calweaver/whalebot/internal/categorize"
	"github.com/calweaver/whalebot/internal/domain"
)

func newTestEnricher(gamma *fakeGamma, cache *memMarketCache) *Enricher {
	logger := testLogger()
	classifier := categorize.NewClassifier(newMemTagCategoryStore(), newMemTagCache(), logger)
	return NewEnricher(gamma, cache, newMemTagCache(), classifier, logger)
}

func tradeOn(conditionID string) domain.AggregatedTrade {
	return domain.AggregatedTrade{
		TxHash:      "0x" + conditionID,
		Wallet:      "0x1",
		ConditionID: conditionID,
		Side:        domain.SideBuy,
	}
}

func TestEnrichServesFromCache(t *testing.T) {
	gamma := newFakeGamma()
	cache := newMemMarketCache()
	cache.markets["cond1"] = domain.MarketMetadata{ConditionID: "cond1", Question: "cached"}

	e := newTestEnricher(gamma, cache)
	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{tradeOn("cond1")})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if out["cond1"].Question != "cached" {
		t.Errorf("Question = %q, want %q", out["cond1"].Question, "cached")
	}
	if gamma.batches != 0 || gamma.items != 0 {
		t.Errorf("gamma calls = %d batch / %d item, want 0/0 on full cache hit", gamma.batches, gamma.items)
	}
}

func TestEnrichBatchResolvesAndCaches(t *testing.T) {
	gamma := newFakeGamma()
	gamma.markets["cond1"] = domain.MarketMetadata{
		ConditionID: "cond1",
		Question:    "fresh",
		Tags:        []domain.Tag{{ID: "t1", Label: "Bitcoin", Slug: "bitcoin"}},
	}
	cache := newMemMarketCache()

	e := newTestEnricher(gamma, cache)
	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{tradeOn("cond1")})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	meta, ok := out["cond1"]
	if !ok {
		t.Fatal("cond1 missing from result")
	}
	if len(meta.Categories) == 0 {
		t.Error("Categories empty, want classifier output for a Bitcoin tag")
	}

	if _, err := cache.Get(context.Background(), "cond1"); err != nil {
		t.Errorf("cache.Get() after enrich error = %v, want metadata written through", err)
	}
}

func TestEnrichFallsBackPerItemOnBatchFailure(t *testing.T) {
	gamma := newFakeGamma()
	gamma.batchErr = errors.New("batch endpoint down")
	gamma.markets["cond1"] = domain.MarketMetadata{ConditionID: "cond1", Question: "via fallback"}

	e := newTestEnricher(gamma, newMemMarketCache())
	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{tradeOn("cond1")})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if out["cond1"].Question != "via fallback" {
		t.Errorf("Question = %q, want %q", out["cond1"].Question, "via fallback")
	}
	if gamma.items == 0 {
		t.Error("per-item lookups = 0, want fallback after batch failure")
	}
}

func TestEnrichOmitsUnresolvableConditions(t *testing.T) {
	gamma := newFakeGamma()
	gamma.markets["cond1"] = domain.MarketMetadata{ConditionID: "cond1"}
	// cond2 is absent from gamma entirely.

	e := newTestEnricher(gamma, newMemMarketCache())
	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{tradeOn("cond1"), tradeOn("cond2")})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if _, ok := out["cond1"]; !ok {
		t.Error("cond1 missing, want resolved")
	}
	if _, ok := out["cond2"]; ok {
		t.Error("cond2 present, want omitted so the trade stays eligible")
	}
}

func TestWarmSyncsTagDictionary(t *testing.T) {
	gamma := newFakeGamma()
	gamma.tags = []domain.Tag{
		{ID: "42", Label: "Bitcoin", Slug: "bitcoin"},
		{ID: "43", Label: "NBA", Slug: "nba"},
	}
	tagCache := newMemTagCache()
	classifier := categorize.NewClassifier(newMemTagCategoryStore(), tagCache, testLogger())
	e := NewEnricher(gamma, newMemMarketCache(), tagCache, classifier, testLogger())

	e.Warm(context.Background())

	got, err := tagCache.GetTag(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetTag() after Warm error = %v, want dictionary populated", err)
	}
	if got.Label != "Bitcoin" {
		t.Errorf("Label = %q, want %q", got.Label, "Bitcoin")
	}
}

func TestEnrichClassifiesBareTagAfterWarm(t *testing.T) {
	gamma := newFakeGamma()
	gamma.tags = []domain.Tag{{ID: "t9", Label: "Bitcoin", Slug: "bitcoin"}}
	// The market carries the tag as a bare id, as gamma sometimes does.
	gamma.markets["cond1"] = domain.MarketMetadata{
		ConditionID: "cond1",
		Tags:        []domain.Tag{{ID: "t9"}},
	}

	tagCache := newMemTagCache()
	classifier := categorize.NewClassifier(newMemTagCategoryStore(), tagCache, testLogger())
	e := NewEnricher(gamma, newMemMarketCache(), tagCache, classifier, testLogger())

	e.Warm(context.Background())
	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{tradeOn("cond1")})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if len(out["cond1"].Categories) == 0 {
		t.Error("Categories empty, want bare tag resolved through the synced dictionary")
	}
}

func TestWarmTagDictionaryFailureIsNonFatal(t *testing.T) {
	gamma := newFakeGamma()
	gamma.tagsErr = errors.New("tags endpoint down")

	tagCache := newMemTagCache()
	classifier := categorize.NewClassifier(newMemTagCategoryStore(), tagCache, testLogger())
	e := NewEnricher(gamma, newMemMarketCache(), tagCache, classifier, testLogger())

	e.Warm(context.Background())

	if _, err := tagCache.GetTag(context.Background(), "42"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetTag() error = %v, want ErrNotFound after failed sync", err)
	}
}

func TestEnrichNoConditionsNoCalls(t *testing.T) {
	gamma := newFakeGamma()
	e := newTestEnricher(gamma, newMemMarketCache())

	out, err := e.Enrich(context.Background(), []domain.AggregatedTrade{{TxHash: "0x1", Side: domain.SideBuy}})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("result size = %d, want 0", len(out))
	}
	if gamma.batches != 0 {
		t.Errorf("batches = %d, want 0", gamma.batches)
	}
}
