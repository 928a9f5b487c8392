// Package pipeline contains the worker's long-running loops: the poller that
// turns the public trade feed into queued notifications, the enricher that
// resolves market metadata for it, and the housekeeper that archives and
// prunes on a cron schedule.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calweaver/whalebot/internal/aggregate"
	"github.com/calweaver/whalebot/internal/dedup"
	"github.com/calweaver/whalebot/internal/dispatch"
	"github.com/calweaver/whalebot/internal/domain"
	"github.com/calweaver/whalebot/internal/filter"
	"github.com/calweaver/whalebot/internal/notify"
)

// TradeSource is the slice of the data-API client the poller consumes.
type TradeSource interface {
	RecentTrades(ctx context.Context, limit int, minNotional float64) ([]domain.Fill, error)
}

// Enqueuer accepts rendered notifications for delivery.
type Enqueuer interface {
	Enqueue(item dispatch.Item) error
}

// PollerConfig tunes the cursor loop.
type PollerConfig struct {
	// Interval is the fixed sleep between cycles. No backoff on success.
	Interval time.Duration
	// MaxTrades bounds the fetch window requested per cycle.
	MaxTrades int
	// MinNotionalHint is forwarded to the trade source as a server-side
	// filter. Zero disables it.
	MinNotionalHint float64
	// ReloadInterval is the periodic filter-reload fallback; the reload flag
	// on the signal bus forces a reload sooner.
	ReloadInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MaxTrades <= 0 {
		c.MaxTrades = 1000
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = time.Minute
	}
	return c
}

// PollerStats is a point-in-time snapshot of loop counters for the ops
// surface.
type PollerStats struct {
	Cycles        int64         `json:"cycles"`
	FillsFetched  int64         `json:"fills_fetched"`
	Duplicates    int64         `json:"duplicates"`
	Trades        int64         `json:"trades"`
	Matched       int64         `json:"matched"`
	CycleErrors   int64         `json:"cycle_errors"`
	FiltersLoaded int           `json:"filters_loaded"`
	Marker        domain.Marker `json:"marker"`
}

// Poller runs the cursor loop: fetch the newest fill window, drop everything
// already processed, aggregate the remainder into whale trades, enrich, match
// against subscriber filters, and hand matches to the dispatcher. Each cycle
// is independent; any error inside one is caught at the cycle boundary.
type Poller struct {
	cfg      PollerConfig
	source   TradeSource
	enricher *Enricher
	dedup    *dedup.Deduplicator
	markers  domain.MarkerStore
	filters  domain.FilterStore
	bus      domain.SignalBus
	queue    Enqueuer
	logger   *slog.Logger

	mu         sync.RWMutex
	active     []domain.UserFilter
	lastReload time.Time
	marker     domain.Marker

	cycles       atomic.Int64
	fillsFetched atomic.Int64
	duplicates   atomic.Int64
	trades       atomic.Int64
	matched      atomic.Int64
	cycleErrors  atomic.Int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller. bus may be nil; reloads then happen only on the
// periodic interval.
func NewPoller(cfg PollerConfig, source TradeSource, enricher *Enricher, dd *dedup.Deduplicator, markers domain.MarkerStore, filters domain.FilterStore, bus domain.SignalBus, queue Enqueuer, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:      cfg.withDefaults(),
		source:   source,
		enricher: enricher,
		dedup:    dd,
		markers:  markers,
		filters:  filters,
		bus:      bus,
		queue:    queue,
		logger:   logger.With(slog.String("component", "poller")),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Stats returns a snapshot of the loop counters.
func (p *Poller) Stats() PollerStats {
	p.mu.RLock()
	loaded := len(p.active)
	marker := p.marker
	p.mu.RUnlock()

	return PollerStats{
		Cycles:        p.cycles.Load(),
		FillsFetched:  p.fillsFetched.Load(),
		Duplicates:    p.duplicates.Load(),
		Trades:        p.trades.Load(),
		Matched:       p.matched.Load(),
		CycleErrors:   p.cycleErrors.Load(),
		FiltersLoaded: loaded,
		Marker:        marker,
	}
}

// Run executes poll cycles until the context ends. It always returns
// ctx.Err(); nothing inside a cycle is fatal.
func (p *Poller) Run(ctx context.Context) error {
	p.loadMarker(ctx)
	p.enricher.Warm(ctx)
	p.reloadFilters(ctx, true)

	p.logger.Info("poll loop started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("max_trades", p.cfg.MaxTrades),
	)

	for {
		p.runCycle(ctx)
		p.cycles.Add(1)

		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			p.logger.Info("poll loop stopped", slog.String("reason", err.Error()))
			return ctx.Err()
		}
	}
}

// loadMarker restores the resumption point. A missing or never-populated
// marker means a fresh deployment; a load failure is logged and the loop
// starts from zero, which dedup keeps harmless.
func (p *Poller) loadMarker(ctx context.Context) {
	m, err := p.markers.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("marker load failed", slog.String("error", err.Error()))
		}
		m = domain.Marker{}
	}

	if m.IsZero() {
		p.logger.Info("no marker found, starting from the live window")
		return
	}

	p.mu.Lock()
	p.marker = m
	p.mu.Unlock()

	p.logger.Info("marker restored",
		slog.Int64("last_timestamp", m.LastTimestamp),
		slog.String("last_tx_hash", m.LastTxHash),
	)
}

// runCycle performs one fetch-to-dispatch pass. Every error path logs and
// returns; the loop itself never sees a cycle failure.
func (p *Poller) runCycle(ctx context.Context) {
	p.maybeReloadFilters(ctx)

	fills, err := p.source.RecentTrades(ctx, p.cfg.MaxTrades, p.cfg.MinNotionalHint)
	if err != nil {
		p.cycleErrors.Add(1)
		p.logger.Warn("trade fetch failed", slog.String("error", err.Error()))
		return
	}
	p.fillsFetched.Add(int64(len(fills)))

	fresh := p.filterSeen(ctx, fills)
	if len(fresh) == 0 {
		return
	}

	trades, err := aggregate.GroupFills(fresh)
	if err != nil {
		p.cycleErrors.Add(1)
		p.logger.Error("aggregation failed", slog.String("error", err.Error()))
		return
	}

	markets, err := p.enricher.Enrich(ctx, trades)
	if err != nil {
		p.cycleErrors.Add(1)
		p.logger.Warn("enrichment failed, cycle skipped", slog.String("error", err.Error()))
		return
	}

	fillKeys := groupFillKeys(fresh)

	var newest domain.AggregatedTrade
	processed := 0
	for _, trade := range trades {
		market, ok := markets[trade.ConditionID]
		if trade.ConditionID != "" && !ok {
			// Unresolved metadata: leave the fills unmarked so the trade
			// stays eligible next cycle.
			p.logger.Debug("trade skipped pending metadata",
				slog.String("tx_hash", trade.TxHash),
				slog.String("condition_id", trade.ConditionID),
			)
			continue
		}

		if !p.markTrade(ctx, trade, fillKeys) {
			continue
		}

		p.dispatchMatches(trade, market)

		processed++
		if trade.Timestamp >= newest.Timestamp {
			newest = trade
		}
	}
	p.trades.Add(int64(processed))

	if processed > 0 {
		p.advanceMarker(ctx, newest)
	}
}

// filterSeen drops fills already recorded by the deduplicator. A failed check
// counts the fill as seen: a missed notification is acceptable, a duplicate
// is not.
func (p *Poller) filterSeen(ctx context.Context, fills []domain.Fill) []domain.Fill {
	fresh := fills[:0:0]
	for _, f := range fills {
		seen, err := p.dedup.IsProcessed(ctx, f.Key())
		if err != nil {
			p.cycleErrors.Add(1)
			p.logger.Warn("dedup check failed, fill skipped",
				slog.String("fill_key", f.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if seen {
			p.duplicates.Add(1)
			continue
		}
		fresh = append(fresh, f)
	}
	return fresh
}

// markTrade records all of the trade's fills as processed. Marking precedes
// enqueueing, so a crash in between loses at most the notification. A failed
// mark skips the trade entirely; it stays eligible for a later cycle.
func (p *Poller) markTrade(ctx context.Context, trade domain.AggregatedTrade, fillKeys map[domain.AggregationKey][]string) bool {
	key := domain.AggregationKey{
		TxHash:      trade.TxHash,
		Wallet:      trade.Wallet,
		ConditionID: trade.ConditionID,
		Outcome:     trade.Outcome,
		Side:        trade.Side,
	}
	for _, fillKey := range fillKeys[key] {
		if err := p.dedup.MarkProcessed(ctx, fillKey); err != nil {
			p.cycleErrors.Add(1)
			p.logger.Warn("dedup mark failed, trade deferred",
				slog.String("tx_hash", trade.TxHash),
				slog.String("error", err.Error()),
			)
			return false
		}
	}
	return true
}

// dispatchMatches renders the alert once and enqueues it for every matching
// filter.
func (p *Poller) dispatchMatches(trade domain.AggregatedTrade, market domain.MarketMetadata) {
	p.mu.RLock()
	active := p.active
	p.mu.RUnlock()

	matches := filter.MatchingFilters(trade, market, active)
	if len(matches) == 0 {
		return
	}

	text := notify.BuildAlertMessage(trade, market)
	for _, f := range matches {
		err := p.queue.Enqueue(dispatch.Item{
			ChatID: f.ChatID,
			Text:   text,
			Trade:  trade,
			Market: market,
		})
		if err != nil {
			p.logger.Warn("enqueue failed", slog.String("error", err.Error()))
			return
		}
		p.matched.Add(1)
	}

	p.logger.Info("whale trade matched",
		slog.String("tx_hash", trade.TxHash),
		slog.Float64("notional", trade.TotalNotional),
		slog.Int("subscribers", len(matches)),
	)
}

// advanceMarker moves the resumption point to the newest trade of the cycle.
// The persisted timestamp never decreases; a cycle that only processed older
// trades leaves the marker alone.
func (p *Poller) advanceMarker(ctx context.Context, newest domain.AggregatedTrade) {
	p.mu.Lock()
	if newest.Timestamp < p.marker.LastTimestamp {
		p.mu.Unlock()
		return
	}
	m := domain.Marker{
		LastTimestamp: newest.Timestamp,
		LastTxHash:    newest.TxHash,
		UpdatedAt:     p.now().UTC(),
	}
	p.marker = m
	p.mu.Unlock()

	if err := p.markers.Upsert(ctx, m); err != nil {
		p.cycleErrors.Add(1)
		p.logger.Warn("marker upsert failed", slog.String("error", err.Error()))
	}
}

// maybeReloadFilters reloads the active filter set when the signal bus flag
// is set or the periodic interval has elapsed.
func (p *Poller) maybeReloadFilters(ctx context.Context) {
	forced := false
	if p.bus != nil {
		set, err := p.bus.ConsumeReloadFlag(ctx)
		if err != nil {
			p.logger.Warn("reload flag check failed", slog.String("error", err.Error()))
		}
		forced = set
	}

	p.mu.RLock()
	due := p.now().Sub(p.lastReload) >= p.cfg.ReloadInterval
	p.mu.RUnlock()

	if forced || due {
		p.reloadFilters(ctx, forced)
	}
}

// reloadFilters re-reads the filter set, replacing the in-memory copy only on
// success. A failed reload keeps the previous set authoritative.
func (p *Poller) reloadFilters(ctx context.Context, forced bool) {
	loaded, err := p.filters.ListActive(ctx)
	if err != nil {
		p.logger.Warn("filter reload failed, keeping previous set",
			slog.String("error", err.Error()),
		)
		return
	}

	p.mu.Lock()
	changed := !filtersEqual(p.active, loaded)
	p.active = loaded
	p.lastReload = p.now()
	p.mu.Unlock()

	p.logger.Info("filters reloaded",
		slog.Int("count", len(loaded)),
		slog.Bool("changed", changed),
		slog.Bool("forced", forced),
	)
}

// groupFillKeys records which fill keys belong to each aggregation key, so a
// trade's fills can be marked once its enrichment succeeded.
func groupFillKeys(fills []domain.Fill) map[domain.AggregationKey][]string {
	keys := make(map[domain.AggregationKey][]string, len(fills))
	for _, f := range fills {
		gk := f.GroupKey()
		keys[gk] = append(keys[gk], f.Key())
	}
	return keys
}

func filtersEqual(a, b []domain.UserFilter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// sleepCtx pauses for d or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
