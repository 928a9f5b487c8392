package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calweaver/whalebot/internal/domain"
	"github.com/calweaver/whalebot/internal/notify"
)

// Config tunes dispatcher throttling and retry behavior. Zero values fall
// back to the defaults noted per field.
type Config struct {
	// GlobalInterval is the minimum gap between any two sends, across all
	// destinations. Default 34ms, roughly 30 messages per second.
	GlobalInterval time.Duration
	// PerChatInterval is the minimum gap between two sends to the same
	// destination. Default 1s.
	PerChatInterval time.Duration
	// MaxAttempts bounds total send attempts per message, counting the
	// first. Default 3.
	MaxAttempts int
	// TransientDelay is the fixed pause before retrying a transient
	// failure. Default 1s.
	TransientDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.GlobalInterval <= 0 {
		c.GlobalInterval = 34 * time.Millisecond
	}
	if c.PerChatInterval <= 0 {
		c.PerChatInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.TransientDelay <= 0 {
		c.TransientDelay = time.Second
	}
	return c
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Enqueued   int64 `json:"enqueued"`
	Sent       int64 `json:"sent"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
	Rejected   int64 `json:"rejected"`
	QueueDepth int   `json:"queue_depth"`
}

// Dispatcher drains the notification queue with one consumer goroutine.
// Provider outcomes drive its policy: rate limits sleep for the provider's
// retry-after, permanent rejections deactivate the destination with a single
// store write, and transient failures get a bounded fixed-delay retry before
// the message is dropped and logged.
type Dispatcher struct {
	cfg      Config
	queue    *Queue
	sink     domain.Sink
	filters  domain.FilterStore
	alerts   domain.AlertStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	// mu guards the send-slot clocks. Only the short reservation happens
	// under it; throttle sleeps and network calls do not hold it.
	mu         sync.Mutex
	lastGlobal time.Time
	lastChat   map[string]time.Time

	enqueued atomic.Int64
	sent     atomic.Int64
	retried  atomic.Int64
	dropped  atomic.Int64
	rejected atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Dispatcher. alerts, bus, and notifier may be nil; the
// corresponding side effects are skipped.
func New(cfg Config, sink domain.Sink, filters domain.FilterStore, alerts domain.AlertStore, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		queue:    NewQueue(),
		sink:     sink,
		filters:  filters,
		alerts:   alerts,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "dispatcher")),
		lastChat: make(map[string]time.Time),
		done:     make(chan struct{}),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Enqueue queues one notification for delivery. It never blocks and fails
// only once shutdown has begun.
func (d *Dispatcher) Enqueue(item Item) error {
	if err := d.queue.Enqueue(item); err != nil {
		return err
	}
	d.enqueued.Add(1)
	return nil
}

// Start launches the consumer goroutine and returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.consume(runCtx)
}

// Stop closes the queue and waits for the consumer to drain the backlog. If
// ctx ends first, in-flight work is cancelled and Stop returns the context
// error once the consumer has exited, so shutdown stays bounded.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.queue.Close()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-d.done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:   d.enqueued.Load(),
		Sent:       d.sent.Load(),
		Retried:    d.retried.Load(),
		Dropped:    d.dropped.Load(),
		Rejected:   d.rejected.Load(),
		QueueDepth: d.queue.Len(),
	}
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer close(d.done)

	d.logger.Info("dispatcher started",
		slog.Duration("global_interval", d.cfg.GlobalInterval),
		slog.Duration("per_chat_interval", d.cfg.PerChatInterval),
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("dispatcher stopped", slog.String("reason", ctx.Err().Error()))
			return
		}

		item, err := d.queue.Pop(ctx)
		if err != nil {
			d.logger.Info("dispatcher stopped", slog.String("reason", err.Error()))
			return
		}

		d.throttle(ctx, item.ChatID)
		d.deliver(ctx, item)
	}
}

// throttle reserves the next send slot for the destination and sleeps until
// it arrives. The slot is the latest of now, the last global send plus the
// global interval, and the destination's last send plus the per-chat
// interval.
func (d *Dispatcher) throttle(ctx context.Context, chatID string) {
	d.mu.Lock()
	slot := d.now()
	if next := d.lastGlobal.Add(d.cfg.GlobalInterval); next.After(slot) {
		slot = next
	}
	if last, ok := d.lastChat[chatID]; ok {
		if next := last.Add(d.cfg.PerChatInterval); next.After(slot) {
			slot = next
		}
	}
	d.lastGlobal = slot
	d.lastChat[chatID] = slot
	wait := slot.Sub(d.now())
	d.mu.Unlock()

	if wait > 0 {
		_ = d.sleep(ctx, wait)
	}
}

// deliver attempts one message until it is sent, rejected, or the attempt
// budget runs out.
func (d *Dispatcher) deliver(ctx context.Context, item Item) {
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		outcome := d.sink.SendAlert(ctx, item.ChatID, item.Text)

		switch outcome.Class {
		case domain.OutcomeSent:
			d.sent.Add(1)
			d.recordSent(ctx, item)
			return

		case domain.OutcomeRateLimited:
			d.logger.Warn("provider throttled send",
				slog.String("chat_id", item.ChatID),
				slog.Duration("retry_after", outcome.RetryAfter),
				slog.Int("attempt", attempt),
			)
			if attempt < d.cfg.MaxAttempts {
				d.retried.Add(1)
				if err := d.sleep(ctx, outcome.RetryAfter); err != nil {
					d.dropped.Add(1)
					return
				}
			}

		case domain.OutcomeRejected:
			d.rejected.Add(1)
			d.deactivate(ctx, item.ChatID, outcome.Err)
			return

		default:
			d.logger.Warn("transient send failure",
				slog.String("chat_id", item.ChatID),
				slog.String("error", errString(outcome.Err)),
				slog.Int("attempt", attempt),
			)
			if attempt < d.cfg.MaxAttempts {
				d.retried.Add(1)
				if err := d.sleep(ctx, d.cfg.TransientDelay); err != nil {
					d.dropped.Add(1)
					return
				}
			}
		}
	}

	d.dropped.Add(1)
	d.logger.Error("message dropped after max attempts",
		slog.String("chat_id", item.ChatID),
		slog.Int("attempts", d.cfg.MaxAttempts),
	)
}

// recordSent logs the delivery, appends the audit record, and broadcasts the
// alert for the ops WebSocket feed. Audit failures are logged, never raised;
// the message is already delivered.
func (d *Dispatcher) recordSent(ctx context.Context, item Item) {
	d.logger.Info("alert sent",
		slog.String("chat_id", item.ChatID),
		slog.String("tx_hash", item.Trade.TxHash),
		slog.Float64("notional", item.Trade.TotalNotional),
	)

	rec := domain.AlertRecord{
		ChatID:        item.ChatID,
		TxHash:        item.Trade.TxHash,
		Wallet:        item.Trade.Wallet,
		ConditionID:   item.Trade.ConditionID,
		Question:      item.Market.Question,
		Side:          item.Trade.Side,
		TotalSize:     item.Trade.TotalSize,
		TotalNotional: item.Trade.TotalNotional,
		VWAP:          item.Trade.VWAP,
		FillCount:     item.Trade.FillCount,
		SentAt:        d.now().UTC(),
	}

	if d.alerts != nil {
		if err := d.alerts.Insert(ctx, rec); err != nil {
			d.logger.Warn("alert audit insert failed", slog.String("error", err.Error()))
		}
	}

	if d.bus != nil {
		payload, err := json.Marshal(rec)
		if err != nil {
			return
		}
		if err := d.bus.Publish(ctx, domain.AlertsChannel, payload); err != nil {
			d.logger.Debug("alert broadcast failed", slog.String("error", err.Error()))
		}
	}
}

// deactivate flips the destination inactive so future cycles stop matching
// it. One store write per rejection; the message itself is not retried.
func (d *Dispatcher) deactivate(ctx context.Context, chatID string, cause error) {
	reason := "provider rejected destination"
	if cause != nil {
		reason = cause.Error()
	}

	d.logger.Warn("deactivating destination",
		slog.String("chat_id", chatID),
		slog.String("reason", reason),
	)

	if err := d.filters.DeactivateDestination(ctx, chatID, reason); err != nil {
		d.logger.Error("destination deactivation failed",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return
	}

	if d.notifier != nil {
		_ = d.notifier.Notify(ctx, notify.EventDeactivation, "Destination deactivated",
			fmt.Sprintf("chat %s deactivated: %s", chatID, reason))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleepCtx pauses for d or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
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
