package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/calweaver/whalebot/internal/dedup"
	"github.com/calweaver/whalebot/internal/domain"
	"github.com/calweaver/whalebot/internal/notify"
)

// Housekeeper runs periodic maintenance: physically purging expired dedup
// records, pruning the in-process dedup map, and archiving old alert-log rows
// to object storage. Archival is optional; purging always runs.
type Housekeeper struct {
	archiver      domain.AlertArchiver // nil disables archival
	dedupStore    domain.DedupStore
	dedup         *dedup.Deduplicator
	notifier      *notify.Notifier
	retentionDays int
	logger        *slog.Logger
}

// NewHousekeeper creates a Housekeeper. archiver and notifier may be nil.
func NewHousekeeper(archiver domain.AlertArchiver, store domain.DedupStore, dd *dedup.Deduplicator, notifier *notify.Notifier, retentionDays int, logger *slog.Logger) *Housekeeper {
	return &Housekeeper{
		archiver:      archiver,
		dedupStore:    store,
		dedup:         dd,
		notifier:      notifier,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "housekeeper")),
	}
}

// RunOnce executes a single maintenance pass.
func (h *Housekeeper) RunOnce(ctx context.Context) error {
	purged, err := h.dedupStore.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("housekeeper: purge dedup records: %w", err)
	}
	pruned := h.dedup.Prune()

	h.logger.Info("dedup window trimmed",
		slog.Int64("purged", purged),
		slog.Int("pruned", pruned),
	)

	var archived int64
	if h.archiver != nil {
		cutoff := time.Now().UTC().Add(-time.Duration(h.retentionDays) * 24 * time.Hour)
		archived, err = h.archiver.ArchiveAlerts(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("housekeeper: archive alerts: %w", err)
		}
		h.logger.Info("alerts archived",
			slog.Int64("count", archived),
			slog.Time("cutoff", cutoff),
		)
	}

	if h.notifier != nil {
		_ = h.notifier.Notify(ctx, notify.EventArchive, "Housekeeping complete",
			fmt.Sprintf("purged %d dedup records, archived %d alerts", purged, archived))
	}
	return nil
}

// RunCron runs maintenance on a cron schedule until the context is cancelled.
// The expression uses the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 4 1 * *" runs at 4:00 AM on the 1st of every month.
func (h *Housekeeper) RunCron(ctx context.Context, cronExpr string) error {
	h.logger.Info("housekeeper cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("housekeeper: parse cron %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		h.logger.Info("housekeeper waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.logger.Info("housekeeper cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := h.RunOnce(ctx); err != nil {
				h.logger.Error("housekeeping run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
