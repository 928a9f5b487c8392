package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calweaver/whalebot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL. The log is
// append-only from the dispatcher's side; the housekeeper trims it after the
// archiver has uploaded the trimmed rows to object storage.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert appends one dispatched alert to the log.
func (s *AlertStore) Insert(ctx context.Context, rec domain.AlertRecord) error {
	const query = `
		INSERT INTO alert_log (
			chat_id, tx_hash, wallet, condition_id, question,
			side, total_size, total_notional, vwap, fill_count, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ChatID, rec.TxHash, rec.Wallet, rec.ConditionID, rec.Question,
		string(rec.Side), rec.TotalSize, rec.TotalNotional, rec.VWAP,
		rec.FillCount, sentAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert: %w", err)
	}
	return nil
}

// ListRecent returns alerts newest first, paginated by opts.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.AlertRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, chat_id, tx_hash, wallet, condition_id, question,
		       side, total_size, total_notional, vwap, fill_count, sent_at
		FROM alert_log
		ORDER BY sent_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	return s.queryAlerts(ctx, query, limit, opts.Offset)
}

// ListBefore returns all alerts sent strictly before the cutoff, oldest first,
// which is the order the archiver writes them out in.
func (s *AlertStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AlertRecord, error) {
	const query = `
		SELECT id, chat_id, tx_hash, wallet, condition_id, question,
		       side, total_size, total_notional, vwap, fill_count, sent_at
		FROM alert_log
		WHERE sent_at < $1
		ORDER BY sent_at ASC, id ASC`

	return s.queryAlerts(ctx, query, before)
}

// DeleteBefore removes alerts sent strictly before the cutoff and returns the
// count. Called only after the corresponding archive upload succeeded.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alert_log WHERE sent_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *AlertStore) queryAlerts(ctx context.Context, query string, args ...any) ([]domain.AlertRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.AlertRecord
	for rows.Next() {
		var (
			rec  domain.AlertRecord
			side string
		)
		if err := rows.Scan(
			&rec.ID, &rec.ChatID, &rec.TxHash, &rec.Wallet, &rec.ConditionID,
			&rec.Question, &side, &rec.TotalSize, &rec.TotalNotional,
			&rec.VWAP, &rec.FillCount, &rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		rec.Side = domain.Side(side)
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}

	return alerts, nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
