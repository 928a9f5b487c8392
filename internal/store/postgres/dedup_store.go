package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calweaver/whalebot/internal/domain"
)

// DedupStore implements domain.DedupStore using PostgreSQL. Seen-ness is
// decided at read time against expires_at, so physical retention never
// changes observable behavior; the housekeeper reaps expired rows.
type DedupStore struct {
	pool *pgxpool.Pool
}

// NewDedupStore creates a new DedupStore backed by the given connection pool.
func NewDedupStore(pool *pgxpool.Pool) *DedupStore {
	return &DedupStore{pool: pool}
}

// IsProcessed reports whether the fill key has a live record.
func (s *DedupStore) IsProcessed(ctx context.Context, fillKey string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM processed_fills
			WHERE fill_key = $1 AND expires_at > NOW()
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, fillKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: check processed fill: %w", err)
	}
	return exists, nil
}

// MarkProcessed records the fill key with the given TTL. The primary key on
// fill_key makes concurrent marks converge on a single row; re-marking an
// existing key extends its expiry, which keeps the overlap window intact
// across retries.
func (s *DedupStore) MarkProcessed(ctx context.Context, fillKey string, ttl time.Duration) error {
	const query = `
		INSERT INTO processed_fills (fill_key, expires_at)
		VALUES ($1, NOW() + $2)
		ON CONFLICT (fill_key) DO UPDATE SET
			expires_at = GREATEST(processed_fills.expires_at, EXCLUDED.expires_at)`

	if _, err := s.pool.Exec(ctx, query, fillKey, ttl); err != nil {
		return fmt.Errorf("postgres: mark processed fill: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose expiry has passed and returns the count.
func (s *DedupStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM processed_fills WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("postgres: purge processed fills: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.DedupStore = (*DedupStore)(nil)
