package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calweaver/whalebot/internal/domain"
)

// MarkerStore implements domain.MarkerStore using PostgreSQL.
type MarkerStore struct {
	pool *pgxpool.Pool
}

// NewMarkerStore creates a new MarkerStore backed by the given connection pool.
func NewMarkerStore(pool *pgxpool.Pool) *MarkerStore {
	return &MarkerStore{pool: pool}
}

// Get returns the global resumption marker. It returns domain.ErrNotFound
// before the first successful poll cycle.
func (s *MarkerStore) Get(ctx context.Context) (domain.Marker, error) {
	const query = `
		SELECT last_timestamp, last_tx_hash, updated_at
		FROM markers
		WHERE name = $1`

	var m domain.Marker
	err := s.pool.QueryRow(ctx, query, domain.MarkerName).
		Scan(&m.LastTimestamp, &m.LastTxHash, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Marker{}, domain.ErrNotFound
		}
		return domain.Marker{}, fmt.Errorf("postgres: get marker: %w", err)
	}
	return m, nil
}

// Upsert persists the marker. The write is idempotent; retrying a failed
// upsert with the same values is always safe.
func (s *MarkerStore) Upsert(ctx context.Context, m domain.Marker) error {
	const query = `
		INSERT INTO markers (name, last_timestamp, last_tx_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET
			last_timestamp = EXCLUDED.last_timestamp,
			last_tx_hash   = EXCLUDED.last_tx_hash,
			updated_at     = NOW()`

	if _, err := s.pool.Exec(ctx, query, domain.MarkerName, m.LastTimestamp, m.LastTxHash); err != nil {
		return fmt.Errorf("postgres: upsert marker: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarkerStore = (*MarkerStore)(nil)
