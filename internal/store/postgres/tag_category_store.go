package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calweaver/whalebot/internal/domain"
)

// TagCategoryStore implements domain.TagCategoryStore using PostgreSQL. It is
// the durable half of the classifier cache; the classifier warms its in-memory
// view from LoadAll at startup and writes through with UpsertBatch.
type TagCategoryStore struct {
	pool *pgxpool.Pool
}

// NewTagCategoryStore creates a new TagCategoryStore backed by the given pool.
func NewTagCategoryStore(pool *pgxpool.Pool) *TagCategoryStore {
	return &TagCategoryStore{pool: pool}
}

// Get returns the cached categories for one tag id, or domain.ErrNotFound.
func (s *TagCategoryStore) Get(ctx context.Context, tagID string) ([]string, error) {
	var categories []string
	err := s.pool.QueryRow(ctx,
		"SELECT categories FROM tag_categories WHERE tag_id = $1",
		tagID,
	).Scan(&categories)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get tag categories: %w", err)
	}
	return categories, nil
}

// UpsertBatch writes classifier results for many tags in one round trip.
func (s *TagCategoryStore) UpsertBatch(ctx context.Context, categories map[string][]string) error {
	if len(categories) == 0 {
		return nil
	}

	const query = `
		INSERT INTO tag_categories (tag_id, categories, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tag_id) DO UPDATE SET
			categories = EXCLUDED.categories,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for tagID, cats := range categories {
		if cats == nil {
			cats = []string{}
		}
		batch.Queue(query, tagID, cats)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range categories {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert tag categories: %w", err)
		}
	}
	return nil
}

// LoadAll returns the full tag-category map.
func (s *TagCategoryStore) LoadAll(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT tag_id, categories FROM tag_categories")
	if err != nil {
		return nil, fmt.Errorf("postgres: load tag categories: %w", err)
	}
	defer rows.Close()

	all := make(map[string][]string)
	for rows.Next() {
		var (
			tagID      string
			categories []string
		)
		if err := rows.Scan(&tagID, &categories); err != nil {
			return nil, fmt.Errorf("postgres: scan tag categories: %w", err)
		}
		all[tagID] = categories
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load tag categories: %w", err)
	}

	return all, nil
}

// Compile-time interface check.
var _ domain.TagCategoryStore = (*TagCategoryStore)(nil)
