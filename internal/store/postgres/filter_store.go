package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calweaver/whalebot/internal/domain"
)

// FilterStore implements domain.FilterStore using PostgreSQL. Reads join
// subscriber filters against the destination table so matching only ever
// sees filters that can actually be delivered. Legacy exclude-lists are
// migrated to the allow-list representation during scanning; the rest of the
// system never sees an exclude-list.
type FilterStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewFilterStore creates a new FilterStore backed by the given connection pool.
func NewFilterStore(pool *pgxpool.Pool, logger *slog.Logger) *FilterStore {
	return &FilterStore{
		pool:   pool,
		logger: logger.With(slog.String("component", "filter_store")),
	}
}

// ListActive returns all enabled filters whose destination is active, in a
// stable id order.
func (s *FilterStore) ListActive(ctx context.Context) ([]domain.UserFilter, error) {
	const query = `
		SELECT f.id, f.chat_id, f.enabled, f.min_notional_usd,
		       f.min_price, f.max_price, f.sides, f.condition_ids,
		       f.categories, f.excluded_categories, f.updated_at
		FROM user_filters f
		JOIN destinations d ON d.chat_id = f.chat_id
		WHERE f.enabled AND d.active
		ORDER BY f.id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active filters: %w", err)
	}
	defer rows.Close()

	var filters []domain.UserFilter
	for rows.Next() {
		var (
			f        domain.UserFilter
			sides    []string
			excluded []string
		)
		if err := rows.Scan(
			&f.ID, &f.ChatID, &f.Enabled, &f.MinNotionalUSD,
			&f.MinPrice, &f.MaxPrice, &sides, &f.ConditionIDs,
			&f.Categories, &excluded, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan filter: %w", err)
		}

		f.Sides = parseSides(sides)
		f.Categories = s.migrateCategories(f.ID, f.Categories, excluded)

		if err := f.Validate(); err != nil {
			s.logger.Warn("skipping invalid filter row",
				slog.String("filter_id", f.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		filters = append(filters, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active filters: %w", err)
	}

	return filters, nil
}

// DeactivateDestination flips the destination inactive so future reloads stop
// returning its filters. The write is idempotent.
func (s *FilterStore) DeactivateDestination(ctx context.Context, chatID, reason string) error {
	const query = `
		UPDATE destinations
		SET active = FALSE, reason = $2, updated_at = NOW()
		WHERE chat_id = $1`

	if _, err := s.pool.Exec(ctx, query, chatID, reason); err != nil {
		return fmt.Errorf("postgres: deactivate destination %s: %w", chatID, err)
	}
	return nil
}

// migrateCategories resolves the allow-list for one filter row. A populated
// allow-list wins outright. Otherwise a legacy exclude-list, if present, is
// inverted against the canonical category set; legacy values outside that
// set are dropped with a warning rather than silently included.
func (s *FilterStore) migrateCategories(filterID string, allow, excluded []string) []string {
	if len(allow) > 0 || len(excluded) == 0 {
		return allow
	}

	drop := make(map[string]bool, len(excluded))
	for _, raw := range excluded {
		canonical, ok := domain.CanonicalCategory(raw)
		if !ok {
			s.logger.Warn("dropping unknown legacy excluded category",
				slog.String("filter_id", filterID),
				slog.String("category", raw),
			)
			continue
		}
		drop[canonical] = true
	}

	inverted := make([]string, 0, len(domain.KnownCategories))
	for _, c := range domain.KnownCategories {
		if !drop[c] {
			inverted = append(inverted, c)
		}
	}
	return inverted
}

// parseSides converts the raw side column, dropping unparseable values.
func parseSides(raw []string) []domain.Side {
	sides := make([]domain.Side, 0, len(raw))
	for _, r := range raw {
		side, err := domain.ParseSide(r)
		if err != nil {
			continue
		}
		sides = append(sides, side)
	}
	return sides
}

// Compile-time interface check.
var _ domain.FilterStore = (*FilterStore)(nil)
