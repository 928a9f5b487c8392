// Package filter evaluates aggregated trades against subscriber filters.
// Matching is pure predicate logic: no I/O, no side effects, and every gate
// is conjunctive, so evaluation order only affects short-circuit cost.
package filter

import "github.com/calweaver/whalebot/internal/domain"

// Matches reports whether a trade on the given market satisfies the filter.
// Gates, all of which must pass:
//
//  1. the filter is enabled
//  2. total notional meets the minimum threshold
//  3. the VWAP lies inside the inclusive price range
//  4. the trade side is one of the allowed sides
//  5. a non-empty category allow-list intersects the market's categories
//  6. a non-empty instrument allow-list contains the trade's condition id
func Matches(trade domain.AggregatedTrade, market domain.MarketMetadata, f domain.UserFilter) bool {
	if !f.Enabled {
		return false
	}
	if trade.TotalNotional < f.MinNotionalUSD {
		return false
	}
	if trade.VWAP < f.MinPrice || trade.VWAP > f.MaxPrice {
		return false
	}
	if !sideAllowed(trade.Side, f.Sides) {
		return false
	}
	if !categoriesAllowed(market.Categories, f.Categories) {
		return false
	}
	if !conditionAllowed(trade.ConditionID, f.ConditionIDs) {
		return false
	}
	return true
}

// MatchingFilters returns the subset of filters the trade matches, preserving
// the input order. Ordering carries no significance ranking.
func MatchingFilters(trade domain.AggregatedTrade, market domain.MarketMetadata, filters []domain.UserFilter) []domain.UserFilter {
	var matched []domain.UserFilter
	for _, f := range filters {
		if Matches(trade, market, f) {
			matched = append(matched, f)
		}
	}
	return matched
}

func sideAllowed(side domain.Side, allowed []domain.Side) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, s := range allowed {
		if s == side {
			return true
		}
	}
	return false
}

// categoriesAllowed implements the allow-list semantics: an empty allow-list
// passes every market, while a non-empty allow-list requires at least one
// shared category. A market with no categories never passes a non-empty list.
func categoriesAllowed(marketCategories, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	if len(marketCategories) == 0 {
		return false
	}
	allowed := make(map[string]struct{}, len(allowList))
	for _, c := range allowList {
		allowed[c] = struct{}{}
	}
	for _, c := range marketCategories {
		if _, ok := allowed[c]; ok {
			return true
		}
	}
	return false
}

func conditionAllowed(conditionID string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, id := range allowList {
		if id == conditionID {
			return true
		}
	}
	return false
}
