// Package aggregate folds raw fills into whale trades. Fills sharing a
// transaction, wallet, instrument, outcome, and side are one economic event
// (a market order swept across several price levels) and produce a single
// aggregated trade with volume-weighted pricing.
package aggregate

import (
	"fmt"

	"github.com/calweaver/whalebot/internal/domain"
)

// GroupFills partitions fills by aggregation key and folds each partition
// into one AggregatedTrade. Output order follows the first appearance of each
// key in the input, so callers see trades in feed order regardless of how
// fills are interleaved.
func GroupFills(fills []domain.Fill) ([]domain.AggregatedTrade, error) {
	if len(fills) == 0 {
		return nil, nil
	}

	groups := make(map[domain.AggregationKey][]domain.Fill, len(fills))
	order := make([]domain.AggregationKey, 0, len(fills))

	for _, f := range fills {
		key := f.GroupKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	trades := make([]domain.AggregatedTrade, 0, len(order))
	for _, key := range order {
		trade, err := domain.NewAggregatedTrade(groups[key])
		if err != nil {
			return nil, fmt.Errorf("aggregate: fold tx %s: %w", key.TxHash, err)
		}
		trades = append(trades, trade)
	}

	return trades, nil
}
