package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Side is the taker direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalises a raw side string. Anything other than BUY or SELL
// (case-insensitive) is rejected.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("domain: side %q: %w", s, ErrInvalidSide)
	}
}

// Fill is one raw trade event from the data API. Immutable once constructed.
type Fill struct {
	TxHash      string
	Wallet      string // proxy wallet, lowercased
	Side        Side
	Size        float64
	Price       float64
	ConditionID string // optional
	Outcome     string // optional
	Timestamp   int64  // event time, epoch seconds
}

// Notional returns the USD value of the fill.
func (f Fill) Notional() float64 {
	return f.Size * f.Price
}

// Key returns the deduplication identity of the fill. Two fills with the same
// transaction but different size or price are distinct events and produce
// distinct keys.
func (f Fill) Key() string {
	return strings.Join([]string{
		f.TxHash,
		f.Wallet,
		orDash(f.ConditionID),
		orDash(f.Outcome),
		string(f.Side),
		strconv.FormatFloat(f.Size, 'g', -1, 64),
		strconv.FormatFloat(f.Price, 'g', -1, 64),
	}, ":")
}

// AggregationKey groups fills that are economically one trade: a single
// wallet's market order filled across several price levels in one transaction.
type AggregationKey struct {
	TxHash      string
	Wallet      string
	ConditionID string
	Outcome     string
	Side        Side
}

// GroupKey returns the aggregation identity of the fill.
func (f Fill) GroupKey() AggregationKey {
	return AggregationKey{
		TxHash:      f.TxHash,
		Wallet:      f.Wallet,
		ConditionID: f.ConditionID,
		Outcome:     f.Outcome,
		Side:        f.Side,
	}
}

// AggregatedTrade is the fold of one or more fills sharing an AggregationKey.
type AggregatedTrade struct {
	TxHash        string
	Wallet        string
	ConditionID   string
	Outcome       string
	Side          Side
	TotalSize     float64
	TotalNotional float64
	VWAP          float64
	Timestamp     int64 // max across fills
	FillCount     int
}

// NewAggregatedTrade folds fills into a single trade. All fills must share an
// aggregation key; the caller is responsible for partitioning. The VWAP is
// computed from the exact size and notional sums, not a running average, so
// it stays stable across large fill counts.
func NewAggregatedTrade(fills []Fill) (AggregatedTrade, error) {
	if len(fills) == 0 {
		return AggregatedTrade{}, fmt.Errorf("domain: aggregate: %w", ErrNoFills)
	}

	first := fills[0]
	var totalSize, totalNotional float64
	maxTS := first.Timestamp

	for _, f := range fills {
		totalSize += f.Size
		totalNotional += f.Notional()
		if f.Timestamp > maxTS {
			maxTS = f.Timestamp
		}
	}

	vwap := 0.0
	if totalSize > 0 {
		vwap = totalNotional / totalSize
	}

	return AggregatedTrade{
		TxHash:        first.TxHash,
		Wallet:        first.Wallet,
		ConditionID:   first.ConditionID,
		Outcome:       first.Outcome,
		Side:          first.Side,
		TotalSize:     totalSize,
		TotalNotional: totalNotional,
		VWAP:          vwap,
		Timestamp:     maxTS,
		FillCount:     len(fills),
	}, nil
}

// orDash keeps key segments unambiguous when an optional field is absent.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
