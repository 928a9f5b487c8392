package domain

import (
	"fmt"
	"time"
)

// UserFilter is one subscriber's matching rule. A subscriber may own several
// filters; each carries the destination its matches are delivered to.
type UserFilter struct {
	ID             string
	ChatID         string // notification destination
	Enabled        bool
	MinNotionalUSD float64
	MinPrice       float64 // inclusive, within [0,1]
	MaxPrice       float64 // inclusive, within [0,1]
	Sides          []Side
	ConditionIDs   []string // optional instrument allow-list
	Categories     []string // optional category allow-list; empty means all
	UpdatedAt      time.Time
}

// Validate checks the structural invariants of the filter.
func (f UserFilter) Validate() error {
	if f.MinPrice < 0 || f.MaxPrice > 1 {
		return fmt.Errorf("domain: price range [%v, %v] outside [0,1]: %w", f.MinPrice, f.MaxPrice, ErrInvalidFilter)
	}
	if f.MinPrice > f.MaxPrice {
		return fmt.Errorf("domain: min price %v above max price %v: %w", f.MinPrice, f.MaxPrice, ErrInvalidFilter)
	}
	if f.ChatID == "" {
		return fmt.Errorf("domain: filter has no destination: %w", ErrInvalidFilter)
	}
	return nil
}

// Equal reports whether two filters have identical matching behaviour.
// UpdatedAt is deliberately ignored: the poll loop uses Equal to decide
// whether a reload actually changed anything.
func (f UserFilter) Equal(o UserFilter) bool {
	if f.ID != o.ID || f.ChatID != o.ChatID || f.Enabled != o.Enabled {
		return false
	}
	if f.MinNotionalUSD != o.MinNotionalUSD || f.MinPrice != o.MinPrice || f.MaxPrice != o.MaxPrice {
		return false
	}
	if !equalSides(f.Sides, o.Sides) {
		return false
	}
	if !equalStrings(f.ConditionIDs, o.ConditionIDs) {
		return false
	}
	return equalStrings(f.Categories, o.Categories)
}

func equalSides(a, b []Side) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
