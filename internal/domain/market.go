package domain

import "strings"

// Tag is a gamma API tag attached to a market.
type Tag struct {
	ID    string
	Label string
	Slug  string
}

// MarketMetadata describes the instrument a trade executed on. Categories are
// derived by the keyword classifier from the tag set; the core pipeline only
// consumes them.
type MarketMetadata struct {
	ConditionID string
	Question    string
	Slug        string
	Description string
	Image       string
	Tags        []Tag
	Categories  []string // sorted, deduplicated
	Sports      bool     // any tag id in the sports tag-id set
}

// KnownCategories is the canonical category vocabulary. Filter allow-lists and
// the legacy exclude-list migration are both defined against this set.
var KnownCategories = []string{
	"Politics",
	"Sports",
	"Crypto",
	"Finance",
	"Geopolitics",
	"Earnings",
	"Tech",
	"Culture",
	"World",
	"Economy",
	"Trump",
	"Elections",
	"Mentions",
}

// CanonicalCategory maps a case-insensitive name to its canonical spelling.
// The second return is false for values outside the known set.
func CanonicalCategory(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range KnownCategories {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}
