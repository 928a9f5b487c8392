package categorize

import (
	"strings"

	"github.com/calweaver/whalebot/internal/domain"
)

// categoryKeywords drives tag classification. A tag maps to a category when
// any keyword appears as a substring of its lowercased "label slug" text.
// Mentions carries no keywords and is only ever assigned explicitly.
var categoryKeywords = map[string][]string{
	"Politics": {"politics", "political", "election", "president", "congress", "senate", "house",
		"democrat", "republican", "vote", "voting", "candidate", "campaign"},
	"Sports": {"sports", "sport", "football", "basketball", "baseball", "soccer", "nfl", "nba",
		"mlb", "nhl", "olympics", "championship", "tournament"},
	"Crypto": {"crypto", "cryptocurrency", "bitcoin", "ethereum", "btc", "eth", "blockchain",
		"defi", "nft", "web3", "token"},
	"Finance": {"finance", "financial", "stock", "market", "trading", "investment", "bank",
		"banking", "economy", "federal reserve", "fed"},
	"Geopolitics": {"geopolitics", "geopolitical", "war", "conflict", "diplomacy", "international",
		"foreign policy", "military", "nato", "united nations"},
	"Earnings": {"earnings", "quarterly", "q1", "q2", "q3", "q4", "revenue", "profit",
		"financial report", "earnings report"},
	"Tech": {"tech", "technology", "ai", "artificial intelligence", "software", "hardware",
		"startup", "silicon valley", "tech company"},
	"Culture": {"culture", "entertainment", "movie", "tv", "television", "celebrity", "music",
		"art", "media", "film", "show"},
	"World": {"world", "global", "international", "country", "nation", "worldwide"},
	"Economy": {"economy", "economic", "gdp", "inflation", "unemployment", "recession",
		"growth", "economic growth"},
	"Trump": {"trump", "donald trump", "trump administration"},
	"Elections": {"election", "elections", "presidential election", "midterm", "primary",
		"general election", "ballot"},
}

// InferTagCategories classifies a tag by keyword matching against its label
// and slug. Results follow the canonical category order so repeated inference
// of the same tag is byte-for-byte stable.
func InferTagCategories(label, slug string) []string {
	searchText := strings.ToLower(label) + " " + strings.ToLower(slug)

	var matched []string
	for _, category := range domain.KnownCategories {
		keywords, ok := categoryKeywords[category]
		if !ok {
			continue // Mentions
		}
		for _, keyword := range keywords {
			if strings.Contains(searchText, keyword) {
				matched = append(matched, category)
				break
			}
		}
	}
	return matched
}
