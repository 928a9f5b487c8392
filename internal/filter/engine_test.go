package filter

import (
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func baseTrade() domain.AggregatedTrade {
	return domain.AggregatedTrade{
		TxHash:        "0xabc",
		Wallet:        "0x1",
		ConditionID:   "cond1",
		Side:          domain.SideBuy,
		TotalSize:     25000,
		TotalNotional: 7600,
		VWAP:          0.304,
		Timestamp:     1001,
		FillCount:     2,
	}
}

func baseFilter() domain.UserFilter {
	return domain.UserFilter{
		ID:             "f1",
		ChatID:         "123",
		Enabled:        true,
		MinNotionalUSD: 5000,
		MinPrice:       0.05,
		MaxPrice:       0.95,
		Sides:          []domain.Side{domain.SideBuy},
	}
}

func TestMatches_EndToEndScenario(t *testing.T) {
	if !Matches(baseTrade(), domain.MarketMetadata{ConditionID: "cond1"}, baseFilter()) {
		t.Error("Matches = false for the whale trade scenario, want true")
	}
}

func TestMatches_Gates(t *testing.T) {
	market := domain.MarketMetadata{
		ConditionID: "cond1",
		Categories:  []string{"Politics", "Elections"},
	}

	cases := []struct {
		name   string
		mutate func(*domain.AggregatedTrade, *domain.UserFilter)
		want   bool
	}{
		{"all pass", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {}, true},
		{"disabled", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.Enabled = false
		}, false},
		{"below notional", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.MinNotionalUSD = 10000
		}, false},
		{"notional exactly at threshold", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.MinNotionalUSD = 7600
		}, true},
		{"vwap under range", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.MinPrice = 0.5
		}, false},
		{"vwap over range", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.MaxPrice = 0.2
		}, false},
		{"vwap at inclusive bound", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.MinPrice = 0.304
			f.MaxPrice = 0.304
		}, true},
		{"side not allowed", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.Sides = []domain.Side{domain.SideSell}
		}, false},
		{"no sides allowed", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.Sides = nil
		}, false},
		{"category intersects", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.Categories = []string{"Politics"}
		}, true},
		{"category disjoint", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.Categories = []string{"Sports"}
		}, false},
		{"instrument allowed", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.ConditionIDs = []string{"cond1", "cond2"}
		}, true},
		{"instrument not allowed", func(tr *domain.AggregatedTrade, f *domain.UserFilter) {
			f.ConditionIDs = []string{"cond9"}
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := baseTrade()
			f := baseFilter()
			tc.mutate(&trade, &f)
			if got := Matches(trade, market, f); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatches_CategoryAllowListSemantics(t *testing.T) {
	trade := baseTrade()

	// Empty allow-list passes regardless of market categories.
	f := baseFilter()
	if !Matches(trade, domain.MarketMetadata{}, f) {
		t.Error("empty allow-list rejected a market with no categories")
	}
	if !Matches(trade, domain.MarketMetadata{Categories: []string{"Sports"}}, f) {
		t.Error("empty allow-list rejected a categorised market")
	}

	// Non-empty allow-list never passes a market with no categories.
	f.Categories = []string{"Politics"}
	if Matches(trade, domain.MarketMetadata{}, f) {
		t.Error("non-empty allow-list matched a market with no categories")
	}
}

func TestMatches_PureConjunction(t *testing.T) {
	// Every single-gate failure must reject the trade regardless of the other
	// gates, which is what makes evaluation order irrelevant.
	market := domain.MarketMetadata{ConditionID: "cond1", Categories: []string{"Crypto"}}

	failures := []func(*domain.UserFilter){
		func(f *domain.UserFilter) { f.Enabled = false },
		func(f *domain.UserFilter) { f.MinNotionalUSD = 1e9 },
		func(f *domain.UserFilter) { f.MinPrice, f.MaxPrice = 0.9, 1.0 },
		func(f *domain.UserFilter) { f.Sides = []domain.Side{domain.SideSell} },
		func(f *domain.UserFilter) { f.Categories = []string{"Sports"} },
		func(f *domain.UserFilter) { f.ConditionIDs = []string{"other"} },
	}

	for i, fail := range failures {
		f := baseFilter()
		fail(&f)
		if Matches(baseTrade(), market, f) {
			t.Errorf("gate %d: filter with one failing gate still matched", i)
		}
	}
}

func TestMatchingFilters_PreservesOrder(t *testing.T) {
	market := domain.MarketMetadata{ConditionID: "cond1"}

	pass1 := baseFilter()
	pass1.ID = "first"
	blocked := baseFilter()
	blocked.ID = "blocked"
	blocked.Enabled = false
	pass2 := baseFilter()
	pass2.ID = "second"

	got := MatchingFilters(baseTrade(), market, []domain.UserFilter{pass1, blocked, pass2})

	if len(got) != 2 {
		t.Fatalf("len(matched) = %d, want 2", len(got))
	}
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Errorf("matched order = [%s, %s], want [first, second]", got[0].ID, got[1].ID)
	}
}
