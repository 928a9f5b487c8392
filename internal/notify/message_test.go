package notify

import (
	"strings"
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestBuildAlertMessage(t *testing.T) {
	trade := domain.AggregatedTrade{
		TxHash:        "0xfeed",
		Wallet:        "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ConditionID:   "0xc1",
		Side:          domain.SideBuy,
		TotalSize:     82236.842105,
		TotalNotional: 25000,
		VWAP:          0.304,
		FillCount:     2,
	}
	market := domain.MarketMetadata{
		ConditionID: "0xc1",
		Question:    "Will the Chiefs win the Super Bowl?",
		Slug:        "chiefs-win-the-super-bowl",
		Tags: []domain.Tag{
			{ID: "100", Label: "NFL"},
			{ID: "101", Label: "Football"},
			{ID: "102", Label: "Sports"},
			{ID: "103", Label: "Kansas City"},
		},
		Sports: true,
	}

	msg := BuildAlertMessage(trade, market)

	for _, want := range []string{
		"🐋 <b>Whale Trade Alert!</b>",
		"📊 <b>Market:</b> Will the Chiefs win the Super Bowl?",
		"🏈 Sports",
		"🏷️ Tags: NFL, Football, Sports",
		"🟢 <b>BUY</b> $25,000.00 @ 30.4% (2 fills in one tx)",
		"Total Size: 82,236.84 | VWAP: 30.40%",
		`<a href="https://polymarket.com/profile/0xab5801a7d398351b8be11c439e05c5b3259aec9b">0xab58...ec9b</a>`,
		`<a href="https://polymarket.com/event/chiefs-win-the-super-bowl">View Market on Polymarket</a>`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q\nmessage:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Kansas City") {
		t.Errorf("message lists more than three tags:\n%s", msg)
	}
}

func TestBuildAlertMessage_SingleFillSell(t *testing.T) {
	trade := domain.AggregatedTrade{
		Wallet:        "whale.eth",
		Side:          domain.SideSell,
		TotalSize:     100,
		TotalNotional: 50,
		VWAP:          0.5,
		FillCount:     1,
	}
	market := domain.MarketMetadata{
		ConditionID: "0xc2",
		Question:    "Quiet market",
		Categories:  []string{"Politics", "Elections"},
	}

	msg := BuildAlertMessage(trade, market)

	if strings.Contains(msg, "fills in one tx") {
		t.Errorf("single-fill message mentions fill count:\n%s", msg)
	}
	if !strings.Contains(msg, "🔴 <b>SELL</b>") {
		t.Errorf("sell message missing red side marker:\n%s", msg)
	}
	if !strings.Contains(msg, "\nPolitics\n") {
		t.Errorf("non-sports message should show the first category:\n%s", msg)
	}
	if !strings.Contains(msg, ">whale.eth</a>") {
		t.Errorf("short wallet should not be truncated:\n%s", msg)
	}
	if !strings.Contains(msg, `href="https://polymarket.com/condition/0xc2"`) {
		t.Errorf("slugless market should link by condition:\n%s", msg)
	}
}

func TestBuildAlertMessage_EscapesHTML(t *testing.T) {
	trade := domain.AggregatedTrade{
		Side: domain.SideBuy, TotalSize: 1, TotalNotional: 1, VWAP: 1, FillCount: 1,
	}
	market := domain.MarketMetadata{
		Question: "Will <AI> beat humans & machines?",
		Tags:     []domain.Tag{{ID: "1", Label: "Q&A"}},
	}

	msg := BuildAlertMessage(trade, market)

	if !strings.Contains(msg, "Will &lt;AI&gt; beat humans &amp; machines?") {
		t.Errorf("question not escaped:\n%s", msg)
	}
	if !strings.Contains(msg, "Q&amp;A") {
		t.Errorf("tag label not escaped:\n%s", msg)
	}
	if strings.Contains(msg, "<AI>") {
		t.Errorf("raw HTML leaked into message:\n%s", msg)
	}
}

func TestMarketURL(t *testing.T) {
	tests := []struct {
		name   string
		market domain.MarketMetadata
		want   string
	}{
		{"slug", domain.MarketMetadata{Slug: "abc", ConditionID: "0x1"}, "https://polymarket.com/event/abc"},
		{"condition fallback", domain.MarketMetadata{ConditionID: "0x1"}, "https://polymarket.com/condition/0x1"},
		{"bare", domain.MarketMetadata{}, "https://polymarket.com"},
	}
	for _, tt := range tests {
		if got := MarketURL(tt.market); got != tt.want {
			t.Errorf("%s: MarketURL = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{999.5, "999.50"},
		{1000, "1,000.00"},
		{25000, "25,000.00"},
		{1234567.891, "1,234,567.89"},
		{-4200.5, "-4,200.50"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
