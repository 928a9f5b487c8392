package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/calweaver/whalebot/internal/domain"
)

// BuildAlertMessage renders the Telegram HTML notification for one whale
// trade. The same message is sent to every matching subscriber, so it carries
// no per-subscriber state. All interpolated text is HTML-escaped; market
// questions routinely contain characters like & and <.
func BuildAlertMessage(trade domain.AggregatedTrade, market domain.MarketMetadata) string {
	sideEmoji := "🟢"
	if trade.Side == domain.SideSell {
		sideEmoji = "🔴"
	}

	fillInfo := ""
	if trade.FillCount > 1 {
		fillInfo = fmt.Sprintf(" (%d fills in one tx)", trade.FillCount)
	}

	var b strings.Builder
	b.WriteString("🐋 <b>Whale Trade Alert!</b>\n\n")

	b.WriteString("📊 <b>Market:</b> " + html.EscapeString(market.Question) + "\n")
	if line := categoryLine(market); line != "" {
		b.WriteString(line + "\n")
	}
	if line := tagLine(market.Tags); line != "" {
		b.WriteString(line + "\n")
	}

	b.WriteString("\n💰 <b>Trade Details:</b>\n")
	fmt.Fprintf(&b, "%s <b>%s</b> $%s @ %s%s\n",
		sideEmoji, trade.Side, formatAmount(trade.TotalNotional), formatPercent(trade.VWAP, 1), fillInfo)
	fmt.Fprintf(&b, "Total Size: %s | VWAP: %s\n",
		formatAmount(trade.TotalSize), formatPercent(trade.VWAP, 2))

	walletURL := "https://polymarket.com/profile/" + trade.Wallet
	fmt.Fprintf(&b, "\n👤 <b>Trader:</b> <a href=%q>%s</a>\n",
		html.EscapeString(walletURL), html.EscapeString(walletDisplay(trade.Wallet)))

	fmt.Fprintf(&b, "\n🔗 <a href=%q>View Market on Polymarket</a>\n",
		html.EscapeString(MarketURL(market)))

	return b.String()
}

// MarketURL returns the public market page, preferring the event slug and
// falling back to the condition id.
func MarketURL(market domain.MarketMetadata) string {
	if market.Slug != "" {
		return "https://polymarket.com/event/" + market.Slug
	}
	if market.ConditionID != "" {
		return "https://polymarket.com/condition/" + market.ConditionID
	}
	return "https://polymarket.com"
}

func categoryLine(market domain.MarketMetadata) string {
	if market.Sports {
		return "🏈 Sports"
	}
	if len(market.Categories) > 0 {
		return html.EscapeString(market.Categories[0])
	}
	return ""
}

// tagLine renders at most the first three tag labels.
func tagLine(tags []domain.Tag) string {
	if len(tags) == 0 {
		return ""
	}
	labels := make([]string, 0, 3)
	for _, t := range tags {
		label := t.Label
		if label == "" {
			label = t.Slug
		}
		if label == "" {
			continue
		}
		labels = append(labels, html.EscapeString(label))
		if len(labels) == 3 {
			break
		}
	}
	if len(labels) == 0 {
		return ""
	}
	return "🏷️ Tags: " + strings.Join(labels, ", ")
}

// walletDisplay truncates long wallet addresses to the 0x1234...abcd form.
func walletDisplay(wallet string) string {
	if len(wallet) > 10 {
		return wallet[:6] + "..." + wallet[len(wallet)-4:]
	}
	return wallet
}

// formatAmount renders a size or dollar amount with thousands separators and
// two decimals.
func formatAmount(v float64) string {
	return groupThousands(strconv.FormatFloat(v, 'f', 2, 64))
}

func formatPercent(v float64, decimals int) string {
	return strconv.FormatFloat(v*100, 'f', decimals, 64) + "%"
}

// groupThousands inserts commas into the integer part of a fixed-point
// decimal string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(intPart[i])
	}

	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
