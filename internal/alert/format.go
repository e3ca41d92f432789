package alert

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"buywatch/internal/models"
	"buywatch/internal/price"
)

const maxIcons = 100

// Swap is a fully-resolved buy ready for fan-out: classified, priced and
// position-labeled. Human* amounts are in token units; Raw* amounts are the
// untouched on-chain integers persisted for dedup.
type Swap struct {
	TokenAddress string
	TokenSymbol  string
	TokenName    string

	TxHash      string
	TxURL       string
	Trader      string
	Venue       string
	BlockNumber uint64
	TxIndex     uint

	TokenAmount   decimal.Decimal
	CounterAmount decimal.Decimal
	CounterSymbol string

	RawTokenAmount   decimal.Decimal
	RawCounterAmount decimal.Decimal

	USDValue      decimal.Decimal
	PriceUSD      decimal.Decimal
	MarketCapUSD  *decimal.Decimal
	PositionLabel string
	Holdings      decimal.Decimal
}

// RenderBuyAlert renders the HTML alert message for one chat. Exported for
// the chat-command layer's alert preview.
func RenderBuyAlert(swap Swap, settings *models.ChatSettings) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s Buy!</b>\n", escapeHTML(swap.TokenSymbol))
	b.WriteString(iconRow(swap.USDValue, settings))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "💰 Spent: %s %s ($%s)\n",
		formatAmount(swap.CounterAmount), escapeHTML(swap.CounterSymbol), formatUSD(swap.USDValue))
	fmt.Fprintf(&b, "🪙 Got: %s %s\n",
		formatAmount(swap.TokenAmount), escapeHTML(swap.TokenSymbol))
	fmt.Fprintf(&b, "📊 Price: $%s\n", swap.PriceUSD.String())
	if swap.MarketCapUSD != nil {
		fmt.Fprintf(&b, "🏦 Market Cap: $%s\n", formatUSD(*swap.MarketCapUSD))
	}
	fmt.Fprintf(&b, "📈 Position: %s\n", escapeHTML(swap.PositionLabel))
	fmt.Fprintf(&b, "👤 Trader: <code>%s</code>\n", shortAddress(swap.Trader))
	if swap.TxURL != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">View Transaction</a>", swap.TxURL)
	}

	return b.String()
}

// RenderStatus renders the hourly status message.
func RenderStatus(symbol string, m price.StatusMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s Hourly Status</b>\n\n", escapeHTML(symbol))
	writeMetric(&b, "🏦 Market Cap", usdOrDash(m.MarketCapUSD))
	writeMetric(&b, "📊 24h Volume", usdOrDash(m.Volume24hUSD))
	writeMetric(&b, "🟢 Buyers (24h)", countOrDash(m.Buyers24h))
	writeMetric(&b, "🔴 Sellers (24h)", countOrDash(m.Sellers24h))
	writeMetric(&b, "👥 Holders", countOrDash(m.Holders))
	writeMetric(&b, "🐳 Largest Buy (24h)", usdOrDash(m.LargestBuyUSD))
	return b.String()
}

func writeMetric(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func usdOrDash(v *decimal.Decimal) string {
	if v == nil {
		return "—"
	}
	return "$" + formatUSD(*v)
}

func countOrDash(v *int64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%d", *v)
}

// iconRow scales the buy-size icon row by the chat's icon step, capped.
func iconRow(usd decimal.Decimal, settings *models.ChatSettings) string {
	emoji := "🟢"
	step := decimal.NewFromInt(50)
	if settings != nil {
		if settings.IconEmoji != "" {
			emoji = settings.IconEmoji
		}
		if settings.IconStepUSD.IsPositive() {
			step = settings.IconStepUSD
		}
	}
	n := int(usd.Div(step).IntPart())
	if n < 1 {
		n = 1
	}
	if n > maxIcons {
		n = maxIcons
	}
	return strings.Repeat(emoji, n)
}

// formatUSD renders with two decimals and thousands separators.
func formatUSD(v decimal.Decimal) string {
	s := v.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	out := groupThousands(parts[0]) + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}

// formatAmount renders a token amount compactly: grouped integers for large
// values, up to four significant decimals for small ones.
func formatAmount(v decimal.Decimal) string {
	abs := v.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return groupThousands(v.Round(0).String())
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return trimZeros(v.Round(2))
	default:
		return trimZeros(v.Round(6))
	}
}

func trimZeros(v decimal.Decimal) string {
	s := v.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
