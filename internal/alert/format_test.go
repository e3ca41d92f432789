package alert

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"buywatch/internal/models"
	"buywatch/internal/price"
)

func TestIconRow(t *testing.T) {
	s := &models.ChatSettings{IconEmoji: "🟢", IconStepUSD: decimal.NewFromInt(50)}
	tests := []struct {
		usd  string
		want int
	}{
		{"10", 1},
		{"50", 1},
		{"100", 2},
		{"5000", 100},
		{"999999", 100}, // capped
	}
	for _, tt := range tests {
		row := iconRow(decimal.RequireFromString(tt.usd), s)
		if n := strings.Count(row, "🟢"); n != tt.want {
			t.Fatalf("iconRow(%s) = %d icons, want %d", tt.usd, n, tt.want)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"999.9", "999.90"},
		{"1000", "1,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-54321", "-54,321.00"},
	}
	for _, tt := range tests {
		if got := formatUSD(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Fatalf("formatUSD(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234567", "1,234,567"},
		{"12.3456", "12.35"},
		{"0.00012345", "0.000123"},
		{"1", "1"},
	}
	for _, tt := range tests {
		if got := formatAmount(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Fatalf("formatAmount(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShortAddress(t *testing.T) {
	got := shortAddress("0x3333333333333333333333333333333333333333")
	if got != "0x3333...3333" {
		t.Fatalf("shortAddress=%q", got)
	}
}

func TestRenderBuyAlert(t *testing.T) {
	mc := decimal.RequireFromString("1000000")
	swap := Swap{
		TokenSymbol:   "T<KN",
		TxURL:         "https://scan.example.org/tx/0xabc1",
		Trader:        "0x3333333333333333333333333333333333333333",
		TokenAmount:   decimal.NewFromInt(1000),
		CounterAmount: decimal.RequireFromString("0.5"),
		CounterSymbol: "ETH",
		USDValue:      decimal.RequireFromString("10"),
		PriceUSD:      decimal.RequireFromString("0.01"),
		MarketCapUSD:  &mc,
		PositionLabel: "+50.00%",
	}
	msg := RenderBuyAlert(swap, &models.ChatSettings{IconStepUSD: decimal.NewFromInt(50)})

	for _, want := range []string{
		"T&lt;KN Buy!",
		"0.5 ETH ($10.00)",
		"1,000 T&lt;KN",
		"$0.01",
		"$1,000,000.00",
		"+50.00%",
		"0x3333...3333",
		`<a href="https://scan.example.org/tx/0xabc1">View Transaction</a>`,
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderStatusMissingFieldsDashed(t *testing.T) {
	msg := RenderStatus("TKN", price.StatusMetrics{})
	if !strings.Contains(msg, "Holders: —") {
		t.Fatalf("missing dash for absent metric:\n%s", msg)
	}
}
