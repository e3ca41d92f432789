package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// PortfolioClient talks to the off-chain portfolio API. The response is a
// loosely-typed JSON object whose numeric fields appear under several
// possible key names depending on the upstream indexer version, so fields
// are probed and validated rather than decoded into a fixed struct.
type PortfolioClient struct {
	BaseURL string
	HTTP    *http.Client
}

// TokenInfo carries whichever portfolio fields were present and valid.
// A nil field means the API did not report a usable value.
type TokenInfo struct {
	PriceUSD    *decimal.Decimal
	PriceNative *decimal.Decimal

	MarketCapUSD  *decimal.Decimal
	Volume24hUSD  *decimal.Decimal
	Buyers24h     *int64
	Sellers24h    *int64
	Holders       *int64
	LargestBuyUSD *decimal.Decimal
}

func (c *PortfolioClient) GetToken(ctx context.Context, address string) (*TokenInfo, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("portfolio api not configured")
	}
	endpoint := c.BaseURL + "/api/v1/tokens/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portfolio api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("portfolio api decode: %w", err)
	}
	// Some deployments nest the payload under "data" and/or "token".
	for depth := 0; depth < 3; depth++ {
		unwrapped := false
		for _, key := range []string{"data", "token"} {
			if nested, ok := raw[key].(map[string]any); ok {
				raw = nested
				unwrapped = true
				break
			}
		}
		if !unwrapped {
			break
		}
	}
	return parseTokenInfo(raw), nil
}

func parseTokenInfo(raw map[string]any) *TokenInfo {
	return &TokenInfo{
		PriceUSD:      probeNumber(raw, "price_usd", "priceUsd", "priceUSD", "usd_price", "usdPrice"),
		PriceNative:   probeNumber(raw, "price_native", "priceNative", "native_price", "nativePrice", "price_eth", "priceEth"),
		MarketCapUSD:  probeNumber(raw, "market_cap", "marketCap", "market_cap_usd", "marketCapUsd", "mcap", "fdv"),
		Volume24hUSD:  probeNumber(raw, "volume_24h", "volume24h", "h24_volume", "volume_usd_24h", "volume24hUsd"),
		Buyers24h:     probeCount(raw, "buyers_24h", "buyers24h", "buyers", "buy_count_24h"),
		Sellers24h:    probeCount(raw, "sellers_24h", "sellers24h", "sellers", "sell_count_24h"),
		Holders:       probeCount(raw, "holders", "holder_count", "holderCount", "holders_count"),
		LargestBuyUSD: probeNumber(raw, "largest_buy_24h", "largestBuy24h", "max_buy_24h", "maxBuy24h", "largest_buy"),
	}
}

// probeNumber tries keys in order, accepting json numbers and numeric
// strings, and only returns values that are positive and finite.
func probeNumber(raw map[string]any, keys ...string) *decimal.Decimal {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n) {
				d := decimal.NewFromFloat(n)
				return &d
			}
		case string:
			if d, err := decimal.NewFromString(n); err == nil && d.IsPositive() {
				return &d
			}
		}
	}
	return nil
}

func probeCount(raw map[string]any, keys ...string) *int64 {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n >= 0 && !math.IsInf(n, 0) && !math.IsNaN(n) {
				c := int64(n)
				return &c
			}
		case string:
			if c, err := strconv.ParseInt(n, 10, 64); err == nil && c >= 0 {
				return &c
			}
		}
	}
	return nil
}
