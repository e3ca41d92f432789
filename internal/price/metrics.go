package price

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StatusMetrics aggregates the per-token market snapshot used by the hourly
// status broadcast. Every field is optional; a nil field means no source
// could provide it. GetStatusMetrics never fails.
type StatusMetrics struct {
	MarketCapUSD  *decimal.Decimal
	Volume24hUSD  *decimal.Decimal
	Buyers24h     *int64
	Sellers24h    *int64
	Holders       *int64
	LargestBuyUSD *decimal.Decimal
}

// GetStatusMetrics reads the portfolio API first and fills whatever is
// missing per field from the block-explorer transfer scan, the holder-count
// endpoint and the AMM lens market cap.
func (r *Resolver) GetStatusMetrics(ctx context.Context, token common.Address) StatusMetrics {
	var m StatusMetrics
	if r == nil {
		return m
	}

	if r.Portfolio != nil {
		if info, err := r.Portfolio.GetToken(ctx, token.Hex()); err == nil && info != nil {
			m.MarketCapUSD = info.MarketCapUSD
			m.Volume24hUSD = info.Volume24hUSD
			m.Buyers24h = info.Buyers24h
			m.Sellers24h = info.Sellers24h
			m.Holders = info.Holders
			m.LargestBuyUSD = info.LargestBuyUSD
		}
	}

	if m.Volume24hUSD == nil || m.Buyers24h == nil || m.Sellers24h == nil || m.LargestBuyUSD == nil {
		r.fillFromExplorerScan(ctx, token, &m)
	}
	if m.Holders == nil && r.Explorer != nil {
		if count, err := r.Explorer.HolderCount(ctx, token.Hex()); err == nil {
			m.Holders = &count
		}
	}
	if m.MarketCapUSD == nil && r.HasAMM && r.Chain != nil {
		if mc, err := r.Chain.MarketCap(ctx, token); err == nil && mc != nil && mc.Sign() > 0 {
			v := decimal.NewFromBigInt(mc, 0).Div(oneE18).Mul(r.NativeUSDRate(ctx))
			m.MarketCapUSD = &v
		}
	}
	return m
}

// fillFromExplorerScan derives volume, buyer/seller counts and the largest
// buy from a sliding 24h window over the explorer transfer listing,
// classifying router-touching transfers as buys or sells.
func (r *Resolver) fillFromExplorerScan(ctx context.Context, token common.Address, m *StatusMetrics) {
	if r.Explorer == nil || r.Chain == nil {
		return
	}
	transfers, err := r.Explorer.TokenTransfers(ctx, token.Hex(), 1000)
	if err != nil || len(transfers) == 0 {
		return
	}
	dec, err := r.Chain.TokenDecimals(ctx, token)
	if err != nil {
		return
	}
	var priceUSD decimal.Decimal
	if p, _ := r.GetPrice(ctx, token); p != nil {
		priceUSD = p.USD
	}

	router := strings.ToLower(r.Router.Hex())
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	volume := decimal.Zero
	largest := decimal.Zero
	buyers := map[string]struct{}{}
	sellers := map[string]struct{}{}
	for _, t := range transfers {
		if t.Timestamp.Before(cutoff) {
			break
		}
		from := strings.ToLower(t.From)
		to := strings.ToLower(t.To)
		if from != router && to != router {
			continue
		}
		amount := decimal.NewFromBigInt(t.Value, -int32(dec))
		usd := amount.Mul(priceUSD)
		volume = volume.Add(usd)
		if from == router {
			buyers[to] = struct{}{}
			if usd.GreaterThan(largest) {
				largest = usd
			}
		} else {
			sellers[from] = struct{}{}
		}
	}

	if m.Volume24hUSD == nil && priceUSD.IsPositive() {
		m.Volume24hUSD = &volume
	}
	if m.Buyers24h == nil {
		n := int64(len(buyers))
		m.Buyers24h = &n
	}
	if m.Sellers24h == nil {
		n := int64(len(sellers))
		m.Sellers24h = &n
	}
	if m.LargestBuyUSD == nil && priceUSD.IsPositive() && largest.IsPositive() {
		m.LargestBuyUSD = &largest
	}
}
