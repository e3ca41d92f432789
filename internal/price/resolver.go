package price

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PortfolioAPI is the off-chain price source.
type PortfolioAPI interface {
	GetToken(ctx context.Context, address string) (*TokenInfo, error)
}

// QuoteReader is the slice of chain access the resolver needs.
type QuoteReader interface {
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	PoolForToken(ctx context.Context, token common.Address) (common.Address, error)
	SpotPrice(ctx context.Context, pool common.Address) (*big.Int, error)
	MarketCap(ctx context.Context, token common.Address) (*big.Int, error)
}

// TokenPrice is a normalized price pair.
type TokenPrice struct {
	Native decimal.Decimal
	USD    decimal.Decimal
}

// Resolver resolves token prices through ordered fallbacks: portfolio API,
// router quote, custom-AMM quoter. A nil result with nil error means every
// source failed; callers must treat it as "unknown", never as zero.
type Resolver struct {
	Portfolio PortfolioAPI
	Chain     QuoteReader
	Explorer  *ExplorerClient
	Logger    *zap.Logger

	Router        common.Address
	WrappedNative common.Address
	Stablecoin    common.Address
	HasAMM        bool

	// Static reference-rate fallback when the router quote fails.
	NativeUSDFallback decimal.Decimal

	// Throttles the reference-rate failure warning so sustained RPC
	// degradation does not flood the log.
	rateWarn *rate.Limiter
}

func NewResolver(portfolio PortfolioAPI, chainReader QuoteReader, explorer *ExplorerClient, logger *zap.Logger) *Resolver {
	return &Resolver{
		Portfolio: portfolio,
		Chain:     chainReader,
		Explorer:  explorer,
		Logger:    logger,
		rateWarn:  rate.NewLimiter(rate.Every(5*time.Minute), 1),
	}
}

// SetRateWarnInterval overrides the reference-rate warning throttle.
func (r *Resolver) SetRateWarnInterval(every time.Duration) {
	if every > 0 {
		r.rateWarn = rate.NewLimiter(rate.Every(every), 1)
	}
}

var oneE18 = decimal.New(1, 18)

// GetPrice resolves a token's native and USD price. Source failures are
// logged and fall through; nil is returned only on total exhaustion.
func (r *Resolver) GetPrice(ctx context.Context, token common.Address) (*TokenPrice, error) {
	if p := r.fromPortfolio(ctx, token); p != nil {
		return p, nil
	}
	if p := r.fromRouterQuote(ctx, token); p != nil {
		return p, nil
	}
	if p := r.fromAMMQuoter(ctx, token); p != nil {
		return p, nil
	}
	return nil, nil
}

func (r *Resolver) fromPortfolio(ctx context.Context, token common.Address) *TokenPrice {
	if r.Portfolio == nil {
		return nil
	}
	info, err := r.Portfolio.GetToken(ctx, token.Hex())
	if err != nil {
		r.debug("portfolio price lookup failed", token, err)
		return nil
	}
	if info == nil || (info.PriceUSD == nil && info.PriceNative == nil) {
		return nil
	}
	ref := r.NativeUSDRate(ctx)
	p := &TokenPrice{}
	switch {
	case info.PriceUSD != nil && info.PriceNative != nil:
		p.USD, p.Native = *info.PriceUSD, *info.PriceNative
	case info.PriceUSD != nil:
		p.USD = *info.PriceUSD
		if ref.IsPositive() {
			p.Native = p.USD.Div(ref)
		}
	default:
		p.Native = *info.PriceNative
		p.USD = p.Native.Mul(ref)
	}
	return p
}

func (r *Resolver) fromRouterQuote(ctx context.Context, token common.Address) *TokenPrice {
	if r.Chain == nil {
		return nil
	}
	dec, err := r.Chain.TokenDecimals(ctx, token)
	if err != nil {
		r.debug("token decimals lookup failed", token, err)
		return nil
	}
	oneUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil)

	var native, usd *decimal.Decimal
	if amounts, err := r.Chain.AmountsOut(ctx, oneUnit, []common.Address{token, r.WrappedNative}); err == nil && len(amounts) > 0 {
		v := decimal.NewFromBigInt(amounts[len(amounts)-1], 0).Div(oneE18)
		native = &v
	}
	if amounts, err := r.Chain.AmountsOut(ctx, oneUnit, []common.Address{token, r.Stablecoin}); err == nil && len(amounts) > 0 {
		stableDec, derr := r.Chain.TokenDecimals(ctx, r.Stablecoin)
		if derr == nil {
			v := decimal.NewFromBigInt(amounts[len(amounts)-1], -int32(stableDec))
			usd = &v
		}
	}
	if native == nil && usd == nil {
		return nil
	}
	ref := r.NativeUSDRate(ctx)
	p := &TokenPrice{}
	switch {
	case native != nil && usd != nil:
		p.Native, p.USD = *native, *usd
	case native != nil:
		p.Native = *native
		p.USD = p.Native.Mul(ref)
	default:
		p.USD = *usd
		if ref.IsPositive() {
			p.Native = p.USD.Div(ref)
		}
	}
	return p
}

func (r *Resolver) fromAMMQuoter(ctx context.Context, token common.Address) *TokenPrice {
	if r.Chain == nil || !r.HasAMM {
		return nil
	}
	pool, err := r.Chain.PoolForToken(ctx, token)
	if err != nil || pool == (common.Address{}) {
		r.debug("amm pool lookup failed", token, err)
		return nil
	}
	spot, err := r.Chain.SpotPrice(ctx, pool)
	if err != nil || spot == nil || spot.Sign() <= 0 {
		r.debug("amm spot price failed", token, err)
		return nil
	}
	native := decimal.NewFromBigInt(spot, 0).Div(oneE18)
	return &TokenPrice{
		Native: native,
		USD:    native.Mul(r.NativeUSDRate(ctx)),
	}
}

// NativeUSDRate quotes the native currency against the reference stablecoin
// through the router, falling back to the configured static rate. The
// failure warning is rate limited to avoid log flooding during sustained
// RPC degradation.
func (r *Resolver) NativeUSDRate(ctx context.Context) decimal.Decimal {
	if r.Chain != nil {
		oneNative := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
		amounts, err := r.Chain.AmountsOut(ctx, oneNative, []common.Address{r.WrappedNative, r.Stablecoin})
		if err == nil && len(amounts) > 0 {
			if stableDec, derr := r.Chain.TokenDecimals(ctx, r.Stablecoin); derr == nil {
				ref := decimal.NewFromBigInt(amounts[len(amounts)-1], -int32(stableDec))
				if ref.IsPositive() {
					return ref
				}
			}
		}
		if r.Logger != nil && r.rateWarn != nil && r.rateWarn.Allow() {
			r.Logger.Warn("native/usd reference quote failed, using static fallback",
				zap.String("fallback", r.NativeUSDFallback.String()),
				zap.Error(err),
			)
		}
	}
	return r.NativeUSDFallback
}

func (r *Resolver) debug(msg string, token common.Address, err error) {
	if r.Logger == nil {
		return
	}
	r.Logger.Debug(msg, zap.String("token", token.Hex()), zap.Error(err))
}
