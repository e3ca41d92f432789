package classifier

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"buywatch/internal/chain"
)

const (
	VenueRouter = "router"
	VenueAMM    = "amm"

	TxTypeBuy = "buy"
)

// TxReader is the slice of chain access the classifier needs.
type TxReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, common.Address, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenForPool(ctx context.Context, pool common.Address) (common.Address, error)
}

// Buy is a classified token purchase, venue-agnostic.
type Buy struct {
	Token       common.Address
	Trader      common.Address
	TokenAmount *big.Int

	CounterAmount   *big.Int
	CounterSymbol   string
	CounterDecimals uint8

	Venue       string
	TxHash      common.Hash
	BlockNumber uint64
	TxIndex     uint
}

// Classifier decides whether raw venue events represent human buys. Both
// venues are classified by structural position in the transfer/event graph;
// calldata is decoded only to attribute the counter-asset paid.
type Classifier struct {
	Router         common.Address
	AMMQuote       common.Address
	AMMQuoteSymbol string
	NativeSymbol   string
	Chain          TxReader
	Logger         *zap.Logger
}

// ClassifyTransfer inspects an ERC20 Transfer and its originating
// transaction. A buy is either the router sending tokens out (recipient is
// the trader) or a multi-hop swap whose transaction targets the router and
// delivers to the transaction sender. Anything else is discarded.
func (c *Classifier) ClassifyTransfer(ctx context.Context, ev chain.TransferEvent) (*Buy, error) {
	if c == nil || c.Chain == nil {
		return nil, nil
	}
	if ev.To == (common.Address{}) || ev.Value == nil || ev.Value.Sign() <= 0 {
		return nil, nil
	}

	var trader common.Address
	switch {
	case ev.From == c.Router:
		trader = ev.To
	default:
		tx, sender, err := c.Chain.TransactionByHash(ctx, ev.TxHash)
		if err != nil {
			return nil, fmt.Errorf("load tx %s: %w", ev.TxHash.Hex(), err)
		}
		if tx.To() == nil || *tx.To() != c.Router || ev.To != sender {
			return nil, nil
		}
		trader = sender
	}

	buy := &Buy{
		Token:       ev.Token,
		Trader:      trader,
		TokenAmount: ev.Value,
		Venue:       VenueRouter,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		TxIndex:     ev.TxIndex,
	}
	c.attributeCounterAsset(ctx, buy)
	return buy, nil
}

// ClassifySwap inspects a custom-AMM swap log. A buy is recognized when
// tokenIn is the protocol quote currency and the pool resolves to a token
// the system currently watches.
func (c *Classifier) ClassifySwap(ctx context.Context, ev chain.SwapEvent, watched func(common.Address) bool) (*Buy, error) {
	if c == nil || c.Chain == nil || watched == nil {
		return nil, nil
	}
	if ev.TokenIn != c.AMMQuote {
		return nil, nil
	}
	token, err := c.Chain.TokenForPool(ctx, ev.Pool)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %s: %w", ev.Pool.Hex(), err)
	}
	if !watched(token) {
		return nil, nil
	}
	return &Buy{
		Token:           token,
		Trader:          ev.Trader,
		TokenAmount:     ev.AmountOut,
		CounterAmount:   ev.AmountIn,
		CounterSymbol:   c.AMMQuoteSymbol,
		CounterDecimals: 18,
		Venue:           VenueAMM,
		TxHash:          ev.TxHash,
		BlockNumber:     ev.BlockNumber,
		TxIndex:         ev.TxIndex,
	}, nil
}

// attributeCounterAsset fills CounterAmount/Symbol/Decimals from the router
// swap calldata, falling back to the transaction's native value when the
// calldata cannot be decoded.
func (c *Classifier) attributeCounterAsset(ctx context.Context, buy *Buy) {
	tx, _, err := c.Chain.TransactionByHash(ctx, buy.TxHash)
	if err != nil {
		buy.CounterAmount = big.NewInt(0)
		buy.CounterSymbol = c.NativeSymbol
		buy.CounterDecimals = 18
		return
	}

	call, err := decodeRouterSwap(tx.Data(), tx.Value())
	if err != nil || call.InputToken == nil {
		if err != nil && c.Logger != nil {
			c.Logger.Debug("swap calldata decode failed, using native value",
				zap.String("tx", buy.TxHash.Hex()),
				zap.Error(err),
			)
		}
		buy.CounterAmount = tx.Value()
		buy.CounterSymbol = c.NativeSymbol
		buy.CounterDecimals = 18
		return
	}

	buy.CounterAmount = call.AmountIn
	buy.CounterDecimals = 18
	if dec, derr := c.Chain.TokenDecimals(ctx, *call.InputToken); derr == nil {
		buy.CounterDecimals = dec
	}
	sym, serr := c.Chain.TokenSymbol(ctx, *call.InputToken)
	if serr != nil || sym == "" {
		sym = c.NativeSymbol
	}
	buy.CounterSymbol = sym
}
