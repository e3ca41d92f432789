package classifier

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"buywatch/internal/chain"
)

var (
	router  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	trader  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	stable  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	pool    = common.HexToAddress("0x5555555555555555555555555555555555555555")
	ammCash = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

type fakeTxReader struct {
	tx       *types.Transaction
	sender   common.Address
	txErr    error
	symbols  map[common.Address]string
	decimals map[common.Address]uint8
	pools    map[common.Address]common.Address
}

func (f *fakeTxReader) TransactionByHash(_ context.Context, _ common.Hash) (*types.Transaction, common.Address, error) {
	if f.txErr != nil {
		return nil, common.Address{}, f.txErr
	}
	return f.tx, f.sender, nil
}

func (f *fakeTxReader) TokenSymbol(_ context.Context, a common.Address) (string, error) {
	if s, ok := f.symbols[a]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no symbol for %s", a.Hex())
}

func (f *fakeTxReader) TokenDecimals(_ context.Context, a common.Address) (uint8, error) {
	if d, ok := f.decimals[a]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("no decimals for %s", a.Hex())
}

func (f *fakeTxReader) TokenForPool(_ context.Context, p common.Address) (common.Address, error) {
	if t, ok := f.pools[p]; ok {
		return t, nil
	}
	return common.Address{}, fmt.Errorf("unknown pool %s", p.Hex())
}

func newClassifier(reader TxReader) *Classifier {
	return &Classifier{
		Router:         router,
		AMMQuote:       ammCash,
		AMMQuoteSymbol: "CASH",
		NativeSymbol:   "ETH",
		Chain:          reader,
	}
}

func legacyTx(to *common.Address, value *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
}

func transfer(from, to common.Address, value int64) chain.TransferEvent {
	return chain.TransferEvent{
		Token:       token,
		From:        from,
		To:          to,
		Value:       big.NewInt(value),
		TxHash:      common.HexToHash("0xabc1"),
		BlockNumber: 100,
		TxIndex:     2,
	}
}

func TestClassifyTransfer_RouterSendsTokens(t *testing.T) {
	reader := &fakeTxReader{
		tx:     legacyTx(&router, big.NewInt(5e17), nil),
		sender: trader,
	}
	c := newClassifier(reader)

	buy, err := c.ClassifyTransfer(context.Background(), transfer(router, trader, 1000))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy == nil {
		t.Fatalf("expected a buy")
	}
	if buy.Trader != trader {
		t.Fatalf("trader=%s want %s", buy.Trader.Hex(), trader.Hex())
	}
	if buy.Venue != VenueRouter {
		t.Fatalf("venue=%q", buy.Venue)
	}
	if buy.TokenAmount.Int64() != 1000 {
		t.Fatalf("amount=%s", buy.TokenAmount)
	}
	if buy.CounterSymbol != "ETH" || buy.CounterAmount.Cmp(big.NewInt(5e17)) != 0 {
		t.Fatalf("counter=%s %s", buy.CounterAmount, buy.CounterSymbol)
	}
}

func TestClassifyTransfer_UnrelatedTransfer(t *testing.T) {
	other := common.HexToAddress("0x7777777777777777777777777777777777777777")
	reader := &fakeTxReader{
		tx:     legacyTx(&other, big.NewInt(0), nil),
		sender: trader,
	}
	c := newClassifier(reader)

	buy, err := c.ClassifyTransfer(context.Background(), transfer(other, trader, 1000))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy != nil {
		t.Fatalf("expected no buy, got %+v", buy)
	}
}

func TestClassifyTransfer_MultiHopToSender(t *testing.T) {
	path := []common.Address{stable, token}
	data, err := chain.RouterABI().Pack("swapExactTokensForTokens",
		big.NewInt(2_000_000), big.NewInt(0), path, trader, big.NewInt(9999999999))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	reader := &fakeTxReader{
		tx:       legacyTx(&router, big.NewInt(0), data),
		sender:   trader,
		symbols:  map[common.Address]string{stable: "USDC"},
		decimals: map[common.Address]uint8{stable: 6},
	}
	c := newClassifier(reader)

	pair := common.HexToAddress("0x8888888888888888888888888888888888888888")
	buy, err := c.ClassifyTransfer(context.Background(), transfer(pair, trader, 777))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy == nil {
		t.Fatalf("expected a buy")
	}
	if buy.Trader != trader {
		t.Fatalf("trader=%s", buy.Trader.Hex())
	}
	if buy.CounterSymbol != "USDC" || buy.CounterDecimals != 6 {
		t.Fatalf("counter attribution: %s dec=%d", buy.CounterSymbol, buy.CounterDecimals)
	}
	if buy.CounterAmount.Int64() != 2_000_000 {
		t.Fatalf("counter amount=%s", buy.CounterAmount)
	}
}

func TestClassifyTransfer_MultiHopToStranger(t *testing.T) {
	reader := &fakeTxReader{
		tx:     legacyTx(&router, big.NewInt(1), nil),
		sender: trader,
	}
	c := newClassifier(reader)

	pair := common.HexToAddress("0x8888888888888888888888888888888888888888")
	stranger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	buy, err := c.ClassifyTransfer(context.Background(), transfer(pair, stranger, 777))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy != nil {
		t.Fatalf("expected no buy for non-sender recipient")
	}
}

func TestClassifyTransfer_DecodeFailureFallsBackToValue(t *testing.T) {
	reader := &fakeTxReader{
		tx:     legacyTx(&router, big.NewInt(123), []byte{0xde, 0xad, 0xbe, 0xef, 0x01}),
		sender: trader,
	}
	c := newClassifier(reader)

	buy, err := c.ClassifyTransfer(context.Background(), transfer(router, trader, 10))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy.CounterSymbol != "ETH" || buy.CounterAmount.Int64() != 123 {
		t.Fatalf("fallback counter=%s %s", buy.CounterAmount, buy.CounterSymbol)
	}
}

func TestClassifySwap(t *testing.T) {
	reader := &fakeTxReader{pools: map[common.Address]common.Address{pool: token}}
	c := newClassifier(reader)
	watched := func(a common.Address) bool { return a == token }

	ev := chain.SwapEvent{
		Pool:        pool,
		Trader:      trader,
		TokenIn:     ammCash,
		TokenOut:    token,
		AmountIn:    big.NewInt(100),
		AmountOut:   big.NewInt(500),
		TxHash:      common.HexToHash("0xabc2"),
		BlockNumber: 200,
		TxIndex:     1,
	}

	buy, err := c.ClassifySwap(context.Background(), ev, watched)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if buy == nil || buy.Venue != VenueAMM {
		t.Fatalf("expected amm buy, got %+v", buy)
	}
	if buy.CounterSymbol != "CASH" || buy.CounterAmount.Int64() != 100 {
		t.Fatalf("counter=%s %s", buy.CounterAmount, buy.CounterSymbol)
	}

	ev.TokenIn = stable
	if buy, _ := c.ClassifySwap(context.Background(), ev, watched); buy != nil {
		t.Fatalf("sell-side swap classified as buy")
	}

	ev.TokenIn = ammCash
	if buy, _ := c.ClassifySwap(context.Background(), ev, func(common.Address) bool { return false }); buy != nil {
		t.Fatalf("unwatched token classified as buy")
	}
}
