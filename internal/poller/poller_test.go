package poller

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"buywatch/internal/alert"
	"buywatch/internal/chain"
	"buywatch/internal/classifier"
	"buywatch/internal/models"
	"buywatch/internal/price"
)

var (
	router = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	trader = common.HexToAddress("0x3333333333333333333333333333333333333333")
	txHash = common.HexToHash("0xabc1")
)

// fakeChain implements both the poller's ChainReader and the classifier's
// TxReader so one fixture drives the whole scan.
type fakeChain struct {
	mu        sync.Mutex
	head      uint64
	headErr   error
	transfers []chain.TransferEvent
	queries   []struct{ from, to uint64 }
	balance   *big.Int
	supply    *big.Int
	blockWait chan struct{} // when set, BlockNumber blocks until closed
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	if f.blockWait != nil {
		<-f.blockWait
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) TokenTransfers(_ context.Context, _ common.Address, from, to uint64) ([]chain.TransferEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, struct{ from, to uint64 }{from, to})
	var out []chain.TransferEvent
	for _, ev := range f.transfers {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeChain) AMMSwaps(context.Context, uint64, uint64) ([]chain.SwapEvent, error) {
	return nil, nil
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return f.balance, nil
}

func (f *fakeChain) TokenDecimals(context.Context, common.Address) (uint8, error) { return 18, nil }
func (f *fakeChain) TokenSymbol(context.Context, common.Address) (string, error)  { return "TKN", nil }

func (f *fakeChain) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	if f.supply == nil {
		return nil, errors.New("no supply")
	}
	return f.supply, nil
}

func (f *fakeChain) HasAMM() bool { return false }

func (f *fakeChain) TransactionByHash(context.Context, common.Hash) (*types.Transaction, common.Address, error) {
	return nil, common.Address{}, errors.New("not indexed")
}

func (f *fakeChain) TokenForPool(context.Context, common.Address) (common.Address, error) {
	return common.Address{}, errors.New("no pool")
}

type fakePollerRepo struct {
	watched    []string
	detections map[string]bool
}

func (f *fakePollerRepo) UpsertWatchedToken(context.Context, *models.WatchedToken) error { return nil }
func (f *fakePollerRepo) DeleteWatchedToken(context.Context, int64, string) error        { return nil }
func (f *fakePollerRepo) DeleteChatWatches(context.Context, int64) (int64, error)        { return 0, nil }
func (f *fakePollerRepo) IsWatched(context.Context, int64, string) (bool, error)         { return false, nil }

func (f *fakePollerRepo) ListWatchedTokens(context.Context) ([]models.WatchedToken, error) {
	return nil, nil
}

func (f *fakePollerRepo) ListWatchersByToken(context.Context, string) ([]models.WatchedToken, error) {
	return nil, nil
}

func (f *fakePollerRepo) ListWatchedTokenAddresses(context.Context) ([]string, error) {
	return f.watched, nil
}

func (f *fakePollerRepo) HasDetection(_ context.Context, txHash string) (bool, error) {
	return f.detections[txHash], nil
}

func (f *fakePollerRepo) ClaimDetection(context.Context, *models.DetectedTransaction) (bool, error) {
	return true, nil
}

func (f *fakePollerRepo) GetTraderPosition(context.Context, string, string) (*models.TraderPosition, error) {
	return nil, nil
}

func (f *fakePollerRepo) UpsertTraderPosition(context.Context, *models.TraderPosition) error {
	return nil
}

func (f *fakePollerRepo) GetChatSettings(context.Context, int64) (*models.ChatSettings, error) {
	return &models.ChatSettings{}, nil
}

func (f *fakePollerRepo) ClaimStatusDelivery(context.Context, *models.StatusDeliveryMark) (bool, error) {
	return true, nil
}

type fakePrices struct {
	usd string
	err error
}

func (f *fakePrices) GetPrice(context.Context, common.Address) (*price.TokenPrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.usd == "" {
		return nil, nil
	}
	usd := decimal.RequireFromString(f.usd)
	return &price.TokenPrice{USD: usd}, nil
}

type fakeLabels struct {
	current, delta decimal.Decimal
	label          string
}

func (f *fakeLabels) ComputeLabel(_ context.Context, _, _ common.Address, _ uint64, _ uint, current, delta decimal.Decimal) string {
	f.current, f.delta = current, delta
	if f.label == "" {
		return "NEW"
	}
	return f.label
}

type fakeDelivery struct {
	swaps []alert.Swap
}

func (f *fakeDelivery) Deliver(_ context.Context, swap alert.Swap) (int, error) {
	f.swaps = append(f.swaps, swap)
	return 1, nil
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestPoller(chainFake *fakeChain, repo *fakePollerRepo, prices *fakePrices, labels *fakeLabels, delivery *fakeDelivery) *Poller {
	return &Poller{
		Chain: chainFake,
		Classifier: &classifier.Classifier{
			Router:       router,
			NativeSymbol: "ETH",
			Chain:        chainFake,
		},
		Prices:    prices,
		Positions: labels,
		Delivery:  delivery,
		Repo:      repo,
		TxURLBase: "https://scan.example.org/tx",
	}
}

func TestScan_EndToEndBuy(t *testing.T) {
	chainFake := &fakeChain{
		head: 100,
		transfers: []chain.TransferEvent{{
			Token:       token,
			From:        router,
			To:          trader,
			Value:       units(1000),
			TxHash:      txHash,
			BlockNumber: 100,
			TxIndex:     2,
		}},
		balance: units(1500),
	}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	labels := &fakeLabels{label: "+200.00%"}
	delivery := &fakeDelivery{}
	p := newTestPoller(chainFake, repo, &fakePrices{usd: "0.01"}, labels, delivery)

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(99)
	p.scan(context.Background())

	if len(delivery.swaps) != 1 {
		t.Fatalf("swaps=%d want 1", len(delivery.swaps))
	}
	swap := delivery.swaps[0]
	if swap.Trader != "0x3333333333333333333333333333333333333333" {
		t.Fatalf("trader=%s", swap.Trader)
	}
	if !swap.USDValue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("usd=%s want 10", swap.USDValue)
	}
	if swap.PositionLabel != "+200.00%" {
		t.Fatalf("label=%q", swap.PositionLabel)
	}
	if !labels.current.Equal(decimal.NewFromInt(1500)) || !labels.delta.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("label inputs current=%s delta=%s", labels.current, labels.delta)
	}
	if swap.TxURL != "https://scan.example.org/tx/"+swap.TxHash {
		t.Fatalf("tx url=%s", swap.TxURL)
	}
	if p.LastHeight() != 100 {
		t.Fatalf("lastHeight=%d want 100", p.LastHeight())
	}
}

func TestScan_RangeAdvancesAfterCompleteScan(t *testing.T) {
	chainFake := &fakeChain{head: 110}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, &fakeDelivery{})

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(100)
	p.scan(context.Background())

	if len(chainFake.queries) != 1 {
		t.Fatalf("queries=%d", len(chainFake.queries))
	}
	if q := chainFake.queries[0]; q.from != 101 || q.to != 110 {
		t.Fatalf("range=[%d,%d] want [101,110]", q.from, q.to)
	}

	// Head unchanged: nothing to scan.
	p.scan(context.Background())
	if len(chainFake.queries) != 1 {
		t.Fatalf("no-op scan still queried: %d", len(chainFake.queries))
	}
}

func TestScan_ColdStartScansHeadOnly(t *testing.T) {
	chainFake := &fakeChain{head: 500}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, &fakeDelivery{})

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.scan(context.Background())

	if len(chainFake.queries) != 1 {
		t.Fatalf("queries=%d", len(chainFake.queries))
	}
	if q := chainFake.queries[0]; q.from != 500 || q.to != 500 {
		t.Fatalf("range=[%d,%d] want [500,500]", q.from, q.to)
	}
}

func TestScan_EmptyWatchedSetIsNoOp(t *testing.T) {
	chainFake := &fakeChain{head: 100, headErr: errors.New("must not be called")}
	repo := &fakePollerRepo{detections: map[string]bool{}}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, &fakeDelivery{})

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.scan(context.Background())
	if len(chainFake.queries) != 0 {
		t.Fatalf("empty watched set must not query")
	}
}

func TestScan_HeadErrorKeepsHeight(t *testing.T) {
	chainFake := &fakeChain{head: 100, headErr: errors.New("rpc down")}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, &fakeDelivery{})

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(50)
	p.scan(context.Background())
	if p.LastHeight() != 50 {
		t.Fatalf("height advanced through an abandoned tick")
	}
}

func TestScan_DedupSkipsSeenTransaction(t *testing.T) {
	chainFake := &fakeChain{
		head: 100,
		transfers: []chain.TransferEvent{{
			Token:       token,
			From:        router,
			To:          trader,
			Value:       units(10),
			TxHash:      txHash,
			BlockNumber: 100,
		}},
		balance: units(10),
	}
	repo := &fakePollerRepo{
		watched:    []string{token.Hex()},
		detections: map[string]bool{txHash.Hex(): true},
	}
	delivery := &fakeDelivery{}
	p := newTestPoller(chainFake, repo, &fakePrices{usd: "1"}, &fakeLabels{}, delivery)

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(99)
	p.scan(context.Background())
	if len(delivery.swaps) != 0 {
		t.Fatalf("seen transaction redelivered")
	}
}

func TestScan_UnknownPriceSkipsAlert(t *testing.T) {
	chainFake := &fakeChain{
		head: 100,
		transfers: []chain.TransferEvent{{
			Token:       token,
			From:        router,
			To:          trader,
			Value:       units(10),
			TxHash:      txHash,
			BlockNumber: 100,
		}},
	}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	delivery := &fakeDelivery{}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, delivery)

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(99)
	p.scan(context.Background())
	if len(delivery.swaps) != 0 {
		t.Fatalf("priceless buy must not be delivered")
	}
	// The scan itself still completes and the height advances.
	if p.LastHeight() != 100 {
		t.Fatalf("lastHeight=%d", p.LastHeight())
	}
}

func TestTick_SingleFlight(t *testing.T) {
	wait := make(chan struct{})
	chainFake := &fakeChain{head: 100, blockWait: wait}
	repo := &fakePollerRepo{watched: []string{token.Hex()}, detections: map[string]bool{}}
	p := newTestPoller(chainFake, repo, &fakePrices{}, &fakeLabels{}, &fakeDelivery{})

	if err := p.reloadWatched(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.lastHeight.Store(99)

	done := make(chan struct{})
	go func() {
		p.tick(context.Background())
		close(done)
	}()

	// Wait for the first tick to enter the scan, then fire overlapping
	// ticks; they must be dropped without touching the chain.
	for !p.inFlight.Load() {
		time.Sleep(time.Millisecond)
	}
	p.tick(context.Background())
	p.tick(context.Background())

	close(wait)
	<-done

	chainFake.mu.Lock()
	queries := len(chainFake.queries)
	chainFake.mu.Unlock()
	if queries != 1 {
		t.Fatalf("queries=%d, overlapping ticks must be skipped", queries)
	}
}
