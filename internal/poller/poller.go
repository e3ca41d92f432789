package poller

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"buywatch/internal/alert"
	"buywatch/internal/chain"
	"buywatch/internal/classifier"
	"buywatch/internal/models"
	"buywatch/internal/price"
	"buywatch/internal/repository"
)

// ChainReader is the slice of chain access the poller needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TokenTransfers(ctx context.Context, token common.Address, from, to uint64) ([]chain.TransferEvent, error)
	AMMSwaps(ctx context.Context, from, to uint64) ([]chain.SwapEvent, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	HasAMM() bool
}

// PriceSource resolves token prices.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address) (*price.TokenPrice, error)
}

// LabelComputer computes position-change labels.
type LabelComputer interface {
	ComputeLabel(ctx context.Context, token, trader common.Address, blockNumber uint64, txIndex uint, current, delta decimal.Decimal) string
}

// Deliverer fans a resolved swap out to subscribed chats.
type Deliverer interface {
	Deliver(ctx context.Context, swap alert.Swap) (int, error)
}

// Poller owns the block-scanning loop and the watched-token set. One
// logical timer drives it; a scan still in flight when the next tick fires
// is skipped (single-flight), and a hung RPC call therefore stalls at most
// its own tick. Events within a scan are processed sequentially.
type Poller struct {
	Chain      ChainReader
	Classifier *classifier.Classifier
	Prices     PriceSource
	Positions  LabelComputer
	Delivery   Deliverer
	Repo       repository.Repository
	Logger     *zap.Logger

	Interval  time.Duration
	TxURLBase string

	inFlight   atomic.Bool
	lastHeight atomic.Uint64

	mu      sync.RWMutex
	watched map[common.Address]struct{}
}

// Run loads the watched set from persistence and ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if p == nil || p.Chain == nil || p.Repo == nil {
		return nil
	}
	if err := p.reloadWatched(ctx); err != nil {
		return err
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.tick(ctx)
		}
	}
}

// tick runs one scan unless a previous one is still in flight. Skipped
// ticks are dropped silently; ticks are not work items.
func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)
	p.scan(ctx)
}

// scan advances from the last recorded height to the current head. The
// height moves only after a completed scan: an abandoned tick retries the
// same range. Exactly-once delivery is owned by the dedup store, not here.
func (p *Poller) scan(ctx context.Context) {
	if p.watchedCount() == 0 {
		return
	}

	head, err := p.Chain.BlockNumber(ctx)
	if err != nil {
		p.logWarn("head lookup failed, tick abandoned", err)
		return
	}
	if head == 0 {
		return
	}

	last := p.lastHeight.Load()
	if last == 0 {
		// Cold start: begin at the head, deliberately without replaying
		// history.
		last = head - 1
	}
	if head <= last {
		return
	}
	from, to := last+1, head

	tokens := p.watchedTokens()
	for _, token := range tokens {
		transfers, err := p.Chain.TokenTransfers(ctx, token, from, to)
		if err != nil {
			p.logWarn("transfer query failed, tick abandoned", err,
				zap.String("token", token.Hex()),
				zap.Uint64("from", from), zap.Uint64("to", to))
			return
		}
		for _, ev := range transfers {
			buy, err := p.Classifier.ClassifyTransfer(ctx, ev)
			if err != nil {
				p.logWarn("transfer classification failed", err, zap.String("tx", ev.TxHash.Hex()))
				continue
			}
			if buy != nil {
				p.process(ctx, buy)
			}
		}
	}

	if p.Chain.HasAMM() {
		swaps, err := p.Chain.AMMSwaps(ctx, from, to)
		if err != nil {
			p.logWarn("amm swap query failed, tick abandoned", err,
				zap.Uint64("from", from), zap.Uint64("to", to))
			return
		}
		for _, ev := range swaps {
			buy, err := p.Classifier.ClassifySwap(ctx, ev, p.isTokenWatched)
			if err != nil {
				p.logWarn("swap classification failed", err, zap.String("tx", ev.TxHash.Hex()))
				continue
			}
			if buy != nil {
				p.process(ctx, buy)
			}
		}
	}

	p.lastHeight.Store(to)
}

// process resolves one classified buy end to end and hands it to the
// delivery coordinator. Every failure is contained to this event.
func (p *Poller) process(ctx context.Context, buy *classifier.Buy) {
	txHash := strings.ToLower(buy.TxHash.Hex())

	// Pre-check keeps an overlapping catch-up range from re-delivering; the
	// claim insert after delivery is the authoritative boundary.
	if seen, err := p.Repo.HasDetection(ctx, txHash); err != nil {
		p.logWarn("dedup pre-check failed", err, zap.String("tx", txHash))
		return
	} else if seen {
		return
	}

	dec, err := p.Chain.TokenDecimals(ctx, buy.Token)
	if err != nil {
		p.logWarn("token decimals failed", err, zap.String("tx", txHash))
		return
	}
	tokenAmount := decimal.NewFromBigInt(buy.TokenAmount, -int32(dec))

	resolved, err := p.Prices.GetPrice(ctx, buy.Token)
	if err != nil {
		p.logWarn("price resolution failed", err, zap.String("tx", txHash))
		return
	}
	if resolved == nil {
		p.logWarn("price unknown for token, alert skipped", nil, zap.String("token", buy.Token.Hex()))
		return
	}
	usdValue := tokenAmount.Mul(resolved.USD)

	balance, err := p.Chain.BalanceOf(ctx, buy.Token, buy.Trader)
	if err != nil {
		p.logWarn("balance lookup failed", err, zap.String("tx", txHash))
		return
	}
	holdings := decimal.NewFromBigInt(balance, -int32(dec))

	label := p.Positions.ComputeLabel(ctx, buy.Token, buy.Trader, buy.BlockNumber, buy.TxIndex, holdings, tokenAmount)

	symbol, err := p.Chain.TokenSymbol(ctx, buy.Token)
	if err != nil {
		symbol = shortHex(buy.Token.Hex())
	}

	var marketCap *decimal.Decimal
	if supply, err := p.Chain.TotalSupply(ctx, buy.Token); err == nil && supply != nil {
		mc := decimal.NewFromBigInt(supply, -int32(dec)).Mul(resolved.USD)
		marketCap = &mc
	}

	counterAmount := decimal.Zero
	rawCounter := decimal.Zero
	if buy.CounterAmount != nil {
		counterAmount = decimal.NewFromBigInt(buy.CounterAmount, -int32(buy.CounterDecimals))
		rawCounter = decimal.NewFromBigInt(buy.CounterAmount, 0)
	}

	swap := alert.Swap{
		TokenAddress:     strings.ToLower(buy.Token.Hex()),
		TokenSymbol:      symbol,
		TxHash:           txHash,
		TxURL:            p.txURL(txHash),
		Trader:           strings.ToLower(buy.Trader.Hex()),
		Venue:            buy.Venue,
		BlockNumber:      buy.BlockNumber,
		TxIndex:          buy.TxIndex,
		TokenAmount:      tokenAmount,
		CounterAmount:    counterAmount,
		CounterSymbol:    buy.CounterSymbol,
		RawTokenAmount:   decimal.NewFromBigInt(buy.TokenAmount, 0),
		RawCounterAmount: rawCounter,
		USDValue:         usdValue,
		PriceUSD:         resolved.USD,
		MarketCapUSD:     marketCap,
		PositionLabel:    label,
		Holdings:         holdings,
	}

	delivered, err := p.Delivery.Deliver(ctx, swap)
	if err != nil {
		p.logWarn("post-delivery commit failed", err, zap.String("tx", txHash))
		return
	}
	if delivered > 0 && p.Logger != nil {
		p.Logger.Info("buy alert delivered",
			zap.String("tx", txHash),
			zap.String("token", symbol),
			zap.String("venue", buy.Venue),
			zap.String("usd", usdValue.StringFixed(2)),
			zap.Int("chats", delivered),
		)
	}
}

// --- watched-token set ------------------------------------------------------

// StartWatching subscribes a chat to a token and joins the token to the
// next scan. Symbol and name are resolved on first subscribe when empty.
func (p *Poller) StartWatching(ctx context.Context, item *models.WatchedToken) error {
	if p == nil || p.Repo == nil || item == nil {
		return nil
	}
	token := common.HexToAddress(item.TokenAddress)
	if item.Symbol == "" && p.Chain != nil {
		if sym, err := p.Chain.TokenSymbol(ctx, token); err == nil {
			item.Symbol = sym
		}
	}
	if err := p.Repo.UpsertWatchedToken(ctx, item); err != nil {
		return err
	}
	p.mu.Lock()
	if p.watched == nil {
		p.watched = map[common.Address]struct{}{}
	}
	p.watched[token] = struct{}{}
	p.mu.Unlock()
	return nil
}

// StopWatching unsubscribes one chat; the token leaves the scan set when
// its last watcher is gone.
func (p *Poller) StopWatching(ctx context.Context, chatID int64, tokenAddress string) error {
	if p == nil || p.Repo == nil {
		return nil
	}
	if err := p.Repo.DeleteWatchedToken(ctx, chatID, tokenAddress); err != nil {
		return err
	}
	remaining, err := p.Repo.ListWatchersByToken(ctx, tokenAddress)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		p.mu.Lock()
		delete(p.watched, common.HexToAddress(tokenAddress))
		p.mu.Unlock()
	}
	return nil
}

func (p *Poller) IsWatched(ctx context.Context, chatID int64, tokenAddress string) (bool, error) {
	if p == nil || p.Repo == nil {
		return false, nil
	}
	return p.Repo.IsWatched(ctx, chatID, tokenAddress)
}

// LastHeight reports the last fully scanned block, for observability.
func (p *Poller) LastHeight() uint64 {
	return p.lastHeight.Load()
}

func (p *Poller) WatchedCount() int {
	return p.watchedCount()
}

func (p *Poller) reloadWatched(ctx context.Context) error {
	addrs, err := p.Repo.ListWatchedTokenAddresses(ctx)
	if err != nil {
		return err
	}
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[common.HexToAddress(a)] = struct{}{}
	}
	p.mu.Lock()
	p.watched = set
	p.mu.Unlock()
	return nil
}

func (p *Poller) watchedTokens() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tokens := make([]common.Address, 0, len(p.watched))
	for token := range p.watched {
		tokens = append(tokens, token)
	}
	return tokens
}

func (p *Poller) watchedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.watched)
}

func (p *Poller) isTokenWatched(token common.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.watched[token]
	return ok
}

func (p *Poller) txURL(txHash string) string {
	if p.TxURLBase == "" {
		return ""
	}
	return strings.TrimRight(p.TxURLBase, "/") + "/" + txHash
}

func shortHex(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}

func (p *Poller) logWarn(msg string, err error, fields ...zap.Field) {
	if p.Logger == nil {
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.Logger.Warn(msg, fields...)
}
