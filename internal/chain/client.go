package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"buywatch/internal/config"
)

// Client wraps the ethclient connection plus the contract addresses the
// monitor needs. All reads are plain RPC calls; there are no subscriptions,
// so the client works against any HTTP endpoint.
type Client struct {
	eth     *ethclient.Client
	cfg     config.ChainConfig
	chainID *big.Int

	Router        common.Address
	WrappedNative common.Address
	Stablecoin    common.Address
	AMMFactory    common.Address
	AMMEmitter    common.Address
	AMMQuote      common.Address

	mu        sync.RWMutex
	decimals  map[common.Address]uint8
	symbols   map[common.Address]string
	poolToken map[common.Address]common.Address
}

func Dial(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &Client{
		eth:           eth,
		cfg:           cfg,
		chainID:       chainID,
		Router:        common.HexToAddress(cfg.Router),
		WrappedNative: common.HexToAddress(cfg.WrappedNative),
		Stablecoin:    common.HexToAddress(cfg.Stablecoin),
		AMMFactory:    common.HexToAddress(cfg.AMMFactory),
		AMMEmitter:    common.HexToAddress(cfg.AMMEventEmitter),
		AMMQuote:      common.HexToAddress(cfg.AMMQuoteCurrency),
		decimals:      map[common.Address]uint8{},
		symbols:       map[common.Address]string{},
		poolToken:     map[common.Address]common.Address{},
	}, nil
}

func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

// HasAMM reports whether the second venue protocol is configured.
func (c *Client) HasAMM() bool {
	return c != nil && c.cfg.AMMEventEmitter != "" && c.cfg.AMMFactory != ""
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// TokenTransfers returns the token's Transfer logs in [from, to].
func (c *Client) TokenTransfers(ctx context.Context, token common.Address, from, to uint64) ([]TransferEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{transferTopic}},
	})
	if err != nil {
		return nil, err
	}
	events := make([]TransferEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := parseTransferLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// TransfersByParty returns the token's Transfer logs in [from, to] where the
// party appears as sender or recipient. Two filtered queries, merged.
func (c *Client) TransfersByParty(ctx context.Context, token, party common.Address, from, to uint64) ([]TransferEvent, error) {
	partyTopic := common.BytesToHash(party.Bytes())
	queries := []ethereum.FilterQuery{
		{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{transferTopic}, {partyTopic}},
		},
		{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{transferTopic}, nil, {partyTopic}},
		},
	}
	var events []TransferEvent
	for _, q := range queries {
		logs, err := c.eth.FilterLogs(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, lg := range logs {
			if ev, ok := parseTransferLog(lg); ok {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// AMMSwaps returns the custom AMM's global swap stream in [from, to].
func (c *Client) AMMSwaps(ctx context.Context, from, to uint64) ([]SwapEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.AMMEmitter},
		Topics:    [][]common.Hash{{ammSwapTopic}},
	})
	if err != nil {
		return nil, err
	}
	events := make([]SwapEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := parseSwapLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// TransactionByHash returns the transaction and its recovered sender.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, common.Address, error) {
	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, common.Address{}, err
	}
	sender, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("recover sender: %w", err)
	}
	return tx, sender, nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode balanceOf: unexpected type %T", vals[0])
	}
	return bal, nil
}

func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.RLock()
	if dec, ok := c.decimals[token]; ok {
		c.mu.RUnlock()
		return dec, nil
	}
	c.mu.RUnlock()

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return 0, err
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decode decimals: unexpected type %T", vals[0])
	}
	c.mu.Lock()
	c.decimals[token] = dec
	c.mu.Unlock()
	return dec, nil
}

func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	c.mu.RLock()
	if sym, ok := c.symbols[token]; ok {
		c.mu.RUnlock()
		return sym, nil
	}
	c.mu.RUnlock()

	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return "", err
	}
	vals, err := erc20ABI.Unpack("symbol", out)
	if err != nil || len(vals) != 1 {
		return "", fmt.Errorf("decode symbol: %w", err)
	}
	sym, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("decode symbol: unexpected type %T", vals[0])
	}
	c.mu.Lock()
	c.symbols[token] = sym
	c.mu.Unlock()
	return sym, nil
}

func (c *Client) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("totalSupply")
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("totalSupply", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode totalSupply: %w", err)
	}
	supply, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode totalSupply: unexpected type %T", vals[0])
	}
	return supply, nil
}

// AmountsOut simulates a router swap of amountIn along path.
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.Router, data)
	if err != nil {
		return nil, err
	}
	vals, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode getAmountsOut: %w", err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode getAmountsOut: unexpected type %T", vals[0])
	}
	return amounts, nil
}

func (c *Client) PoolForToken(ctx context.Context, token common.Address) (common.Address, error) {
	return c.factoryAddressCall(ctx, "tokenToPool", token)
}

// TokenForPool resolves the traded token behind an AMM pool, caching the
// result: the global swap stream repeats pools constantly.
func (c *Client) TokenForPool(ctx context.Context, pool common.Address) (common.Address, error) {
	c.mu.RLock()
	if token, ok := c.poolToken[pool]; ok {
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	token, err := c.factoryAddressCall(ctx, "poolToToken", pool)
	if err != nil {
		return common.Address{}, err
	}
	c.mu.Lock()
	c.poolToken[pool] = token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) factoryAddressCall(ctx context.Context, method string, arg common.Address) (common.Address, error) {
	data, err := ammABI.Pack(method, arg)
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.call(ctx, c.AMMFactory, data)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := ammABI.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("decode %s: %w", method, err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode %s: unexpected type %T", method, vals[0])
	}
	return addr, nil
}

// SpotPrice reads a pool's spot price denominated in the AMM quote
// currency, scaled by 1e18.
func (c *Client) SpotPrice(ctx context.Context, pool common.Address) (*big.Int, error) {
	return c.factoryUintCall(ctx, "getSpotPrice", pool)
}

func (c *Client) MarketCap(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.factoryUintCall(ctx, "getMarketCap", token)
}

func (c *Client) factoryUintCall(ctx context.Context, method string, arg common.Address) (*big.Int, error) {
	data, err := ammABI.Pack(method, arg)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.AMMFactory, data)
	if err != nil {
		return nil, err
	}
	vals, err := ammABI.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}
