package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferEvent is a decoded ERC20 Transfer log.
type TransferEvent struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Value       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
}

// SwapEvent is a decoded swap log from the custom AMM's global event
// emitter. tokenIn equal to the protocol quote currency marks a buy of
// tokenOut.
type SwapEvent struct {
	Pool        common.Address
	Trader      common.Address
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	AmountOut   *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	TxIndex     uint
}

func parseTransferLog(lg types.Log) (TransferEvent, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
		return TransferEvent{}, false
	}
	return TransferEvent{
		Token:       lg.Address,
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Value:       new(big.Int).SetBytes(lg.Data),
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
	}, true
}

func parseSwapLog(lg types.Log) (SwapEvent, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != ammSwapTopic {
		return SwapEvent{}, false
	}
	vals, err := ammABI.Events["Swap"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(vals) != 4 {
		return SwapEvent{}, false
	}
	tokenIn, ok1 := vals[0].(common.Address)
	tokenOut, ok2 := vals[1].(common.Address)
	amountIn, ok3 := vals[2].(*big.Int)
	amountOut, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return SwapEvent{}, false
	}
	return SwapEvent{
		Pool:        common.BytesToAddress(lg.Topics[1].Bytes()),
		Trader:      common.BytesToAddress(lg.Topics[2].Bytes()),
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		TxIndex:     lg.TxIndex,
	}, true
}
