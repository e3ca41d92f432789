package classifier

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"buywatch/internal/chain"
)

// swapCall is the attributable input side of a decoded router swap.
// A nil InputToken means the native currency was spent (ETH-input methods).
type swapCall struct {
	InputToken *common.Address
	AmountIn   *big.Int
}

// decodeRouterSwap decodes the v2 router swap method set far enough to
// learn what was paid in. Exact-out token methods only bound the input, so
// amountInMax is reported as a best effort.
func decodeRouterSwap(data []byte, txValue *big.Int) (*swapCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	routerABI := chain.RouterABI()
	method, err := routerABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown method: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	switch method.Name {
	case "swapExactETHForTokens",
		"swapETHForExactTokens",
		"swapExactETHForTokensSupportingFeeOnTransferTokens":
		return &swapCall{InputToken: nil, AmountIn: txValue}, nil

	case "swapExactTokensForTokens",
		"swapExactTokensForTokensSupportingFeeOnTransferTokens":
		amountIn, ok1 := args[0].(*big.Int)
		path, ok2 := args[2].([]common.Address)
		if !ok1 || !ok2 || len(path) == 0 {
			return nil, fmt.Errorf("unexpected args for %s", method.Name)
		}
		return &swapCall{InputToken: &path[0], AmountIn: amountIn}, nil

	case "swapTokensForExactTokens":
		amountInMax, ok1 := args[1].(*big.Int)
		path, ok2 := args[2].([]common.Address)
		if !ok1 || !ok2 || len(path) == 0 {
			return nil, fmt.Errorf("unexpected args for %s", method.Name)
		}
		return &swapCall{InputToken: &path[0], AmountIn: amountInMax}, nil
	}

	return nil, fmt.Errorf("unhandled method %s", method.Name)
}
