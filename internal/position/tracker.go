package position

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"buywatch/internal/chain"
	"buywatch/internal/models"
)

const LabelNew = "NEW"

// SnapshotReader loads the persisted holdings snapshot.
type SnapshotReader interface {
	GetTraderPosition(ctx context.Context, tokenAddress, traderAddress string) (*models.TraderPosition, error)
}

// HistoryReader is the slice of chain access the tracker needs for the
// prior-activity scan.
type HistoryReader interface {
	TransfersByParty(ctx context.Context, token, party common.Address, from, to uint64) ([]chain.TransferEvent, error)
}

// Tracker computes a trader's position-change label for an alert. It
// prefers the persisted snapshot (holdings as of the last delivered alert)
// and falls back to scanning prior on-chain transfer history when no usable
// snapshot exists. The label is advisory: unexpected lookup errors resolve
// to "no prior interaction" rather than blocking the alert.
type Tracker struct {
	Repo   SnapshotReader
	Chain  HistoryReader
	Logger *zap.Logger

	// Window is the backward scan window in blocks used when the provider
	// rejects an unbounded range query.
	Window uint64
}

// ComputeLabel returns "NEW", a signed percentage like "+50.00%", or "N/A".
// current is the trader's post-transfer balance; delta the amount just
// bought. Both are in token units.
func (t *Tracker) ComputeLabel(ctx context.Context, token, trader common.Address, blockNumber uint64, txIndex uint, current, delta decimal.Decimal) string {
	if t == nil {
		return LabelNew
	}

	var snapshot *models.TraderPosition
	if t.Repo != nil {
		snap, err := t.Repo.GetTraderPosition(ctx, token.Hex(), trader.Hex())
		if err != nil && t.Logger != nil {
			t.Logger.Warn("position snapshot load failed",
				zap.String("token", token.Hex()),
				zap.String("trader", trader.Hex()),
				zap.Error(err),
			)
		}
		snapshot = snap
	}

	if snapshot != nil && snapshot.Holdings.IsPositive() {
		if current.GreaterThanOrEqual(snapshot.Holdings) {
			return FormatPercent(current, snapshot.Holdings)
		}
		// The snapshot is stale (a sell happened since the last alert):
		// infer the previous balance from the delta instead.
		inferred := inferredPrevious(current, delta)
		if inferred.IsPositive() {
			return FormatPercent(current, inferred)
		}
		return LabelNew
	}

	if !t.hasPriorActivity(ctx, token, trader, blockNumber, txIndex) {
		return LabelNew
	}
	inferred := inferredPrevious(current, delta)
	if inferred.IsPositive() {
		return FormatPercent(current, inferred)
	}
	return LabelNew
}

func inferredPrevious(current, delta decimal.Decimal) decimal.Decimal {
	prev := current.Sub(delta)
	if prev.IsNegative() {
		return decimal.Zero
	}
	return prev
}

// FormatPercent renders the change from previous to current with an
// explicit sign and two decimals, or "N/A" when the baseline is unusable.
func FormatPercent(current, previous decimal.Decimal) string {
	if !previous.IsPositive() {
		return "N/A"
	}
	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
	s := pct.StringFixed(2)
	if pct.Sign() >= 0 {
		s = "+" + s
	}
	return s + "%"
}

// hasPriorActivity reports whether the trader has any transfer on this
// token strictly before the current transaction: earlier blocks, or the
// same block at a lower transaction index (two swaps in one block must not
// count as mutually prior).
func (t *Tracker) hasPriorActivity(ctx context.Context, token, trader common.Address, blockNumber uint64, txIndex uint) bool {
	if t.Chain == nil {
		return false
	}
	events, err := t.Chain.TransfersByParty(ctx, token, trader, 0, blockNumber)
	if err != nil {
		if chain.IsRangeLimitError(err) {
			return t.windowedPriorScan(ctx, token, trader, blockNumber, txIndex)
		}
		if t.Logger != nil {
			t.Logger.Warn("prior activity scan failed, assuming none",
				zap.String("token", token.Hex()),
				zap.String("trader", trader.Hex()),
				zap.Error(err),
			)
		}
		return false
	}
	return anyPrior(events, blockNumber, txIndex)
}

// windowedPriorScan walks fixed-size windows from the target block toward
// genesis, returning on the first window containing prior activity.
func (t *Tracker) windowedPriorScan(ctx context.Context, token, trader common.Address, blockNumber uint64, txIndex uint) bool {
	window := t.Window
	if window == 0 {
		window = 1000
	}
	to := blockNumber
	for {
		var from uint64
		if to >= window {
			from = to - window + 1
		}
		events, err := t.Chain.TransfersByParty(ctx, token, trader, from, to)
		if err != nil {
			if t.Logger != nil {
				t.Logger.Warn("windowed prior scan failed, assuming none",
					zap.String("token", token.Hex()),
					zap.String("trader", trader.Hex()),
					zap.Uint64("from", from),
					zap.Uint64("to", to),
					zap.Error(err),
				)
			}
			return false
		}
		if anyPrior(events, blockNumber, txIndex) {
			return true
		}
		if from == 0 {
			return false
		}
		to = from - 1
	}
}

func anyPrior(events []chain.TransferEvent, blockNumber uint64, txIndex uint) bool {
	for _, ev := range events {
		if ev.BlockNumber < blockNumber {
			return true
		}
		if ev.BlockNumber == blockNumber && ev.TxIndex < txIndex {
			return true
		}
	}
	return false
}
