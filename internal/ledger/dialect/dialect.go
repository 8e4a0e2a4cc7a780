// Package dialect declares the policy object the Validator delegates
// consensus-rule decisions to: opcode execution and the constants/retarget
// behavior that differ between Bitcoin-family rulesets. The persistence
// core treats this as an external collaborator rather than hardcoding one
// ruleset's constants and opcode interpreter.
package dialect

import (
	"context"
	"errors"

	"github.com/blockforest/ledgercore/internal/ledger/model"
)

// ErrScriptFailed is wrapped by the error Dialect.CheckHeader returns when
// a header breaks a consensus rule, which the Validator treats as a
// rejection rather than a fatal failure. Dialect.Run does not return it:
// a rejected spend is reported as (false, nil).
var ErrScriptFailed = errors.New("dialect: script execution failed")

// BranchContext exposes the branch-local queries header-level consensus
// checks need: previous block bits, actual timespan and median time past,
// all scoped to the block under validation's (depth, span_left, span_right).
type BranchContext interface {
	// PreviousBlockBits returns the bits_head/bits_body of the unique
	// block at depth-1 in the current branch.
	PreviousBlockBits(ctx context.Context) (bitsHead, bitsBody uint32, err error)

	// ActualTimespan returns end.Timestamp - start.Timestamp in seconds,
	// where start is at depth-interval and end is at depth-1, both
	// within the current branch.
	ActualTimespan(ctx context.Context, interval uint64) (int64, error)

	// MedianTimePast returns the median timestamp (unix seconds) of the
	// prior <=11 blocks in the current branch.
	MedianTimePast(ctx context.Context) (int64, error)
}

// Dialect supplies the consensus constants and opcode behavior for a
// specific Bitcoin ruleset.
type Dialect interface {
	// CoinbaseMaturity is the minimum depth difference between a
	// coinbase's block and a spending block for the spend to be legal.
	CoinbaseMaturity() uint64

	// MaxMoney is the maximum satoshi value any single output, or any
	// running input sum, may take.
	MaxMoney() int64

	// CheckHeader validates header-level consensus rules (retarget,
	// median-time-past) for block at the given depth, using bctx for the
	// branch-local queries it needs. Depth 0 (genesis) is never passed.
	CheckHeader(ctx context.Context, block model.Block, bctx BranchContext) error

	// Run executes outputScript (the previous output being spent, worth
	// outputValue satoshi) against inputScript (the current input
	// unlocking it) for the given transaction and input index, reporting
	// whether the spend is authorized.
	Run(outputScript, inputScript model.Script, outputValue int64, tx model.Transaction, inputIndex int) (bool, error)
}
