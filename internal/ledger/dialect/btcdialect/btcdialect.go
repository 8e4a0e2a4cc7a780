// Package btcdialect implements dialect.Dialect by delegating script
// execution to the real btcd consensus engine and applying a configurable
// retarget/median-time-past header check. It is the concrete ruleset the
// Validator runs against; the persistence core itself stays agnostic of
// any particular chain's consensus constants.
package btcdialect

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/blockforest/ledgercore/internal/ledger/dialect"
	"github.com/blockforest/ledgercore/internal/ledger/model"
)

// Params configures the consensus constants of one Bitcoin-family ruleset.
type Params struct {
	CoinbaseMaturity uint64
	MaxMoney         int64

	// RetargetInterval is the number of blocks between difficulty
	// adjustments (2016 for Bitcoin mainnet). A RetargetInterval of 0
	// disables retarget checking (useful for regtest-style dialects).
	RetargetInterval uint64

	// TargetTimespan is the intended duration of RetargetInterval blocks.
	TargetTimespan int64 // seconds

	// MaxRetargetFactor bounds how far bits may drift from the previous
	// value in one adjustment (4 for Bitcoin mainnet, applied to both
	// directions).
	MaxRetargetFactor int64
}

// Dialect adapts Params plus the btcd script engine to dialect.Dialect.
type Dialect struct {
	params   Params
	sigCache *txscript.SigCache
}

// New constructs a Dialect for the given consensus parameters.
func New(params Params) *Dialect {
	return &Dialect{
		params:   params,
		sigCache: txscript.NewSigCache(0),
	}
}

func (d *Dialect) CoinbaseMaturity() uint64 { return d.params.CoinbaseMaturity }
func (d *Dialect) MaxMoney() int64          { return d.params.MaxMoney }

// CheckHeader enforces that the block's timestamp exceeds the median of
// the prior <=11 blocks, and, on retarget boundaries, that bits matches
// the recomputed target within MaxRetargetFactor.
func (d *Dialect) CheckHeader(ctx context.Context, block model.Block, bctx dialect.BranchContext) error {
	if block.Depth == 0 {
		return nil
	}

	medianPast, err := bctx.MedianTimePast(ctx)
	if err != nil {
		return fmt.Errorf("median time past: %w", err)
	}
	if block.Timestamp.Unix() <= medianPast {
		return fmt.Errorf("%w: timestamp %d does not exceed median time past %d",
			dialect.ErrScriptFailed, block.Timestamp.Unix(), medianPast)
	}

	if d.params.RetargetInterval == 0 || block.Depth%d.params.RetargetInterval != 0 {
		return nil
	}
	if block.Depth < d.params.RetargetInterval {
		return nil
	}

	prevBitsHead, prevBitsBody, err := bctx.PreviousBlockBits(ctx)
	if err != nil {
		return fmt.Errorf("previous block bits: %w", err)
	}
	actual, err := bctx.ActualTimespan(ctx, d.params.RetargetInterval)
	if err != nil {
		return fmt.Errorf("actual timespan: %w", err)
	}

	prevBits := model.Bits(prevBitsHead, prevBitsBody)
	expected := retargetBits(prevBits, actual, d.params.TargetTimespan, d.params.MaxRetargetFactor)
	if block.Bits() != expected {
		return fmt.Errorf("%w: retarget mismatch, got bits %d want %d",
			dialect.ErrScriptFailed, block.Bits(), expected)
	}
	return nil
}

// retargetBits scales prevBits by actual/target timespan, clamped to
// [target/factor, target*factor], mirroring the classic Bitcoin
// difficulty-adjustment formula applied to the compact target's mantissa.
func retargetBits(prevBits uint32, actualTimespan, targetTimespan, maxFactor int64) uint32 {
	if actualTimespan <= 0 || targetTimespan <= 0 {
		return prevBits
	}

	minSpan := targetTimespan / maxFactor
	maxSpan := targetTimespan * maxFactor
	if actualTimespan < minSpan {
		actualTimespan = minSpan
	}
	if actualTimespan > maxSpan {
		actualTimespan = maxSpan
	}

	target := blockchain.CompactToBig(prevBits)
	target.Mul(target, bigFromInt(actualTimespan))
	target.Div(target, bigFromInt(targetTimespan))
	return blockchain.BigToCompact(target)
}

// Run executes outputScript against inputScript using the real btcd script
// engine under standard verification flags.
func (d *Dialect) Run(outputScript, inputScript model.Script, outputValue int64, tx model.Transaction, inputIndex int) (bool, error) {
	if inputIndex < 0 || inputIndex >= len(tx.Inputs) {
		return false, fmt.Errorf("input index %d out of range", inputIndex)
	}

	wireTx, err := toWireTx(tx)
	if err != nil {
		return false, fmt.Errorf("convert transaction: %w", err)
	}
	// The input being verified must carry inputScript as its signature
	// script, regardless of what was persisted on the Transaction value
	// passed in (they are ordinarily the same script).
	wireTx.TxIn[inputIndex].SignatureScript = inputScript.Raw()

	pkScript := outputScript.Raw()
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, outputValue)
	hashCache := txscript.NewTxSigHashes(wireTx, fetcher)

	engine, err := txscript.NewEngine(
		pkScript, wireTx, inputIndex, txscript.StandardVerifyFlags,
		d.sigCache, hashCache, outputValue, fetcher,
	)
	if err != nil {
		return false, nil //nolint:nilerr // malformed script is a reject, not a fatal error
	}
	if err := engine.Execute(); err != nil {
		return false, nil //nolint:nilerr // script failure is a reject, not a fatal error
	}
	return true, nil
}

func bigFromInt(v int64) *big.Int {
	return big.NewInt(v)
}

func toWireTx(tx model.Transaction) (*wire.MsgTx, error) {
	wireTx := wire.NewMsgTx(int32(tx.Version))
	wireTx.LockTime = tx.LockTime

	for _, in := range tx.Inputs {
		prevHash := chainhash.Hash(in.PreviousOutputHash)
		outPoint := wire.NewOutPoint(&prevHash, in.PreviousOutputIndex)
		txIn := wire.NewTxIn(outPoint, in.Script.Raw(), nil)
		txIn.Sequence = in.Sequence
		wireTx.AddTxIn(txIn)
	}
	for _, out := range tx.Outputs {
		wireTx.AddTxOut(wire.NewTxOut(out.Value, out.Script.Raw()))
	}
	return wireTx, nil
}
