// Package validator runs consensus validation over orphan blocks in the
// main tree: script execution, coinbase maturity, double-spend detection,
// and header-level retarget/median-time-past checks delegated to a
// dialect.Dialect, promoting blocks that pass to status='valid' and
// updating their chains' cumulative work.
package validator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/ledger/dialect"
	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/organizer"
	"github.com/blockforest/ledgercore/internal/ledger/reader"
	"github.com/blockforest/ledgercore/internal/ledger/store"
	"github.com/blockforest/ledgercore/internal/telemetry"
)

// ErrRejected is wrapped around the specific consensus rule that failed,
// for logging and tests; it never escapes Validate itself (a rejection
// triggers branch deletion and the loop continues).
var ErrRejected = errors.New("validator: block rejected")

// Validator walks status='orphan' blocks in space 0, ascending by depth,
// and promotes the ones that pass consensus.
type Validator struct {
	store     *store.Store
	reader    *reader.Reader
	organizer *organizer.Organizer
	dialect   dialect.Dialect
	logger    *zap.Logger
}

// New constructs a Validator. organizer is used to prune a branch when
// one of its blocks fails consensus, rather than halting validation.
func New(s *store.Store, r *reader.Reader, o *organizer.Organizer, d dialect.Dialect) *Validator {
	return &Validator{
		store:     s,
		reader:    r,
		organizer: o,
		dialect:   d,
		logger:    s.Logger().Named("validator"),
	}
}

// Validate processes every orphan block in space 0 by ascending depth so
// that a block's ancestor-dependent queries always see an
// already-validated parent. On consensus failure the failing branch is
// deleted and the loop continues with the next remaining orphan, instead
// of halting.
func (v *Validator) Validate(ctx context.Context) error {
	started := time.Now()
	metrics := telemetry.NewValidator()

	err := v.run(ctx)
	metrics.Observe(err, started)
	return err
}

func (v *Validator) run(ctx context.Context) error {
	for {
		blockID, found, err := v.nextOrphan(ctx)
		if err != nil {
			return fmt.Errorf("find next orphan: %w", err)
		}
		if !found {
			return nil
		}

		if err := v.validateOne(ctx, blockID); err != nil {
			return err
		}
	}
}

func (v *Validator) nextOrphan(ctx context.Context) (uint64, bool, error) {
	stmt, err := v.store.Stmt(ctx, v.store.DB(), nextOrphanQuery)
	if err != nil {
		return 0, false, err
	}
	var blockID uint64
	err = stmt.QueryRowContext(ctx).Scan(&blockID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return blockID, true, nil
}

func (v *Validator) validateOne(ctx context.Context, blockID uint64) error {
	block, err := v.reader.ReadBlock(ctx, v.store.DB(), blockID)
	if err != nil {
		return fmt.Errorf("read block %d: %w", blockID, err)
	}

	rejectReason, err := v.checkConsensus(ctx, v.store.DB(), block)
	if err != nil {
		return fmt.Errorf("validate block %d: %w", blockID, err)
	}

	if rejectReason != nil {
		v.logger.Warn("block failed consensus, deleting branch",
			zap.Uint64("block_id", blockID), zap.Error(rejectReason))
		telemetry.ObserveBlock("rejected")
		return v.organizer.DeleteBranch(ctx, block.Space, block.Depth, block.Span.Left, block.Span.Right)
	}

	if err := v.finalizeStatus(ctx, block); err != nil {
		return err
	}
	telemetry.ObserveBlock("valid")
	return nil
}

// checkConsensus runs every consensus rule against this block. A
// non-nil, non-error return means the block failed a rule (wrapping
// ErrRejected); a non-nil error means the check itself could not be
// carried out (data corruption, fatal). It only reads, so it runs against
// the plain connection pool rather than a transaction: SERIALIZABLE
// isolation is reserved for the coordinate/status rewrites.
func (v *Validator) checkConsensus(ctx context.Context, conn store.Conn, block model.Block) (error, error) {
	bctx := &branchContext{store: v.store, conn: conn, depth: block.Depth, span: block.Span}

	if block.Depth > 0 {
		if err := v.dialect.CheckHeader(ctx, block, bctx); err != nil {
			if errors.Is(err, dialect.ErrScriptFailed) {
				return fmt.Errorf("%w: header check: %v", ErrRejected, err), nil
			}
			return nil, fmt.Errorf("header check: %w", err)
		}
	}

	for i, transaction := range block.Transactions {
		if transaction.IsCoinbase() {
			continue
		}
		reject, err := v.validateTransaction(ctx, conn, block, transaction, i)
		if err != nil {
			return nil, err
		}
		if reject != nil {
			return reject, nil
		}
	}
	return nil, nil
}

func (v *Validator) validateTransaction(ctx context.Context, conn store.Conn, block model.Block, transaction model.Transaction, indexInBlock int) (error, error) {
	stmt, err := v.store.Stmt(ctx, conn, transactionIDInBlockQuery)
	if err != nil {
		return nil, err
	}
	var transactionID uint64
	if err := stmt.QueryRowContext(ctx, block.BlockID, indexInBlock).Scan(&transactionID); err != nil {
		return nil, fmt.Errorf("%w: transaction id for block %d index %d: %v", reader.ErrCorrupt, block.BlockID, indexInBlock, err)
	}

	var valueIn int64
	for inputIndex := range transaction.Inputs {
		reject, err := v.connectInput(ctx, conn, block, transaction, transactionID, inputIndex, &valueIn)
		if err != nil || reject != nil {
			return reject, err
		}
	}
	return nil, nil
}

func (v *Validator) connectInput(ctx context.Context, conn store.Conn, block model.Block, transaction model.Transaction, transactionID uint64, inputIndex int, valueIn *int64) (error, error) {
	input := transaction.Inputs[inputIndex]

	findTxStmt, err := v.store.Stmt(ctx, conn, findTransactionIDByHashQuery)
	if err != nil {
		return nil, err
	}
	var previousTxID uint64
	err = findTxStmt.QueryRowContext(ctx, input.PreviousOutputHash[:]).Scan(&previousTxID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: previous transaction not found", ErrRejected), nil
	case err != nil:
		return nil, err
	}

	outputStmt, err := v.store.Stmt(ctx, conn, findOutputQuery)
	if err != nil {
		return nil, err
	}
	var (
		outputScriptID uint64
		outputValue    int64
	)
	err = outputStmt.QueryRowContext(ctx, previousTxID, input.PreviousOutputIndex).Scan(&outputScriptID, &outputValue)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: previous output not found", ErrRejected), nil
	case err != nil:
		return nil, err
	}

	if outputValue > v.dialect.MaxMoney() {
		return fmt.Errorf("%w: output value exceeds max money", ErrRejected), nil
	}

	isCoinbase, err := v.isCoinbaseTransaction(ctx, conn, previousTxID)
	if err != nil {
		return nil, err
	}
	if isCoinbase {
		previousDepth, err := v.previousBlockDepth(ctx, conn, previousTxID, block.Span)
		if err != nil {
			return nil, err
		}
		// Fixed sign per the design notes: the spending block's depth
		// minus the coinbase's block depth must clear coinbase maturity.
		if block.Depth-previousDepth < v.dialect.CoinbaseMaturity() {
			return fmt.Errorf("%w: coinbase not yet mature", ErrRejected), nil
		}
	}

	outputScript, err := v.reader.ReadScript(ctx, conn, outputScriptID)
	if err != nil {
		return nil, err
	}
	ok, err := v.dialect.Run(outputScript, input.Script, outputValue, transaction, inputIndex)
	if err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: script execution failed", ErrRejected), nil
	}

	conflict, err := v.searchDoubleSpends(ctx, conn, input, transactionID, block.Span)
	if err != nil {
		return nil, err
	}
	if conflict {
		return fmt.Errorf("%w: double spend in same branch", ErrRejected), nil
	}

	*valueIn += outputValue
	if *valueIn > v.dialect.MaxMoney() {
		return fmt.Errorf("%w: cumulative input value exceeds max money", ErrRejected), nil
	}
	return nil, nil
}

func (v *Validator) isCoinbaseTransaction(ctx context.Context, conn store.Conn, transactionID uint64) (bool, error) {
	stmt, err := v.store.Stmt(ctx, conn, transactionInputsQuery)
	if err != nil {
		return false, err
	}
	rows, err := stmt.QueryContext(ctx, transactionID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var inputs []model.Input
	for rows.Next() {
		var (
			hash  []byte
			index uint32
		)
		if err := rows.Scan(&hash, &index); err != nil {
			return false, err
		}
		var in model.Input
		copy(in.PreviousOutputHash[:], hash)
		in.PreviousOutputIndex = index
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return model.IsCoinbase(inputs), nil
}

// previousBlockDepth finds the depth, within the validating block's own
// branch, of the block that carries previousTxID. A transaction hash
// may appear in many blocks across forks, so maturity must be measured
// against the ancestor actually on this branch.
func (v *Validator) previousBlockDepth(ctx context.Context, conn store.Conn, previousTxID uint64, span model.Span) (uint64, error) {
	stmt, err := v.store.Stmt(ctx, conn, previousBlockDepthQuery)
	if err != nil {
		return 0, err
	}
	var depth uint64
	err = stmt.QueryRowContext(ctx, previousTxID, span.Left, span.Right).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("%w: previous block depth for tx %d: %v", reader.ErrCorrupt, previousTxID, err)
	}
	return depth, nil
}

// searchDoubleSpends reports whether the given input's previous output is
// already spent by another input whose containing block is an ancestor
// of (or equal to) the validating block's branch. A conflicting spend in
// an unrelated fork is not a rejection (the redesigned, branch-scoped
// semantics from the design notes).
func (v *Validator) searchDoubleSpends(ctx context.Context, conn store.Conn, input model.Input, transactionID uint64, span model.Span) (bool, error) {
	stmt, err := v.store.Stmt(ctx, conn, searchDoubleSpendQuery)
	if err != nil {
		return false, err
	}
	var otherInputID uint64
	err = stmt.QueryRowContext(ctx,
		input.PreviousOutputHash[:], input.PreviousOutputIndex,
		transactionID, input.IndexInParent,
		span.Left, span.Right,
	).Scan(&otherInputID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// finalizeStatus atomically advances the chains covering this block's
// span and marks it valid, inside one transaction so the chain and
// status updates commit or fail together.
func (v *Validator) finalizeStatus(ctx context.Context, block model.Block) error {
	return v.store.ExecTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		chainsStmt, err := v.store.Stmt(ctx, tx, finalizeChainsQuery)
		if err != nil {
			return err
		}
		if _, err := chainsStmt.ExecContext(ctx, block.BitsHead, block.BitsBody, block.Depth, block.Span.Left, block.Span.Right); err != nil {
			return fmt.Errorf("update chains: %w", err)
		}

		statusStmt, err := v.store.Stmt(ctx, tx, finalizeBlockStatusQuery)
		if err != nil {
			return err
		}
		if _, err := statusStmt.ExecContext(ctx, block.BlockID); err != nil {
			return fmt.Errorf("update block status: %w", err)
		}
		return nil
	})
}
