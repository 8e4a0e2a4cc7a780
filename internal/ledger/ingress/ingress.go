// Package ingress is the concrete inbound seam for newly received blocks:
// InsertOrphanBlock persists one fully-formed orphan block (and its
// transactions, inputs, outputs and scripts) and signals the barrier. The
// P2P/parsing layers that decide a new block's nested-set coordinates
// stay out of scope; this package only owns the write and the debounce
// signal.
package ingress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/ledger/barrier"
	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/money"
	"github.com/blockforest/ledgercore/internal/ledger/store"
	"github.com/blockforest/ledgercore/internal/telemetry"
)

// NewOutput builds a model.Output from a decimal coin amount (e.g. the
// "0.0005" a collaborator parses off the wire), converting it to the
// integer satoshi amount the schema stores through money.ToSatoshi, the
// Go-side counterpart of the store's sql_to_internal(value) the Reader
// applies on the way back out.
func NewOutput(coinAmount float64, script model.Script) (model.Output, error) {
	value, err := money.ToSatoshi(coinAmount)
	if err != nil {
		return model.Output{}, fmt.Errorf("ingress: build output: %w", err)
	}
	return model.Output{Value: value, Script: script}, nil
}

// Ingress writes new orphan blocks and raises the debounce barrier.
type Ingress struct {
	store   *store.Store
	barrier *barrier.Barrier
	logger  *zap.Logger
}

// New constructs an Ingress bound to s and b. b may be nil for tests that
// only exercise the write path.
func New(s *store.Store, b *barrier.Barrier) *Ingress {
	return &Ingress{store: s, barrier: b, logger: s.Logger().Named("ingress")}
}

// InsertOrphanBlock persists block with status='orphan', exactly at the
// space/depth/span coordinates the caller has already chosen (either
// space=0 with an ancestor-relative span, or space>0, depth=0,
// span_left=0 for a new orphan tree root), then raises the barrier. The
// whole write runs in one serializable transaction since it touches
// several tables that must agree on the block's eventual block_id.
func (g *Ingress) InsertOrphanBlock(ctx context.Context, block model.Block) (uint64, error) {
	if block.Span.Left > block.Span.Right {
		return 0, fmt.Errorf("ingress: invalid span [%d,%d]", block.Span.Left, block.Span.Right)
	}
	if block.Space > 0 && (block.Depth != 0 || block.Span.Left != 0) {
		return 0, fmt.Errorf("ingress: orphan tree root must have depth=0, span_left=0, got depth=%d span_left=%d", block.Depth, block.Span.Left)
	}

	var blockID uint64
	err := g.store.ExecTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		id, err := g.insertBlock(ctx, tx, block)
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		blockID = id

		for i := range block.Transactions {
			transactionID, err := g.insertTransaction(ctx, tx, &block.Transactions[i])
			if err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}

			stmt, err := g.store.Stmt(ctx, tx, insertTransactionParentQuery)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, blockID, transactionID, i); err != nil {
				return fmt.Errorf("link transaction %d to block: %w", i, err)
			}
		}
		return nil
	})
	telemetry.ObserveIngressBlock(err)
	if err != nil {
		return 0, err
	}

	if g.barrier != nil {
		g.barrier.RaiseBarrier()
	}
	return blockID, nil
}

// insertTransaction finds an existing row by hash (the same transaction
// can be carried by many blocks across forks) or inserts a new one, then
// persists its inputs and outputs.
func (g *Ingress) insertTransaction(ctx context.Context, tx *sql.Tx, transaction *model.Transaction) (uint64, error) {
	findStmt, err := g.store.Stmt(ctx, tx, findTransactionByHashQuery)
	if err != nil {
		return 0, err
	}
	var transactionID uint64
	err = findStmt.QueryRowContext(ctx, transaction.TransactionHash[:]).Scan(&transactionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insertStmt, ierr := g.store.Stmt(ctx, tx, insertTransactionQuery)
		if ierr != nil {
			return 0, ierr
		}
		if ierr := insertStmt.QueryRowContext(ctx, transaction.TransactionHash[:], transaction.Version, transaction.LockTime).Scan(&transactionID); ierr != nil {
			return 0, fmt.Errorf("insert transaction row: %w", ierr)
		}

		for i := range transaction.Inputs {
			if err := g.insertInput(ctx, tx, transactionID, uint32(i), &transaction.Inputs[i]); err != nil {
				return 0, fmt.Errorf("input %d: %w", i, err)
			}
		}
		for i := range transaction.Outputs {
			if err := g.insertOutput(ctx, tx, transactionID, uint32(i), &transaction.Outputs[i]); err != nil {
				return 0, fmt.Errorf("output %d: %w", i, err)
			}
		}
	case err != nil:
		return 0, fmt.Errorf("lookup transaction by hash: %w", err)
	}
	return transactionID, nil
}

func (g *Ingress) insertInput(ctx context.Context, tx *sql.Tx, transactionID uint64, indexInParent uint32, input *model.Input) error {
	scriptID, err := g.insertScript(ctx, tx, input.Script)
	if err != nil {
		return err
	}
	stmt, err := g.store.Stmt(ctx, tx, insertInputQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, transactionID, indexInParent, input.PreviousOutputHash[:], input.PreviousOutputIndex, scriptID, input.Sequence)
	return err
}

func (g *Ingress) insertOutput(ctx context.Context, tx *sql.Tx, transactionID uint64, indexInParent uint32, output *model.Output) error {
	scriptID, err := g.insertScript(ctx, tx, output.Script)
	if err != nil {
		return err
	}
	stmt, err := g.store.Stmt(ctx, tx, insertOutputQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, transactionID, indexInParent, output.Value, scriptID)
	return err
}

func (g *Ingress) insertScript(ctx context.Context, tx *sql.Tx, script model.Script) (uint64, error) {
	stmt, err := g.store.Stmt(ctx, tx, insertScriptQuery)
	if err != nil {
		return 0, err
	}
	var scriptID uint64
	if err := stmt.QueryRowContext(ctx).Scan(&scriptID); err != nil {
		return 0, fmt.Errorf("insert script row: %w", err)
	}

	opStmt, err := g.store.Stmt(ctx, tx, insertOperationQuery)
	if err != nil {
		return 0, err
	}
	for _, op := range script.Operations {
		if _, err := opStmt.ExecContext(ctx, scriptID, op.Opcode, op.Data); err != nil {
			return 0, fmt.Errorf("insert operation: %w", err)
		}
	}
	return scriptID, nil
}

func (g *Ingress) insertBlock(ctx context.Context, tx *sql.Tx, block model.Block) (uint64, error) {
	stmt, err := g.store.Stmt(ctx, tx, insertBlockQuery)
	if err != nil {
		return 0, err
	}
	var blockID uint64
	err = stmt.QueryRowContext(ctx,
		block.BlockHash[:], block.PrevBlockHash[:],
		block.Version, block.Timestamp,
		block.BitsHead, block.BitsBody, block.Nonce, block.MerkleRoot[:],
		block.Space, block.Depth, block.Span.Left, block.Span.Right,
	).Scan(&blockID)
	return blockID, err
}
