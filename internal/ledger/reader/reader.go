// Package reader reconstructs domain objects from the relational store:
// scripts, inputs, outputs, transactions and whole blocks.
// Deserialization is total: any row that cannot be fully reassembled is
// a data-corruption error, never a partial result.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/store"
	"github.com/blockforest/ledgercore/pkg/safe"
	"github.com/blockforest/ledgercore/pkg/workerpool"
)

// ErrCorrupt wraps any failure to reassemble a row into a domain object:
// the schema guarantees referential integrity, so this always signals
// corruption rather than an expected "not found".
var ErrCorrupt = errors.New("reader: corrupt data")

const defaultTransactionWorkers = 8

// Reader is the query-side half of the schema & query layer: it turns
// rows fetched through store.Store into model.Block/model.Transaction
// trees. It holds no SQL transaction of its own: callers pass the
// store.Conn (pool or in-flight transaction) they want reads bound to.
type Reader struct {
	store           *store.Store
	transactionPool int
}

// New constructs a Reader bound to s, fanning transaction reads for a
// single block out across a small worker pool (each transaction's
// inputs/outputs are independent point queries).
func New(s *store.Store) *Reader {
	return &Reader{store: s, transactionPool: defaultTransactionWorkers}
}

// ReadScript loads scriptID's operations ordered by operation_id,
// decoding the data column when present.
func (r *Reader) ReadScript(ctx context.Context, conn store.Conn, scriptID uint64) (model.Script, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectOperationsQuery)
	if err != nil {
		return model.Script{}, fmt.Errorf("prepare select operations: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, scriptID)
	if err != nil {
		return model.Script{}, fmt.Errorf("select operations for script %d: %w", scriptID, err)
	}
	defer rows.Close()

	var script model.Script
	for rows.Next() {
		var (
			opcode int16
			data   []byte
		)
		if err := rows.Scan(&opcode, &data); err != nil {
			return model.Script{}, fmt.Errorf("%w: scan operation for script %d: %v", ErrCorrupt, scriptID, err)
		}
		script.PushOperation(model.Operation{Opcode: byte(opcode), Data: data})
	}
	if err := rows.Err(); err != nil {
		return model.Script{}, fmt.Errorf("%w: iterate operations for script %d: %v", ErrCorrupt, scriptID, err)
	}
	return script, nil
}

// ReadInputs loads transactionID's inputs ordered by index_in_parent,
// resolving each input's script.
func (r *Reader) ReadInputs(ctx context.Context, conn store.Conn, transactionID uint64) ([]model.Input, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectInputsQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare select inputs: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("select inputs for transaction %d: %w", transactionID, err)
	}
	defer rows.Close()

	var inputs []model.Input
	for rows.Next() {
		var (
			in                model.Input
			indexInParent     int32
			previousOutputHash []byte
			previousOutputIdx  int64
			sequence           int64
		)
		if err := rows.Scan(&in.InputID, &indexInParent, &previousOutputHash, &previousOutputIdx, &in.ScriptID, &sequence); err != nil {
			return nil, fmt.Errorf("%w: scan input for transaction %d: %v", ErrCorrupt, transactionID, err)
		}
		in.TransactionID = transactionID
		if in.IndexInParent, err = safe.Uint32(indexInParent); err != nil {
			return nil, fmt.Errorf("%w: input index: %v", ErrCorrupt, err)
		}
		hash, err := chainhash.NewHash(previousOutputHash)
		if err != nil {
			return nil, fmt.Errorf("%w: previous output hash: %v", ErrCorrupt, err)
		}
		in.PreviousOutputHash = *hash
		if in.PreviousOutputIndex, err = safe.Uint32(previousOutputIdx); err != nil {
			return nil, fmt.Errorf("%w: previous output index: %v", ErrCorrupt, err)
		}
		if in.Sequence, err = safe.Uint32(sequence); err != nil {
			return nil, fmt.Errorf("%w: sequence: %v", ErrCorrupt, err)
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate inputs for transaction %d: %v", ErrCorrupt, transactionID, err)
	}

	for i := range inputs {
		script, err := r.ReadScript(ctx, conn, inputs[i].ScriptID)
		if err != nil {
			return nil, err
		}
		inputs[i].Script = script
	}
	return inputs, nil
}

// ReadOutputs loads transactionID's outputs ordered by index_in_parent,
// coercing the stored decimal value to satoshi via sql_to_internal.
func (r *Reader) ReadOutputs(ctx context.Context, conn store.Conn, transactionID uint64) ([]model.Output, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectOutputsQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare select outputs: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("select outputs for transaction %d: %w", transactionID, err)
	}
	defer rows.Close()

	var outputs []model.Output
	for rows.Next() {
		var (
			out           model.Output
			indexInParent int32
		)
		if err := rows.Scan(&out.OutputID, &indexInParent, &out.Value, &out.ScriptID); err != nil {
			return nil, fmt.Errorf("%w: scan output for transaction %d: %v", ErrCorrupt, transactionID, err)
		}
		out.TransactionID = transactionID
		if out.IndexInParent, err = safe.Uint32(indexInParent); err != nil {
			return nil, fmt.Errorf("%w: output index: %v", ErrCorrupt, err)
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate outputs for transaction %d: %v", ErrCorrupt, transactionID, err)
	}

	for i := range outputs {
		script, err := r.ReadScript(ctx, conn, outputs[i].ScriptID)
		if err != nil {
			return nil, err
		}
		outputs[i].Script = script
	}
	return outputs, nil
}

// ReadTransaction loads one transaction row plus its inputs/outputs.
func (r *Reader) ReadTransaction(ctx context.Context, conn store.Conn, transactionID uint64) (model.Transaction, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectTransactionQuery)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("prepare select transaction: %w", err)
	}

	var (
		tx       model.Transaction
		hash     []byte
		version  int32
		locktime int64
	)
	err = stmt.QueryRowContext(ctx, transactionID).Scan(&hash, &version, &locktime)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: select transaction %d: %v", ErrCorrupt, transactionID, err)
	}
	tx.TransactionID = transactionID
	txHash, err := chainhash.NewHash(hash)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: transaction hash: %v", ErrCorrupt, err)
	}
	tx.TransactionHash = *txHash
	tx.Version = uint32(version)
	if tx.LockTime, err = safe.Uint32(locktime); err != nil {
		return model.Transaction{}, fmt.Errorf("%w: locktime: %v", ErrCorrupt, err)
	}

	if tx.Inputs, err = r.ReadInputs(ctx, conn, transactionID); err != nil {
		return model.Transaction{}, err
	}
	if tx.Outputs, err = r.ReadOutputs(ctx, conn, transactionID); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

// ReadBlock reassembles block blockID's header and its transaction list
// (joined through transactions_parents, ordered by index_in_block),
// fanning the per-transaction reads out across a bounded worker pool
// since each is an independent point-query chain.
func (r *Reader) ReadBlock(ctx context.Context, conn store.Conn, blockID uint64) (model.Block, error) {
	block, err := r.ReadBlockInfo(ctx, conn, blockID)
	if err != nil {
		return model.Block{}, err
	}

	ids, err := r.transactionIDs(ctx, conn, blockID)
	if err != nil {
		return model.Block{}, err
	}

	txs := make([]model.Transaction, len(ids))
	err = workerpool.Process(ctx, r.transactionPool, ids,
		func(ctx context.Context, ref txRef) error {
			tx, err := r.ReadTransaction(ctx, conn, ref.transactionID)
			if err != nil {
				return err
			}
			tx.IndexInBlock = ref.indexInBlock
			txs[ref.slot] = tx
			return nil
		}, nil)
	if err != nil {
		return model.Block{}, err
	}

	block.Transactions = txs
	return block, nil
}

type txRef struct {
	slot          int
	transactionID uint64
	indexInBlock  uint32
}

func (r *Reader) transactionIDs(ctx context.Context, conn store.Conn, blockID uint64) ([]txRef, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectBlockTransactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare select block transactions: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("select transactions for block %d: %w", blockID, err)
	}
	defer rows.Close()

	var refs []txRef
	for rows.Next() {
		var (
			transactionID uint64
			indexInBlock  int32
		)
		if err := rows.Scan(&transactionID, &indexInBlock); err != nil {
			return nil, fmt.Errorf("%w: scan block transaction ref: %v", ErrCorrupt, err)
		}
		idx, err := safe.Uint32(indexInBlock)
		if err != nil {
			return nil, fmt.Errorf("%w: block transaction index: %v", ErrCorrupt, err)
		}
		refs = append(refs, txRef{slot: len(refs), transactionID: transactionID, indexInBlock: idx})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate block transactions: %v", ErrCorrupt, err)
	}
	return refs, nil
}

// ReadBlockInfo loads only the block header and coordinates, without its
// transaction list: everything the Organizer and Validator need for
// position/branch-local queries without paying for a full block read.
func (r *Reader) ReadBlockInfo(ctx context.Context, conn store.Conn, blockID uint64) (model.Block, error) {
	stmt, err := r.store.Stmt(ctx, conn, selectBlockQuery)
	if err != nil {
		return model.Block{}, fmt.Errorf("prepare select block: %w", err)
	}
	return scanBlock(stmt.QueryRowContext(ctx, blockID))
}

func scanBlock(row *sql.Row) (model.Block, error) {
	var (
		b                                    model.Block
		blockHash, prevBlockHash, merkleRoot []byte
		prevBlockID                          sql.NullInt64
		version                              int32
		bitsHead, bitsBody                   int32
		nonce                                int64
		space, depth, spanLeft, spanRight    int64
		status                               string
	)
	err := row.Scan(
		&b.BlockID, &blockHash, &prevBlockHash, &prevBlockID,
		&version, &b.Timestamp, &bitsHead, &bitsBody, &nonce, &merkleRoot,
		&space, &depth, &spanLeft, &spanRight, &status,
	)
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: scan block: %v", ErrCorrupt, err)
	}

	hash, err := chainhash.NewHash(blockHash)
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: block hash: %v", ErrCorrupt, err)
	}
	b.BlockHash = *hash

	prevHash, err := chainhash.NewHash(prevBlockHash)
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: prev block hash: %v", ErrCorrupt, err)
	}
	b.PrevBlockHash = *prevHash

	root, err := chainhash.NewHash(merkleRoot)
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: merkle root: %v", ErrCorrupt, err)
	}
	b.MerkleRoot = *root

	if prevBlockID.Valid {
		if b.PrevBlockID, err = safe.Uint64(prevBlockID.Int64); err != nil {
			return model.Block{}, fmt.Errorf("%w: prev block id: %v", ErrCorrupt, err)
		}
	}

	b.Version = uint32(version)
	b.BitsHead = uint32(bitsHead)
	b.BitsBody = uint32(bitsBody)
	if b.Nonce, err = safe.Uint32(nonce); err != nil {
		return model.Block{}, fmt.Errorf("%w: nonce: %v", ErrCorrupt, err)
	}
	if b.Space, err = safe.Uint64(space); err != nil {
		return model.Block{}, fmt.Errorf("%w: space: %v", ErrCorrupt, err)
	}
	if b.Depth, err = safe.Uint64(depth); err != nil {
		return model.Block{}, fmt.Errorf("%w: depth: %v", ErrCorrupt, err)
	}
	if b.Span.Left, err = safe.Uint64(spanLeft); err != nil {
		return model.Block{}, fmt.Errorf("%w: span_left: %v", ErrCorrupt, err)
	}
	if b.Span.Right, err = safe.Uint64(spanRight); err != nil {
		return model.Block{}, fmt.Errorf("%w: span_right: %v", ErrCorrupt, err)
	}
	b.Status = model.Status(status)
	return b, nil
}
