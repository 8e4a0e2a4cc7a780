package validator

import (
	"context"
	"fmt"

	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/store"
)

// branchContext implements dialect.BranchContext, answering header-level
// consensus queries scoped to one block's (depth, span_left, span_right)
// within the main tree.
type branchContext struct {
	store *store.Store
	conn  store.Conn
	depth uint64
	span  model.Span
}

func (b *branchContext) PreviousBlockBits(ctx context.Context) (bitsHead, bitsBody uint32, err error) {
	stmt, err := b.store.Stmt(ctx, b.conn, previousBlockBitsQuery)
	if err != nil {
		return 0, 0, err
	}
	err = stmt.QueryRowContext(ctx, b.depth-1, b.span.Left, b.span.Right).Scan(&bitsHead, &bitsBody)
	if err != nil {
		return 0, 0, fmt.Errorf("previous block bits at depth %d: %w", b.depth-1, err)
	}
	return bitsHead, bitsBody, nil
}

func (b *branchContext) ActualTimespan(ctx context.Context, interval uint64) (int64, error) {
	if b.depth < interval {
		return 0, fmt.Errorf("actual timespan: depth %d below interval %d", b.depth, interval)
	}
	stmt, err := b.store.Stmt(ctx, b.conn, actualTimespanQuery)
	if err != nil {
		return 0, err
	}
	beginDepth := b.depth - interval
	endDepth := b.depth - 1
	var seconds float64
	err = stmt.QueryRowContext(ctx, beginDepth, b.span.Left, b.span.Right, endDepth).Scan(&seconds)
	if err != nil {
		return 0, fmt.Errorf("actual timespan: %w", err)
	}
	return int64(seconds), nil
}

func (b *branchContext) MedianTimePast(ctx context.Context) (int64, error) {
	medianOffset := uint64(5)
	if b.depth < 11 {
		medianOffset = b.depth / 2
	}

	stmt, err := b.store.Stmt(ctx, b.conn, medianTimePastQuery)
	if err != nil {
		return 0, err
	}
	var seconds float64
	err = stmt.QueryRowContext(ctx, b.depth, b.span.Left, b.span.Right, medianOffset).Scan(&seconds)
	if err != nil {
		return 0, fmt.Errorf("median time past: %w", err)
	}
	return int64(seconds), nil
}
