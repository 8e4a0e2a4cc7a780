// Package organizer grafts orphan trees onto the main nested-set forest
// once their parent becomes known. It is the O(n) rewrite half of the
// nested-set representation, the counterpart to the O(1) ancestor-range
// reads the Reader and Validator perform.
package organizer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/store"
	"github.com/blockforest/ledgercore/internal/telemetry"
)

// ErrInconsistent is returned when a position lookup fails mid-graft, a
// fatal inconsistency that aborts the entire Organize run.
var ErrInconsistent = errors.New("organizer: inconsistent position info")

// Organizer grafts orphan subtrees under their newly-discovered parents.
type Organizer struct {
	store  *store.Store
	logger *zap.Logger
}

// New constructs an Organizer bound to s.
func New(s *store.Store) *Organizer {
	return &Organizer{store: s, logger: s.Logger().Named("organizer")}
}

// Organize repeatedly finds a (child, parent) pair where the child is an
// orphan tree root (space>0, depth=0) whose prev_block_hash now matches a
// known block, and grafts it under that parent. It keeps going until no
// such pair remains, since grafting one orphan can expose its own former
// children as newly graftable in the same pass.
func (o *Organizer) Organize(ctx context.Context) error {
	started := time.Now()
	grafts := 0
	metrics := telemetry.NewOrganizer()

	err := o.run(ctx, &grafts)
	metrics.Observe(err, grafts, started)
	return err
}

func (o *Organizer) run(ctx context.Context, grafts *int) error {
	for {
		childID, childSpace, parentID, found, err := o.nextPair(ctx)
		if err != nil {
			return fmt.Errorf("find orphan pair: %w", err)
		}
		if !found {
			return nil
		}

		if err := o.graft(ctx, childID, childSpace, parentID); err != nil {
			return err
		}
		*grafts++
	}
}

func (o *Organizer) nextPair(ctx context.Context) (childID, childSpace, parentID uint64, found bool, err error) {
	stmt, err := o.store.Stmt(ctx, o.store.DB(), orphanPairsQuery)
	if err != nil {
		return 0, 0, 0, false, err
	}
	err = stmt.QueryRowContext(ctx).Scan(&childID, &childSpace, &parentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, 0, 0, false, nil
	case err != nil:
		return 0, 0, 0, false, err
	}
	return childID, childSpace, parentID, true, nil
}

// graft performs one complete child-under-parent graft inside a single
// serializable transaction, since the coordinate rewrite is a
// multi-statement sequence that must commit or fail as a unit.
func (o *Organizer) graft(ctx context.Context, childID, childSpace, parentID uint64) error {
	return o.store.ExecTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := o.pointPrev(ctx, tx, childID, parentID); err != nil {
			return err
		}

		parentSpace, parentDepth, parentSpan, err := o.loadPositionInfo(ctx, tx, parentID)
		if err != nil {
			return fmt.Errorf("%w: parent %d: %v", ErrInconsistent, parentID, err)
		}

		// The child's own span can only be read here: prior graftings in
		// this same run may have already shifted it.
		childSpan, err := o.loadSpan(ctx, tx, childID)
		if err != nil {
			return fmt.Errorf("%w: child %d: %v", ErrInconsistent, childID, err)
		}
		if childSpan.Left != 0 {
			return fmt.Errorf("organizer: orphan tree root %d has span_left %d, want 0", childID, childSpan.Left)
		}

		parentWidth, err := o.blockWidth(ctx, tx, parentSpace, parentDepth, parentSpan)
		if err != nil {
			return err
		}
		childWidth := childSpan.Right - childSpan.Left + 1

		newChildSpanLeft := parentSpan.Right
		if parentWidth > 0 {
			newChildSpanLeft++
		}
		newChildDepth := parentDepth + 1

		if err := o.reserveBranchArea(ctx, tx, parentSpace, parentWidth, parentSpan, newChildDepth, childWidth); err != nil {
			return err
		}
		return o.positionChildBranch(ctx, tx, childSpace, parentSpace, newChildDepth, newChildSpanLeft)
	})
}

func (o *Organizer) pointPrev(ctx context.Context, tx *sql.Tx, childID, parentID uint64) error {
	stmt, err := o.store.Stmt(ctx, tx, pointPrevQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, parentID, childID)
	return err
}

// loadPositionInfo reads a block's current space/depth/span. Parent
// coordinates must be reloaded on every graft because earlier graftings
// in the same run may have shifted them.
func (o *Organizer) loadPositionInfo(ctx context.Context, tx *sql.Tx, blockID uint64) (space, depth uint64, span model.Span, err error) {
	stmt, err := o.store.Stmt(ctx, tx, loadPositionInfoQuery)
	if err != nil {
		return 0, 0, model.Span{}, err
	}
	err = stmt.QueryRowContext(ctx, blockID).Scan(&space, &depth, &span.Left, &span.Right)
	return space, depth, span, err
}

func (o *Organizer) loadSpan(ctx context.Context, tx *sql.Tx, blockID uint64) (model.Span, error) {
	stmt, err := o.store.Stmt(ctx, tx, loadSpanQuery)
	if err != nil {
		return model.Span{}, err
	}
	var span model.Span
	err = stmt.QueryRowContext(ctx, blockID).Scan(&span.Left, &span.Right)
	return span, err
}

// blockWidth implements get_block_width: a leaf with no reserved gap
// reports 0, a leaf that already has a descendant chain reports 1 (the
// parent's own [l,l] slot is still shared with that chain), and a row
// whose span already spans an interval reports its width directly.
func (o *Organizer) blockWidth(ctx context.Context, tx *sql.Tx, space, depth uint64, span model.Span) (uint64, error) {
	if span.Left < span.Right {
		return span.Width(), nil
	}

	stmt, err := o.store.Stmt(ctx, tx, hasDescendantQuery)
	if err != nil {
		return 0, err
	}
	var dummy int
	err = stmt.QueryRowContext(ctx, space, depth, span.Left, span.Right).Scan(&dummy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return 1, nil
}

// reserveBranchArea makes room in parentSpace for childWidth new leaf
// slots under the parent located at parentSpan.
func (o *Organizer) reserveBranchArea(ctx context.Context, tx *sql.Tx, parentSpace, parentWidth uint64, parentSpan model.Span, newChildDepth, childWidth uint64) error {
	if parentWidth == 0 && childWidth == 1 {
		return nil
	}

	if err := o.exec(ctx, tx, shiftRightOfParentRightQuery, childWidth, parentSpace, parentSpan.Right); err != nil {
		return err
	}
	if err := o.exec(ctx, tx, shiftLeftOfParentRightQuery, childWidth, parentSpace, parentSpan.Right); err != nil {
		return err
	}
	if err := o.exec(ctx, tx, extendAncestorsQuery, childWidth, parentSpace, newChildDepth, parentSpan.Right); err != nil {
		return err
	}

	if parentSpace != 0 {
		return nil
	}

	if err := o.exec(ctx, tx, shiftChainsAboveQuery, childWidth, parentSpan.Right); err != nil {
		return err
	}
	for subChain := parentWidth; subChain < parentWidth+childWidth; subChain++ {
		if err := o.exec(ctx, tx, insertSubChainQuery, subChain, parentSpan.Left); err != nil {
			return err
		}
	}
	return nil
}

// positionChildBranch moves the orphan tree rooted at oldSpace (depth 0,
// span_left 0) into newSpace at the resolved coordinates.
func (o *Organizer) positionChildBranch(ctx context.Context, tx *sql.Tx, oldSpace, newSpace, newDepth, newSpanLeft uint64) error {
	return o.exec(ctx, tx, positionChildBranchQuery, newSpace, newDepth, newSpanLeft, oldSpace)
}

// DeleteBranch removes the subtree at (space, depth, span_left,
// span_right) and collapses coordinates/chains to restore the forest and
// chain invariants. The Validator calls this when a block fails
// consensus, pruning the branch instead of halting validation.
func (o *Organizer) DeleteBranch(ctx context.Context, space, depth, spanLeft, spanRight uint64) error {
	return o.store.ExecTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		lonely, err := o.isLonelyChild(ctx, tx, space, depth, spanLeft, spanRight)
		if err != nil {
			return err
		}

		offset := spanRight - spanLeft
		if lonely {
			offset++
			if err := o.deleteChains(ctx, tx, spanLeft, spanRight); err != nil {
				return err
			}
		} else {
			if err := o.deleteChains(ctx, tx, spanLeft+1, spanRight); err != nil {
				return err
			}
			if err := o.unwindChain(ctx, tx, depth, spanLeft); err != nil {
				return err
			}
		}

		if err := o.exec(ctx, tx, deleteSubtreeBlocksQuery, space, depth, spanLeft, spanRight); err != nil {
			return err
		}
		if err := o.exec(ctx, tx, shiftSpanLeftDownQuery, offset, space, spanRight); err != nil {
			return err
		}
		return o.exec(ctx, tx, shiftSpanRightDownQuery, offset, space, spanRight)
	})
}

// isLonelyChild reports whether no block one depth shallower occupies
// exactly the same span. When such a block exists (not lonely), the
// subtree shares that ancestor's slot along a single-width chain, so
// DeleteBranch keeps the chain row at span_left and only unwinds its
// accumulated work there.
func (o *Organizer) isLonelyChild(ctx context.Context, tx *sql.Tx, space, depth, spanLeft, spanRight uint64) (bool, error) {
	stmt, err := o.store.Stmt(ctx, tx, lonelyChildQuery)
	if err != nil {
		return false, err
	}
	var dummy int
	err = stmt.QueryRowContext(ctx, space, depth-1, spanLeft, spanRight).Scan(&dummy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

func (o *Organizer) deleteChains(ctx context.Context, tx *sql.Tx, left, right uint64) error {
	if err := o.exec(ctx, tx, deleteChainsRangeQuery, left, right); err != nil {
		return err
	}
	if right < left {
		return nil
	}
	offset := (right + 1) - left
	return o.exec(ctx, tx, shiftChainsDownQuery, offset, right)
}

func (o *Organizer) unwindChain(ctx context.Context, tx *sql.Tx, depth, chainID uint64) error {
	return o.exec(ctx, tx, unwindChainQuery, depth, chainID)
}

func (o *Organizer) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	stmt, err := o.store.Stmt(ctx, tx, query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, args...)
	return err
}
