// Package model defines the domain types the blockchain persistence core
// reads from and writes to the relational store: blocks positioned in a
// nested-set forest, their chains, transactions, inputs, outputs and
// scripts.
package model

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Status is the lifecycle state of a block row. Rejected blocks are
// deleted outright rather than tracked in a third state.
type Status string

const (
	// StatusOrphan is the initial state for every inserted block: it has
	// not yet passed consensus validation (or, for space>0 trees, has not
	// yet been grafted under a known parent).
	StatusOrphan Status = "orphan"

	// StatusValid marks a block that has passed consensus validation.
	StatusValid Status = "valid"
)

// Span is the nested-set interval locating a block within its space.
// Ancestor containment is interval containment: a is an ancestor of b iff
// a.Left <= b.Left && a.Right >= b.Right && a.Depth < b.Depth.
type Span struct {
	Left  uint64
	Right uint64
}

// Width reports how many leaf slots this span currently reserves for
// itself when it has no children (Left == Right), which callers must
// combine with a descendant lookup to fully resolve per
// get_block_width semantics; use Organizer.blockWidth for that.
func (s Span) Width() uint64 {
	return s.Right - s.Left + 1
}

// Block is a row in the blocks table: a header plus its position in the
// nested-set forest.
type Block struct {
	BlockID       uint64
	BlockHash     chainhash.Hash
	PrevBlockHash chainhash.Hash
	// PrevBlockID is resolved lazily by the Organizer once the parent
	// block is known; zero means unresolved.
	PrevBlockID uint64

	Version    uint32
	Timestamp  time.Time
	BitsHead   uint32 // top byte of the compact difficulty target
	BitsBody   uint32 // low 24 bits of the compact difficulty target
	Nonce      uint32
	MerkleRoot chainhash.Hash

	Space uint64
	Depth uint64
	Span  Span

	Status Status

	Transactions []Transaction
}

// Bits reassembles the compact difficulty target from its head/body parts.
func Bits(bitsHead, bitsBody uint32) uint32 {
	return (bitsHead << 24) | (bitsBody & 0x00ffffff)
}

// Bits reassembles this block's compact difficulty target.
func (b Block) Bits() uint32 {
	return Bits(b.BitsHead, b.BitsBody)
}

// SplitBits decomposes a compact difficulty target into the head/body
// halves the schema stores separately.
func SplitBits(bits uint32) (head, body uint32) {
	return bits >> 24, bits & 0x00ffffff
}

// Chain is a cumulative-work record for one leaf (tip) of the main tree
// (space 0). ChainID equals the leaf's span_left.
type Chain struct {
	ChainID uint64
	Work    float64
	Depth   uint64
}
