package model

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Transaction is a row in the transactions table. A transaction may be
// referenced by many blocks across forks (transactions_parents carries
// the membership + ordering).
type Transaction struct {
	TransactionID   uint64
	TransactionHash chainhash.Hash
	Version         uint32
	LockTime        uint32

	// IndexInBlock is only meaningful while a Transaction is attached to
	// a particular Block via transactions_parents; it is not a column on
	// the transactions table itself.
	IndexInBlock uint32

	Inputs  []Input
	Outputs []Output
}

// IsCoinbase reports whether tx has no real previous outputs, i.e. it is
// the block-reward transaction.
func (t Transaction) IsCoinbase() bool {
	return IsCoinbase(t.Inputs)
}

// IsCoinbase reports whether the given input set belongs to a coinbase
// transaction. A coinbase transaction is detected structurally: it has
// exactly one input referencing the null previous-output hash.
func IsCoinbase(inputs []Input) bool {
	if len(inputs) != 1 {
		return false
	}
	return inputs[0].PreviousOutputHash == (chainhash.Hash{})
}

// Input is a row in the inputs table: a reference to a previous
// transaction's output, plus the script that unlocks it.
type Input struct {
	InputID             uint64
	TransactionID       uint64
	IndexInParent       uint32
	PreviousOutputHash  chainhash.Hash
	PreviousOutputIndex uint32
	ScriptID            uint64
	Script              Script
	Sequence            uint32
}

// Output is a row in the outputs table: a value in satoshi plus the
// script that locks it.
type Output struct {
	OutputID      uint64
	TransactionID uint64
	IndexInParent uint32
	// Value is the satoshi amount, already coerced from the store's
	// decimal money column via sql_to_internal.
	Value    int64
	ScriptID uint64
	Script   Script
}
