package model

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestSpanWidth(t *testing.T) {
	cases := []struct {
		span Span
		want uint64
	}{
		{Span{Left: 0, Right: 0}, 1},
		{Span{Left: 3, Right: 7}, 5},
	}
	for _, c := range cases {
		if got := c.span.Width(); got != c.want {
			t.Errorf("Span{%d,%d}.Width() = %d, want %d", c.span.Left, c.span.Right, got, c.want)
		}
	}
}

func TestBitsRoundTrip(t *testing.T) {
	bits := uint32(0x1d00ffff)
	head, body := SplitBits(bits)
	if got := Bits(head, body); got != bits {
		t.Fatalf("Bits(SplitBits(%#x)) = %#x, want %#x", bits, got, bits)
	}
}

func TestBlockBitsMatchesFields(t *testing.T) {
	b := Block{BitsHead: 0x1d, BitsBody: 0x00ffff}
	if got, want := b.Bits(), uint32(0x1d00ffff); got != want {
		t.Fatalf("Block.Bits() = %#x, want %#x", got, want)
	}
}

func TestIsCoinbase(t *testing.T) {
	coinbase := []Input{{PreviousOutputHash: chainhash.Hash{}}}
	if !IsCoinbase(coinbase) {
		t.Fatal("expected single null-hash input to be a coinbase")
	}

	var realHash chainhash.Hash
	realHash[0] = 1
	notCoinbase := []Input{{PreviousOutputHash: realHash}}
	if IsCoinbase(notCoinbase) {
		t.Fatal("expected input referencing a real hash not to be a coinbase")
	}

	multi := []Input{{PreviousOutputHash: chainhash.Hash{}}, {PreviousOutputHash: chainhash.Hash{}}}
	if IsCoinbase(multi) {
		t.Fatal("expected multi-input transaction not to be a coinbase even with null hashes")
	}
}

func TestScriptRaw(t *testing.T) {
	var s Script
	s.PushOperation(Operation{Opcode: 0x76})
	s.PushOperation(Operation{Opcode: 0x14, Data: []byte{1, 2, 3, 4}})

	want := []byte{0x76, 0x14, 1, 2, 3, 4}
	got := s.Raw()
	if len(got) != len(want) {
		t.Fatalf("Raw() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Raw() = %v, want %v", got, want)
		}
	}
}
