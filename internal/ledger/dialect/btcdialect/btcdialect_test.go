package btcdialect

import (
	"context"
	"testing"
	"time"

	"github.com/blockforest/ledgercore/internal/ledger/model"
)

type fakeBranch struct {
	bitsHead, bitsBody uint32
	actualTimespan     int64
	medianTimePast     int64
}

func (f fakeBranch) PreviousBlockBits(context.Context) (uint32, uint32, error) {
	return f.bitsHead, f.bitsBody, nil
}

func (f fakeBranch) ActualTimespan(context.Context, uint64) (int64, error) {
	return f.actualTimespan, nil
}

func (f fakeBranch) MedianTimePast(context.Context) (int64, error) {
	return f.medianTimePast, nil
}

func TestCheckHeaderRejectsTimestampNotPastMedian(t *testing.T) {
	d := New(Params{CoinbaseMaturity: 100, MaxMoney: 21000000 * 1e8})
	bctx := fakeBranch{medianTimePast: 1000}
	block := model.Block{Depth: 1, Timestamp: time.Unix(999, 0)}

	if err := d.CheckHeader(context.Background(), block, bctx); err == nil {
		t.Fatal("expected rejection for timestamp not exceeding median time past")
	}
}

func TestCheckHeaderAcceptsWithoutRetarget(t *testing.T) {
	d := New(Params{CoinbaseMaturity: 100, MaxMoney: 21000000 * 1e8, RetargetInterval: 0})
	bctx := fakeBranch{medianTimePast: 1000}
	block := model.Block{Depth: 1, Timestamp: time.Unix(1001, 0)}

	if err := d.CheckHeader(context.Background(), block, bctx); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestCheckHeaderRetargetMatch(t *testing.T) {
	d := New(Params{
		CoinbaseMaturity:  100,
		MaxMoney:          21000000 * 1e8,
		RetargetInterval:  2016,
		TargetTimespan:    1209600,
		MaxRetargetFactor: 4,
	})
	bctx := fakeBranch{
		bitsHead:       0x1d,
		bitsBody:       0x00ffff,
		actualTimespan: 1209600, // exactly on target: bits should be unchanged
		medianTimePast: 1000,
	}
	block := model.Block{
		Depth:     2016,
		Timestamp: time.Unix(1001, 0),
		BitsHead:  0x1d,
		BitsBody:  0x00ffff,
	}

	if err := d.CheckHeader(context.Background(), block, bctx); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestCheckHeaderRetargetMismatch(t *testing.T) {
	d := New(Params{
		CoinbaseMaturity:  100,
		MaxMoney:          21000000 * 1e8,
		RetargetInterval:  2016,
		TargetTimespan:    1209600,
		MaxRetargetFactor: 4,
	})
	bctx := fakeBranch{
		bitsHead:       0x1d,
		bitsBody:       0x00ffff,
		actualTimespan: 1209600,
		medianTimePast: 1000,
	}
	block := model.Block{
		Depth:     2016,
		Timestamp: time.Unix(1001, 0),
		BitsHead:  0x1d,
		BitsBody:  0x007fff, // wrong bits for the given actual timespan
	}

	if err := d.CheckHeader(context.Background(), block, bctx); err == nil {
		t.Fatal("expected rejection for retarget mismatch")
	}
}

func TestRetargetBitsClampsToFactorBounds(t *testing.T) {
	prevBits := uint32(0x1d00ffff)

	onTarget := retargetBits(prevBits, 1209600, 1209600, 4)
	if onTarget != prevBits {
		t.Fatalf("on-target retarget changed bits: got %#x, want %#x", onTarget, prevBits)
	}

	slow := retargetBits(prevBits, 1, 1209600, 4)
	fast := retargetBits(prevBits, 1209600*100, 1209600, 4)
	if slow == fast {
		t.Fatal("expected clamped retarget bits to differ between far-slow and far-fast timespans")
	}
	if lower := retargetBits(prevBits, 1209600/4, 1209600, 4); slow != lower {
		t.Fatalf("timespan below target/factor not clamped: got %#x, want %#x", slow, lower)
	}
	if upper := retargetBits(prevBits, 1209600*4, 1209600, 4); fast != upper {
		t.Fatalf("timespan above target*factor not clamped: got %#x, want %#x", fast, upper)
	}
}
