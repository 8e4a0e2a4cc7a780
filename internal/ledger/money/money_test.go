package money

import "testing"

func TestToSatoshi(t *testing.T) {
	got, err := ToSatoshi(0.0005)
	if err != nil {
		t.Fatalf("ToSatoshi error: %v", err)
	}
	if want := int64(50000); got != want {
		t.Fatalf("ToSatoshi(0.0005) = %d, want %d", got, want)
	}
}

func TestToSatoshiRejectsNegative(t *testing.T) {
	if _, err := ToSatoshi(-1); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
