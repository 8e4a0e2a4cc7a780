// Package money converts between the decimal coin amounts external
// collaborators hand in (e.g. a parsed output value of "0.0005") and the
// integer satoshi amounts the persistence core stores and compares against
// max_money. It is the Go-side counterpart of the store's
// sql_to_internal(value) function.
package money

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// ToSatoshi converts a decimal coin amount to an integer satoshi amount,
// rejecting negative values the way a spend value must never be negative.
func ToSatoshi(value float64) (int64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, fmt.Errorf("convert amount: %w", err)
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative amount: %d", amt)
	}
	return int64(amt), nil
}
