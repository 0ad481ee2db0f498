// internal/tax/weighted.go
package tax

import (
	"github.com/holiman/uint256"
)

// WeightedTimestamp blends the acquisition time of an existing balance with
// the time of an incoming amount, weighting each by its size:
//
//	(oldBalance*oldTs + incoming*now) / (oldBalance + incoming)
//
// It returns now when both amounts are zero. Negative timestamps count as 0.
func WeightedTimestamp(oldBalance *uint256.Int, oldTs int64, incoming *uint256.Int, now int64) int64 {
	total, overflow := new(uint256.Int).AddOverflow(oldBalance, incoming)
	if overflow || total.IsZero() {
		return now
	}

	oldPart, o1 := new(uint256.Int).MulOverflow(oldBalance, unixSeconds(oldTs))
	newPart, o2 := new(uint256.Int).MulOverflow(incoming, unixSeconds(now))
	sum, o3 := new(uint256.Int).AddOverflow(oldPart, newPart)
	if o1 || o2 || o3 {
		return now
	}
	// The quotient lies between oldTs and now, so it fits in an int64.
	return int64(new(uint256.Int).Div(sum, total).Uint64())
}

func unixSeconds(ts int64) *uint256.Int {
	if ts < 0 {
		return new(uint256.Int)
	}
	return uint256.NewInt(uint64(ts))
}
