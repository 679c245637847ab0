package preflight

import "github.com/holiman/uint256"

// projectionNumerator/projectionDenominator implement the "×1125/1000 + 1"
// per-slot basefee growth the spec mandates — the maximum basefee increase
// allowed by EIP-1559 (12.5%) plus a 1 wei rounding margin, iterated once
// per slot of lookahead.
const (
	projectionNumerator   = 1125
	projectionDenominator = 1000
)

// ProjectBasefee iterates `basefee = basefee * 1125/1000 + 1` slotDiff
// times, matching §4.C check 5 and the EIP-4844 analogue used for blob
// basefee projection. Saturates at the uint256 maximum on overflow rather
// than panicking.
func ProjectBasefee(basefee *uint256.Int, slotDiff uint64) *uint256.Int {
	projected := new(uint256.Int).Set(basefee)
	num := uint256.NewInt(projectionNumerator)
	den := uint256.NewInt(projectionDenominator)
	one := uint256.NewInt(1)

	for i := uint64(0); i < slotDiff; i++ {
		next, overflow := new(uint256.Int).MulOverflow(projected, num)
		if overflow {
			return new(uint256.Int).SetAllOne()
		}
		next = next.Div(next, den)
		next, overflow = new(uint256.Int).AddOverflow(next, one)
		if overflow {
			return new(uint256.Int).SetAllOne()
		}
		projected = next
	}
	return projected
}
