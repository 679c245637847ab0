package elclient

import "github.com/holiman/uint256"

// EIP-4844 constants (mainnet schedule; the gateway does not yet track the
// Prague/Electra blob-target bump).
const (
	minBlobBaseFee            = 1
	blobBaseFeeUpdateFraction = 3338477
)

// BlobBasefee computes the EIP-4844 blob gas basefee from the excess blob
// gas accumulator, following the protocol's fake_exponential(factor, num,
// denom) approximation:
//
//	fake_exponential(min_blob_base_fee, excess_blob_gas, blob_base_fee_update_fraction)
//
// implemented as the Taylor-series iteration the consensus spec uses rather
// than floating point, so the result matches the execution client bit for
// bit.
func BlobBasefee(excessBlobGas uint64) *uint256.Int {
	return fakeExponential(minBlobBaseFee, excessBlobGas, blobBaseFeeUpdateFraction)
}

// fakeExponential approximates factor * e**(num/denom) using integer math,
// per EIP-4844's reference implementation.
func fakeExponential(factor, num, denom uint64) *uint256.Int {
	f := uint256.NewInt(factor)
	n := uint256.NewInt(num)
	d := uint256.NewInt(denom)

	i := uint256.NewInt(1)
	output := new(uint256.Int)
	numAccum := new(uint256.Int).Mul(f, d)

	for numAccum.Sign() > 0 {
		output.Add(output, numAccum)

		next := new(uint256.Int).Mul(numAccum, n)
		denomStep := new(uint256.Int).Mul(d, i)
		numAccum = next.Div(next, denomStep)

		i = new(uint256.Int).AddUint64(i, 1)
	}
	return output.Div(output, d)
}
