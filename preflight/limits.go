package preflight

// Limits bundles the gateway's configurable per-slot and per-transaction
// caps (§4.C). Defaults follow go-ethereum's own txpool/EIP-3860 constants
// where the spec does not pin a number.
type Limits struct {
	MaxCommitmentsInBlock  int
	MaxCommitmentGasPerSlot uint64
	MaxTxInputBytes        int
	MaxInitCodeByteSize    int
	MaxBlobsPerBlock       int
	MinInclusionProfitWei  uint64
}

// DefaultLimits mirrors the reference gateway's conservative defaults: a
// slot gas cap matched to a 30M execution block, EIP-3860's 48KB init-code
// ceiling, and a 128KB transaction-size ceiling (go-ethereum's
// txMaxSize).
func DefaultLimits() Limits {
	return Limits{
		MaxCommitmentsInBlock:   128,
		MaxCommitmentGasPerSlot: 30_000_000,
		MaxTxInputBytes:         128 * 1024,
		MaxInitCodeByteSize:     49_152,
		MaxBlobsPerBlock:        6,
		MinInclusionProfitWei:   1,
	}
}
