package preflight

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestProjectBasefeeMatchesScenario(t *testing.T) {
	// §8 scenario 3: basefee = 20 gwei, slot_diff = 10, expect ~64.95 gwei.
	basefee := new(uint256.Int).Mul(uint256.NewInt(20), uint256.NewInt(1_000_000_000))
	projected := ProjectBasefee(basefee, 10)
	gwei := new(uint256.Int).Div(projected, uint256.NewInt(1_000_000_000))
	got := gwei.Uint64()
	if got < 64 || got > 65 {
		t.Fatalf("projected basefee = %d gwei, want ~64.95", got)
	}
}

func TestProjectBasefeeZeroSlotDiffIsIdentity(t *testing.T) {
	basefee := uint256.NewInt(42)
	if got := ProjectBasefee(basefee, 0); got.Cmp(basefee) != 0 {
		t.Fatalf("ProjectBasefee with slotDiff=0 = %s, want %s", got, basefee)
	}
}

func TestMinInclusionPriorityFeeIncreasesWithScarcity(t *testing.T) {
	low := MinInclusionPriorityFeeWei(30_000_000, 21_000, 1)
	high := MinInclusionPriorityFeeWei(21_000, 21_000, 1)
	if high <= low {
		t.Fatalf("expected tighter remaining gas to raise the pricing floor: low=%d high=%d", low, high)
	}
}
