package commitment

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/execstate"
)

// Block is the per-slot aggregation of everything the gateway has
// committed to so far: the ordered signed constraints and the per-sender
// (Δnonce, Δbalance) diff those constraints imply (§4.A "Block template").
type Block struct {
	Slot        uint64
	Constraints []ethtypes.SignedConstraints
	SenderDiffs map[common.Address]execstate.SenderDiff
	GasUsed     uint64
	BlobCount   int
}

func newBlock(slot uint64) *Block {
	return &Block{
		Slot:        slot,
		SenderDiffs: make(map[common.Address]execstate.SenderDiff),
	}
}

// addConstraint appends signed to the block and folds each transaction's
// cost into its sender's running diff. txs must decode to the same
// transactions signed is over, in order, with senders already recovered.
func (b *Block) addConstraint(signed ethtypes.SignedConstraints, txs []*ethtypes.Transaction, observedNonces map[common.Address]uint64) {
	b.Constraints = append(b.Constraints, signed)
	for _, tx := range txs {
		b.GasUsed += tx.GasLimit()
		if tx.IsBlobTx() {
			b.BlobCount += len(tx.BlobHashes())
		}
		diff, ok := b.SenderDiffs[tx.Sender]
		if !ok {
			diff = execstate.SenderDiff{ObservedNonce: observedNonces[tx.Sender], DeltaBalance: uint256.NewInt(0)}
		}
		diff.DeltaNonce++
		if diff.DeltaBalance == nil {
			diff.DeltaBalance = uint256.NewInt(0)
		}
		sum, overflow := new(uint256.Int).AddOverflow(diff.DeltaBalance, tx.MaxCost())
		if overflow {
			sum = new(uint256.Int).SetAllOne()
		}
		diff.DeltaBalance = sum
		b.SenderDiffs[tx.Sender] = diff
	}
}

// CommittedCount returns the number of signed constraints in the block.
func (b *Block) CommittedCount() int { return len(b.Constraints) }
