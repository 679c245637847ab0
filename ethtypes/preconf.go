package ethtypes

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// PreconfRequest is a user's request to include a set of transactions at a
// specific future slot.
type PreconfRequest struct {
	Slot      uint64
	Txs       []*Transaction
	Signature [65]byte // secp256k1, recoverable
	Sender    common.Address
	ChainID   uint64
}

// Digest computes keccak256(be_u64(slot) || concat(tx_hash_i)), the object
// the request's outer signature covers.
func (r *PreconfRequest) Digest() common.Hash {
	var slotBE [8]byte
	binary.BigEndian.PutUint64(slotBE[:], r.Slot)
	buf := make([]byte, 0, 8+32*len(r.Txs))
	buf = append(buf, slotBE[:]...)
	for _, tx := range r.Txs {
		h := tx.Hash()
		buf = append(buf, h[:]...)
	}
	return crypto.Keccak256Hash(buf)
}

// RecoverSender recovers the signer of Digest() from Signature. It does not
// compare the result against Sender; VerifySenderAndTxs does.
func (r *PreconfRequest) RecoverSender() (common.Address, error) {
	digest := r.Digest()
	pub, err := crypto.SigToPub(digest[:], r.Signature[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("ethtypes: recover request signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySenderAndTxs checks that the outer signature recovers to Sender and
// that every transaction's own signer also matches Sender (single-signer
// bundle membership, per §4.H).
func (r *PreconfRequest) VerifySenderAndTxs() error {
	recovered, err := r.RecoverSender()
	if err != nil {
		return err
	}
	if recovered != r.Sender {
		return fmt.Errorf("%w: request digest recovers to %s, claimed %s", ErrSenderMismatch, recovered, r.Sender)
	}
	for i, tx := range r.Txs {
		if tx.Sender != r.Sender {
			return fmt.Errorf("%w: tx[%d] signer %s != request sender %s", ErrSenderMismatch, i, tx.Sender, r.Sender)
		}
	}
	return nil
}

// AccountState is the cached view of one account's nonce, balance, and
// contract status.
type AccountState struct {
	TransactionCount uint64
	Balance          *uint256.Int
	HasCode          bool
}
