package ethtypes

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// ConstraintsMessage is the object a proposer (or its delegatee) commits to:
// a promise to include a specific ordered set of transactions at a specific
// slot.
type ConstraintsMessage struct {
	Pubkey       [48]byte // BLS signer: delegator or delegatee
	Slot         uint64
	Top          bool // reserved, always false; never enforced (spec §9)
	Transactions [][]byte
}

// Digest computes SHA-256(pubkey || le_u64(slot) || le_u8(top) ||
// concat(keccak256(tx))).
func (m *ConstraintsMessage) Digest() [32]byte {
	h := sha256.New()
	h.Write(m.Pubkey[:])
	var slotLE [8]byte
	binary.LittleEndian.PutUint64(slotLE[:], m.Slot)
	h.Write(slotLE[:])
	if m.Top {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, tx := range m.Transactions {
		hash := crypto.Keccak256Hash(tx)
		h.Write(hash[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignedConstraints pairs a ConstraintsMessage with the 96-byte BLS
// signature produced over its signing root.
type SignedConstraints struct {
	Message   ConstraintsMessage
	Signature [96]byte
}

// DelegationAction distinguishes delegation grants from revocations.
type DelegationAction uint8

const (
	ActionDelegate DelegationAction = 0
	ActionRevoke   DelegationAction = 1
)

// DelegationMessage authorizes (or revokes authorization for) a delegatee
// BLS key to sign constraints on behalf of validator_pubkey.
type DelegationMessage struct {
	Action         DelegationAction
	ValidatorPubkey [48]byte
	DelegateePubkey [48]byte
}

// Digest computes SHA-256(action || validator_pubkey || delegatee_pubkey).
func (m *DelegationMessage) Digest() [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(m.Action)})
	h.Write(m.ValidatorPubkey[:])
	h.Write(m.DelegateePubkey[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignedDelegation pairs a delegate-action DelegationMessage with its
// signature.
type SignedDelegation struct {
	Message   DelegationMessage
	Signature [96]byte
}

// SignedRevocation pairs a revoke-action DelegationMessage with its
// signature. It shares the DelegationMessage wire shape; only Action
// differs.
type SignedRevocation struct {
	Message   DelegationMessage
	Signature [96]byte
}
