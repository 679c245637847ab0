package ethtypes

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// constraintsMessageWire is the JSON shape of a ConstraintsMessage (§6:
// "{pubkey: 0x-hex(48), slot, top, transactions: [0x-hex EIP-2718]}").
type constraintsMessageWire struct {
	Pubkey       hexutil.Bytes   `json:"pubkey"`
	Slot         uint64          `json:"slot"`
	Top          bool            `json:"top"`
	Transactions []hexutil.Bytes `json:"transactions"`
}

// MarshalJSON implements the gateway's wire format for ConstraintsMessage.
func (m ConstraintsMessage) MarshalJSON() ([]byte, error) {
	txs := make([]hexutil.Bytes, len(m.Transactions))
	for i, tx := range m.Transactions {
		txs[i] = tx
	}
	return json.Marshal(constraintsMessageWire{
		Pubkey:       m.Pubkey[:],
		Slot:         m.Slot,
		Top:          m.Top,
		Transactions: txs,
	})
}

// UnmarshalJSON parses the gateway's wire format for ConstraintsMessage.
func (m *ConstraintsMessage) UnmarshalJSON(data []byte) error {
	var wire constraintsMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	copy(m.Pubkey[:], wire.Pubkey)
	m.Slot = wire.Slot
	m.Top = wire.Top
	m.Transactions = make([][]byte, len(wire.Transactions))
	for i, tx := range wire.Transactions {
		m.Transactions[i] = tx
	}
	return nil
}

type signedConstraintsWire struct {
	Message   ConstraintsMessage `json:"message"`
	Signature hexutil.Bytes      `json:"signature"`
}

// MarshalJSON implements the gateway's wire format for SignedConstraints.
func (s SignedConstraints) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedConstraintsWire{Message: s.Message, Signature: s.Signature[:]})
}

// UnmarshalJSON parses the gateway's wire format for SignedConstraints.
func (s *SignedConstraints) UnmarshalJSON(data []byte) error {
	var wire signedConstraintsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Message = wire.Message
	copy(s.Signature[:], wire.Signature)
	return nil
}

type delegationMessageWire struct {
	Action          uint8         `json:"action"`
	ValidatorPubkey hexutil.Bytes `json:"validator_pubkey"`
	DelegateePubkey hexutil.Bytes `json:"delegatee_pubkey"`
}

// MarshalJSON implements the untagged-union wire format for
// DelegationMessage (§6).
func (m DelegationMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(delegationMessageWire{
		Action:          uint8(m.Action),
		ValidatorPubkey: m.ValidatorPubkey[:],
		DelegateePubkey: m.DelegateePubkey[:],
	})
}

// UnmarshalJSON parses DelegationMessage's wire format.
func (m *DelegationMessage) UnmarshalJSON(data []byte) error {
	var wire delegationMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Action = DelegationAction(wire.Action)
	copy(m.ValidatorPubkey[:], wire.ValidatorPubkey)
	copy(m.DelegateePubkey[:], wire.DelegateePubkey)
	return nil
}

type signedDelegationWire struct {
	Message   DelegationMessage `json:"message"`
	Signature hexutil.Bytes     `json:"signature"`
}

// MarshalJSON implements SignedDelegation's wire format.
func (s SignedDelegation) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedDelegationWire{Message: s.Message, Signature: s.Signature[:]})
}

// UnmarshalJSON parses SignedDelegation's wire format.
func (s *SignedDelegation) UnmarshalJSON(data []byte) error {
	var wire signedDelegationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Message = wire.Message
	copy(s.Signature[:], wire.Signature)
	return nil
}

// MarshalJSON implements SignedRevocation's wire format (identical shape
// to SignedDelegation; only Message.Action differs).
func (s SignedRevocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedDelegationWire{Message: s.Message, Signature: s.Signature[:]})
}

// UnmarshalJSON parses SignedRevocation's wire format.
func (s *SignedRevocation) UnmarshalJSON(data []byte) error {
	var wire signedDelegationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Message = wire.Message
	copy(s.Signature[:], wire.Signature)
	return nil
}

// InclusionProofsWire is the JSON shape a relay attaches to
// header_with_proofs responses: parallel arrays of transaction hashes,
// generalized indexes, and merkle sibling hashes.
type InclusionProofsWire struct {
	TransactionHashes  []string `json:"transaction_hashes"`
	GeneralizedIndexes []string `json:"generalized_indexes"`
	MerkleHashes       []string `json:"merkle_hashes"`
}

// ParseGeneralizedIndex converts a decimal-string generalized index to
// uint64, as carried on the wire.
func ParseGeneralizedIndex(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// preconfRequestWire is the JSON shape POST /api/v1/preconfirmation takes
// (§4.H, §6): a slot, the raw EIP-2718 transactions, the sender's outer
// signature over Digest(), and the chain id used to recover each tx's own
// signer.
type preconfRequestWire struct {
	Slot         uint64          `json:"slot"`
	Transactions []hexutil.Bytes `json:"transactions"`
	Signature    hexutil.Bytes   `json:"signature"`
	Sender       common.Address  `json:"sender"`
	ChainID      uint64          `json:"chain_id"`
}

// MarshalJSON implements PreconfRequest's wire format.
func (r PreconfRequest) MarshalJSON() ([]byte, error) {
	txs := make([]hexutil.Bytes, len(r.Txs))
	for i, tx := range r.Txs {
		txs[i] = tx.Raw
	}
	return json.Marshal(preconfRequestWire{
		Slot:         r.Slot,
		Transactions: txs,
		Signature:    r.Signature[:],
		Sender:       r.Sender,
		ChainID:      r.ChainID,
	})
}

// UnmarshalJSON parses PreconfRequest's wire format, decoding and
// sender-recovering each transaction against ChainID.
func (r *PreconfRequest) UnmarshalJSON(data []byte) error {
	var wire preconfRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Signature) != 65 {
		return fmt.Errorf("ethtypes: preconf request signature must be 65 bytes, got %d", len(wire.Signature))
	}
	txs := make([]*Transaction, len(wire.Transactions))
	for i, raw := range wire.Transactions {
		tx, err := DecodeTransaction(raw, wire.ChainID)
		if err != nil {
			return fmt.Errorf("ethtypes: preconf request tx[%d]: %w", i, err)
		}
		txs[i] = tx
	}
	r.Slot = wire.Slot
	r.Txs = txs
	copy(r.Signature[:], wire.Signature)
	r.Sender = wire.Sender
	r.ChainID = wire.ChainID
	return nil
}
