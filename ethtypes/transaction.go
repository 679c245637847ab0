// Package ethtypes defines the wire and in-memory representations the
// gateway operates on: decoded EIP-2718 transactions, preconfirmation
// requests, BLS constraint/delegation messages, and cached account state.
package ethtypes

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Transaction wraps a decoded go-ethereum transaction together with the
// sender recovered at decode time, so downstream components never
// re-run signature recovery.
type Transaction struct {
	Raw    []byte
	Inner  *types.Transaction
	Sender common.Address
}

// ErrSenderMismatch is returned when a transaction's recovered signer does
// not match an expected address.
var ErrSenderMismatch = errors.New("ethtypes: recovered sender does not match expected address")

// DecodeTransaction decodes raw EIP-2718 bytes and recovers its sender
// against chainID using the latest applicable signer for that chain.
func DecodeTransaction(raw []byte, chainID uint64) (*Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("ethtypes: decode tx: %w", err)
	}
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("ethtypes: recover sender: %w", err)
	}
	return &Transaction{Raw: raw, Inner: tx, Sender: sender}, nil
}

// Hash returns the transaction hash (keccak256 over the canonical EIP-2718
// encoding, as computed by go-ethereum).
func (t *Transaction) Hash() common.Hash { return t.Inner.Hash() }

// ChainID returns the transaction's chain id, or nil for pre-EIP-155
// transactions which carry no chain id.
func (t *Transaction) ChainID() *big.Int { return t.Inner.ChainId() }

// Size returns the encoded transaction size in bytes.
func (t *Transaction) Size() int { return len(t.Raw) }

// IsCreate reports whether the transaction creates a contract (nil To).
func (t *Transaction) IsCreate() bool { return t.Inner.To() == nil }

// InputSize returns the length of the call/init-code data.
func (t *Transaction) InputSize() int { return len(t.Inner.Data()) }

// GasLimit returns the transaction's gas limit.
func (t *Transaction) GasLimit() uint64 { return t.Inner.Gas() }

// MaxFeePerGas returns GasFeeCap for dynamic-fee and blob transactions, or
// GasPrice for legacy/access-list transactions (both caps coincide there).
func (t *Transaction) MaxFeePerGas() *uint256.Int {
	return mustUint256(t.Inner.GasFeeCap())
}

// MaxPriorityFeePerGas returns GasTipCap (equal to GasPrice for legacy and
// access-list transactions).
func (t *Transaction) MaxPriorityFeePerGas() *uint256.Int {
	return mustUint256(t.Inner.GasTipCap())
}

// Value returns the transaction's value in wei.
func (t *Transaction) Value() *uint256.Int {
	return mustUint256(t.Inner.Value())
}

// Type returns the EIP-2718 transaction type byte.
func (t *Transaction) Type() uint8 { return t.Inner.Type() }

// IsBlobTx reports whether this is an EIP-4844 transaction.
func (t *Transaction) IsBlobTx() bool { return t.Inner.Type() == types.BlobTxType }

// MaxFeePerBlobGas returns the blob gas fee cap, or nil for non-blob
// transactions.
func (t *Transaction) MaxFeePerBlobGas() *uint256.Int {
	if !t.IsBlobTx() {
		return nil
	}
	return mustUint256(t.Inner.BlobGasFeeCap())
}

// BlobHashes returns the versioned blob hashes carried by an EIP-4844
// transaction (empty for other types).
func (t *Transaction) BlobHashes() []common.Hash { return t.Inner.BlobHashes() }

// BlobGasUsed returns the gas consumed by this transaction's blobs
// (len(BlobHashes) * params.BlobTxBlobGasPerBlob), 0 for non-blob txs.
func (t *Transaction) BlobGasUsed() uint64 {
	const gasPerBlob = 131072 // params.BlobTxBlobGasPerBlob
	return uint64(len(t.BlobHashes())) * gasPerBlob
}

// MaxCost returns the maximum wei this transaction could consume:
// gas_limit * (max_fee + max_priority_fee) + blob_gas_used * max_fee_per_blob_gas + value.
// The extra max_priority_fee term mirrors the reference gateway's bundle
// solvency check (it is intentionally more conservative than plain
// gas_limit * max_fee + value).
func (t *Transaction) MaxCost() *uint256.Int {
	gas := uint256.NewInt(t.GasLimit())
	feeSum := new(uint256.Int).Add(t.MaxFeePerGas(), t.MaxPriorityFeePerGas())
	cost := new(uint256.Int).Mul(gas, feeSum)
	if t.IsBlobTx() {
		blobCost := new(uint256.Int).Mul(uint256.NewInt(t.BlobGasUsed()), t.MaxFeePerBlobGas())
		cost.Add(cost, blobCost)
	}
	cost.Add(cost, t.Value())
	return cost
}

// EffectiveTipPerGas returns min(max_priority_fee, max_fee - basefee) for
// the given projected basefee, clamped to zero if max_fee < basefee.
func (t *Transaction) EffectiveTipPerGas(basefee *uint256.Int) *uint256.Int {
	maxFee := t.MaxFeePerGas()
	if maxFee.Cmp(basefee) < 0 {
		return uint256.NewInt(0)
	}
	headroom := new(uint256.Int).Sub(maxFee, basefee)
	tip := t.MaxPriorityFeePerGas()
	if headroom.Cmp(tip) < 0 {
		return headroom
	}
	return tip
}

// StrippedEnvelope returns the EIP-2718 encoding of the transaction without
// its blob sidecar (the wrapper data used for SSZ hash-tree-root purposes;
// §4.J requires EIP-4844 transactions to contribute a root computed over
// the envelope without the sidecar).
func (t *Transaction) StrippedEnvelope() ([]byte, error) {
	if !t.IsBlobTx() {
		return t.Raw, nil
	}
	stripped := t.Inner.WithoutBlobTxSidecar()
	return stripped.MarshalBinary()
}

func mustUint256(v *big.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

// Keccak256TxHashes returns keccak256(tx) over each tx's raw encoding, in
// order.
func Keccak256TxHashes(txs []*Transaction) [][32]byte {
	out := make([][32]byte, len(txs))
	for i, tx := range txs {
		out[i] = crypto.Keccak256Hash(tx.Raw)
	}
	return out
}
