// Package sszproof computes the SSZ hash-tree-root of EIP-2718 transactions
// and verifies generalized-index Merkle multiproofs of those roots against
// a relay-proposed transactions-root (spec §4.J).
package sszproof

import (
	"github.com/ferranbt/fastssz"
)

// maxBytesPerTransaction is MAX_BYTES_PER_TRANSACTION from the consensus
// spec's execution-payload container: transactions is a
// List[Transaction, MAX_TRANSACTIONS_PER_PAYLOAD] where Transaction itself
// is ByteList[MAX_BYTES_PER_TRANSACTION].
const maxBytesPerTransaction = 1073741824

// chunkLimit is the number of 32-byte chunks the ByteList merkleizes into
// at its maximum length: ceil(maxBytesPerTransaction / 32).
const chunkLimit = (maxBytesPerTransaction + 31) / 32

// TxHashTreeRoot computes the SSZ hash-tree-root of a single EIP-2718
// transaction envelope, treated as the ByteList[MAX_BYTES_PER_TRANSACTION]
// SSZ type used inside an execution payload's transactions list. Callers
// must pass the blob-stripped envelope for EIP-4844 transactions (see
// ethtypes.Transaction.StrippedEnvelope).
func TxHashTreeRoot(envelope []byte) ([32]byte, error) {
	hh := ssz.NewHasher()
	indx := hh.Index()
	hh.AppendBytes32(envelope)
	hh.MerkleizeWithMixin(indx, uint64(len(envelope)), chunkLimit)
	root, err := hh.HashRoot()
	if err != nil {
		return [32]byte{}, err
	}
	return root, nil
}

// maxTransactionsPerPayload is MAX_TRANSACTIONS_PER_PAYLOAD from the
// consensus spec's execution-payload container: transactions is a
// List[Transaction, MAX_TRANSACTIONS_PER_PAYLOAD].
const maxTransactionsPerPayload = 1 << 20

// EmptyTransactionsRoot returns the SSZ hash-tree-root of a zero-length
// transactions list: merkleize(zero chunks, MAX_TRANSACTIONS_PER_PAYLOAD)
// mixed with a length of 0. It is not the zero hash: mixing in the length
// hashes the empty body root against a 32-byte zero length chunk.
func EmptyTransactionsRoot() [32]byte {
	hh := ssz.NewHasher()
	indx := hh.Index()
	hh.MerkleizeWithMixin(indx, 0, maxTransactionsPerPayload)
	root, err := hh.HashRoot()
	if err != nil {
		// Hashing zero elements over a fixed-depth tree cannot fail.
		panic("sszproof: empty transactions root: " + err.Error())
	}
	return root
}
