package sszproof

import "github.com/ethereum/go-ethereum/common"

// ConstraintLeaf pairs a committed transaction's hash with the SSZ
// hash-tree-root that leaf contributes to a transactions-root multiproof.
type ConstraintLeaf struct {
	TxHash       common.Hash
	HashTreeRoot [32]byte
}

// InclusionProofs is a relay's claim that the transactions named by
// TransactionHashes sit at GeneralizedIndexes in the bid's transactions
// tree, with MerkleHashes supplying the sibling nodes needed to verify it.
type InclusionProofs struct {
	TransactionHashes []common.Hash
	GeneralizedIndexes []GeneralizedIndex
	MerkleHashes       [][32]byte
}

// ErrLengthMismatch is returned when the proof's parallel arrays disagree
// in length, or don't match the constraint leaf set.
type ErrLengthMismatch struct {
	Field string
	Got   int
	Want  int
}

func (e *ErrLengthMismatch) Error() string {
	return "sszproof: " + e.Field + " length mismatch"
}

// ErrUnknownTxHash is returned when a proof references a transaction hash
// not present among the supplied constraint leaves.
type ErrUnknownTxHash struct{ Hash common.Hash }

func (e *ErrUnknownTxHash) Error() string {
	return "sszproof: proof references unknown transaction hash " + e.Hash.Hex()
}

// VerifyInclusion implements §4.J: given the flattened set of constraint
// leaves for a slot and the relay's inclusion proof, verify that every
// committed transaction is present in transactionsRoot at its claimed
// generalized index.
func VerifyInclusion(leaves []ConstraintLeaf, proof InclusionProofs, transactionsRoot [32]byte) error {
	n := len(proof.TransactionHashes)
	if len(proof.GeneralizedIndexes) != n {
		return &ErrLengthMismatch{Field: "generalized_indexes", Got: len(proof.GeneralizedIndexes), Want: n}
	}
	if n != len(leaves) {
		return &ErrLengthMismatch{Field: "leaves", Got: len(leaves), Want: n}
	}

	byHash := make(map[common.Hash][32]byte, len(leaves))
	for _, l := range leaves {
		byHash[l.TxHash] = l.HashTreeRoot
	}

	orderedLeaves := make([][32]byte, n)
	for i, h := range proof.TransactionHashes {
		root, ok := byHash[h]
		if !ok {
			return &ErrUnknownTxHash{Hash: h}
		}
		orderedLeaves[i] = root
	}

	if !VerifyMultiproof(orderedLeaves, proof.MerkleHashes, proof.GeneralizedIndexes, transactionsRoot) {
		return ErrIncompleteProof
	}
	return nil
}
