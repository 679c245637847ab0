package sszproof

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
)

// GeneralizedIndex identifies a node in an SSZ Merkle tree: the root is 1,
// and node i's children are 2i (left) and 2i+1 (right).
type GeneralizedIndex uint64

// Sibling returns the generalized index of i's sibling.
func (i GeneralizedIndex) Sibling() GeneralizedIndex { return i ^ 1 }

// Parent returns the generalized index of i's parent.
func (i GeneralizedIndex) Parent() GeneralizedIndex { return i >> 1 }

// IsLeft reports whether i is a left child (even generalized index).
func (i GeneralizedIndex) IsLeft() bool { return i%2 == 0 }

// branchIndices returns the sibling indices needed to walk from index up to
// (but not including) the root, in leaf-to-root order.
func branchIndices(index GeneralizedIndex) []GeneralizedIndex {
	var out []GeneralizedIndex
	i := index
	for i > 1 {
		out = append(out, i.Sibling())
		i = i.Parent()
	}
	return out
}

// pathIndices returns index and every ancestor up to (but not including)
// the root.
func pathIndices(index GeneralizedIndex) []GeneralizedIndex {
	var out []GeneralizedIndex
	i := index
	for i > 1 {
		out = append(out, i)
		i = i.Parent()
	}
	return out
}

// helperIndices returns, for a set of leaf generalized indices, the
// minimal set of extra node hashes (in descending order) a verifier needs
// supplied to reconstruct the root: every node on some leaf's branch that
// is not itself an ancestor of some other leaf in the set.
func helperIndices(indices []GeneralizedIndex) []GeneralizedIndex {
	allBranch := map[GeneralizedIndex]struct{}{}
	allPath := map[GeneralizedIndex]struct{}{}
	for _, idx := range indices {
		for _, b := range branchIndices(idx) {
			allBranch[b] = struct{}{}
		}
		for _, p := range pathIndices(idx) {
			allPath[p] = struct{}{}
		}
	}
	var out []GeneralizedIndex
	for idx := range allBranch {
		if _, onPath := allPath[idx]; !onPath {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] > out[b] })
	return out
}

// ErrProofLengthMismatch is returned when the supplied proof does not
// match the number of helper indices required by the leaf set.
var ErrProofLengthMismatch = errors.New("sszproof: proof length does not match required helper indices")

// ErrIncompleteProof is returned when the supplied leaves and proof nodes
// are insufficient to reconstruct the root.
var ErrIncompleteProof = errors.New("sszproof: insufficient nodes to reconstruct root")

// CalculateMultiMerkleRoot reconstructs the Merkle root implied by leaves
// at the given generalized indices plus the supplied proof (helper) nodes,
// following the standard SSZ multiproof algorithm.
func CalculateMultiMerkleRoot(leaves [][32]byte, proof [][32]byte, indices []GeneralizedIndex) ([32]byte, error) {
	if len(leaves) != len(indices) {
		return [32]byte{}, fmt.Errorf("sszproof: %d leaves but %d indices", len(leaves), len(indices))
	}
	helpers := helperIndices(indices)
	if len(proof) != len(helpers) {
		return [32]byte{}, fmt.Errorf("%w: have %d, want %d", ErrProofLengthMismatch, len(proof), len(helpers))
	}

	objects := make(map[GeneralizedIndex][32]byte, len(leaves)+len(proof))
	for i, idx := range indices {
		objects[idx] = leaves[i]
	}
	for i, idx := range helpers {
		objects[idx] = proof[i]
	}

	keys := make([]GeneralizedIndex, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] > keys[b] })

	for pos := 0; pos < len(keys); pos++ {
		k := keys[pos]
		if k == 1 {
			continue
		}
		sib := k.Sibling()
		parent := k.Parent()
		if _, have := objects[parent]; have {
			continue
		}
		var leftIdx, rightIdx GeneralizedIndex
		if k.IsLeft() {
			leftIdx, rightIdx = k, sib
		} else {
			leftIdx, rightIdx = sib, k
		}
		left, haveLeft := objects[leftIdx]
		right, haveRight := objects[rightIdx]
		if !haveLeft || !haveRight {
			continue
		}
		objects[parent] = hashPair(left, right)
		keys = append(keys, parent)
	}

	root, ok := objects[1]
	if !ok {
		return [32]byte{}, ErrIncompleteProof
	}
	return root, nil
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyMultiproof reports whether leaves at indices, combined with proof,
// reconstruct root.
func VerifyMultiproof(leaves [][32]byte, proof [][32]byte, indices []GeneralizedIndex, root [32]byte) bool {
	got, err := CalculateMultiMerkleRoot(leaves, proof, indices)
	if err != nil {
		return false
	}
	return got == root
}
