package sszproof

import "testing"

// buildTree builds a complete binary Merkle tree over leaves (len must be a
// power of two) and returns generalized-index -> hash for every node,
// 1-indexed at the root.
func buildTree(leaves [][32]byte) map[GeneralizedIndex][32]byte {
	depth := 0
	for (1 << depth) < len(leaves) {
		depth++
	}
	nodes := make(map[GeneralizedIndex][32]byte)
	base := GeneralizedIndex(1) << depth
	for i, l := range leaves {
		nodes[base+GeneralizedIndex(i)] = l
	}
	for d := depth - 1; d >= 0; d-- {
		levelBase := GeneralizedIndex(1) << d
		count := 1 << d
		for i := 0; i < count; i++ {
			idx := levelBase + GeneralizedIndex(i)
			nodes[idx] = hashPair(nodes[idx*2], nodes[idx*2+1])
		}
	}
	return nodes
}

func leafHash(b byte) [32]byte {
	var out [32]byte
	out[0] = b
	return out
}

func TestVerifyMultiproofSingleLeaf(t *testing.T) {
	leaves := [][32]byte{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	tree := buildTree(leaves)
	root := tree[1]

	// Leaf at generalized index 4 (first of 4 leaves at depth 2).
	idx := GeneralizedIndex(4)
	var proof [][32]byte
	for _, h := range helperIndices([]GeneralizedIndex{idx}) {
		proof = append(proof, tree[h])
	}

	if !VerifyMultiproof([][32]byte{leaves[0]}, proof, []GeneralizedIndex{idx}, root) {
		t.Fatal("expected valid single-leaf multiproof to verify")
	}

	// Corrupt the proof: flip a byte.
	if len(proof) > 0 {
		proof[0][0] ^= 0xFF
		if VerifyMultiproof([][32]byte{leaves[0]}, proof, []GeneralizedIndex{idx}, root) {
			t.Fatal("expected corrupted proof to fail verification")
		}
	}
}

func TestVerifyMultiproofMultipleLeaves(t *testing.T) {
	leaves := [][32]byte{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	tree := buildTree(leaves)
	root := tree[1]

	indices := []GeneralizedIndex{4, 6} // leaves 0 and 2
	helpers := helperIndices(indices)
	proof := make([][32]byte, len(helpers))
	for i, h := range helpers {
		proof[i] = tree[h]
	}

	got := [][32]byte{leaves[0], leaves[2]}
	if !VerifyMultiproof(got, proof, indices, root) {
		t.Fatal("expected valid multi-leaf multiproof to verify")
	}
}

func TestVerifyMultiproofWrongRoot(t *testing.T) {
	leaves := [][32]byte{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	tree := buildTree(leaves)

	idx := GeneralizedIndex(4)
	var proof [][32]byte
	for _, h := range helperIndices([]GeneralizedIndex{idx}) {
		proof = append(proof, tree[h])
	}

	wrongRoot := leafHash(0xAB)
	if VerifyMultiproof([][32]byte{leaves[0]}, proof, []GeneralizedIndex{idx}, wrongRoot) {
		t.Fatal("expected verification against wrong root to fail")
	}
}
