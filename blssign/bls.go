// Package blssign signs and verifies messages under the Commit-Boost BLS
// signing domain, either with a locally held secret key (via blst, min-PK
// scheme) or through a remote Web3Signer-style signer.
package blssign

import (
	"crypto/sha256"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/interstate-labs/preconf-gateway/chain"
)

// dst is the domain-separation tag for min-PK BLS signatures over G2, as
// fixed by the Commit-Boost/eth2 signing convention.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// PublicKey is a compressed 48-byte min-PK (G1) BLS public key.
type PublicKey [48]byte

// Signature is a compressed 96-byte min-PK (G2) BLS signature.
type Signature [96]byte

// SecretKey is a BLS secret scalar used to produce Signatures.
type SecretKey struct {
	inner *blst.SecretKey
}

// GenerateSecretKey derives a secret key deterministically from ikm (the
// "input keying material"), which must be at least 32 bytes of high-entropy
// data. The local keystore does not use it: it loads decrypted EIP-2335
// key material through SecretKeyFromBytes.
func GenerateSecretKey(ikm []byte) (*SecretKey, error) {
	if len(ikm) < 32 {
		return nil, fmt.Errorf("blssign: ikm must be >= 32 bytes, got %d", len(ikm))
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, fmt.Errorf("blssign: key generation failed")
	}
	return &SecretKey{inner: sk}, nil
}

// SecretKeyFromBytes loads a 32-byte big-endian scalar as produced by
// EIP-2335 keystore decryption.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	sk := new(blst.SecretKey).Deserialize(b)
	if sk == nil {
		return nil, fmt.Errorf("blssign: invalid secret key bytes (len %d)", len(b))
	}
	return &SecretKey{inner: sk}, nil
}

// Bytes returns the 32-byte serialization of the secret scalar.
func (sk *SecretKey) Bytes() []byte { return sk.inner.Serialize() }

// PublicKey derives the compressed public key for sk.
func (sk *SecretKey) PublicKey() PublicKey {
	p := new(blst.P1Affine).From(sk.inner)
	var out PublicKey
	copy(out[:], p.Compress())
	return out
}

// SignDigest signs objectRoot under domain with sk, producing the
// Commit-Boost signature consumed by relays.
func SignDigest(sk *SecretKey, objectRoot [32]byte, domain chain.Domain) Signature {
	root := ComputeSigningRoot(objectRoot, domain)
	sig := new(blst.P2Affine).Sign(sk.inner, root[:], dst)
	var out Signature
	copy(out[:], sig.Compress())
	return out
}

// Verify checks that sig is a valid Commit-Boost signature by pubkey over
// objectRoot under domain.
func Verify(sig Signature, objectRoot [32]byte, domain chain.Domain, pubkey PublicKey) bool {
	sigPoint := new(blst.P2Affine).Uncompress(sig[:])
	if sigPoint == nil {
		return false
	}
	pkPoint := new(blst.P1Affine).Uncompress(pubkey[:])
	if pkPoint == nil {
		return false
	}
	root := ComputeSigningRoot(objectRoot, domain)
	return sigPoint.Verify(true, pkPoint, true, root[:], dst)
}

// ComputeSigningRoot computes hash_tree_root({object_root, domain}), the
// SSZ SigningData container used throughout eth2/Commit-Boost: both fields
// are already 32-byte chunks, so the root is sha256 of their concatenation
// (a 2-leaf Merkle tree needs no padding).
func ComputeSigningRoot(objectRoot [32]byte, domain chain.Domain) [32]byte {
	h := sha256.New()
	h.Write(objectRoot[:])
	h.Write(domain[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
