package blssign

import (
	"context"
	"fmt"
	"sort"

	"github.com/interstate-labs/preconf-gateway/chain"
)

// LocalSigner signs with secret keys held in process memory, decrypted
// once at startup from an EIP-2335 keystore directory.
type LocalSigner struct {
	keys map[PublicKey]*SecretKey
}

// NewLocalSigner builds a LocalSigner from already-decrypted secret keys,
// keyed by their derived public key.
func NewLocalSigner(keys map[PublicKey]*SecretKey) *LocalSigner {
	return &LocalSigner{keys: keys}
}

// ListPubkeys implements Signer.
func (l *LocalSigner) ListPubkeys(ctx context.Context) ([]PublicKey, error) {
	out := make([]PublicKey, 0, len(l.keys))
	for pk := range l.keys {
		out = append(out, pk)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out, nil
}

// ErrUnknownPubkey is returned when SignRoot is asked to sign for a pubkey
// the signer does not hold key material for.
var ErrUnknownPubkey = fmt.Errorf("blssign: unknown pubkey")

// SignRoot implements Signer.
func (l *LocalSigner) SignRoot(ctx context.Context, pubkey PublicKey, objectRoot [32]byte, domain chain.Domain) (Signature, error) {
	sk, ok := l.keys[pubkey]
	if !ok {
		return Signature{}, ErrUnknownPubkey
	}
	return SignDigest(sk, objectRoot, domain), nil
}
