package blssign

import (
	"context"

	"github.com/interstate-labs/preconf-gateway/chain"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

// Signer produces Commit-Boost signatures on behalf of one or more BLS
// pubkeys, hiding whether the key material lives in a local encrypted
// keystore or behind a remote signer (§4.A).
type Signer interface {
	// ListPubkeys returns every consensus pubkey this signer can sign for.
	ListPubkeys(ctx context.Context) ([]PublicKey, error)
	// SignRoot signs objectRoot under domain using pubkey's key material.
	SignRoot(ctx context.Context, pubkey PublicKey, objectRoot [32]byte, domain chain.Domain) (Signature, error)
}

// SignConstraints signs one ConstraintsMessage per message.Transactions
// entry is NOT implied here -- callers build the ConstraintsMessage(s) they
// want signed (the event loop signs one message per transaction, per
// SPEC_FULL §12) and pass each through SignConstraints.
func SignConstraints(ctx context.Context, signer Signer, pubkey PublicKey, msg ethtypes.ConstraintsMessage, c chain.Chain) (ethtypes.SignedConstraints, error) {
	digest := msg.Digest()
	sig, err := signer.SignRoot(ctx, pubkey, digest, c.CommitBoostDomain())
	if err != nil {
		return ethtypes.SignedConstraints{}, err
	}
	return ethtypes.SignedConstraints{Message: msg, Signature: [96]byte(sig)}, nil
}

// SignDelegation signs a delegate-or-revoke DelegationMessage.
func SignDelegation(ctx context.Context, signer Signer, validatorPubkey PublicKey, msg ethtypes.DelegationMessage, c chain.Chain) (ethtypes.SignedDelegation, error) {
	digest := msg.Digest()
	sig, err := signer.SignRoot(ctx, validatorPubkey, digest, c.CommitBoostDomain())
	if err != nil {
		return ethtypes.SignedDelegation{}, err
	}
	return ethtypes.SignedDelegation{Message: msg, Signature: [96]byte(sig)}, nil
}

// VerifyDelegation recomputes msg's digest and checks signature against
// validatorPubkey under chain c's Commit-Boost domain (receiver side).
func VerifyDelegation(msg ethtypes.DelegationMessage, signature [96]byte, validatorPubkey [48]byte, c chain.Chain) bool {
	digest := msg.Digest()
	return Verify(Signature(signature), digest, c.CommitBoostDomain(), PublicKey(validatorPubkey))
}

// VerifyConstraints recomputes msg's digest and checks signature against
// the claimed signer pubkey under chain c's Commit-Boost domain.
func VerifyConstraints(msg ethtypes.ConstraintsMessage, signature [96]byte, c chain.Chain) bool {
	digest := msg.Digest()
	return Verify(Signature(signature), digest, c.CommitBoostDomain(), PublicKey(msg.Pubkey))
}
