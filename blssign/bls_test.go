package blssign

import (
	"context"
	"testing"

	"github.com/interstate-labs/preconf-gateway/chain"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

func fixedIKM(b byte) []byte {
	ikm := make([]byte, 32)
	for i := range ikm {
		ikm[i] = b
	}
	return ikm
}

func TestDelegationSignVerifyRoundTrip(t *testing.T) {
	sk, err := GenerateSecretKey(fixedIKM(0x42))
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	validatorPubkey := sk.PublicKey()

	var delegatee [48]byte
	copy(delegatee[:], []byte("delegatee-pubkey-placeholder-0000000000000000"))

	msg := ethtypes.DelegationMessage{
		Action:          ethtypes.ActionDelegate,
		ValidatorPubkey: [48]byte(validatorPubkey),
		DelegateePubkey: delegatee,
	}

	signer := NewLocalSigner(map[PublicKey]*SecretKey{validatorPubkey: sk})
	signed, err := SignDelegation(context.Background(), signer, validatorPubkey, msg, chain.Holesky)
	if err != nil {
		t.Fatalf("SignDelegation: %v", err)
	}

	if !VerifyDelegation(signed.Message, signed.Signature, msg.ValidatorPubkey, chain.Holesky) {
		t.Fatal("expected valid delegation signature to verify")
	}

	flipped := signed.Signature
	flipped[0] ^= 0xFF
	if VerifyDelegation(signed.Message, flipped, msg.ValidatorPubkey, chain.Holesky) {
		t.Fatal("expected bit-flipped signature to fail verification")
	}
}

func TestSignRootUnknownPubkeyFails(t *testing.T) {
	signer := NewLocalSigner(map[PublicKey]*SecretKey{})
	var pk PublicKey
	_, err := signer.SignRoot(context.Background(), pk, [32]byte{}, chain.Mainnet.CommitBoostDomain())
	if err != ErrUnknownPubkey {
		t.Fatalf("expected ErrUnknownPubkey, got %v", err)
	}
}
