package constraintstore

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

func signedConstraintsWith(t *testing.T, raws ...[]byte) ethtypes.SignedConstraints {
	t.Helper()
	return ethtypes.SignedConstraints{
		Message: ethtypes.ConstraintsMessage{Slot: 42, Transactions: raws},
	}
}

func rawTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64) []byte {
	t.Helper()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(100_000_000_000),
		Gas:       21000,
		Value:     big.NewInt(0),
	})
	signer := types.LatestSignerForChainID(big.NewInt(1))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return raw
}

func TestAddConstraintsRejectsDuplicateAcrossMessages(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	raw := rawTx(t, key, 0)

	s := New()
	if err := s.AddConstraints(42, signedConstraintsWith(t, raw)); err != nil {
		t.Fatalf("first AddConstraints: %v", err)
	}
	if err := s.AddConstraints(42, signedConstraintsWith(t, raw)); err == nil {
		t.Fatal("expected DuplicateTransaction on second submission")
	}
}

func TestRemoveAndRemoveBefore(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s := New()
	if err := s.AddConstraints(10, signedConstraintsWith(t, rawTx(t, key, 0))); err != nil {
		t.Fatalf("AddConstraints(10): %v", err)
	}
	if err := s.AddConstraints(20, signedConstraintsWith(t, rawTx(t, key, 1))); err != nil {
		t.Fatalf("AddConstraints(20): %v", err)
	}

	s.RemoveBefore(15)
	if len(s.Entries(10)) != 0 {
		t.Fatal("expected slot 10 evicted by RemoveBefore(15)")
	}
	if len(s.Entries(20)) != 1 {
		t.Fatal("expected slot 20 retained by RemoveBefore(15)")
	}

	taken := s.Remove(20)
	if len(taken) != 1 {
		t.Fatalf("Remove(20) returned %d entries, want 1", len(taken))
	}
	if s.Remove(20) != nil {
		t.Fatal("expected second Remove(20) to return nil")
	}
}

func TestAddConstraintsRejectsOverCap(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s := New()
	for i := 0; i < MaxConstraintsPerSlot; i++ {
		if err := s.AddConstraints(5, signedConstraintsWith(t, rawTx(t, key, uint64(i)))); err != nil {
			t.Fatalf("AddConstraints #%d: %v", i, err)
		}
	}
	if err := s.AddConstraints(5, signedConstraintsWith(t, rawTx(t, key, 9999))); err == nil {
		t.Fatal("expected MaxCommitmentsExceeded once the slot is full")
	}
}
