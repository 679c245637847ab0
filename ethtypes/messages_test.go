package ethtypes

import "testing"

func TestConstraintsMessageDigestDeterministic(t *testing.T) {
	msg := ConstraintsMessage{
		Slot:         50,
		Top:          false,
		Transactions: [][]byte{{0x02, 0xaa, 0xbb}, {0x02, 0xcc}},
	}
	copy(msg.Pubkey[:], []byte("delegatee-pubkey-placeholder-bytes-000000000"))

	d1 := msg.Digest()
	d2 := msg.Digest()
	if d1 != d2 {
		t.Fatal("ConstraintsMessage.Digest is not deterministic")
	}

	msg2 := msg
	msg2.Slot = 51
	if msg2.Digest() == d1 {
		t.Fatal("expected different digest for different slot")
	}
}

func TestDelegationMessageDigest(t *testing.T) {
	m := DelegationMessage{Action: ActionDelegate}
	copy(m.ValidatorPubkey[:], []byte("validator-pubkey-placeholder-0000000000000000"))
	copy(m.DelegateePubkey[:], []byte("delegatee-pubkey-placeholder-0000000000000000"))

	delegate := m.Digest()

	m.Action = ActionRevoke
	revoke := m.Digest()

	if delegate == revoke {
		t.Fatal("delegate and revoke digests must differ")
	}
}
