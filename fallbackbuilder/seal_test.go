package fallbackbuilder

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

func TestParseHintExtractsFieldAndValue(t *testing.T) {
	cases := []struct {
		msg   string
		field hintField
	}{
		{"local: blockhash 0xaa != got 0xbb", hintBlockHash},
		{"invalid gasUsed (remote: 0x5208, got: 0x5209)", hintGasUsed},
		{"stateRoot mismatch: local 0x01, got 0x02", hintStateRoot},
		{"receiptsRoot local != got 0xdead", hintReceiptsRoot},
		{"logsBloom local 0x00 got 0xff", hintLogsBloom},
		{"baseFee local 0x3b9aca00 got 0x3b9aca01", hintBaseFee},
	}
	for _, tc := range cases {
		field, _, ok := parseHint(tc.msg)
		if !ok {
			t.Fatalf("parseHint(%q) did not match", tc.msg)
		}
		if field != tc.field {
			t.Errorf("parseHint(%q) field = %s, want %s", tc.msg, field, tc.field)
		}
	}
}

func TestParseHintUnrecognizedReturnsFalse(t *testing.T) {
	if _, _, ok := parseHint("execution reverted"); ok {
		t.Fatal("expected no match for unrelated error string")
	}
}

func TestApplyHintSetsBlockHash(t *testing.T) {
	payload := &ethtypes.ExecutionPayload{}
	hash := "0x" + strings.Repeat("11", 32)
	if err := applyHint(payload, hintBlockHash, hash); err != nil {
		t.Fatalf("applyHint: %v", err)
	}
	if payload.BlockHash == (common.Hash{}) {
		t.Fatal("expected block hash to be set")
	}
}

func TestApplyHintSetsGasUsed(t *testing.T) {
	payload := &ethtypes.ExecutionPayload{}
	if err := applyHint(payload, hintGasUsed, "0x5208"); err != nil {
		t.Fatalf("applyHint: %v", err)
	}
	if payload.GasUsed != 0x5208 {
		t.Errorf("GasUsed = %d, want %d", payload.GasUsed, 0x5208)
	}
}

func TestProjectExcessBlobGasBelowTarget(t *testing.T) {
	parent := &parentBlock{ExcessBlobGas: 0, BlobGasUsed: 131072}
	if got := projectExcessBlobGas(parent); got != 0 {
		t.Errorf("projectExcessBlobGas = %d, want 0", got)
	}
}

func TestProjectExcessBlobGasAboveTarget(t *testing.T) {
	parent := &parentBlock{ExcessBlobGas: 0, BlobGasUsed: 6 * 131072}
	want := uint64(6*131072 - targetBlobGasPerBlock)
	if got := projectExcessBlobGas(parent); got != want {
		t.Errorf("projectExcessBlobGas = %d, want %d", got, want)
	}
}
