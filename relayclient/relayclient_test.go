package relayclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestGetHeaderWithProofsParsesBid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"message":{"header":{"block_hash":"0x01","parent_hash":"0x02","transactions_root":"0x03"},"value":"1000000000000000000","pubkey":"0xabc"}}}`))
	}))
	defer srv.Close()

	relay := New("relay-a", srv.URL, time.Second)
	resp, err := relay.GetHeaderWithProofs(context.Background(), 50, common.HexToHash("0x02"), "0xabc")
	if err != nil {
		t.Fatalf("GetHeaderWithProofs: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a bid, got nil")
	}
	if resp.ValueWei != "1000000000000000000" {
		t.Fatalf("unexpected value: %s", resp.ValueWei)
	}
}

func TestGetHeaderWithProofsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	relay := New("relay-a", srv.URL, time.Second)
	resp, err := relay.GetHeaderWithProofs(context.Background(), 50, common.Hash{}, "0xabc")
	if err != nil {
		t.Fatalf("GetHeaderWithProofs: %v", err)
	}
	if resp != nil {
		t.Fatal("expected nil response on 204")
	}
}

func TestStatusReportsDown(t *testing.T) {
	relay := New("relay-a", "http://127.0.0.1:1", 100*time.Millisecond)
	if relay.Status(context.Background()) {
		t.Fatal("expected Status to report down for an unreachable relay")
	}
}
