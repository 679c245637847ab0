package relayproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/constraintstore"
	"github.com/interstate-labs/preconf-gateway/delegationstore"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/metrics"
	"github.com/interstate-labs/preconf-gateway/relayclient"
)

func newStubRelay(t *testing.T, valueWei string, blockHash common.Hash) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/eth/v1/builder/status":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && len(r.URL.Path) > len("/eth/v1/builder/header_with_proofs/"):
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"message": map[string]any{
						"header": map[string]any{
							"block_hash":        blockHash.Hex(),
							"parent_hash":       common.Hash{}.Hex(),
							"transactions_root": common.HexToHash("0x01").Hex(),
						},
						"value":  valueWei,
						"pubkey": "0xabc",
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

// testConfig anchors genesis at "now" so slot 0 is the current slot,
// and disables the first-request delay so tests run fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinBidWei = uint256.NewInt(0)
	cfg.GenesisTimeUnix = uint64(time.Now().Unix())
	cfg.SlotTimeSeconds = 12
	cfg.TargetFirstRequestMs = 0
	return cfg
}

func TestHandleStatusHealthyWhenAnyRelayUp(t *testing.T) {
	up := newStubRelay(t, "1000", common.HexToHash("0x01"))
	defer up.Close()

	relay := relayclient.New("relay-a", up.URL, time.Second)
	p := New([]*relayclient.Relay{relay}, constraintstore.New(), delegationstore.New(), nil, testConfig(), metrics.NewApiMetrics(metrics.NewRegistry()))

	req := httptest.NewRequest(http.MethodGet, "/eth/v1/builder/status", nil)
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleGetHeaderWithProofsPicksHighestValue(t *testing.T) {
	low := newStubRelay(t, "1000", common.HexToHash("0x01"))
	defer low.Close()
	high := newStubRelay(t, "5000", common.HexToHash("0x02"))
	defer high.Close()

	relays := []*relayclient.Relay{
		relayclient.New("low", low.URL, time.Second),
		relayclient.New("high", high.URL, time.Second),
	}
	p := New(relays, constraintstore.New(), delegationstore.New(), nil, testConfig(), metrics.NewApiMetrics(metrics.NewRegistry()))

	path := "/eth/v1/builder/header_with_proofs/0/0x00/0xaa"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["value"] != "5000" {
		t.Errorf("value = %v, want 5000 (the higher bid)", out["value"])
	}
}

type stubFallbackBuilder struct {
	payload *ethtypes.ExecutionPayload
	bid     *Bid
}

func (s *stubFallbackBuilder) BuildForSlot(ctx context.Context, slot uint64) (*ethtypes.ExecutionPayload, *Bid, error) {
	return s.payload, s.bid, nil
}

func TestHandleGetHeaderWithProofsFallsBackWhenNoRelayBids(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer down.Close()

	builder := &stubFallbackBuilder{
		payload: &ethtypes.ExecutionPayload{BlockHash: common.HexToHash("0x03")},
		bid:     &Bid{ValueWei: uint256.NewInt(42)},
	}
	relays := []*relayclient.Relay{relayclient.New("down", down.URL, time.Second)}
	p := New(relays, constraintstore.New(), delegationstore.New(), builder, testConfig(), metrics.NewApiMetrics(metrics.NewRegistry()))

	path := "/eth/v1/builder/header_with_proofs/0/0x00/0xaa"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["relay"] != "local" {
		t.Errorf("relay = %v, want local", out["relay"])
	}
	if _, ok := p.takeFallback(0); !ok {
		t.Error("expected the fallback payload to be cached for a later blinded_blocks call")
	}
}

func TestDelegateAndRevokeUpdateStore(t *testing.T) {
	relay := newStubRelay(t, "0", common.Hash{})
	defer relay.Close()

	store := delegationstore.New()
	p := New([]*relayclient.Relay{relayclient.New("r", relay.URL, time.Second)}, constraintstore.New(), store, nil, testConfig(), metrics.NewApiMetrics(metrics.NewRegistry()))

	var validator, delegatee [48]byte
	validator[0] = 1
	delegatee[0] = 2

	signed := ethtypes.SignedDelegation{Message: ethtypes.DelegationMessage{Action: ethtypes.ActionDelegate, ValidatorPubkey: validator, DelegateePubkey: delegatee}}
	body, _ := json.Marshal(signed)
	req := httptest.NewRequest(http.MethodPost, "/constraints/v1/builder/delegate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delegate status = %d", rec.Code)
	}

	found := false
	for _, d := range store.DelegateesFor(validator) {
		if d == delegatee {
			found = true
		}
	}
	if !found {
		t.Fatal("expected delegatee to be recorded after POST /delegate")
	}
}
