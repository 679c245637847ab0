package rpcapi

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/metrics"
)

func signedPreconfRequest(t *testing.T, slot uint64, chainID int64) ([]byte, *ethtypes.Transaction) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inner := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(20_000_000_000),
		Gas:       21000,
		Value:     big.NewInt(0),
	})
	signer := types.LatestSignerForChainID(big.NewInt(chainID))
	signedTx, err := types.SignTx(inner, signer, key)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	tx, err := ethtypes.DecodeTransaction(raw, uint64(chainID))
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}

	req := ethtypes.PreconfRequest{Slot: slot, Txs: []*ethtypes.Transaction{tx}, Sender: tx.Sender, ChainID: uint64(chainID)}
	digest := req.Digest()
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	copy(req.Signature[:], sig)

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body, tx
}

func TestHandlePreconfirmationAcceptsValidRequest(t *testing.T) {
	srv := New(4, metrics.NewApiMetrics(metrics.NewRegistry()))

	go func() {
		job := <-srv.Jobs()
		job.Reply <- Reply{SignedConstraints: []ethtypes.SignedConstraints{{Message: ethtypes.ConstraintsMessage{Slot: job.Request.Slot}}}}
	}()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := signedPreconfRequest(t, 100, 17000)
	resp, err := http.Post(ts.URL+"/api/v1/preconfirmation", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("ok = %v, want true", out["ok"])
	}
}

func TestHandlePreconfirmationRejectsBadSignature(t *testing.T) {
	srv := New(4, metrics.NewApiMetrics(metrics.NewRegistry()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := signedPreconfRequest(t, 100, 17000)
	var tampered map[string]any
	if err := json.Unmarshal(body, &tampered); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tampered["slot"] = float64(101)
	tamperedBody, _ := json.Marshal(tampered)

	resp, err := http.Post(ts.URL+"/api/v1/preconfirmation", "application/json", bytes.NewReader(tamperedBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlePreconfirmationOverflowReturns503(t *testing.T) {
	srv := New(0, metrics.NewApiMetrics(metrics.NewRegistry()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := signedPreconfRequest(t, 100, 17000)
	resp, err := http.Post(ts.URL+"/api/v1/preconfirmation", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
