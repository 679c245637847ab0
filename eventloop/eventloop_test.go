package eventloop

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/blssign"
	"github.com/interstate-labs/preconf-gateway/chain"
	"github.com/interstate-labs/preconf-gateway/commitment"
	"github.com/interstate-labs/preconf-gateway/delegationstore"
	"github.com/interstate-labs/preconf-gateway/elclient"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/execstate"
	"github.com/interstate-labs/preconf-gateway/metrics"
	"github.com/interstate-labs/preconf-gateway/preflight"
	"github.com/interstate-labs/preconf-gateway/rpcapi"
)

// newStubBeaconAndExecution serves both the handful of beacon-API paths
// commitment.State needs (headers, proposer duties) and the JSON-RPC calls
// execstate.State needs, behind one httptest server, keyed off of path
// versus content-type.
func newStubBeaconAndExecution(t *testing.T, proposerPubkey [48]byte, dutySlot uint64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/eth/v1/beacon/headers/"):
			fmt.Fprint(w, `{"data":{"root":"0x01","header":{"message":{"slot":"0","state_root":"0x02","parent_root":"0x00","body_root":"0x00","proposer_index":"1"}}}}`)
		case strings.HasPrefix(r.URL.Path, "/eth/v1/validator/duties/proposer/"):
			fmt.Fprintf(w, `{"data":[{"pubkey":%q,"slot":"%d"}]}`, "0x"+fmt.Sprintf("%x", proposerPubkey), dutySlot)
		default:
			// JSON-RPC (execution layer) batch or single request.
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"jsonrpc":"2.0","id":1,"result":"0x2386f26fc10000"},{"jsonrpc":"2.0","id":2,"result":"0x5"},{"jsonrpc":"2.0","id":3,"result":"0x"}]`)
		}
	}))
}

func newLoopFixture(t *testing.T, dutySlot uint64) (*Loop, *commitment.State, [48]byte) {
	t.Helper()

	sk, err := blssign.GenerateSecretKey([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("generate secret key: %v", err)
	}
	pubkey := sk.PublicKey()

	srv := newStubBeaconAndExecution(t, [48]byte(pubkey), dutySlot)
	t.Cleanup(srv.Close)

	beacon := beaconclient.New(srv.URL)
	commitState := commitment.New(beacon, time.Second)
	if err := commitState.UpdateHead(context.Background(), 0); err != nil {
		t.Fatalf("seed UpdateHead: %v", err)
	}

	execClient, err := elclient.NewClient(context.Background(), elclient.Config{ExecutionAPIURL: srv.URL, EngineAPIURL: srv.URL})
	if err != nil {
		t.Fatalf("elclient.NewClient: %v", err)
	}
	t.Cleanup(execClient.Close)
	execState := execstate.New(execClient)

	validator, err := preflight.New(execState, preflight.DefaultLimits(), 17000, 30_000_000)
	if err != nil {
		t.Fatalf("preflight.New: %v", err)
	}
	delegations := delegationstore.New()
	signer := blssign.NewLocalSigner(map[blssign.PublicKey]*blssign.SecretKey{pubkey: sk})

	loop := New(Config{
		Commitment:   commitState,
		Exec:         execState,
		Validator:    validator,
		Delegations:  delegations,
		Signer:       signer,
		LocalPubkeys: []blssign.PublicKey{pubkey},
		Beacon:       beacon,
		Chain:        chain.Holesky,
		Metrics:      metrics.NewApiMetrics(metrics.NewRegistry()),
	})
	return loop, commitState, [48]byte(pubkey)
}

func signedPreconfRequestForSlot(t *testing.T, slot uint64, chainID int64) *ethtypes.PreconfRequest {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inner := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     5,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(100_000_000_000),
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

	req := &ethtypes.PreconfRequest{Slot: slot, Txs: []*ethtypes.Transaction{tx}, Sender: tx.Sender, ChainID: uint64(chainID)}
	digest := req.Digest()
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	copy(req.Signature[:], sig)
	return req
}

func TestHandlePreconfSignsForSelfDelegatedProposer(t *testing.T) {
	const targetSlot = 5
	loop, _, _ := newLoopFixture(t, targetSlot)

	req := signedPreconfRequestForSlot(t, targetSlot, 17000)
	reply := make(chan rpcapi.Reply, 1)
	loop.handlePreconf(context.Background(), rpcapi.Job{Request: req, Reply: reply})

	result := <-reply
	if result.Err != nil {
		t.Fatalf("handlePreconf returned error: %v", result.Err)
	}
	if len(result.SignedConstraints) != 1 {
		t.Fatalf("len(SignedConstraints) = %d, want 1", len(result.SignedConstraints))
	}
	sc := result.SignedConstraints[0]
	if sc.Message.Slot != targetSlot {
		t.Errorf("constraints slot = %d, want %d", sc.Message.Slot, targetSlot)
	}
	if !blssign.VerifyConstraints(sc.Message, sc.Signature, chain.Holesky) {
		t.Error("expected the signature to verify against the signed message")
	}
}

func TestHandlePreconfRejectsUndelegatedProposer(t *testing.T) {
	const targetSlot = 5
	loop, _, _ := newLoopFixture(t, targetSlot)
	// Clear the loop's set of locally held pubkeys, so no delegatee for
	// the slot's proposer is locally controlled.
	loop.localPubkeys = map[blssign.PublicKey]struct{}{}

	req := signedPreconfRequestForSlot(t, targetSlot, 17000)
	reply := make(chan rpcapi.Reply, 1)
	loop.handlePreconf(context.Background(), rpcapi.Job{Request: req, Reply: reply})

	result := <-reply
	if result.Err == nil {
		t.Fatal("expected an error when no locally-controlled key is delegated")
	}
}

func TestHandlePreconfRejectsSlotOutsideWindow(t *testing.T) {
	loop, _, _ := newLoopFixture(t, 5)

	req := signedPreconfRequestForSlot(t, 0, 17000) // slot 0 already passed (latest == 0)
	reply := make(chan rpcapi.Reply, 1)
	loop.handlePreconf(context.Background(), rpcapi.Job{Request: req, Reply: reply})

	result := <-reply
	if result.Err == nil {
		t.Fatal("expected an error for a slot that has already passed")
	}
}
