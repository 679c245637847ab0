package execstate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/elclient"
)

// rpcRequest mirrors the minimal JSON-RPC 2.0 request envelope the
// stub execution node needs to answer eth_getBalance /
// eth_getTransactionCount / eth_getCode / eth_getBlockByNumber.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func newStubExecutionNode(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		batch := true
		body := json.NewDecoder(r.Body)
		var raw json.RawMessage
		if err := body.Decode(&raw); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		if err := json.Unmarshal(raw, &reqs); err != nil {
			// single (non-batch) request
			var single rpcRequest
			if err := json.Unmarshal(raw, &single); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			reqs = []rpcRequest{single}
			batch = false
		}

		w.Header().Set("Content-Type", "application/json")
		if batch {
			w.Write([]byte("["))
		}
		for i, req := range reqs {
			if i > 0 {
				w.Write([]byte(","))
			}
			var result string
			switch req.Method {
			case "eth_getBalance":
				result = `"0x2386f26fc10000"`
			case "eth_getTransactionCount":
				result = `"0x5"`
			case "eth_getCode":
				result = `"0x"`
			case "eth_getBlockByNumber":
				result = `{"number":"0x64","hash":"0x0000000000000000000000000000000000000000000000000000000000000000","baseFeePerGas":"0x4a817c800","excessBlobGas":"0x0","gasLimit":"0x1c9c380","gasUsed":"0x0","timestamp":"0x0","transactions":[]}`
			default:
				result = "null"
			}
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
		}
		if batch {
			w.Write([]byte("]"))
		}
	}))
}

func TestAccountStateCacheThrough(t *testing.T) {
	srv := newStubExecutionNode(t)
	defer srv.Close()

	client, err := elclient.NewClient(context.Background(), elclient.Config{
		ExecutionAPIURL: srv.URL,
		EngineAPIURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	state := New(client)
	addr := common.HexToAddress("0x0101010101010101010101010101010101010101")

	acct, err := state.AccountState(context.Background(), addr)
	if err != nil {
		t.Fatalf("AccountState: %v", err)
	}
	if acct.TransactionCount != 5 {
		t.Fatalf("TransactionCount = %d, want 5", acct.TransactionCount)
	}
	if acct.HasCode {
		t.Fatal("expected HasCode = false for empty code")
	}
}

func TestUpdateHeadReconcilesTemplates(t *testing.T) {
	srv := newStubExecutionNode(t)
	defer srv.Close()

	client, err := elclient.NewClient(context.Background(), elclient.Config{
		ExecutionAPIURL: srv.URL,
		EngineAPIURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	state := New(client)
	addr := common.HexToAddress("0x0202020202020202020202020202020202020202")
	if _, err := state.AccountState(context.Background(), addr); err != nil {
		t.Fatalf("seed AccountState: %v", err)
	}

	templates := []BlockTemplate{
		{
			Slot: 10,
			SenderDiffs: map[common.Address]SenderDiff{
				addr: {ObservedNonce: 5, DeltaNonce: 1, DeltaBalance: uint256.NewInt(1)},
			},
		},
		{
			Slot: 11,
			SenderDiffs: map[common.Address]SenderDiff{
				addr: {ObservedNonce: 99, DeltaNonce: 1, DeltaBalance: uint256.NewInt(1)},
			},
		},
	}

	retained, err := state.UpdateHead(context.Background(), templates)
	if err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}
	if len(retained) != 1 || retained[0].Slot != 10 {
		t.Fatalf("unexpected retained templates: %+v", retained)
	}
	if state.Basefee().Sign() <= 0 {
		t.Fatal("expected basefee to be refreshed to a positive value")
	}
}
