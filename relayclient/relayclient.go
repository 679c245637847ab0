// Package relayclient is the gateway's outbound HTTP client to MEV-Boost
// relays: validator registration, constraints/delegation submission, and
// header-with-proofs requests, fanned out to one or more relay URLs by the
// relay-proxy component (§4.F).
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
)

// Relay is a single outbound client to one relay's base URL.
type Relay struct {
	Pubkey  string
	BaseURL string
	http    *http.Client
}

// New builds a Relay client. timeout bounds every individual request; the
// relay-proxy applies its own slot-deadline budget on top.
func New(pubkey, baseURL string, timeout time.Duration) *Relay {
	return &Relay{Pubkey: pubkey, BaseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (r *Relay) postJSON(ctx context.Context, path string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return gatewayerr.New(gatewayerr.RelayTimeout, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return gatewayerr.NewRelayResponse(resp.StatusCode, string(msg))
	}
	return nil
}

// RegisterValidators fans out POST /eth/v1/builder/validators.
func (r *Relay) RegisterValidators(ctx context.Context, registrations []json.RawMessage) error {
	return r.postJSON(ctx, "/eth/v1/builder/validators", registrations)
}

// Status checks GET /eth/v1/builder/status.
func (r *Relay) Status(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/eth/v1/builder/status", nil)
	if err != nil {
		return false
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SubmitConstraints fans out POST /constraints/v1/builder/constraints.
func (r *Relay) SubmitConstraints(ctx context.Context, signed []ethtypes.SignedConstraints) error {
	if err := r.postJSON(ctx, "/constraints/v1/builder/constraints", signed); err != nil {
		return fmt.Errorf("%w: %s", gatewayerr.New(gatewayerr.FailedSubmittingConstraints, "submit constraints"), err)
	}
	return nil
}

// SubmitDelegation fans out POST /constraints/v1/builder/delegate.
func (r *Relay) SubmitDelegation(ctx context.Context, signed ethtypes.SignedDelegation) error {
	if err := r.postJSON(ctx, "/constraints/v1/builder/delegate", signed); err != nil {
		return fmt.Errorf("%w: %s", gatewayerr.New(gatewayerr.FailedDelegating, "submit delegation"), err)
	}
	return nil
}

// SubmitRevocation fans out POST /constraints/v1/builder/revoke.
func (r *Relay) SubmitRevocation(ctx context.Context, signed ethtypes.SignedRevocation) error {
	if err := r.postJSON(ctx, "/constraints/v1/builder/revoke", signed); err != nil {
		return fmt.Errorf("%w: %s", gatewayerr.New(gatewayerr.FailedRevoking, "submit revocation"), err)
	}
	return nil
}

// HeaderWithProofsResponse is a relay's bid plus any inclusion proofs it
// attached for previously submitted constraints.
type HeaderWithProofsResponse struct {
	Relay            string
	ValueWei         string
	BlockHash        common.Hash
	ParentHash       common.Hash
	TransactionsRoot [32]byte
	ProposerPubkey   string
	Proofs           *ethtypes.InclusionProofsWire
}

// GetHeaderWithProofs issues GET
// /eth/v1/builder/header_with_proofs/{slot}/{parentHash}/{pubkey}
// (§4.F send_one_get_header), returning nil, nil on a 204.
func (r *Relay) GetHeaderWithProofs(ctx context.Context, slot uint64, parentHash common.Hash, pubkey string) (*HeaderWithProofsResponse, error) {
	path := fmt.Sprintf("/eth/v1/builder/header_with_proofs/%d/%s/%s", slot, parentHash.Hex(), pubkey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.RelayTimeout, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, gatewayerr.NewRelayResponse(resp.StatusCode, string(msg))
	}

	var wire headerWithProofsWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, gatewayerr.New(gatewayerr.JsonDecode, err.Error())
	}
	return wire.toResponse(r.Pubkey), nil
}

type headerWithProofsWire struct {
	Data struct {
		Message struct {
			Header struct {
				BlockHash        string `json:"block_hash"`
				ParentHash       string `json:"parent_hash"`
				TransactionsRoot string `json:"transactions_root"`
			} `json:"header"`
			Value  string `json:"value"`
			Pubkey string `json:"pubkey"`
		} `json:"message"`
		Proofs *ethtypes.InclusionProofsWire `json:"proofs,omitempty"`
	} `json:"data"`
}

func (w *headerWithProofsWire) toResponse(relayPubkey string) *HeaderWithProofsResponse {
	return &HeaderWithProofsResponse{
		Relay:            relayPubkey,
		ValueWei:         w.Data.Message.Value,
		BlockHash:        common.HexToHash(w.Data.Message.Header.BlockHash),
		ParentHash:       common.HexToHash(w.Data.Message.Header.ParentHash),
		TransactionsRoot: common.HexToHash(w.Data.Message.Header.TransactionsRoot),
		ProposerPubkey:   w.Data.Message.Pubkey,
		Proofs:           w.Data.Proofs,
	}
}
