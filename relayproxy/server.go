package relayproxy

import (
	"encoding/json"
	"net/http"

	"github.com/interstate-labs/preconf-gateway/gatewayerr"
)

// Handler builds the HTTP mux for the Builder API + Constraints API
// surface mev-boost talks to (§6).
func (p *Proxy) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /eth/v1/builder/status", p.handleStatus)
	mux.HandleFunc("POST /eth/v1/builder/validators", p.handleRegisterValidators)
	mux.HandleFunc("GET /eth/v1/builder/header_with_proofs/{slot}/{parentHash}/{pubkey}", p.handleGetHeaderWithProofs)
	mux.HandleFunc("POST /eth/v1/builder/blinded_blocks", p.handleBlindedBlocks)
	mux.HandleFunc("POST /constraints/v1/builder/constraints", p.handleSubmitConstraints)
	mux.HandleFunc("POST /constraints/v1/builder/delegate", p.handleDelegate)
	mux.HandleFunc("POST /constraints/v1/builder/revoke", p.handleRevoke)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGatewayErr(w http.ResponseWriter, err error) {
	if gerr, ok := err.(*gatewayerr.Error); ok {
		writeJSON(w, gatewayerr.HTTPStatus(gerr.Kind), map[string]any{"error": gerr.Kind, "message": gerr.Message, "fields": gerr.Fields})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": gatewayerr.Internal, "message": err.Error()})
}
