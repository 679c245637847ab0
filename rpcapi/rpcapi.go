// Package rpcapi exposes the gateway's inbound commitment RPC: POST
// /api/v1/preconfirmation (§4.H). It only validates the outer request
// shape and hands validated requests to the event loop over a bounded
// channel; all commitment-state mutation happens there.
package rpcapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
	"github.com/interstate-labs/preconf-gateway/log"
	"github.com/interstate-labs/preconf-gateway/metrics"
)

// Reply is what the event loop sends back for a submitted request: either
// the signed constraints produced for every locally-controlled delegatee,
// or the error that rejected the request.
type Reply struct {
	SignedConstraints []ethtypes.SignedConstraints
	Err               error
}

// Job pairs a validated PreconfRequest with the channel its reply is sent
// on, the unit of work the event loop consumes from Server.Jobs().
type Job struct {
	Request *ethtypes.PreconfRequest
	Reply   chan Reply
}

// Server is the commitment RPC's HTTP surface plus its bounded job queue.
type Server struct {
	jobs    chan Job
	metrics *metrics.ApiMetrics
	log     *log.Logger
}

// New builds a Server whose job queue holds at most queueCapacity pending
// requests; beyond that, submissions are rejected with 503 instead of
// blocking (§4.H step 3's try_send semantics).
func New(queueCapacity int, apiMetrics *metrics.ApiMetrics) *Server {
	return &Server{
		jobs:    make(chan Job, queueCapacity),
		metrics: apiMetrics,
		log:     log.Module("rpcapi"),
	}
}

// Jobs returns the channel the event loop reads submitted requests from.
func (s *Server) Jobs() <-chan Job { return s.jobs }

// Handler builds the commitment RPC's HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/preconfirmation", s.handlePreconfirmation)
	return mux
}

func (s *Server) handlePreconfirmation(w http.ResponseWriter, r *http.Request) {
	var req ethtypes.PreconfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode preconfirmation request", "detail": err.Error()})
		return
	}

	if err := req.VerifySenderAndTxs(); err != nil {
		s.metrics.RecordValidationError(string(gatewayerr.InvalidSignature))
		writeGatewayErr(w, gatewayerr.New(gatewayerr.InvalidSignature, err.Error()))
		return
	}

	reply := make(chan Reply, 1)
	select {
	case s.jobs <- Job{Request: &req, Reply: reply}:
	default:
		writeGatewayErr(w, gatewayerr.New(gatewayerr.ChannelOverflow, "commitment queue full, retry later"))
		return
	}

	select {
	case result := <-reply:
		if result.Err != nil {
			writeGatewayErr(w, result.Err)
			return
		}
		s.metrics.ReceivedCommitments.Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":                    true,
			"signed_constraints_list": result.SignedConstraints,
		})
	case <-r.Context().Done():
		writeGatewayErr(w, gatewayerr.New(gatewayerr.Internal, "client disconnected before commitment resolved"))
	}
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
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": gatewayerr.Internal, "message": fmt.Sprint(err)})
}
