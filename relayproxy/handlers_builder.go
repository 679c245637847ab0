package relayproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
	"github.com/interstate-labs/preconf-gateway/relayclient"
	"github.com/interstate-labs/preconf-gateway/sszproof"
)

// emptySSZListRoot is the hash-tree-root of an empty transactions list, the
// value a relay's transactions_root must never equal for a non-degenerate
// bid. Computed once at package init: it is not the zero hash.
var emptySSZListRoot = common.Hash(sszproof.EmptyTransactionsRoot())

// candidateBid is one relay's validated, proof-checked bid.
type candidateBid struct {
	relay     string
	valueWei  *uint256.Int
	blockHash common.Hash
	startedAt time.Time
}

// handleGetHeaderWithProofs implements §4.F's get_header_with_proofs: fan
// out to every relay within a slot-aware deadline, validate + proof-check
// each bid, keep the highest value, and fall back to local building if
// none qualifies.
func (p *Proxy) handleGetHeaderWithProofs(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(r.PathValue("slot"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad slot"})
		return
	}
	parentHash := common.HexToHash(r.PathValue("parentHash"))
	pubkey := r.PathValue("pubkey")

	now := time.Now()
	slotStart := p.cfg.SlotStartUnixMillis(slot)
	msIntoSlot := now.UnixMilli() - slotStart

	overallDeadlineMs := p.cfg.TimeoutGetHeaderMs
	if remaining := p.cfg.LateInSlotTimeMs - msIntoSlot; remaining < overallDeadlineMs {
		overallDeadlineMs = remaining
	}
	if overallDeadlineMs <= 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(overallDeadlineMs)*time.Millisecond)
	defer cancel()

	if wait := p.cfg.TargetFirstRequestMs - msIntoSlot; wait > 0 {
		select {
		case <-time.After(time.Duration(wait) * time.Millisecond):
		case <-ctx.Done():
		}
	}

	leaves := p.constraints.Leaves(slot)

	results := make(chan *candidateBid, len(p.relays))
	for _, relay := range p.relays {
		relay := relay
		go func() {
			results <- p.sendOneGetHeader(ctx, relay, slot, parentHash, pubkey, leaves)
		}()
	}

	var best *candidateBid
	for range p.relays {
		cand := <-results
		if cand == nil {
			continue
		}
		if best == nil || cand.valueWei.Cmp(best.valueWei) > 0 {
			best = cand
		}
	}

	if best == nil {
		p.fallbackToLocalBuild(ctx, w, slot)
		return
	}

	p.clearFallback(slot)
	writeJSON(w, http.StatusOK, map[string]any{
		"relay":      best.relay,
		"block_hash": best.blockHash.Hex(),
		"value":      best.valueWei.String(),
	})
}

// sendOneGetHeader issues (possibly repeated, under timing-games mode) bid
// requests to a single relay, validating and proof-checking each
// response, and keeps the one with the latest start time.
func (p *Proxy) sendOneGetHeader(ctx context.Context, relay *relayclient.Relay, slot uint64, parentHash common.Hash, pubkey string, leaves []sszproof.ConstraintLeaf) *candidateBid {
	var latest *candidateBid
	for {
		start := time.Now()
		resp, err := relay.GetHeaderWithProofs(ctx, slot, parentHash, pubkey)
		if err != nil || resp == nil {
			break
		}
		if cand := p.validateAndVerify(resp, parentHash, leaves); cand != nil {
			cand.startedAt = start
			if latest == nil || cand.startedAt.After(latest.startedAt) {
				latest = cand
			}
		} else {
			p.metrics.RecordInvalidBid(relay.Pubkey)
		}

		if p.cfg.FrequencyGetHeaderMs <= 0 {
			break
		}
		remaining := ctx.Err()
		if remaining != nil {
			break
		}
		select {
		case <-time.After(time.Duration(p.cfg.FrequencyGetHeaderMs) * time.Millisecond):
		case <-ctx.Done():
			return latest
		}
	}
	return latest
}

func (p *Proxy) validateAndVerify(resp *relayclient.HeaderWithProofsResponse, parentHash common.Hash, leaves []sszproof.ConstraintLeaf) *candidateBid {
	if resp.BlockHash == (common.Hash{}) {
		return nil
	}
	if resp.ParentHash != parentHash {
		return nil
	}
	if resp.TransactionsRoot == emptySSZListRoot {
		return nil
	}
	value, ok := new(uint256.Int).SetString(resp.ValueWei)
	if !ok || value.Cmp(p.cfg.MinBidWei) <= 0 {
		return nil
	}

	if len(leaves) > 0 {
		if resp.Proofs == nil {
			return nil
		}
		proof, err := decodeInclusionProofs(resp.Proofs)
		if err != nil {
			return nil
		}
		if err := sszproof.VerifyInclusion(leaves, proof, resp.TransactionsRoot); err != nil {
			return nil
		}
	}

	return &candidateBid{relay: resp.Relay, valueWei: value, blockHash: resp.BlockHash}
}

func decodeInclusionProofs(wire *ethtypes.InclusionProofsWire) (sszproof.InclusionProofs, error) {
	n := len(wire.TransactionHashes)
	out := sszproof.InclusionProofs{
		TransactionHashes:  make([]common.Hash, n),
		GeneralizedIndexes: make([]sszproof.GeneralizedIndex, n),
		MerkleHashes:       make([][32]byte, len(wire.MerkleHashes)),
	}
	for i, h := range wire.TransactionHashes {
		out.TransactionHashes[i] = common.HexToHash(h)
	}
	for i, g := range wire.GeneralizedIndexes {
		v, err := ethtypes.ParseGeneralizedIndex(g)
		if err != nil {
			return out, err
		}
		out.GeneralizedIndexes[i] = sszproof.GeneralizedIndex(v)
	}
	for i, h := range wire.MerkleHashes {
		out.MerkleHashes[i] = common.HexToHash(h)
	}
	return out, nil
}

// ensureFallback returns slot's cached fallback payload+bid, building and
// caching one via the FallbackBuilder if none exists yet. Shared by the
// get_header_with_proofs request path and the event loop's deadline-driven
// pre-build (§4.G step 8).
func (p *Proxy) ensureFallback(ctx context.Context, slot uint64) (*ethtypes.ExecutionPayload, *Bid, error) {
	p.mu.Lock()
	if cached, ok := p.fallback[slot]; ok {
		p.mu.Unlock()
		return cached.Payload, cached.Bid, nil
	}
	p.mu.Unlock()

	if p.builder == nil {
		return nil, nil, gatewayerr.New(gatewayerr.FailedGettingHeader, "no fallback builder configured")
	}
	payload, bid, err := p.builder.BuildForSlot(ctx, slot)
	if err != nil {
		return nil, nil, err
	}
	p.setFallback(slot, payload, bid)
	return payload, bid, nil
}

// Prewarm triggers §4.G's pre-build for slot as soon as the commitment
// deadline fires, so a later get_header_with_proofs call for the same slot
// finds a cached fallback instead of building on the request path.
func (p *Proxy) Prewarm(ctx context.Context, slot uint64) {
	if _, _, err := p.ensureFallback(ctx, slot); err != nil {
		p.log.Warn("prebuild failed", "slot", slot, "error", err)
	}
}

// fallbackToLocalBuild asks the fallback builder for a locally sealed
// payload+bid, caches it for a subsequent blinded_blocks call, and returns
// it wrapped as a VersionedValue<SignedBuilderBid>-equivalent.
func (p *Proxy) fallbackToLocalBuild(ctx context.Context, w http.ResponseWriter, slot uint64) {
	payload, bid, err := p.ensureFallback(ctx, slot)
	if err != nil {
		p.log.Warn("fallback build failed", "slot", slot, "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"relay":      "local",
		"block_hash": payload.BlockHash.Hex(),
		"value":      bid.ValueWei.String(),
	})
}

// handleBlindedBlocks implements §4.F's blinded_blocks: if a fallback
// payload is cached for the slot, field-compare it against the signed
// blinded block's header and either return the local payload or a
// FieldMismatch error; otherwise forward to the relay.
func (p *Proxy) handleBlindedBlocks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	var blinded struct {
		Message struct {
			Slot   string                   `json:"slot"`
			Header ethtypes.ExecutionPayload `json:"body"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &blinded); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode signed blinded block"})
		return
	}
	slot, _ := strconv.ParseUint(blinded.Message.Slot, 10, 64)

	cached, ok := p.takeFallback(slot)
	if !ok {
		p.forwardBlindedBlock(w, r, body)
		return
	}

	diffs := cached.Payload.Compare(&blinded.Message.Header)
	if len(diffs) > 0 {
		d := diffs[0]
		writeGatewayErr(w, gatewayerr.NewFieldMismatch(d.Name, d.Expected, d.Got))
		return
	}
	writeJSON(w, http.StatusOK, cached.Payload)
}

func (p *Proxy) forwardBlindedBlock(w http.ResponseWriter, r *http.Request, body []byte) {
	if len(p.relays) == 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "no relay configured"})
		return
	}
	// The first configured relay is treated as primary for non-preconfirmed
	// slots; constraints submissions fan out to all, but block reveal only
	// needs to reach whichever relay is about to be queried by mev-boost.
	relay := p.relays[0]
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, relay.BaseURL+"/eth/v1/builder/blinded_blocks", bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		writeGatewayErr(w, gatewayerr.New(gatewayerr.RelayTimeout, err.Error()))
		return
	}
	defer resp.Body.Close()
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
