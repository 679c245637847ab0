// Package relayproxy sits between a beacon node (via mev-boost) and one or
// more upstream relays: it transparently implements the Builder API and
// the Constraints API extension, and enforces that any header a relay
// returns actually includes every transaction the gateway has committed
// to for that slot (§4.F).
package relayproxy

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/constraintstore"
	"github.com/interstate-labs/preconf-gateway/delegationstore"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/log"
	"github.com/interstate-labs/preconf-gateway/metrics"
	"github.com/interstate-labs/preconf-gateway/relayclient"
)

// FallbackBuilder is the interface the relay-proxy uses to request a
// locally sealed payload+bid when no relay returns a valid proofed bid in
// time (§4.G, wired in by the event loop). It mirrors the reference
// "oneshot-reply channel to the builder task" shape as a direct call.
type FallbackBuilder interface {
	BuildForSlot(ctx context.Context, slot uint64) (*ethtypes.ExecutionPayload, *Bid, error)
}

// Bid is the gateway's own SignedBuilderBid-equivalent for a fallback
// payload: just the value, since the proxy signs/wraps it when returning.
type Bid struct {
	ValueWei *uint256.Int
}

// cachedFallback is populated whenever get_header_with_proofs had to build
// locally, and consumed (or invalidated) by a subsequent blinded_blocks
// call or relay success for the same slot (§4.A ownership note).
type cachedFallback struct {
	Payload *ethtypes.ExecutionPayload
	Bid     *Bid
}

// Proxy is the relay-proxy component.
type Proxy struct {
	relays      []*relayclient.Relay
	constraints *constraintstore.Store
	delegations *delegationstore.Store
	builder     FallbackBuilder
	cfg         Config
	metrics     *metrics.ApiMetrics
	log         *log.Logger

	mu       sync.Mutex
	fallback map[uint64]cachedFallback
}

// New builds a Proxy fanning out to relays, backed by constraints and a
// FallbackBuilder for the no-valid-bid path. Delegate/revoke requests are
// both forwarded to relays and recorded into delegations, the store the
// event loop consults to decide which local keys may sign for a slot.
func New(relays []*relayclient.Relay, constraints *constraintstore.Store, delegations *delegationstore.Store, builder FallbackBuilder, cfg Config, apiMetrics *metrics.ApiMetrics) *Proxy {
	return &Proxy{
		relays:      relays,
		constraints: constraints,
		delegations: delegations,
		builder:     builder,
		cfg:         cfg,
		metrics:     apiMetrics,
		log:         log.Module("relayproxy"),
		fallback:    make(map[uint64]cachedFallback),
	}
}

func (p *Proxy) setFallback(slot uint64, payload *ethtypes.ExecutionPayload, bid *Bid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback[slot] = cachedFallback{Payload: payload, Bid: bid}
}

func (p *Proxy) takeFallback(slot uint64) (cachedFallback, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.fallback[slot]
	if ok {
		delete(p.fallback, slot)
	}
	return v, ok
}

func (p *Proxy) clearFallback(slot uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fallback, slot)
}

func msUntilDeadline(deadlineUnixMillis int64, now time.Time) int64 {
	return deadlineUnixMillis - now.UnixMilli()
}
