// Package eventloop is the gateway's single coordinating task (§4.I): it
// fans in preconfirmation requests, commitment-deadline expirations, and
// beacon head events, serializing every commitment-state mutation through
// one place even though the work each event triggers runs concurrently.
package eventloop

import (
	"context"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/blssign"
	"github.com/interstate-labs/preconf-gateway/chain"
	"github.com/interstate-labs/preconf-gateway/commitment"
	"github.com/interstate-labs/preconf-gateway/delegationstore"
	"github.com/interstate-labs/preconf-gateway/execstate"
	"github.com/interstate-labs/preconf-gateway/log"
	"github.com/interstate-labs/preconf-gateway/metrics"
	"github.com/interstate-labs/preconf-gateway/preflight"
	"github.com/interstate-labs/preconf-gateway/relayclient"
	"github.com/interstate-labs/preconf-gateway/relayproxy"
	"github.com/interstate-labs/preconf-gateway/rpcapi"
)

// Config bundles every component the loop coordinates. All fields are
// required except LocalPubkeys, which may be empty if this gateway
// instance holds no signing keys (relay-proxy-only deployment).
type Config struct {
	Jobs         <-chan rpcapi.Job
	Commitment   *commitment.State
	Exec         *execstate.State
	Validator    *preflight.Validator
	Delegations  *delegationstore.Store
	Signer       blssign.Signer
	LocalPubkeys []blssign.PublicKey
	Relays       []*relayclient.Relay
	Proxy        *relayproxy.Proxy
	Beacon       *beaconclient.Client
	Chain        chain.Chain
	Metrics      *metrics.ApiMetrics
}

// Loop is the running event-loop instance.
type Loop struct {
	jobs         <-chan rpcapi.Job
	commitment   *commitment.State
	exec         *execstate.State
	validator    *preflight.Validator
	delegations  *delegationstore.Store
	signer       blssign.Signer
	localPubkeys map[blssign.PublicKey]struct{}
	relays       []*relayclient.Relay
	proxy        *relayproxy.Proxy
	beacon       *beaconclient.Client
	chain        chain.Chain
	metrics      *metrics.ApiMetrics
	log          *log.Logger
}

// New builds a Loop from cfg.
func New(cfg Config) *Loop {
	local := make(map[blssign.PublicKey]struct{}, len(cfg.LocalPubkeys))
	for _, pk := range cfg.LocalPubkeys {
		local[pk] = struct{}{}
	}
	return &Loop{
		jobs:         cfg.Jobs,
		commitment:   cfg.Commitment,
		exec:         cfg.Exec,
		validator:    cfg.Validator,
		delegations:  cfg.Delegations,
		signer:       cfg.Signer,
		localPubkeys: local,
		relays:       cfg.Relays,
		proxy:        cfg.Proxy,
		beacon:       cfg.Beacon,
		chain:        cfg.Chain,
		metrics:      cfg.Metrics,
		log:          log.Module("eventloop"),
	}
}

// Run drives the single select loop until ctx is cancelled (§4.I). Each
// source of work is handled as follows:
//   - preconf requests spawn an independent task (they only ever touch
//     per-slot/per-sender state already synchronized by commitment.State
//     and execstate.State);
//   - commitment-deadline firings spawn an independent task (fan-out to
//     relays and the fallback pre-build are both pure network I/O);
//   - head events are handled inline, since §5 requires head-update
//     mutations to be totally ordered with no two running concurrently.
func (l *Loop) Run(ctx context.Context) {
	heads := l.beacon.StreamHeadEvents(ctx)
	deadlines := l.watchDeadlines(ctx)

	jobs := l.jobs
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				jobs = nil
				continue
			}
			go l.handlePreconf(ctx, job)
		case slot, ok := <-deadlines:
			if !ok {
				deadlines = nil
				continue
			}
			go l.handleDeadline(ctx, slot)
		case ev, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			l.handleHeadEvent(ctx, ev)
		}
	}
}

// watchDeadlines adapts commitment.State's blocking WaitDeadline into a
// channel so Run can select over it alongside the other event sources.
func (l *Loop) watchDeadlines(ctx context.Context) <-chan uint64 {
	out := make(chan uint64)
	go func() {
		defer close(out)
		for {
			slot, ok := l.commitment.WaitDeadline(ctx)
			if !ok {
				return
			}
			select {
			case out <- slot:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
