// Package execstate is the execution-state component (§4.B): a cache-through
// view of account state plus the chain's current basefee and blob basefee,
// kept current by update_head. It is the preflight validator's only source
// of on-chain truth.
package execstate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/cache"
	"github.com/interstate-labs/preconf-gateway/elclient"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/log"
)

// Reference weighting from §4.B: reads nudge a key up, inserts establish a
// baseline, updates (head-driven refreshes) nudge it down slightly so that
// accounts which stop being touched by preconfirmations eventually fall out
// of cache even if the chain keeps updating them.
const (
	getScore    = 4
	insertScore = 4
	updateScore = -1

	defaultCapacity = 16384
)

// BlockTemplate is the minimal view execstate needs of a commitment-state
// block template, to reconcile per-sender diffs after a head advance
// (§4.B: "retains only constraints whose sender still has adequate balance
// and unchanged or advanced nonce").
type BlockTemplate struct {
	Slot         uint64
	SenderDiffs  map[common.Address]SenderDiff
}

// SenderDiff is the cumulative effect of a sender's committed transactions:
// how many nonces they consume and how much value+fees they spend.
type SenderDiff struct {
	// ObservedNonce is the sender's transaction_count at the time the
	// template's constraints were accepted; DeltaNonce is how many nonces
	// those constraints consume. The template remains valid while the
	// sender's on-chain nonce is still at or beyond ObservedNonce.
	ObservedNonce uint64
	DeltaNonce    uint64
	DeltaBalance  *uint256.Int
}

// State is the gateway's cache-through execution-state view.
type State struct {
	mu sync.RWMutex

	client *elclient.Client
	log    *log.Logger

	accounts *cache.ScoredCache[common.Address, ethtypes.AccountState]

	basefee       *uint256.Int
	excessBlobGas uint64
}

// New builds a State backed by client, with the account cache sized to
// defaultCapacity.
func New(client *elclient.Client) *State {
	return &State{
		client:   client,
		log:      log.Module("execstate"),
		accounts: cache.New[common.Address, ethtypes.AccountState](defaultCapacity, getScore, insertScore, updateScore),
		basefee:  uint256.NewInt(0),
	}
}

// AccountState returns a cached account state, fetching (and caching) it on
// a miss.
func (s *State) AccountState(ctx context.Context, addr common.Address) (ethtypes.AccountState, error) {
	if v, ok := s.accounts.Get(addr); ok {
		return v, nil
	}
	fetched, err := s.client.BatchGetAccountStates(ctx, []common.Address{addr}, "latest")
	if err != nil {
		return ethtypes.AccountState{}, err
	}
	v := fetched[addr]
	s.accounts.Insert(addr, v)
	return v, nil
}

// Basefee returns the last-observed basefee, refreshed on each update_head.
func (s *State) Basefee() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basefee
}

// ExcessBlobGas returns the last-observed excess blob gas accumulator.
func (s *State) ExcessBlobGas() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.excessBlobGas
}

// BlobBasefee derives the blob gas basefee from the last-observed excess
// blob gas.
func (s *State) BlobBasefee() *uint256.Int {
	return elclient.BlobBasefee(s.ExcessBlobGas())
}

// UpdateHead refreshes every cached address's balance/nonce/code, refreshes
// basefee and blob-basefee from the new head, and reconciles the given
// in-flight block templates against the refreshed state, returning the
// templates whose senders still satisfy their diffs (§4.B update_head).
func (s *State) UpdateHead(ctx context.Context, templates []BlockTemplate) ([]BlockTemplate, error) {
	addrs := s.accounts.Keys()
	if len(addrs) > 0 {
		refreshed, err := s.client.BatchGetAccountStates(ctx, addrs, "latest")
		if err != nil {
			return nil, err
		}
		for addr, v := range refreshed {
			s.accounts.Update(addr, v)
		}
	}

	basefee, err := s.client.Basefee(ctx)
	if err != nil {
		return nil, err
	}
	excessBlobGas, err := s.client.ExcessBlobGas(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.basefee = basefee
	s.excessBlobGas = excessBlobGas
	s.mu.Unlock()

	var retained []BlockTemplate
	for _, tmpl := range templates {
		if s.reconcile(ctx, tmpl) {
			retained = append(retained, tmpl)
		}
	}
	return retained, nil
}

// reconcile reports whether every sender in tmpl still has adequate balance
// and an unchanged-or-advanced nonce relative to the refreshed account
// state.
func (s *State) reconcile(ctx context.Context, tmpl BlockTemplate) bool {
	for addr, diff := range tmpl.SenderDiffs {
		acct, err := s.AccountState(ctx, addr)
		if err != nil {
			s.log.Warn("reconcile: account fetch failed, dropping template", "slot", tmpl.Slot, "sender", addr, "error", err)
			return false
		}
		if acct.TransactionCount < diff.ObservedNonce {
			// Nonce went backwards relative to what the template assumed:
			// stale view, drop rather than risk a nonce-gap commitment.
			return false
		}
		if diff.DeltaBalance != nil && diff.DeltaBalance.Cmp(acct.Balance) > 0 {
			return false
		}
	}
	return true
}
