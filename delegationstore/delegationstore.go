// Package delegationstore tracks which delegatee BLS keys a validator has
// authorized to sign constraints on its behalf (§4.A), as observed through
// the relay-proxy's delegate/revoke forwarding. It is the shared lookup
// the event loop consults when deciding which locally-controlled keys may
// sign constraints for the slot's proposer.
package delegationstore

import (
	"sync"

	"github.com/interstate-labs/preconf-gateway/blssign"
)

// Store is a thread-safe validator-pubkey -> set-of-delegatee-pubkeys map.
type Store struct {
	mu         sync.RWMutex
	delegatees map[blssign.PublicKey]map[blssign.PublicKey]struct{}
}

// New builds an empty Store.
func New() *Store {
	return &Store{delegatees: make(map[blssign.PublicKey]map[blssign.PublicKey]struct{})}
}

// Delegate authorizes delegatee to sign constraints on validator's behalf.
func (s *Store) Delegate(validator, delegatee blssign.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.delegatees[validator]
	if !ok {
		set = make(map[blssign.PublicKey]struct{})
		s.delegatees[validator] = set
	}
	set[delegatee] = struct{}{}
}

// Revoke removes a previously granted delegation.
func (s *Store) Revoke(validator, delegatee blssign.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.delegatees[validator]
	if !ok {
		return
	}
	delete(set, delegatee)
	if len(set) == 0 {
		delete(s.delegatees, validator)
	}
}

// DelegateesFor returns every delegatee pubkey currently authorized for
// validator, including validator itself (a validator may always sign its
// own constraints directly).
func (s *Store) DelegateesFor(validator blssign.PublicKey) []blssign.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []blssign.PublicKey{validator}
	for d := range s.delegatees[validator] {
		out = append(out, d)
	}
	return out
}

// Apply records the action carried by a delegation message (§4.A):
// ActionDelegate grants, ActionRevoke removes.
func (s *Store) Apply(action uint8, validator, delegatee blssign.PublicKey) {
	const actionDelegate = 0
	if action == actionDelegate {
		s.Delegate(validator, delegatee)
		return
	}
	s.Revoke(validator, delegatee)
}
