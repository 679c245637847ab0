// Package constraintstore is the relay-proxy side constraints store
// (§4.E): a thread-safe per-slot list of constraints with duplicate-
// transaction detection, a 128-entry per-slot cap, and slot-window
// eviction as the head advances.
package constraintstore

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
	"github.com/interstate-labs/preconf-gateway/sszproof"
)

// MaxConstraintsPerSlot is the hard per-slot cap (§5 invariant "Per-slot
// constraint count: 128; over -> reject").
const MaxConstraintsPerSlot = 128

// Entry pairs a signed constraints message with the SSZ hash-tree-roots of
// the transactions it covers, precomputed so relay-proxy header requests
// don't recompute them per request.
type Entry struct {
	Signed ethtypes.SignedConstraints
	Leaves []sszproof.ConstraintLeaf
}

// Store is the thread-safe slot -> []Entry map.
type Store struct {
	mu   sync.Mutex
	data map[uint64][]Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[uint64][]Entry)}
}

// AddConstraints validates and appends a newly signed constraints message
// for slot, computing each transaction's SSZ hash-tree-root along the way
// (§4.E add_constraints):
//  1. reject if any existing constraint for the slot shares a tx hash with
//     the new message (DuplicateTransaction);
//  2. reject if the slot is already at MaxConstraintsPerSlot.
func (s *Store) AddConstraints(slot uint64, signed ethtypes.SignedConstraints) error {
	leaves := make([]sszproof.ConstraintLeaf, 0, len(signed.Message.Transactions))
	for _, raw := range signed.Message.Transactions {
		hash := txHash(raw)
		envelope := []byte(raw)
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err == nil && tx.BlobTxSidecar() != nil {
			if envelope, err = tx.WithoutBlobTxSidecar().MarshalBinary(); err != nil {
				return fmt.Errorf("constraintstore: strip blob sidecar: %w", err)
			}
		}
		root, err := sszproof.TxHashTreeRoot(envelope)
		if err != nil {
			return fmt.Errorf("constraintstore: hash-tree-root: %w", err)
		}
		leaves = append(leaves, sszproof.ConstraintLeaf{TxHash: hash, HashTreeRoot: root})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[slot]
	if len(existing) >= MaxConstraintsPerSlot {
		return gatewayerr.New(gatewayerr.MaxCommitmentsExceeded, "slot already holds the maximum number of constraints")
	}

	seen := make(map[common.Hash]struct{})
	for _, e := range existing {
		for _, l := range e.Leaves {
			seen[l.TxHash] = struct{}{}
		}
	}
	for _, l := range leaves {
		if _, dup := seen[l.TxHash]; dup {
			return gatewayerr.New(gatewayerr.DuplicateTransaction, "transaction already constrained for this slot")
		}
	}

	s.data[slot] = append(existing, Entry{Signed: signed, Leaves: leaves})
	return nil
}

// Leaves returns the flattened constraint leaves for slot, across every
// stored entry, in insertion order.
func (s *Store) Leaves(slot uint64) []sszproof.ConstraintLeaf {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.data[slot]
	out := make([]sszproof.ConstraintLeaf, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Leaves...)
	}
	return out
}

// Entries returns a copy of slot's constraint entries.
func (s *Store) Entries(slot uint64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.data[slot]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// RemoveBefore retains only slots >= slot (§4.E remove_before).
func (s *Store) RemoveBefore(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if k < slot {
			delete(s.data, k)
		}
	}
}

// Remove atomically takes and clears slot's entries, returning nil if none
// existed (§4.E remove).
func (s *Store) Remove(slot uint64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[slot]
	if !ok {
		return nil
	}
	delete(s.data, slot)
	return entries
}

func txHash(raw []byte) common.Hash {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err == nil {
		return tx.Hash()
	}
	return common.BytesToHash(raw)
}
