// Package commitment is the commitment state machine (§4.D): slot/epoch
// tracking, proposer-duty lookup, per-slot block-template aggregation, and
// the commitment deadline that gates how late a preconfirmation request may
// arrive for a given slot.
package commitment

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/execstate"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
	"github.com/interstate-labs/preconf-gateway/log"
)

const slotsPerEpoch = 32

// State owns the bookkeeping that makes preflight validation safe across
// concurrent requests: the current slot/epoch, proposer duties, and every
// in-flight per-slot Block.
type State struct {
	mu sync.Mutex

	latestSlot     uint64
	epoch          uint64
	epochStartSlot uint64
	duties         map[uint64][48]byte // slot -> proposer validator pubkey
	blocks         map[uint64]*Block

	deadline         *Deadline
	deadlineDuration time.Duration

	beacon *beaconclient.Client
	log    *log.Logger
}

// New builds a State. deadlineDuration is how long after a slot's start a
// commitment for the *next* slot may still arrive (§4.D validate_preconf_request).
func New(beacon *beaconclient.Client, deadlineDuration time.Duration) *State {
	return &State{
		duties:           make(map[uint64][48]byte),
		blocks:           make(map[uint64]*Block),
		deadline:         NewDeadline(),
		deadlineDuration: deadlineDuration,
		beacon:           beacon,
		log:              log.Module("commitment"),
	}
}

// LatestSlot returns the most recently observed head slot.
func (s *State) LatestSlot() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestSlot
}

// CommittedCount implements preflight.SlotView.
func (s *State) CommittedCount(slot uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[slot]; ok {
		return b.CommittedCount()
	}
	return 0
}

// CommittedGas implements preflight.SlotView.
func (s *State) CommittedGas(slot uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[slot]; ok {
		return b.GasUsed
	}
	return 0
}

// BlobCount implements preflight.SlotView.
func (s *State) BlobCount(slot uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[slot]; ok {
		return b.BlobCount
	}
	return 0
}

// SenderDiff implements preflight.SenderView: it walks every in-flight
// block template (any slot) accumulating the sender's diff and the
// highest slot any template targets for them.
func (s *State) SenderDiff(sender common.Address) (execstate.SenderDiff, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		acc     execstate.SenderDiff
		highest uint64
		found   bool
	)
	for slot, b := range s.blocks {
		d, ok := b.SenderDiffs[sender]
		if !ok {
			continue
		}
		if !found {
			acc = d
		} else {
			acc.DeltaNonce += d.DeltaNonce
			if acc.DeltaBalance == nil {
				acc.DeltaBalance = d.DeltaBalance
			} else if d.DeltaBalance != nil {
				sum, overflow := new(uint256.Int).AddOverflow(acc.DeltaBalance, d.DeltaBalance)
				if overflow {
					sum = new(uint256.Int).SetAllOne()
				}
				acc.DeltaBalance = sum
			}
		}
		found = true
		if slot > highest {
			highest = slot
		}
	}
	return acc, highest, found
}

// ProposerPubkeyForSlot resolves the proposer duty for slot, returning a
// gatewayerr.Error of kind NoValidatorInSlot if none is known.
func (s *State) ProposerPubkeyForSlot(slot uint64) ([48]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ok := s.duties[slot]
	if !ok {
		return [48]byte{}, gatewayerr.New(gatewayerr.NoValidatorInSlot, "no proposer duty for slot")
	}
	return pk, nil
}

// AddConstraint appends signed to slot's block template, creating it on
// first use (§4.D add_constraint).
func (s *State) AddConstraint(slot uint64, signed ethtypes.SignedConstraints, txs []*ethtypes.Transaction, observedNonces map[common.Address]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[slot]
	if !ok {
		b = newBlock(slot)
		s.blocks[slot] = b
	}
	b.addConstraint(signed, txs, observedNonces)
}

// ValidateRequestWindow checks that slot falls within the current epoch
// window and has not already passed. The commitment deadline itself is a
// separate, time-based check the caller applies via WaitDeadline/Arm.
func (s *State) ValidateRequestWindow(slot uint64) error {
	s.mu.Lock()
	latest := s.latestSlot
	epochStart := s.epochStartSlot
	s.mu.Unlock()

	if slot < epochStart || slot >= epochStart+slotsPerEpoch {
		return gatewayerr.New(gatewayerr.InvalidSlot, "slot outside current epoch window")
	}
	if slot <= latest {
		return gatewayerr.New(gatewayerr.DeadlineExpired, "target slot has already passed")
	}
	return nil
}

// RemoveConstraintsAtSlot atomically takes and removes slot's block
// template, returning nil if none existed (§4.D remove_constraints_at_slot).
func (s *State) RemoveConstraintsAtSlot(slot uint64) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[slot]
	if !ok {
		return nil
	}
	delete(s.blocks, slot)
	return b
}

// WaitDeadline blocks until the armed commitment deadline fires.
func (s *State) WaitDeadline(ctx context.Context) (uint64, bool) {
	return s.deadline.Wait(ctx)
}

// Templates snapshots every in-flight block as an execstate.BlockTemplate,
// for the event loop to hand to execstate.State.UpdateHead.
func (s *State) Templates() []execstate.BlockTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]execstate.BlockTemplate, 0, len(s.blocks))
	for slot, b := range s.blocks {
		out = append(out, execstate.BlockTemplate{Slot: slot, SenderDiffs: b.SenderDiffs})
	}
	return out
}

// PruneToRetained drops every in-flight block whose slot is not present in
// retained, the set execstate.State.UpdateHead reports as still satisfying
// their senders' balance/nonce diffs (§4.B).
func (s *State) PruneToRetained(retained []execstate.BlockTemplate) {
	keep := make(map[uint64]struct{}, len(retained))
	for _, t := range retained {
		keep[t.Slot] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := range s.blocks {
		if _, ok := keep[slot]; !ok {
			delete(s.blocks, slot)
		}
	}
}

// UpdateHead fetches the beacon header at headSlot (with the beacon
// client's own retry policy), advances latestSlot, re-arms the commitment
// deadline for headSlot+1, sweeps every block template for a slot at or
// before headSlot, and refreshes proposer duties if the epoch changed
// (§4.D update_head). The sweep is unconditional: a template surviving
// past its slot is stale regardless of whether its sender is still
// solvent, so it must go before any balance/nonce reconciliation runs
// (§8: "for all slots S' <= S, blocks.get(S') == None").
func (s *State) UpdateHead(ctx context.Context, headSlot uint64) error {
	if _, err := s.beacon.HeaderAtSlot(ctx, headSlot); err != nil {
		return err
	}

	newEpoch := headSlot / slotsPerEpoch
	s.mu.Lock()
	epochChanged := len(s.duties) == 0 || newEpoch != s.epoch
	s.latestSlot = headSlot
	s.epoch = newEpoch
	s.epochStartSlot = newEpoch * slotsPerEpoch
	for slot := range s.blocks {
		if slot <= headSlot {
			delete(s.blocks, slot)
		}
	}
	s.mu.Unlock()

	s.deadline.Arm(headSlot+1, s.deadlineDuration)

	if epochChanged {
		duties, err := s.beacon.ProposerDuties(ctx, newEpoch)
		if err != nil {
			s.log.Warn("proposer duties refresh failed", "epoch", newEpoch, "error", err)
			return err
		}
		next := make(map[uint64][48]byte, len(duties))
		for _, d := range duties {
			next[d.Slot] = d.ValidatorPubkey
		}
		s.mu.Lock()
		s.duties = next
		s.mu.Unlock()
	}
	return nil
}
