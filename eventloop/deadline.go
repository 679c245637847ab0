package eventloop

import (
	"context"
	"sync"
)

// handleDeadline implements §4.I's deadline branch: take slot's block
// template, forward its signed constraints to every relay, and kick off
// the fallback builder's pre-build so a later get_header_with_proofs call
// finds a warmed cache (§4.G step 8).
func (l *Loop) handleDeadline(ctx context.Context, slot uint64) {
	block := l.commitment.RemoveConstraintsAtSlot(slot)
	if block != nil && len(block.Constraints) > 0 {
		var wg sync.WaitGroup
		for _, relay := range l.relays {
			relay := relay
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := relay.SubmitConstraints(ctx, block.Constraints); err != nil {
					l.log.Warn("constraints forward at deadline failed", "slot", slot, "relay", relay.Pubkey, "error", err)
				}
			}()
		}
		wg.Wait()
	}

	if l.proxy != nil {
		l.proxy.Prewarm(ctx, slot)
	}
}
