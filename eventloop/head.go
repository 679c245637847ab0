package eventloop

import (
	"context"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
)

// handleHeadEvent implements §4.I's head-event branch: advance commitment
// state (proposer duties, deadline re-arm) and reconcile execution state
// (account cache refresh, basefee, per-sender diff pruning) for the new
// head, in that order so commitment.State never still references a slot's
// template after execstate has dropped it as unreconcilable.
func (l *Loop) handleHeadEvent(ctx context.Context, ev beaconclient.HeadEvent) {
	if err := l.commitment.UpdateHead(ctx, ev.Slot); err != nil {
		l.log.Warn("commitment head update failed", "slot", ev.Slot, "error", err)
		return
	}

	retained, err := l.exec.UpdateHead(ctx, l.commitment.Templates())
	if err != nil {
		l.log.Warn("execution head update failed", "slot", ev.Slot, "error", err)
		return
	}
	l.commitment.PruneToRetained(retained)
}
