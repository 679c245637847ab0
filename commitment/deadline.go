package commitment

import (
	"context"
	"sync"
	"time"
)

// Deadline is a cancellable, single-fire timer: once armed for a slot, it
// resolves exactly once to that slot when its sleep elapses, then never
// fires again until re-armed (§4.D: "resolves to Some(slot) ... then to
// None thereafter, to prevent re-firing. It is reset on each
// head-advance.").
type Deadline struct {
	mu   sync.Mutex
	ch   chan uint64
	stop context.CancelFunc
}

// NewDeadline returns an unarmed Deadline.
func NewDeadline() *Deadline {
	return &Deadline{ch: make(chan uint64, 1)}
}

// Arm cancels any pending fire and schedules a new one for slot, firing
// after dur.
func (d *Deadline) Arm(slot uint64, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop()
	}
	select {
	case <-d.ch:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	go func() {
		timer := time.NewTimer(dur)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case d.ch <- slot:
			default:
			}
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until the armed deadline fires or ctx is cancelled, returning
// (slot, true) on fire and (0, false) if ctx ends first.
func (d *Deadline) Wait(ctx context.Context) (uint64, bool) {
	select {
	case slot := <-d.ch:
		return slot, true
	case <-ctx.Done():
		return 0, false
	}
}
