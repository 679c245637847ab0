package commitment

import (
	"context"
	"testing"
	"time"
)

func TestDeadlineFiresOnce(t *testing.T) {
	d := NewDeadline()
	d.Arm(101, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	slot, ok := d.Wait(ctx)
	if !ok || slot != 101 {
		t.Fatalf("Wait = %d, %v; want 101, true", slot, ok)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if _, ok := d.Wait(ctx2); ok {
		t.Fatal("deadline fired a second time without being re-armed")
	}
}

func TestDeadlineRearmCancelsPrevious(t *testing.T) {
	d := NewDeadline()
	d.Arm(1, 2*time.Second)
	d.Arm(2, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	slot, ok := d.Wait(ctx)
	if !ok || slot != 2 {
		t.Fatalf("Wait = %d, %v; want 2, true", slot, ok)
	}
}
