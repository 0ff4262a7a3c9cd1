package reader

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func startPoller(t *testing.T, interval time.Duration) (*poller, clockwork.FakeClock, <-chan struct{}) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	steps := make(chan struct{}, 8)
	p := newPoller(fc, interval, func(context.Context) { steps <- struct{}{} }, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.run(ctx)
	fc.BlockUntil(1)
	return p, fc, steps
}

func expectStep(t *testing.T, steps <-chan struct{}) {
	t.Helper()
	select {
	case <-steps:
	case <-time.After(time.Second):
		t.Fatal("poller did not step")
	}
}

func expectNoStep(t *testing.T, steps <-chan struct{}) {
	t.Helper()
	select {
	case <-steps:
		t.Fatal("unexpected poller step")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPoller_StepsOnInterval(t *testing.T) {
	_, fc, steps := startPoller(t, time.Minute)

	fc.Advance(30 * time.Second)
	expectNoStep(t, steps)

	fc.Advance(30 * time.Second)
	expectStep(t, steps)

	fc.BlockUntil(1)
	fc.Advance(time.Minute)
	expectStep(t, steps)
}

func TestPoller_Kick(t *testing.T) {
	p, _, steps := startPoller(t, time.Hour)

	p.kick()
	expectStep(t, steps)
}

func TestPoller_PostponeDoesNotStep(t *testing.T) {
	p, fc, steps := startPoller(t, time.Minute)

	fc.Advance(50 * time.Second)
	p.postpone()
	expectNoStep(t, steps)

	// The interval restarted at the postpone.
	fc.BlockUntil(1)
	fc.Advance(50 * time.Second)
	expectNoStep(t, steps)
	fc.Advance(10 * time.Second)
	expectStep(t, steps)
}
