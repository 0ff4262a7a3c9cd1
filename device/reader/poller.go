package reader

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// poller runs step every interval. A kick runs it at once and restarts the
// interval; a postpone only restarts the interval.
type poller struct {
	clock    clockwork.Clock
	interval time.Duration
	step     func(ctx context.Context)
	log      *slog.Logger

	// signals carries true for a kick, false for a postpone.
	signals chan bool
}

func newPoller(clock clockwork.Clock, interval time.Duration, step func(ctx context.Context), log *slog.Logger) *poller {
	return &poller{
		clock:    clock,
		interval: interval,
		step:     step,
		log:      log,
		signals:  make(chan bool, 1),
	}
}

// run blocks until ctx is cancelled.
func (p *poller) run(ctx context.Context) {
	timer := p.clock.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			p.step(ctx)
		case now := <-p.signals:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
			if now {
				p.log.Debug("woken early")
				p.step(ctx)
			}
		}
		timer.Reset(p.interval)
	}
}

// kick asks for an immediate step.
func (p *poller) kick() {
	p.signal(true)
}

// postpone restarts the interval without stepping.
func (p *poller) postpone() {
	p.signal(false)
}

func (p *poller) signal(now bool) {
	select {
	case p.signals <- now:
	default:
		// Upgrade a pending postpone to a kick.
		if now {
			select {
			case <-p.signals:
			default:
			}
			select {
			case p.signals <- true:
			default:
			}
		}
	}
}
