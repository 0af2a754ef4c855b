package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// poller repeatedly runs a task on a fixed cadence. The first run is
// immediate. The gate is consulted on every tick; a tick whose gate fails
// issues no call at all. Because the task runs inline, at most one call is
// ever outstanding per poller, and any tick that fired while the task was
// running is dropped rather than queued.
type poller struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	gate     func() bool
	task     func(context.Context)
	logger   zerolog.Logger
}

func newPoller(name string, interval time.Duration, clock clockwork.Clock, gate func() bool, task func(context.Context), logger zerolog.Logger) *poller {
	return &poller{
		name:     name,
		interval: interval,
		clock:    clock,
		gate:     gate,
		task:     task,
		logger:   logger.With().Str("component", "poller").Str("poll", name).Logger(),
	}
}

// run blocks until ctx is cancelled. No call is issued after cancellation.
func (p *poller) run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.fire(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("poller stopped")
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			p.fire(ctx)
			// Drop the tick that may have accumulated while the task ran.
			select {
			case <-ticker.Chan():
			default:
			}
		}
	}
}

func (p *poller) fire(ctx context.Context) {
	if !p.gate() {
		return
	}
	obsPoll(p.name)
	p.task(ctx)
}
