package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions tunes the polling cadences.
type RunnerOptions struct {
	StatusInterval   time.Duration
	QuestionInterval time.Duration
}

// Runner owns the two poll loops and their teardown. The status poller runs
// while the session waits for the game to start; the question poller runs
// from the first question until the session closes. Both are cancelled
// unconditionally once the session reaches a terminal phase or the caller's
// context ends.
type Runner struct {
	session *Session
	clock   clockwork.Clock
	logger  zerolog.Logger
	opts    RunnerOptions
}

func NewRunner(s *Session, clock clockwork.Clock, logger zerolog.Logger, opts RunnerOptions) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 2 * time.Second
	}
	if opts.QuestionInterval <= 0 {
		opts.QuestionInterval = time.Second
	}
	return &Runner{
		session: s,
		clock:   clock,
		logger:  logger.With().Str("component", "runner").Logger(),
		opts:    opts,
	}
}

// Run blocks until the session terminates or ctx is cancelled, and returns
// the final snapshot.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := r.session

	statusGate := func() bool {
		return s.Snapshot().Phase == PhaseWaiting
	}
	questionGate := func() bool {
		switch s.Snapshot().Phase {
		case PhaseAnswering, PhaseSubmitted, PhaseRevealed:
			return true
		default:
			return false
		}
	}

	statusPoller := newPoller("status", r.opts.StatusInterval, r.clock, statusGate, s.pollStatus, r.logger)
	questionPoller := newPoller("question", r.opts.QuestionInterval, r.clock, questionGate, s.pollQuestion, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		statusPoller.run(gctx)
		return nil
	})
	g.Go(func() error {
		questionPoller.run(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.Done():
			r.logger.Debug().Str("phase", string(s.Snapshot().Phase)).Msg("session terminal, stopping pollers")
		}
		cancel()
		return nil
	})

	_ = g.Wait()
	s.teardown()
	if ctx.Err() != nil && !s.Snapshot().Phase.Terminal() {
		return s.Snapshot(), ctx.Err()
	}
	return s.Snapshot(), nil
}

// teardown cancels the countdown after the pollers are gone, so no timer
// can fire once Run has returned.
func (s *Session) teardown() {
	s.mu.Lock()
	s.stopCountdownLocked()
	s.mu.Unlock()
}
