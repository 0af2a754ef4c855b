package session

import (
	"context"
	"time"

	"github.com/quizlive/player/internal/authority"
)

func remainingSeconds(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// startCountdown runs the per-question countdown for the given generation.
// The generation invalidates the goroutine when the question changes, the
// answer is submitted by any path, or the phase leaves Answering; the stop
// function cancels it on teardown.
func (s *Session) startCountdown(deadline time.Time, gen int) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if gen != s.generation || s.phase != PhaseAnswering {
		s.mu.Unlock()
		cancel()
		return
	}
	s.stopCountdownLocked()
	s.countdownStop = cancel
	s.mu.Unlock()

	go s.runCountdown(ctx, deadline, gen)
}

func (s *Session) runCountdown(ctx context.Context, deadline time.Time, gen int) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		live, expired := s.tickCountdown(deadline, gen)
		if !live {
			return
		}
		if expired {
			s.expire(ctx, gen)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// tickCountdown recomputes remaining time from the wall-clock anchor.
// Remaining time is derived, never decremented, so polling jitter and
// network latency cannot skew the deadline.
func (s *Session) tickCountdown(deadline time.Time, gen int) (live, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.phase != PhaseAnswering || s.submitted {
		return false, false
	}
	s.remaining = remainingSeconds(deadline, s.clock.Now())
	return true, s.remaining == 0
}

// expire is the forced-submit side effect at zero. The question converts to
// Submitted whether or not anything was selected: a non-empty selection
// goes to the authority, an empty one is marked done locally because the
// authority rejects empty submissions. Either way the reveal is requested.
func (s *Session) expire(ctx context.Context, gen int) {
	s.mu.Lock()
	if gen != s.generation || s.phase != PhaseAnswering || s.submitted {
		s.mu.Unlock()
		return
	}
	s.submitted = true
	s.phase = PhaseSubmitted
	s.remaining = 0
	ids := s.selectedLocked()
	position := s.position
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int("position", position).Int("selected", len(ids)).Msg("time expired, forcing submit")
	s.emit(snap)

	if len(ids) > 0 {
		if err := s.auth.SubmitAnswers(ctx, s.playerID, ids); err != nil {
			// Time is up; there is nothing for the player to retry. A closing
			// signal still routes to results.
			obsSubmitError(err)
			if authority.IsClosing(err) {
				s.finish(ctx)
				return
			}
			s.logger.Warn().Err(err).Msg("forced submit failed")
		} else {
			obsSubmit("forced")
		}
	}
	s.fetchReveal(ctx, position)
}

// fetchReveal requests the correct-answer set once, outside the polling
// cadence. A not-yet-available reveal is left for the question poller.
func (s *Session) fetchReveal(ctx context.Context, position int) {
	rev, err := s.auth.GetCorrectAnswers(ctx, s.playerID)
	if err != nil {
		obsPollError("answers", err)
		return
	}
	if rev.Available {
		s.applyReveal(position, rev.IDs)
	}
}

// stopCountdownLocked cancels the active countdown, if any. Callers hold mu.
func (s *Session) stopCountdownLocked() {
	if s.countdownStop != nil {
		s.countdownStop()
		s.countdownStop = nil
	}
}
