package session

import (
	"context"

	"github.com/quizlive/player/internal/authority"
)

// SelectAnswer records a selection gesture for the active question. It is a
// no-op once an answer has been submitted or when no question is live.
//
// Multiple-choice questions toggle membership locally and wait for an
// explicit ConfirmSubmit. Single and judgement questions replace the
// selection and submit immediately: the submitted flag flips before the
// network call goes out, so a double click cannot produce a second call.
func (s *Session) SelectAnswer(ctx context.Context, id int64) {
	s.mu.Lock()
	if s.phase != PhaseAnswering || s.submitted || s.question == nil {
		s.mu.Unlock()
		return
	}
	if !s.validAnswerIDLocked(id) {
		s.mu.Unlock()
		return
	}

	if s.question.Type == authority.TypeMultiple {
		if _, ok := s.selected[id]; ok {
			delete(s.selected, id)
		} else {
			s.selected[id] = struct{}{}
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(snap)
		return
	}

	// single / judgement: auto-submit
	s.selected = map[int64]struct{}{id: {}}
	s.submitted = true
	s.phase = PhaseSubmitted
	position := s.position
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
	s.submit(ctx, []int64{id}, position)
}

// ConfirmSubmit sends the accumulated multiple-choice selection. It is
// rejected while the selection is empty and no-ops for other question types
// or after submission.
func (s *Session) ConfirmSubmit(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseAnswering || s.submitted || s.question == nil ||
		s.question.Type != authority.TypeMultiple || len(s.selected) == 0 {
		s.mu.Unlock()
		return
	}
	s.submitted = true
	s.phase = PhaseSubmitted
	ids := s.selectedLocked()
	position := s.position
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
	s.submit(ctx, ids, position)
}

func (s *Session) validAnswerIDLocked(id int64) bool {
	for _, a := range s.question.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

// submit performs the one network submission for a question. On success it
// clears any stale error, opportunistically fetches the reveal, and
// schedules a single off-cadence question poll to shave latency off the
// next-question transition. On transient failure the answering state is
// re-opened so the player can retry; a closing signal routes to results
// instead, because the authority will not accept a resubmission.
func (s *Session) submit(ctx context.Context, ids []int64, position int) {
	err := s.auth.SubmitAnswers(ctx, s.playerID, ids)
	if err == nil {
		obsSubmit("player")
		s.mu.Lock()
		if s.position == position {
			s.lastErr = ""
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(snap)

		s.logger.Info().Int("position", position).Ints64("answers", ids).Msg("answer submitted")
		s.fetchReveal(ctx, position)
		s.scheduleQuickPoll(ctx)
		return
	}

	obsSubmitError(err)
	if authority.IsClosing(err) {
		s.logger.Warn().Err(err).Msg("submission rejected, session closing")
		s.finish(ctx)
		return
	}

	// Transient: revert so the player may try again within the time limit.
	s.mu.Lock()
	reopened := false
	var gen int
	var deadline = s.clock.Now()
	if s.position == position && s.phase == PhaseSubmitted {
		s.submitted = false
		s.phase = PhaseAnswering
		s.lastErr = msgSubmitFailed
		reopened = true
		gen = s.generation
		deadline = s.question.Deadline()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn().Err(err).Int("position", position).Msg("submission failed, reopening")
	s.emit(snap)
	if reopened {
		// The countdown died when submitted flipped true; the deadline still
		// stands, so rearm it.
		s.startCountdown(deadline, gen)
	}
}

// scheduleQuickPoll fires one question poll after a short delay, outside
// the regular cadence.
func (s *Session) scheduleQuickPoll(ctx context.Context) {
	timer := s.clock.After(s.postSubmitDelay)
	go func() {
		select {
		case <-ctx.Done():
		case <-timer:
			if !s.Snapshot().Phase.Terminal() {
				s.pollQuestion(ctx)
			}
		}
	}()
}
