package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/quizlive/player/internal/authority"
)

// Phase is the player-local interpretation of session progress.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseAnswering Phase = "answering"
	PhaseSubmitted Phase = "submitted"
	PhaseRevealed  Phase = "revealed"
	PhaseEnded     Phase = "ended"
	PhaseErrored   Phase = "errored"
)

// Terminal reports whether the phase stops all polling. Errored is terminal
// for the schedulers but may still resolve to Ended if an in-flight call
// manages to land results.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseErrored
}

const (
	msgStatusUnavailable = "Unable to check game status, please try again later"
	msgSessionInvalid    = "Session has ended or is invalid. Please return to the homepage to rejoin."
	msgSubmitFailed      = "Could not submit your answer, please try again"
)

// Authority is the slice of the remote authority the session consumes.
type Authority interface {
	GetStatus(ctx context.Context, playerID string) (authority.Status, error)
	GetQuestion(ctx context.Context, playerID string) (authority.QuestionResult, error)
	GetCorrectAnswers(ctx context.Context, playerID string) (authority.Reveal, error)
	SubmitAnswers(ctx context.Context, playerID string, answerIDs []int64) error
	GetResults(ctx context.Context, playerID string) ([]authority.Outcome, error)
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	Phase     Phase
	Question  *authority.Question
	Position  int
	Selected  []int64
	Submitted bool
	Correct   []int64
	Remaining int
	Err       string
	Results   []authority.Outcome
}

// Options tunes session behavior.
type Options struct {
	// PostSubmitDelay is how long after a successful submission the session
	// issues one off-cadence question poll.
	PostSubmitDelay time.Duration
	// OnChange is invoked with a fresh snapshot after every state mutation.
	// It is called outside the session lock, from whichever goroutine
	// triggered the change.
	OnChange func(Snapshot)
}

// Session owns the player's perceived game state and all transition rules.
// Every mutation happens under one mutex in a single synchronous step;
// network calls are never made while holding it, and every response is
// re-checked against the current position and phase when it is applied, so
// stale poll responses cannot regress the state.
type Session struct {
	playerID string
	auth     Authority
	clock    clockwork.Clock
	logger   zerolog.Logger
	onChange func(Snapshot)

	postSubmitDelay time.Duration

	mu            sync.Mutex
	phase         Phase
	question      *authority.Question
	position      int
	selected      map[int64]struct{}
	submitted     bool
	correct       []int64
	remaining     int
	lastErr       string
	results       []authority.Outcome
	started       bool
	countdownStop context.CancelFunc
	generation    int

	doneOnce sync.Once
	done     chan struct{}
}

// New creates a session in the Waiting phase for an already-joined player.
func New(playerID string, auth Authority, clock clockwork.Clock, logger zerolog.Logger, opts Options) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PostSubmitDelay <= 0 {
		opts.PostSubmitDelay = 500 * time.Millisecond
	}
	return &Session{
		playerID:        playerID,
		auth:            auth,
		clock:           clock,
		logger:          logger.With().Str("component", "session").Str("player_id", playerID).Logger(),
		onChange:        opts.OnChange,
		postSubmitDelay: opts.PostSubmitDelay,
		phase:           PhaseWaiting,
		position:        -1,
		selected:        map[int64]struct{}{},
		done:            make(chan struct{}),
	}
}

// Done is closed once the session reaches a terminal phase.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the current state for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:     s.phase,
		Position:  s.position,
		Submitted: s.submitted,
		Remaining: s.remaining,
		Err:       s.lastErr,
	}
	if s.question != nil {
		q := *s.question
		snap.Question = &q
	}
	snap.Selected = s.selectedLocked()
	if s.correct != nil {
		snap.Correct = append([]int64(nil), s.correct...)
	}
	if s.results != nil {
		snap.Results = append([]authority.Outcome(nil), s.results...)
	}
	return snap
}

func (s *Session) selectedLocked() []int64 {
	if len(s.selected) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Session) emit(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}

// pollStatus is the status-poller task: it runs while the session waits for
// the game to start.
func (s *Session) pollStatus(ctx context.Context) {
	st, err := s.auth.GetStatus(ctx, s.playerID)
	if err != nil {
		obsPollError("status", err)
		if authority.IsClosing(err) {
			// The session never started for us, or the id is stale. Results
			// may still exist (a rejoin after the game finished).
			s.finish(ctx)
			return
		}
		s.noteTransient(msgStatusUnavailable)
		return
	}
	if !st.Started {
		if s.everStarted() {
			// Reported started earlier, stopped before a question arrived.
			s.finish(ctx)
		}
		return
	}
	// Started: fetch the first question immediately instead of waiting for
	// the question poller's first tick.
	s.markStarted()
	s.pollQuestion(ctx)
}

// pollQuestion is the question-poller task. It mirrors the full check the
// authority expects from an active player: confirm the game is still
// running, fetch the question, and chase the reveal once submitted.
func (s *Session) pollQuestion(ctx context.Context) {
	st, err := s.auth.GetStatus(ctx, s.playerID)
	if err == nil && !st.Started && s.everStarted() {
		// Previously started, now reported stopped: the game is over.
		s.finish(ctx)
		return
	}
	// A status error here is deliberately not classified: the question fetch
	// below sees the same signal and is the one we act on.

	qr, err := s.auth.GetQuestion(ctx, s.playerID)
	if err != nil {
		obsPollError("question", err)
		switch authority.KindOf(err) {
		case authority.KindConcluded, authority.KindClosed:
			s.finish(ctx)
		case authority.KindValidation:
			s.logger.Warn().Err(err).Msg("dropping malformed question payload")
		default:
			s.logger.Debug().Err(err).Msg("question poll failed, retrying on next tick")
		}
		return
	}
	if qr.Absent {
		return
	}
	if s.applyQuestion(qr.Question) {
		return
	}

	// Same question as before: once an answer is in, chase the reveal.
	if s.awaitingReveal() {
		rev, err := s.auth.GetCorrectAnswers(ctx, s.playerID)
		if err != nil {
			obsPollError("answers", err)
			return
		}
		if rev.Available {
			s.applyReveal(qr.Question.Position, rev.IDs)
		}
	}
}

func (s *Session) markStarted() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

func (s *Session) everStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) awaitingReveal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseSubmitted && s.correct == nil
}

// applyQuestion folds a question snapshot into the state machine. It
// returns true when the snapshot was accepted as a new question, which
// resets the per-question state exactly once and restarts the countdown.
// Change detection is by position only; duplicate and stale positions are
// ignored.
func (s *Session) applyQuestion(q authority.Question) bool {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return false
	}
	if s.question != nil && q.Position <= s.position {
		s.mu.Unlock()
		return false
	}

	s.stopCountdownLocked()
	s.generation++
	s.started = true
	s.question = &q
	s.position = q.Position
	s.selected = map[int64]struct{}{}
	s.submitted = false
	s.correct = nil
	s.lastErr = ""
	s.phase = PhaseAnswering
	s.remaining = remainingSeconds(q.Deadline(), s.clock.Now())
	gen := s.generation
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int("position", q.Position).Str("type", q.Type).Msg("new question")
	s.emit(snap)
	s.startCountdown(q.Deadline(), gen)
	return true
}

// applyReveal moves Submitted to Revealed when the authority discloses the
// correct ids for the question we are still on.
func (s *Session) applyReveal(position int, ids []int64) {
	s.mu.Lock()
	if s.phase != PhaseSubmitted || position != s.position {
		s.mu.Unlock()
		return
	}
	s.correct = append([]int64(nil), ids...)
	s.phase = PhaseRevealed
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int("position", position).Ints64("correct", ids).Msg("answers revealed")
	s.emit(snap)
}

// finish runs result reconciliation: fetch final results, then settle into
// Ended or Errored. Repeated invocation while already Ended is a no-op, and
// a session that errored earlier may still end here if results become
// available later.
func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	results, err := s.auth.GetResults(ctx, s.playerID)

	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	s.stopCountdownLocked()
	if err != nil || results == nil {
		s.phase = PhaseErrored
		s.lastErr = msgSessionInvalid
	} else {
		s.phase = PhaseEnded
		s.results = results
		s.lastErr = ""
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("results unavailable")
	} else if results == nil {
		s.logger.Warn().Msg("authority returned no results")
	} else {
		s.logger.Info().Int("questions", len(results)).Msg("session ended")
	}
	s.emit(snap)
	s.signalDone()
}

func (s *Session) noteTransient(msg string) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	s.lastErr = msg
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *Session) signalDone() {
	s.mu.Lock()
	terminal := s.phase.Terminal()
	s.mu.Unlock()
	if terminal {
		s.doneOnce.Do(func() { close(s.done) })
	}
}
