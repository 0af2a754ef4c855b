package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlive/player/internal/authority"
)

// stubAuthority scripts the remote authority and records every call.
type stubAuthority struct {
	mu sync.Mutex

	status   func() (authority.Status, error)
	question func() (authority.QuestionResult, error)
	answers  func() (authority.Reveal, error)
	submit   func(ids []int64) error
	results  func() ([]authority.Outcome, error)

	statusCalls   int
	questionCalls int
	answerCalls   int
	submitCalls   [][]int64
	resultCalls   int
}

func (s *stubAuthority) GetStatus(context.Context, string) (authority.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls++
	if s.status == nil {
		return authority.Status{Started: true}, nil
	}
	return s.status()
}

func (s *stubAuthority) GetQuestion(context.Context, string) (authority.QuestionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionCalls++
	if s.question == nil {
		return authority.QuestionResult{Absent: true}, nil
	}
	return s.question()
}

func (s *stubAuthority) GetCorrectAnswers(context.Context, string) (authority.Reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerCalls++
	if s.answers == nil {
		return authority.Reveal{}, nil
	}
	return s.answers()
}

func (s *stubAuthority) SubmitAnswers(_ context.Context, _ string, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls = append(s.submitCalls, append([]int64(nil), ids...))
	if s.submit == nil {
		return nil
	}
	return s.submit(ids)
}

func (s *stubAuthority) GetResults(context.Context, string) ([]authority.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultCalls++
	if s.results == nil {
		return nil, nil
	}
	return s.results()
}

func (s *stubAuthority) counts() (status, question, answer, result int, submits [][]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls, s.questionCalls, s.answerCalls, s.resultCalls,
		append([][]int64(nil), s.submitCalls...)
}

func closedErr() error {
	return &authority.Error{Kind: authority.KindClosed, Op: "test", Status: http.StatusBadRequest}
}

func transientErr() error {
	return &authority.Error{Kind: authority.KindTransient, Op: "test", Status: http.StatusInternalServerError}
}

func newTestSession(auth Authority, clock clockwork.Clock) *Session {
	return New("p-1", auth, clock, zerolog.Nop(), Options{PostSubmitDelay: time.Millisecond})
}

func question(position int, qType string, startedAt time.Time, answerIDs ...int64) authority.Question {
	if len(answerIDs) == 0 {
		answerIDs = []int64{1, 2}
	}
	answers := make([]authority.Answer, len(answerIDs))
	for i, id := range answerIDs {
		answers[i] = authority.Answer{ID: id, Text: "option"}
	}
	return authority.Question{
		ID:        int64(100 + position),
		Position:  position,
		Text:      "question",
		Type:      qType,
		TimeLimit: 30,
		StartedAt: startedAt,
		Answers:   answers,
	}
}

func TestStaysWaitingWhileNotStarted(t *testing.T) {
	auth := &stubAuthority{
		status: func() (authority.Status, error) { return authority.Status{Started: false}, nil },
	}
	sess := newTestSession(auth, clockwork.NewFakeClock())

	for i := 0; i < 3; i++ {
		sess.pollStatus(context.Background())
	}

	assert.Equal(t, PhaseWaiting, sess.Snapshot().Phase)
	_, questions, _, _, _ := auth.counts()
	assert.Zero(t, questions, "no question poll while the game has not started")
}

func TestStartedStatusFetchesQuestionImmediately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := question(0, authority.TypeSingle, fc.Now())
	auth := &stubAuthority{
		question: func() (authority.QuestionResult, error) {
			return authority.QuestionResult{Question: q}, nil
		},
	}
	sess := newTestSession(auth, fc)

	sess.pollStatus(context.Background())

	snap := sess.Snapshot()
	assert.Equal(t, PhaseAnswering, snap.Phase)
	assert.Equal(t, 0, snap.Position)
	assert.Equal(t, 30, snap.Remaining)
}

func TestPositionAdvanceResetsExactlyOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sess := newTestSession(&stubAuthority{}, fc)

	require.True(t, sess.applyQuestion(question(0, authority.TypeMultiple, fc.Now(), 1, 2, 3)))
	sess.SelectAnswer(context.Background(), 1)
	require.Equal(t, []int64{1}, sess.Snapshot().Selected)

	// Same position again: no reset.
	require.False(t, sess.applyQuestion(question(0, authority.TypeMultiple, fc.Now(), 1, 2, 3)))
	assert.Equal(t, []int64{1}, sess.Snapshot().Selected)

	// New position: selection, submitted flag and reveal reset once.
	require.True(t, sess.applyQuestion(question(1, authority.TypeSingle, fc.Now())))
	snap := sess.Snapshot()
	assert.Equal(t, 1, snap.Position)
	assert.Empty(t, snap.Selected)
	assert.False(t, snap.Submitted)
	assert.Nil(t, snap.Correct)
}

func TestStaleQuestionResponseIgnored(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sess := newTestSession(&stubAuthority{}, fc)

	require.True(t, sess.applyQuestion(question(2, authority.TypeSingle, fc.Now())))
	// A slow poll response for an older question arrives afterwards.
	require.False(t, sess.applyQuestion(question(1, authority.TypeSingle, fc.Now())))
	assert.Equal(t, 2, sess.Snapshot().Position)
}

func TestSingleChoiceDoubleClickSubmitsOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeSingle, fc.Now())))

	sess.SelectAnswer(context.Background(), 2)
	sess.SelectAnswer(context.Background(), 2)

	_, _, _, _, submits := auth.counts()
	require.Len(t, submits, 1)
	assert.Equal(t, []int64{2}, submits[0])
	assert.Equal(t, PhaseSubmitted, sess.Snapshot().Phase)
}

func TestMultipleChoiceToggleAndConfirm(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeMultiple, fc.Now(), 1, 2, 3)))

	ctx := context.Background()
	sess.SelectAnswer(ctx, 1)
	sess.SelectAnswer(ctx, 3)

	// Nothing goes to the wire until the explicit confirm.
	_, _, _, _, submits := auth.counts()
	require.Empty(t, submits)

	sess.ConfirmSubmit(ctx)
	_, _, _, _, submits = auth.counts()
	require.Len(t, submits, 1)
	assert.Equal(t, []int64{1, 3}, submits[0])
}

func TestMultipleChoiceDeselectBeforeConfirm(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeMultiple, fc.Now(), 1, 2, 3)))

	ctx := context.Background()
	sess.SelectAnswer(ctx, 1)
	sess.SelectAnswer(ctx, 3)
	sess.SelectAnswer(ctx, 1) // toggle off

	sess.ConfirmSubmit(ctx)
	_, _, _, _, submits := auth.counts()
	require.Len(t, submits, 1)
	assert.Equal(t, []int64{3}, submits[0])
}

func TestConfirmRejectedWhileSelectionEmpty(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeMultiple, fc.Now(), 1, 2, 3)))

	sess.ConfirmSubmit(context.Background())

	_, _, _, _, submits := auth.counts()
	assert.Empty(t, submits)
	assert.Equal(t, PhaseAnswering, sess.Snapshot().Phase)
}

func TestRevealMovesSubmittedToRevealed(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{
		answers: func() (authority.Reveal, error) {
			return authority.Reveal{Available: true, IDs: []int64{1}}, nil
		},
	}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeJudgement, fc.Now())))

	sess.SelectAnswer(context.Background(), 2)

	snap := sess.Snapshot()
	assert.Equal(t, PhaseRevealed, snap.Phase)
	assert.Equal(t, []int64{1}, snap.Correct)
	assert.Equal(t, []int64{2}, snap.Selected)
}

func TestRevealForOtherPositionIgnored(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sess := newTestSession(&stubAuthority{}, fc)
	require.True(t, sess.applyQuestion(question(3, authority.TypeSingle, fc.Now())))
	sess.SelectAnswer(context.Background(), 1)

	sess.applyReveal(2, []int64{1})

	snap := sess.Snapshot()
	assert.Equal(t, PhaseSubmitted, snap.Phase)
	assert.Nil(t, snap.Correct)
}

func TestTransientSubmitFailureReopensAnswering(t *testing.T) {
	fc := clockwork.NewFakeClock()
	auth := &stubAuthority{
		submit: func([]int64) error { return transientErr() },
	}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeSingle, fc.Now())))

	sess.SelectAnswer(context.Background(), 1)

	snap := sess.Snapshot()
	assert.Equal(t, PhaseAnswering, snap.Phase)
	assert.False(t, snap.Submitted)
	assert.NotEmpty(t, snap.Err)

	// The retry goes through.
	auth.mu.Lock()
	auth.submit = nil
	auth.mu.Unlock()
	sess.SelectAnswer(context.Background(), 2)
	snap = sess.Snapshot()
	assert.Equal(t, PhaseSubmitted, snap.Phase)
	assert.Empty(t, snap.Err)
}

func TestClosedSubmitFailureGoesToResults(t *testing.T) {
	fc := clockwork.NewFakeClock()
	outcome := []authority.Outcome{{Correct: true}}
	auth := &stubAuthority{
		submit:  func([]int64) error { return closedErr() },
		results: func() ([]authority.Outcome, error) { return outcome, nil },
	}
	sess := newTestSession(auth, fc)
	require.True(t, sess.applyQuestion(question(0, authority.TypeSingle, fc.Now())))

	sess.SelectAnswer(context.Background(), 1)

	snap := sess.Snapshot()
	assert.Equal(t, PhaseEnded, snap.Phase)
	require.Len(t, snap.Results, 1)
}

func TestClosedStatusWithNilResultsIsErrored(t *testing.T) {
	auth := &stubAuthority{
		status:  func() (authority.Status, error) { return authority.Status{}, closedErr() },
		results: func() ([]authority.Outcome, error) { return nil, nil },
	}
	sess := newTestSession(auth, clockwork.NewFakeClock())

	sess.pollStatus(context.Background())

	snap := sess.Snapshot()
	assert.Equal(t, PhaseErrored, snap.Phase)
	assert.NotEmpty(t, snap.Err)

	select {
	case <-sess.Done():
	default:
		t.Fatal("session should signal termination when errored")
	}
}

func TestErroredRecoversToEndedWhenResultsAppear(t *testing.T) {
	outcome := []authority.Outcome{{Correct: false}}
	available := false
	auth := &stubAuthority{
		status: func() (authority.Status, error) { return authority.Status{}, closedErr() },
	}
	auth.results = func() ([]authority.Outcome, error) {
		if !available {
			return nil, transientErr()
		}
		return outcome, nil
	}
	sess := newTestSession(auth, clockwork.NewFakeClock())

	sess.pollStatus(context.Background())
	require.Equal(t, PhaseErrored, sess.Snapshot().Phase)

	auth.mu.Lock()
	available = true
	auth.mu.Unlock()

	// A late closing signal retries reconciliation and lands the results.
	sess.finish(context.Background())
	snap := sess.Snapshot()
	assert.Equal(t, PhaseEnded, snap.Phase)
	assert.Len(t, snap.Results, 1)
	assert.Empty(t, snap.Err)
}

func TestFinishIdempotentAfterEnded(t *testing.T) {
	auth := &stubAuthority{
		results: func() ([]authority.Outcome, error) { return []authority.Outcome{}, nil },
	}
	sess := newTestSession(auth, clockwork.NewFakeClock())

	sess.finish(context.Background())
	sess.finish(context.Background())

	_, _, _, resultCalls, _ := auth.counts()
	assert.Equal(t, 1, resultCalls, "repeated finish while Ended must not refetch")
	assert.Equal(t, PhaseEnded, sess.Snapshot().Phase)
}

func TestQuestionPollChasesRevealAfterSubmit(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := question(0, authority.TypeJudgement, fc.Now())
	revealed := false
	auth := &stubAuthority{
		question: func() (authority.QuestionResult, error) {
			return authority.QuestionResult{Question: q}, nil
		},
	}
	auth.answers = func() (authority.Reveal, error) {
		if !revealed {
			return authority.Reveal{}, nil
		}
		return authority.Reveal{Available: true, IDs: []int64{2}}, nil
	}
	sess := newTestSession(auth, fc)

	ctx := context.Background()
	sess.pollQuestion(ctx)
	require.Equal(t, PhaseAnswering, sess.Snapshot().Phase)

	sess.SelectAnswer(ctx, 2) // reveal not yet available
	require.Equal(t, PhaseSubmitted, sess.Snapshot().Phase)

	sess.pollQuestion(ctx) // same position, still unrevealed
	require.Equal(t, PhaseSubmitted, sess.Snapshot().Phase)

	auth.mu.Lock()
	revealed = true
	auth.mu.Unlock()

	sess.pollQuestion(ctx)
	snap := sess.Snapshot()
	assert.Equal(t, PhaseRevealed, snap.Phase)
	assert.Equal(t, []int64{2}, snap.Correct)
}

func TestStoppedStatusAfterStartEndsSession(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := question(0, authority.TypeSingle, fc.Now())
	started := true
	auth := &stubAuthority{
		question: func() (authority.QuestionResult, error) {
			return authority.QuestionResult{Question: q}, nil
		},
		results: func() ([]authority.Outcome, error) { return []authority.Outcome{{Correct: true}}, nil },
	}
	auth.status = func() (authority.Status, error) { return authority.Status{Started: started}, nil }
	sess := newTestSession(auth, fc)

	ctx := context.Background()
	sess.pollStatus(ctx)
	require.Equal(t, PhaseAnswering, sess.Snapshot().Phase)

	auth.mu.Lock()
	started = false
	auth.mu.Unlock()

	sess.pollQuestion(ctx)
	assert.Equal(t, PhaseEnded, sess.Snapshot().Phase)
}

func TestTransientStatusErrorKeepsPhase(t *testing.T) {
	failing := true
	auth := &stubAuthority{}
	auth.status = func() (authority.Status, error) {
		if failing {
			return authority.Status{}, transientErr()
		}
		return authority.Status{Started: false}, nil
	}
	sess := newTestSession(auth, clockwork.NewFakeClock())

	sess.pollStatus(context.Background())
	snap := sess.Snapshot()
	assert.Equal(t, PhaseWaiting, snap.Phase)
	assert.NotEmpty(t, snap.Err)

	auth.mu.Lock()
	failing = false
	auth.mu.Unlock()
	sess.pollStatus(context.Background())
	assert.Equal(t, PhaseWaiting, sess.Snapshot().Phase)
}
