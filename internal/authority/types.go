package authority

import (
	"fmt"
	"time"
)

// QuestionType values understood by the client.
const (
	TypeSingle    = "single"
	TypeMultiple  = "multiple"
	TypeJudgement = "judgement"
)

// Status is the authority's answer to "has the game started for this player".
type Status struct {
	Started bool `json:"started"`
}

// Answer is one selectable option of a question. Correctness is never
// included before submission.
type Answer struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Question is a snapshot of the currently active question. Position is
// authority-assigned and monotonic within a session; it is the sole
// change-detection key.
type Question struct {
	ID        int64     `json:"id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	TimeLimit int       `json:"timeLimit"`
	StartedAt time.Time `json:"startedAt"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	Answers   []Answer  `json:"answers"`
}

// Deadline is the wall-clock instant the question expires, anchored to the
// authority-issued start time so all players converge regardless of when
// they polled.
func (q Question) Deadline() time.Time {
	return q.StartedAt.Add(time.Duration(q.TimeLimit) * time.Second)
}

// Validate rejects payloads the client cannot render or time.
func (q Question) Validate() error {
	switch q.Type {
	case TypeSingle, TypeMultiple:
		if len(q.Answers) < 2 {
			return fmt.Errorf("question %d: need at least 2 answers, got %d", q.ID, len(q.Answers))
		}
	case TypeJudgement:
		if len(q.Answers) != 2 {
			return fmt.Errorf("judgement question %d: need exactly 2 answers, got %d", q.ID, len(q.Answers))
		}
	default:
		return fmt.Errorf("question %d: unknown type %q", q.ID, q.Type)
	}
	if q.TimeLimit <= 0 {
		return fmt.Errorf("question %d: non-positive time limit %d", q.ID, q.TimeLimit)
	}
	if q.Position < 0 {
		return fmt.Errorf("question %d: negative position %d", q.ID, q.Position)
	}
	return nil
}

// QuestionResult is the tagged outcome of a question poll. The authority may
// legitimately have no active question yet; that is Absent, not an error.
type QuestionResult struct {
	Absent   bool
	Question Question
}

// Reveal is the tagged outcome of a correct-answer poll. An empty id set
// means the reveal is not yet available, which is not an error.
type Reveal struct {
	Available bool
	IDs       []int64
}

// Outcome is one per-question entry of the final results, in question order.
type Outcome struct {
	AnswerIDs         []int64    `json:"answerIds"`
	Correct           bool       `json:"correct"`
	AnsweredAt        *time.Time `json:"answeredAt"`
	QuestionStartedAt *time.Time `json:"questionStartedAt"`
}

// ResponseTime reports how long the player took on this question, or false
// when either timestamp is missing (unanswered questions).
func (o Outcome) ResponseTime() (time.Duration, bool) {
	if o.AnsweredAt == nil || o.QuestionStartedAt == nil {
		return 0, false
	}
	return o.AnsweredAt.Sub(*o.QuestionStartedAt), true
}
