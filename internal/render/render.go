// Package render draws the player's current view of the session as plain
// text. It is deliberately dumb: it consumes immutable snapshots and never
// reaches back into the session.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/quizlive/player/internal/authority"
	"github.com/quizlive/player/internal/session"
)

// Renderer writes session snapshots to an output stream.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	lastPhase     session.Phase
	lastPosition  int
	lastRemaining int
	lastSelected  string
	lastErr       string
}

func New(out io.Writer) *Renderer {
	return &Renderer{out: out, lastPosition: -1, lastRemaining: -1}
}

// Render draws the view for a snapshot. Identical consecutive frames are
// suppressed so the 1s countdown tick does not spam unchanged screens.
func (r *Renderer) Render(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	selected := fmt.Sprint(snap.Selected)
	if snap.Phase == r.lastPhase && snap.Position == r.lastPosition &&
		snap.Remaining == r.lastRemaining && selected == r.lastSelected &&
		snap.Err == r.lastErr {
		return
	}
	r.lastPhase = snap.Phase
	r.lastPosition = snap.Position
	r.lastRemaining = snap.Remaining
	r.lastSelected = selected
	r.lastErr = snap.Err

	fmt.Fprint(r.out, Frame(snap))
}

// Frame renders one snapshot to a string.
func Frame(snap session.Snapshot) string {
	var b strings.Builder

	switch snap.Phase {
	case session.PhaseWaiting:
		b.WriteString("Waiting for Game to Start\n")
	case session.PhaseAnswering:
		writeQuestion(&b, snap)
	case session.PhaseSubmitted:
		writeQuestion(&b, snap)
		b.WriteString("Answer submitted. Waiting for the correct answer...\n")
	case session.PhaseRevealed:
		writeReveal(&b, snap)
	case session.PhaseEnded:
		writeResults(&b, snap.Results)
	case session.PhaseErrored:
		fmt.Fprintf(&b, "Error: %s\n", snap.Err)
	}

	if snap.Err != "" && snap.Phase != session.PhaseErrored {
		fmt.Fprintf(&b, "! %s\n", snap.Err)
	}
	return b.String()
}

func writeQuestion(b *strings.Builder, snap session.Snapshot) {
	q := snap.Question
	if q == nil {
		return
	}
	fmt.Fprintf(b, "Question %d: %s\n", q.Position+1, q.Text)
	if q.MediaURL != "" {
		fmt.Fprintf(b, "Media: %s\n", q.MediaURL)
	}
	fmt.Fprintf(b, "Time remaining: %ds\n", snap.Remaining)

	picked := idSet(snap.Selected)
	for _, a := range q.Answers {
		marker := " "
		if _, ok := picked[a.ID]; ok {
			marker = "x"
		}
		fmt.Fprintf(b, "  [%s] %d. %s\n", marker, a.ID, a.Text)
	}
	if q.Type == authority.TypeMultiple && !snap.Submitted {
		b.WriteString("Select all that apply, then confirm.\n")
	}
}

func writeReveal(b *strings.Builder, snap session.Snapshot) {
	q := snap.Question
	if q == nil {
		return
	}
	fmt.Fprintf(b, "Question %d: %s\n", q.Position+1, q.Text)
	for _, line := range ClassifyReveal(q.Answers, snap.Selected, snap.Correct) {
		fmt.Fprintf(b, "  %s\n", line)
	}
}

// ClassifyReveal marks every answer option against the revealed correct set:
// picked-and-correct, picked-and-incorrect, correct-but-missed, or plain.
func ClassifyReveal(answers []authority.Answer, selected, correct []int64) []string {
	picked := idSet(selected)
	right := idSet(correct)

	lines := make([]string, 0, len(answers))
	for _, a := range answers {
		_, wasPicked := picked[a.ID]
		_, isRight := right[a.ID]
		var tag string
		switch {
		case wasPicked && isRight:
			tag = "correct"
		case wasPicked && !isRight:
			tag = "incorrect"
		case !wasPicked && isRight:
			tag = "correct answer"
		default:
			tag = ""
		}
		if tag == "" {
			lines = append(lines, fmt.Sprintf("%d. %s", a.ID, a.Text))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s  (%s)", a.ID, a.Text, tag))
		}
	}
	return lines
}

func writeResults(b *strings.Builder, results []authority.Outcome) {
	b.WriteString("Game over. Your results:\n")
	correct := 0
	for i, o := range results {
		verdict := "wrong"
		if o.Correct {
			verdict = "correct"
			correct++
		}
		if rt, ok := o.ResponseTime(); ok {
			fmt.Fprintf(b, "  Q%d: %s (answered in %.1fs)\n", i+1, verdict, rt.Seconds())
		} else {
			fmt.Fprintf(b, "  Q%d: %s (no answer)\n", i+1, verdict)
		}
	}
	fmt.Fprintf(b, "Score: %d/%d\n", correct, len(results))
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
