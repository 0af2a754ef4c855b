package authority

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies authority failures into the categories the session layer
// acts on. The authority's raw status codes are ambiguous signals (the same
// code can mean "bad id" or "session over" depending on timing), so the
// mapping lives here, once, and call sites only ever branch on Kind.
type Kind string

const (
	// KindTransient covers transport failures, 5xx and undecodable bodies.
	// The session keeps its phase and retries on the next scheduled tick.
	KindTransient Kind = "transient"
	// KindClosed covers bad-request class responses: the session is over or
	// the player id is no longer valid. Results should be attempted.
	KindClosed Kind = "session_closed"
	// KindConcluded covers forbidden-class responses: the game finished
	// normally and final results should be available.
	KindConcluded Kind = "game_concluded"
	// KindValidation covers payloads rejected locally before or after the
	// wire; no phase change and no retry.
	KindValidation Kind = "validation"
)

// Error is a classified authority failure.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// classify maps a non-2xx response to a Kind.
func classify(op string, status int) *Error {
	var kind Kind
	switch {
	case status == http.StatusForbidden:
		kind = KindConcluded
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		kind = KindClosed
	default:
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Status: status}
}

// KindOf extracts the Kind from any error. Unclassified errors (timeouts,
// connection resets, context cancellation) are transient.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// IsClosing reports whether the error is a signal that the session is over,
// by either path, and results should be fetched.
func IsClosing(err error) bool {
	k := KindOf(err)
	return k == KindClosed || k == KindConcluded
}
