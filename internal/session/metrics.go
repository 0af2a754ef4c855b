package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quizlive/player/internal/authority"
)

var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Subsystem: "player",
		Name:      "polls_total",
		Help:      "Poll requests issued, by endpoint.",
	}, []string{"endpoint"})

	pollErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Subsystem: "player",
		Name:      "poll_errors_total",
		Help:      "Failed poll requests, by endpoint and classified kind.",
	}, []string{"endpoint", "kind"})

	submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Subsystem: "player",
		Name:      "submissions_total",
		Help:      "Answer submissions sent to the authority, by trigger.",
	}, []string{"trigger"})

	submissionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quizlive",
		Subsystem: "player",
		Name:      "submission_errors_total",
		Help:      "Answer submissions the authority rejected or that failed in transit.",
	})
)

func init() {
	prometheus.MustRegister(pollsTotal, pollErrorsTotal, submissionsTotal, submissionErrorsTotal)
}

func obsPoll(endpoint string) {
	pollsTotal.WithLabelValues(endpoint).Inc()
}

func obsPollError(endpoint string, err error) {
	pollErrorsTotal.WithLabelValues(endpoint, string(authority.KindOf(err))).Inc()
}

func obsSubmit(trigger string) {
	submissionsTotal.WithLabelValues(trigger).Inc()
}

func obsSubmitError(err error) {
	submissionErrorsTotal.Inc()
}
