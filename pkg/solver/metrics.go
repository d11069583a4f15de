package solver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miser",
		Name:      "solves_total",
		Help:      "Number of solve runs, by mode and outcome.",
	}, []string{"mode", "outcome"})

	metricCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miser",
		Name:      "candidates_total",
		Help:      "Number of generated candidates, by validation outcome.",
	}, []string{"outcome"})

	metricRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "miser",
		Name:      "repairs_total",
		Help:      "Number of candidates the repairer modified.",
	})

	metricTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "miser",
		Name:      "completion_tokens_total",
		Help:      "Total tokens spent on completions.",
	})
)

func recordSolve(mode string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	metricSolves.WithLabelValues(mode, outcome).Inc()
}

func recordCandidate(outcome string) {
	metricCandidates.WithLabelValues(outcome).Inc()
}

func recordRepair() {
	metricRepairs.Inc()
}

func recordTokens(n int) {
	if n > 0 {
		metricTokens.Add(float64(n))
	}
}
