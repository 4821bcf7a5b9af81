package submit

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder observes submission outcomes.
type Recorder interface {
	ObserveSubmission(outcome string, elapsed time.Duration)
}

// NopRecorder discards observations.
type NopRecorder struct{}

func (NopRecorder) ObserveSubmission(string, time.Duration) {}

// Submission outcome labels.
const (
	OutcomeCommitted        = "committed"
	OutcomeProposalRejected = "proposal_rejected"
	OutcomeOrderingError    = "ordering_error"
	OutcomeCommitFailed     = "commit_failed"
	OutcomeTimeout          = "timeout"
	OutcomeCanceled         = "canceled"
	OutcomeError            = "error"
)

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCommitted
	}
	var rejected ProposalRejectedError
	if errors.As(err, &rejected) {
		return OutcomeProposalRejected
	}
	var ordering OrderingError
	if errors.As(err, &ordering) {
		return OutcomeOrderingError
	}
	var failed CommitFailedError
	if errors.As(err, &failed) {
		return OutcomeCommitFailed
	}
	var timeout CommitTimeoutError
	if errors.As(err, &timeout) {
		return OutcomeTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCanceled
	}
	return OutcomeError
}

// Metrics records submissions to Prometheus.
type Metrics struct {
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewMetrics registers submission metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emissiontrade",
			Subsystem: "submit",
			Name:      "submissions_total",
			Help:      "Transaction submissions by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emissiontrade",
			Subsystem: "submit",
			Name:      "submission_duration_seconds",
			Help:      "End to end submission latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.submissions, m.latency)
	return m
}

func (m *Metrics) ObserveSubmission(outcome string, elapsed time.Duration) {
	m.submissions.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
