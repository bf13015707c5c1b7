// Package queue submits generation jobs to the background worker fleet and
// watches the dead-letter stream for jobs whose worker chain failed before
// ever reaching the result callback.
//
// Jobs travel over a Redis stream: submission is a single XADD carrying the
// routing metadata (request id, profile id, plan type, action) as top-level
// stream fields so workers can route without decoding the payload. Workers
// that crash terminally write an entry to the dead-letter stream; the Watcher
// consumes it and invokes the registered continuation, which is how the
// dispatcher's terminal-failure hook is realized.
package queue

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fitpilot/go-coach-backend/internal/domain"
)

// Job is one generation request as submitted to the worker fleet.
type Job struct {
	domain.GenerationRequest

	// Language is the profile language, used by workers to localize output.
	Language string `json:"language"`

	// Payload is the opaque generation input (goals, constraints, wishes).
	Payload map[string]any `json:"payload"`
}

// Queue accepts generation jobs for asynchronous processing. Submit returns
// the queue-assigned handle for the accepted job.
type Queue interface {
	Submit(ctx context.Context, job Job) (string, error)
}

// DeadLetter reports a job whose worker chain failed terminally without
// delivering a callback.
type DeadLetter struct {
	RequestID string
	ProfileID int64
	Reason    string
}

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_submitted_total",
			Help: "Total generation jobs submitted to the worker queue.",
		},
		[]string{"plan_type", "action"},
	)

	deadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_dead_letters_total",
			Help: "Total dead-lettered generation jobs consumed from the queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted, deadLetters)
}
