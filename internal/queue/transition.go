// Package queue runs durable import jobs: it claims due jobs from the store,
// hands them to per-kind handlers in bounded worker pools, and applies the
// retry policy to the outcome.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
)

var (
	// ErrCancelled marks a job that should stop without retry, such as a
	// discovery page arriving after the operator stopped the import.
	ErrCancelled = errors.New("job cancelled")

	// ErrPermanent marks a failure that will not improve on retry.
	ErrPermanent = errors.New("permanent job failure")

	// ErrExhausted is recorded when a job failed on its last allowed attempt.
	ErrExhausted = errors.New("attempts exhausted")
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string {
	if e.err == nil {
		return e.class.Error()
	}
	return e.err.Error()
}

func (e *classified) Unwrap() []error { return []error{e.class, e.err} }

// Cancel wraps err so the job ends cancelled.
func Cancel(err error) error {
	return &classified{class: ErrCancelled, err: err}
}

// Permanent wraps err so the job is discarded without further attempts.
func Permanent(err error) error {
	return &classified{class: ErrPermanent, err: err}
}

// BackoffFunc returns the delay before retrying after the given attempt.
type BackoffFunc func(attempt int) time.Duration

// Decision is the next state of a job after one attempt.
type Decision struct {
	State models.JobState
	RunAt time.Time // only for retryable
	Err   error     // preserved for discarded, cancelled and retryable
}

// Transition decides what happens to job after an attempt that returned err.
// job.Attempt is the attempt that just ran.
func Transition(job models.ImportJob, err error, now time.Time, backoff BackoffFunc) Decision {
	switch {
	case err == nil:
		return Decision{State: models.JobStateCompleted}
	case errors.Is(err, ErrCancelled):
		return Decision{State: models.JobStateCancelled, Err: err}
	case errors.Is(err, ErrPermanent), provider.IsPermanent(err):
		return Decision{State: models.JobStateDiscarded, Err: err}
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if job.Attempt >= maxAttempts {
		return Decision{
			State: models.JobStateDiscarded,
			Err:   fmt.Errorf("%w after %d of %d: %w", ErrExhausted, job.Attempt, maxAttempts, err),
		}
	}

	var delay time.Duration
	if backoff != nil {
		delay = backoff(job.Attempt)
	}
	return Decision{State: models.JobStateRetryable, RunAt: now.Add(delay), Err: err}
}
