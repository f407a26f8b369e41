package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
)

func TestTransition(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixed := func(int) time.Duration { return time.Minute }
	transient := &provider.Error{Provider: "tmdb", StatusCode: 503, Transient: true, Err: errors.New("unavailable")}
	notFound := &provider.Error{Provider: "tmdb", StatusCode: 404, NotFound: true, Err: errors.New("missing")}

	tests := []struct {
		name    string
		attempt int
		max     int
		err     error
		want    models.JobState
		wantRun time.Time
	}{
		{"success", 1, 3, nil, models.JobStateCompleted, time.Time{}},
		{"transient first attempt", 1, 3, transient, models.JobStateRetryable, now.Add(time.Minute)},
		{"transient last attempt", 3, 3, transient, models.JobStateDiscarded, time.Time{}},
		{"provider permanent", 1, 3, notFound, models.JobStateDiscarded, time.Time{}},
		{"wrapped permanent", 1, 3, fmt.Errorf("page 4: %w", Permanent(errors.New("cursor moved"))), models.JobStateDiscarded, time.Time{}},
		{"cancelled", 1, 3, Cancel(errors.New("stopped")), models.JobStateCancelled, time.Time{}},
		{"cancel wins over attempts", 3, 3, Cancel(errors.New("stopped")), models.JobStateCancelled, time.Time{}},
		{"plain error retried", 2, 5, errors.New("db timeout"), models.JobStateRetryable, now.Add(time.Minute)},
		{"zero max attempts means one", 1, 0, errors.New("x"), models.JobStateDiscarded, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := models.ImportJob{Attempt: tt.attempt, MaxAttempts: tt.max}
			d := Transition(job, tt.err, now, fixed)
			if d.State != tt.want {
				t.Fatalf("state = %s, want %s", d.State, tt.want)
			}
			if !d.RunAt.Equal(tt.wantRun) {
				t.Errorf("run at = %v, want %v", d.RunAt, tt.wantRun)
			}
			if tt.err != nil && d.Err == nil {
				t.Error("error not preserved")
			}
		})
	}
}

func TestTransitionExhaustedKeepsCause(t *testing.T) {
	cause := &provider.Error{Provider: "tmdb", StatusCode: 500, Transient: true, Err: errors.New("boom")}
	d := Transition(models.ImportJob{Attempt: 2, MaxAttempts: 2}, cause, time.Now(), nil)
	if !errors.Is(d.Err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", d.Err)
	}
	if !errors.Is(d.Err, provider.ErrTransient) {
		t.Errorf("cause lost: %v", d.Err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b(i + 1); got != w {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}
	if got := b(1); got != time.Second {
		t.Errorf("backoff must be deterministic, got %v", got)
	}
}
