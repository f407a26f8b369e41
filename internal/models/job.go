package models

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobKind selects the handler for a queued job.
type JobKind string

const (
	JobKindDiscoveryPage JobKind = "discovery_page"
	JobKindMovieDetail   JobKind = "movie_detail"
	JobKindListPage      JobKind = "canonical_list_page"
	JobKindCeremony      JobKind = "festival_ceremony"
)

// JobState is the queue-owned lifecycle state of a job.
type JobState string

const (
	JobStateAvailable JobState = "available"
	JobStateExecuting JobState = "executing"
	JobStateCompleted JobState = "completed"
	JobStateRetryable JobState = "retryable"
	JobStateDiscarded JobState = "discarded"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateDiscarded, JobStateCancelled:
		return true
	}
	return false
}

// JobPayload carries the arguments for every job kind. Unused fields are omitted.
type JobPayload struct {
	Page int `json:"page,omitempty"`

	// movie_detail
	TMDbID     int            `json:"tmdb_id,omitempty"`
	IMDbID     string         `json:"imdb_id,omitempty"`
	SourceKey  string         `json:"source_key,omitempty"`
	SourceMeta map[string]any `json:"source_meta,omitempty"`
	Force      bool           `json:"force,omitempty"`

	// canonical_list_page
	ListKey string `json:"list_key,omitempty"`
	ListID  string `json:"list_id,omitempty"`

	// festival_ceremony
	Festival string `json:"festival,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// Stamp returns the provenance carried by the payload, if any.
func (p JobPayload) Stamp() *SourceStamp {
	if p.SourceKey == "" {
		return nil
	}
	return &SourceStamp{Key: p.SourceKey, Meta: p.SourceMeta}
}

// JobError is one failed attempt.
type JobError struct {
	Attempt int       `json:"attempt"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// ImportJob is a persisted unit of work in the durable queue.
type ImportJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	Kind        JobKind                `json:"kind"`
	Payload     JobPayload             `json:"payload"`
	State       JobState               `json:"state"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"max_attempts"`
	ScheduledAt time.Time              `json:"scheduled_at"`
	LastError   *string                `json:"last_error,omitempty"`
	Errors      []JobError             `json:"errors,omitempty"`
	Created     time.Time              `json:"created,omitempty"`
	Updated     time.Time              `json:"updated,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Key returns the record key of the job.
func (j ImportJob) Key() string {
	if s, ok := j.ID.ID.(string); ok {
		return s
	}
	return fmt.Sprint(j.ID.ID)
}

// EnqueueOptions tune a single enqueue.
type EnqueueOptions struct {
	ScheduledAt time.Time // zero means now
	MaxAttempts int       // zero means the per-kind default
	UniqueKey   string    // when set, at most one non-terminal job with this key exists
}

// JobCount is the number of jobs of one kind in one state.
type JobCount struct {
	Kind  JobKind  `json:"kind"`
	State JobState `json:"state"`
	Count int      `json:"count"`
}

// JobFilter narrows a job listing.
type JobFilter struct {
	Kind  JobKind
	State JobState
	Limit int
}
