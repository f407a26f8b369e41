package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// activeStates are the non-terminal job states. A unique key blocks a new
// enqueue only while its job is in one of these.
var activeStates = []string{
	string(models.JobStateAvailable),
	string(models.JobStateExecuting),
	string(models.JobStateRetryable),
}

const defaultMaxAttempts = 3

// Enqueue persists a new available job. With opts.UniqueKey set the key
// becomes the record id: an active job with that key makes the call a no-op
// (inserted=false), a terminal one is replaced by a fresh job.
func (c *Client) Enqueue(ctx context.Context, kind models.JobKind, payload models.JobPayload, opts models.EnqueueOptions) (*models.ImportJob, bool, error) {
	id := opts.UniqueKey
	if id == "" {
		id = uuid.NewString()
	}
	at := opts.ScheduledAt
	if at.IsZero() {
		at = time.Now()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		RETURN IF (SELECT VALUE state FROM ONLY type::record("import_job", $id)) IN $active THEN
			[]
		ELSE
			(UPSERT type::record("import_job", $id) SET
				kind = $kind,
				payload = $payload,
				state = "available",
				attempt = 0,
				max_attempts = $max_attempts,
				scheduled_at = <datetime>$scheduled_at,
				last_error = NONE,
				errors = [],
				created = time::now(),
				updated = time::now(),
				completed_at = NONE
			RETURN AFTER)
		END;
	`, map[string]any{
		"id":           id,
		"active":       activeStates,
		"kind":         string(kind),
		"payload":      payload,
		"max_attempts": maxAttempts,
		"scheduled_at": at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", kind, wrapQueryError(err))
	}
	job := first(results)
	if job == nil {
		return nil, false, nil
	}
	return job, true, nil
}

// Claim atomically moves the oldest due job of one of kinds to executing and
// bumps its attempt. Returns nil when nothing is due or another worker won
// the race.
func (c *Client) Claim(ctx context.Context, kinds []models.JobKind, now time.Time) (*models.ImportJob, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE (
			SELECT id, scheduled_at FROM import_job
			WHERE state IN ["available", "retryable"]
				AND kind IN $kinds
				AND scheduled_at <= <datetime>$now
			ORDER BY scheduled_at
			LIMIT 1
		).id SET
			state = "executing",
			attempt += 1,
			updated = time::now()
		WHERE state IN ["available", "retryable"]
		RETURN AFTER
	`, map[string]any{
		"kinds": names,
		"now":   now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		err = wrapQueryError(err)
		if errors.Is(err, ErrTransactionConflict) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return first(results), nil
}

// CompleteJob marks an executing job completed.
func (c *Client) CompleteJob(ctx context.Context, id string) error {
	return c.finishJob(ctx, id, models.JobStateCompleted, "")
}

// DiscardJob marks a job permanently failed, keeping msg in its history.
func (c *Client) DiscardJob(ctx context.Context, id, msg string) error {
	return c.finishJob(ctx, id, models.JobStateDiscarded, msg)
}

// CancelJob marks a job cancelled, keeping msg in its history.
func (c *Client) CancelJob(ctx context.Context, id, msg string) error {
	return c.finishJob(ctx, id, models.JobStateCancelled, msg)
}

func (c *Client) finishJob(ctx context.Context, id string, state models.JobState, msg string) error {
	sql := `
		UPDATE type::record("import_job", $id) SET
			state = $state,
			completed_at = time::now(),
			updated = time::now()
	`
	vars := map[string]any{"id": id, "state": string(state)}
	if msg != "" {
		sql += `,
			last_error = $msg,
			errors = array::append(errors ?? [], { attempt: attempt, error: $msg, at: time::now() })`
		vars["msg"] = msg
	}
	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("mark job %s %s: %w", id, state, wrapQueryError(err))
	}
	return nil
}

// RetryJobAt schedules a failed attempt to run again at at.
func (c *Client) RetryJobAt(ctx context.Context, id string, at time.Time, msg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("import_job", $id) SET
			state = "retryable",
			scheduled_at = <datetime>$at,
			last_error = $msg,
			errors = array::append(errors ?? [], { attempt: attempt, error: $msg, at: time::now() }),
			updated = time::now()
	`, map[string]any{"id": id, "at": at.UTC().Format(time.RFC3339Nano), "msg": msg})
	if err != nil {
		return fmt.Errorf("retry job %s: %w", id, wrapQueryError(err))
	}
	return nil
}

// ReplayJob makes a discarded or cancelled job available again with a fresh
// attempt budget. Returns ErrNotFound if no such terminal job exists.
func (c *Client) ReplayJob(ctx context.Context, id string) (*models.ImportJob, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE type::record("import_job", $id) SET
			state = "available",
			attempt = 0,
			scheduled_at = time::now(),
			completed_at = NONE,
			updated = time::now()
		WHERE state IN ["discarded", "cancelled"]
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("replay job: %w", wrapQueryError(err))
	}
	job := first(results)
	if job == nil {
		return nil, fmt.Errorf("replay job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

// RequeueExecuting returns jobs left executing by a previous process to
// available. Their attempt is kept. Returns the number of jobs requeued.
func (c *Client) RequeueExecuting(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE import_job SET
			state = "available",
			scheduled_at = time::now(),
			updated = time::now()
		WHERE state = "executing"
		RETURN AFTER
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("requeue executing: %w", wrapQueryError(err))
	}
	return len(rows(results)), nil
}

// CancelPending cancels every available or retryable job of kind.
func (c *Client) CancelPending(ctx context.Context, kind models.JobKind, msg string) (int, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE import_job SET
			state = "cancelled",
			last_error = $msg,
			completed_at = time::now(),
			updated = time::now()
		WHERE kind = $kind AND state IN ["available", "retryable"]
		RETURN AFTER
	`, map[string]any{"kind": string(kind), "msg": msg})
	if err != nil {
		return 0, fmt.Errorf("cancel pending: %w", wrapQueryError(err))
	}
	return len(rows(results)), nil
}

// GetJob retrieves a job by id. Returns nil if not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		SELECT * FROM type::record("import_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return first(results), nil
}

// JobCounts returns the number of jobs per kind and state.
func (c *Client) JobCounts(ctx context.Context) ([]models.JobCount, error) {
	results, err := surrealdb.Query[[]models.JobCount](ctx, c.db, `
		SELECT kind, state, count() AS count FROM import_job GROUP BY kind, state
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	return rows(results), nil
}

// ListJobs returns the most recently updated jobs matching filter.
func (c *Client) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	where := ""
	vars := map[string]any{"limit": filter.Limit}
	if filter.Limit <= 0 {
		vars["limit"] = 50
	}
	switch {
	case filter.Kind != "" && filter.State != "":
		where = "WHERE kind = $kind AND state = $state"
	case filter.Kind != "":
		where = "WHERE kind = $kind"
	case filter.State != "":
		where = "WHERE state = $state"
	}
	if filter.Kind != "" {
		vars["kind"] = string(filter.Kind)
	}
	if filter.State != "" {
		vars["state"] = string(filter.State)
	}

	sql := fmt.Sprintf(`SELECT * FROM import_job %s ORDER BY updated DESC LIMIT $limit`, where)
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return rows(results), nil
}
