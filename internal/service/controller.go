package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/quality"
)

// maxFestivalYears bounds a single ImportFestival call.
const maxFestivalYears = 100

// ErrInvalidInput marks operator requests that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// Controller is the operator surface: start, stop and resume imports and
// inspect their progress.
type Controller struct {
	store  Store
	policy *config.PolicyStore
	gate   *quality.Gate
}

// NewController creates a controller.
func NewController(store Store, policy *config.PolicyStore, gate *quality.Gate) *Controller {
	return &Controller{store: store, policy: policy, gate: gate}
}

// StartDiscovery marks the crawl running and queues the page after the
// cursor. restart rewinds the cursor to page 0 first. Starting a crawl that
// is already running is a no-op thanks to the page job's unique key.
func (c *Controller) StartDiscovery(ctx context.Context, restart bool) (models.ImportProgress, error) {
	var (
		st  *models.ImportState
		err error
	)
	if restart {
		if _, err := c.store.CancelPending(ctx, models.JobKindDiscoveryPage, "discovery restarted"); err != nil {
			return models.ImportProgress{}, err
		}
		st, err = c.store.ResetImportState(ctx, DiscoveryScope, models.RunStatusRunning)
	} else {
		st, err = c.store.EnsureImportState(ctx, DiscoveryScope)
		if err == nil && st.Status == models.RunStatusComplete {
			slog.Info("discovery already complete", "pages", st.LastPageProcessed)
			return c.progress(ctx, *st)
		}
		if err == nil {
			st, err = c.store.SetImportStatus(ctx, DiscoveryScope, models.RunStatusRunning)
		}
	}
	if err != nil {
		return models.ImportProgress{}, err
	}
	if err := c.queueDiscoveryPage(ctx, st.LastPageProcessed+1); err != nil {
		return models.ImportProgress{}, err
	}
	slog.Info("discovery started", "page", st.LastPageProcessed+1, "restart", restart)
	return c.progress(ctx, *st)
}

// StopDiscovery halts the crawl. The page job in flight finishes; the next
// one is cancelled when it starts. Queued detail jobs still run.
func (c *Controller) StopDiscovery(ctx context.Context) (models.ImportProgress, error) {
	st, err := c.store.SetImportStatus(ctx, DiscoveryScope, models.RunStatusStopped)
	if err != nil {
		return models.ImportProgress{}, err
	}
	slog.Info("discovery stopped", "page", st.LastPageProcessed)
	return c.progress(ctx, *st)
}

// ResumeDiscovery continues a stopped or failed crawl from the cursor.
func (c *Controller) ResumeDiscovery(ctx context.Context) (models.ImportProgress, error) {
	st, err := c.store.EnsureImportState(ctx, DiscoveryScope)
	if err != nil {
		return models.ImportProgress{}, err
	}
	if st.Status == models.RunStatusComplete {
		return c.progress(ctx, *st)
	}
	if st, err = c.store.SetImportStatus(ctx, DiscoveryScope, models.RunStatusRunning); err != nil {
		return models.ImportProgress{}, err
	}
	if err := c.queueDiscoveryPage(ctx, st.LastPageProcessed+1); err != nil {
		return models.ImportProgress{}, err
	}
	slog.Info("discovery resumed", "page", st.LastPageProcessed+1)
	return c.progress(ctx, *st)
}

// Recover re-queues the next discovery page of a running crawl. Called at
// startup in case the process died between advancing the cursor and
// scheduling the following page.
func (c *Controller) Recover(ctx context.Context) error {
	st, err := c.store.GetImportState(ctx, DiscoveryScope)
	if err != nil || st == nil || st.Status != models.RunStatusRunning {
		return err
	}
	return c.queueDiscoveryPage(ctx, st.LastPageProcessed+1)
}

func (c *Controller) queueDiscoveryPage(ctx context.Context, page int) error {
	_, _, err := c.store.Enqueue(ctx, models.JobKindDiscoveryPage,
		models.JobPayload{Page: page},
		models.EnqueueOptions{
			UniqueKey:   DiscoveryJobKey(page),
			MaxAttempts: c.policy.Load().Queue.Attempts(models.JobKindDiscoveryPage),
		})
	if err != nil {
		return fmt.Errorf("queue discovery page %d: %w", page, err)
	}
	return nil
}

// Progress reports the discovery crawl.
func (c *Controller) Progress(ctx context.Context) (models.ImportProgress, error) {
	st, err := c.store.GetImportState(ctx, DiscoveryScope)
	if err != nil {
		return models.ImportProgress{}, err
	}
	if st == nil {
		st = &models.ImportState{Scope: DiscoveryScope, Status: models.RunStatusIdle}
	}
	return c.progress(ctx, *st)
}

func (c *Controller) progress(ctx context.Context, st models.ImportState) (models.ImportProgress, error) {
	counts, err := c.store.CountMovies(ctx)
	if err != nil {
		return models.ImportProgress{}, err
	}
	return models.NewImportProgress(st, counts.Full), nil
}

// SecondaryProgress reports every list and festival scope.
func (c *Controller) SecondaryProgress(ctx context.Context) ([]models.ImportProgress, error) {
	var out []models.ImportProgress
	for _, prefix := range []string{"list:", "festival:"} {
		states, err := c.store.ListImportStates(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, st := range states {
			out = append(out, models.NewImportProgress(st, 0))
		}
	}
	return out, nil
}

// ImportList starts importing a canonical list under key. A finished or
// failed list is re-read from page 1.
func (c *Controller) ImportList(ctx context.Context, key, listID string) (*models.ImportJob, error) {
	if !models.ValidSourceKey(key) {
		return nil, fmt.Errorf("%w: list key %q must use lowercase letters, digits and underscores", ErrInvalidInput, key)
	}
	if listID == "" {
		return nil, fmt.Errorf("%w: list id is required", ErrInvalidInput)
	}
	scope := models.ListScope(key)
	st, err := c.store.EnsureImportState(ctx, scope)
	if err != nil {
		return nil, err
	}
	if st.Status == models.RunStatusComplete || st.Status == models.RunStatusFailed {
		st, err = c.store.ResetImportState(ctx, scope, models.RunStatusRunning)
	} else {
		st, err = c.store.SetImportStatus(ctx, scope, models.RunStatusRunning)
	}
	if err != nil {
		return nil, err
	}
	if err := c.store.SetImportMetadata(ctx, scope, map[string]any{"list_id": listID}); err != nil {
		return nil, err
	}

	page := st.LastPageProcessed + 1
	job, _, err := c.store.Enqueue(ctx, models.JobKindListPage,
		models.JobPayload{Page: page, ListKey: key, ListID: listID},
		models.EnqueueOptions{
			UniqueKey:   ListJobKey(key, page),
			MaxAttempts: c.policy.Load().Queue.Attempts(models.JobKindListPage),
		})
	if err != nil {
		return nil, fmt.Errorf("queue list %s: %w", key, err)
	}
	slog.Info("list import started", "list", key, "list_id", listID, "page", page)
	return job, nil
}

// ImportFestival queues one ceremony job per year in [from, to].
func (c *Controller) ImportFestival(ctx context.Context, festival string, from, to int) ([]models.ImportJob, error) {
	if models.Slugify(festival) == "" {
		return nil, fmt.Errorf("%w: festival name is required", ErrInvalidInput)
	}
	if from <= 0 || to < from {
		return nil, fmt.Errorf("%w: year range %d-%d", ErrInvalidInput, from, to)
	}
	if to-from >= maxFestivalYears {
		return nil, fmt.Errorf("%w: year range %d-%d exceeds %d years", ErrInvalidInput, from, to, maxFestivalYears)
	}

	attempts := c.policy.Load().Queue.Attempts(models.JobKindCeremony)
	var jobs []models.ImportJob
	for year := from; year <= to; year++ {
		if _, err := c.store.SetImportStatus(ctx, models.FestivalScope(festival, year), models.RunStatusRunning); err != nil {
			return nil, err
		}
		job, inserted, err := c.store.Enqueue(ctx, models.JobKindCeremony,
			models.JobPayload{Festival: festival, Year: year},
			models.EnqueueOptions{UniqueKey: CeremonyJobKey(festival, year), MaxAttempts: attempts})
		if err != nil {
			return nil, fmt.Errorf("queue %s %d: %w", festival, year, err)
		}
		if inserted {
			jobs = append(jobs, *job)
		}
	}
	slog.Info("festival import started", "festival", festival, "from", from, "to", to, "queued", len(jobs))
	return jobs, nil
}

// Report combines discovery progress, secondary scopes and queue depth.
func (c *Controller) Report(ctx context.Context) (models.ProgressReport, error) {
	var (
		r   models.ProgressReport
		err error
	)
	if r.Discovery, err = c.Progress(ctx); err != nil {
		return r, err
	}
	if r.Secondary, err = c.SecondaryProgress(ctx); err != nil {
		return r, err
	}
	if r.Jobs, err = c.store.JobCounts(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// StopScope stops a list or festival scope; its next job is cancelled.
func (c *Controller) StopScope(ctx context.Context, scope string) (models.ImportProgress, error) {
	st, err := c.store.SetImportStatus(ctx, scope, models.RunStatusStopped)
	if err != nil {
		return models.ImportProgress{}, err
	}
	return models.NewImportProgress(*st, 0), nil
}

// JobCounts returns queue depth per kind and state.
func (c *Controller) JobCounts(ctx context.Context) ([]models.JobCount, error) {
	return c.store.JobCounts(ctx)
}

// ListJobs lists recent jobs.
func (c *Controller) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	return c.store.ListJobs(ctx, filter)
}

// RetryJob replays a discarded or cancelled job.
func (c *Controller) RetryJob(ctx context.Context, id string) (*models.ImportJob, error) {
	job, err := c.store.ReplayJob(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("job replayed", "id", id, "kind", job.Kind)
	return job, nil
}

// ListSkipped returns recent audit rows.
func (c *Controller) ListSkipped(ctx context.Context, decision string, limit int) ([]models.SkippedImport, error) {
	return c.store.ListSkipped(ctx, decision, limit)
}

// MovieCounts returns movie totals by status.
func (c *Controller) MovieCounts(ctx context.Context) (models.MovieCounts, error) {
	return c.store.CountMovies(ctx)
}

// Movie looks up a stored movie by TMDb id or by IMDb id ("tt...") and
// loads its credits and collaborations.
func (c *Controller) Movie(ctx context.Context, ref string) (*models.MovieDetail, error) {
	var (
		m   *models.Movie
		err error
	)
	if strings.HasPrefix(ref, "tt") {
		m, err = c.store.GetMovieByIMDbID(ctx, ref)
	} else {
		id, perr := strconv.Atoi(ref)
		if perr != nil || id <= 0 {
			return nil, fmt.Errorf("%w: movie %q is neither a tmdb id nor an imdb id", ErrInvalidInput, ref)
		}
		m, err = c.store.GetMovie(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("movie %s: %w", ref, db.ErrNotFound)
	}

	out := &models.MovieDetail{Movie: *m}
	if out.Credits, err = c.store.CreditsForMovie(ctx, m.TMDbID); err != nil {
		return nil, err
	}
	if out.Collaborations, err = c.store.CollaborationsForMovie(ctx, m.TMDbID); err != nil {
		return nil, err
	}
	return out, nil
}

// SourceMovies lists the movies stamped with a canonical source key.
func (c *Controller) SourceMovies(ctx context.Context, key string, limit int) ([]models.Movie, error) {
	if !models.ValidSourceKey(key) {
		return nil, fmt.Errorf("%w: source key %q", ErrInvalidInput, key)
	}
	return c.store.ListMoviesBySource(ctx, key, limit)
}

// Person looks up a stored person.
func (c *Controller) Person(ctx context.Context, tmdbID int) (*models.Person, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("%w: person id %d", ErrInvalidInput, tmdbID)
	}
	p, err := c.store.GetPerson(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("person %d: %w", tmdbID, db.ErrNotFound)
	}
	return p, nil
}

// ReloadPolicy re-reads the policy file and applies the new thresholds.
// Provider limits apply to clients created afterwards.
func (c *Controller) ReloadPolicy() (config.Policy, error) {
	p, err := c.policy.Reload()
	if err != nil {
		return p, fmt.Errorf("reload policy: %w", err)
	}
	c.gate.Update(p.Quality)
	slog.Info("policy reloaded", "top_cast", p.Collaboration.TopCast, "min_vote_count", p.Quality.MinVoteCount)
	return p, nil
}

// Policy returns the active policy.
func (c *Controller) Policy() config.Policy {
	return c.policy.Load()
}
