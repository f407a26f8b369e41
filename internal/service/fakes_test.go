package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// memStore is an in-memory Store with the same write semantics as db.Client.
type memStore struct {
	mu       sync.Mutex
	movies   map[int]*models.Movie
	persons  map[int]models.PersonWrite
	credits  map[string]models.Credit
	collabs  map[int][]models.Collaboration
	skipped  []models.SkippedImport
	states   map[string]*models.ImportState
	jobs     map[string]*models.ImportJob
	jobOrder []string

	conflicts   int   // UpsertMovie returns ErrTransactionConflict this many times
	creditsErr  error // UpsertCredits fails once with this error
	enqueueErr  error // Enqueue fails with this error once enqueueOKs inserts succeeded
	enqueueOKs  int
	enqueueSeen int
}

func newMemStore() *memStore {
	return &memStore{
		movies:  make(map[int]*models.Movie),
		persons: make(map[int]models.PersonWrite),
		credits: make(map[string]models.Credit),
		collabs: make(map[int][]models.Collaboration),
		states:  make(map[string]*models.ImportState),
		jobs:    make(map[string]*models.ImportJob),
	}
}

func (s *memStore) UpsertMovie(_ context.Context, tmdbID int, f models.MovieFields, status *models.ImportStatus, stamp *models.SourceStamp) (*models.Movie, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return nil, false, fmt.Errorf("upsert movie: %w", db.ErrTransactionConflict)
	}
	if stamp != nil && !models.ValidSourceKey(stamp.Key) {
		return nil, false, fmt.Errorf("invalid source key %q", stamp.Key)
	}
	m, ok := s.movies[tmdbID]
	if !ok {
		m = &models.Movie{
			TMDbID:           tmdbID,
			ImportStatus:     models.ImportStatusPending,
			CanonicalSources: map[string]any{},
		}
		s.movies[tmdbID] = m
	}
	applyFields(m, f)
	if status != nil && *status != models.ImportStatusPending && m.ImportStatus != models.ImportStatusFull {
		m.ImportStatus = *status
	}
	if stamp != nil {
		m.CanonicalSources[stamp.Key] = stamp.Meta
	}
	m.Revision++
	out := cloneMovie(m)
	return &out, m.Revision == 1, nil
}

func applyFields(m *models.Movie, f models.MovieFields) {
	if f.Title != nil {
		m.Title = *f.Title
	}
	if f.IMDbID != nil {
		m.IMDbID = f.IMDbID
	}
	if f.OriginalTitle != nil {
		m.OriginalTitle = f.OriginalTitle
	}
	if f.ReleaseDate != nil {
		m.ReleaseDate = f.ReleaseDate
	}
	if f.Overview != nil {
		m.Overview = f.Overview
	}
	if f.Runtime != nil {
		m.Runtime = f.Runtime
	}
	if f.Popularity != nil {
		m.Popularity = f.Popularity
	}
	if f.VoteAverage != nil {
		m.VoteAverage = f.VoteAverage
	}
	if f.VoteCount != nil {
		m.VoteCount = f.VoteCount
	}
	if f.PosterPath != nil {
		m.PosterPath = f.PosterPath
	}
	if f.BackdropPath != nil {
		m.BackdropPath = f.BackdropPath
	}
	if len(f.ExternalRatings) > 0 {
		m.ExternalRatings = f.ExternalRatings
	}
}

func cloneMovie(m *models.Movie) models.Movie {
	out := *m
	out.CanonicalSources = maps.Clone(m.CanonicalSources)
	return out
}

func (s *memStore) StampMovieByIMDbID(_ context.Context, imdbID string, stamp models.SourceStamp) (*models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movies {
		if m.IMDbID != nil && *m.IMDbID == imdbID {
			m.CanonicalSources[stamp.Key] = stamp.Meta
			m.Revision++
			out := cloneMovie(m)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("stamp movie %s: %w", imdbID, db.ErrNotFound)
}

func (s *memStore) GetMovie(_ context.Context, tmdbID int) (*models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[tmdbID]
	if !ok {
		return nil, nil
	}
	out := cloneMovie(m)
	return &out, nil
}

func (s *memStore) GetMovieByIMDbID(_ context.Context, imdbID string) (*models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movies {
		if m.IMDbID != nil && *m.IMDbID == imdbID {
			out := cloneMovie(m)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListMoviesBySource(_ context.Context, key string, limit int) ([]models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Movie
	for _, id := range slices.Sorted(maps.Keys(s.movies)) {
		if _, ok := s.movies[id].CanonicalSources[key]; ok && (limit <= 0 || len(out) < limit) {
			out = append(out, cloneMovie(s.movies[id]))
		}
	}
	return out, nil
}

func (s *memStore) GetPerson(_ context.Context, tmdbID int) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[tmdbID]
	if !ok {
		return nil, nil
	}
	return &models.Person{
		TMDbID:             p.TMDbID,
		Name:               p.Name,
		Popularity:         p.Popularity,
		ProfilePath:        p.ProfilePath,
		KnownForDepartment: p.KnownForDepartment,
		ImportStatus:       p.ImportStatus,
	}, nil
}

func (s *memStore) CreditsForMovie(_ context.Context, tmdbID int) ([]models.Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Credit
	for _, id := range slices.Sorted(maps.Keys(s.credits)) {
		if c := s.credits[id]; c.MovieTMDbID == tmdbID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CollaborationsForMovie(_ context.Context, tmdbID int) ([]models.Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Collaboration(nil), s.collabs[tmdbID]...), nil
}

func (s *memStore) CountMovies(_ context.Context) (models.MovieCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c models.MovieCounts
	for _, m := range s.movies {
		c.Total++
		switch m.ImportStatus {
		case models.ImportStatusFull:
			c.Full++
		case models.ImportStatusSoft:
			c.Soft++
		case models.ImportStatusPending:
			c.Pending++
		}
	}
	return c, nil
}

func (s *memStore) UpsertPersons(_ context.Context, persons []models.PersonWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range persons {
		if old, ok := s.persons[p.TMDbID]; ok && old.ImportStatus == models.ImportStatusFull {
			p.ImportStatus = models.ImportStatusFull
		}
		s.persons[p.TMDbID] = p
	}
	return nil
}

func (s *memStore) UpsertCredits(_ context.Context, credits []models.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.creditsErr; err != nil {
		s.creditsErr = nil
		return err
	}
	for _, c := range credits {
		s.credits[c.CreditID] = c
	}
	return nil
}

func (s *memStore) ReplaceCollaborations(_ context.Context, movie int, collabs []models.Collaboration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collabs[movie] = append([]models.Collaboration(nil), collabs...)
	return nil
}

func (s *memStore) RecordSkipped(_ context.Context, row models.SkippedImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, old := range s.skipped {
		if old.Key() == row.Key() {
			row.Created = old.Created
			s.skipped[i] = row
			return nil
		}
	}
	row.Created = time.Now()
	s.skipped = append(s.skipped, row)
	return nil
}

func (s *memStore) ListSkipped(_ context.Context, decision string, limit int) ([]models.SkippedImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SkippedImport
	for i := len(s.skipped) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if decision == "" || s.skipped[i].Decision == decision {
			out = append(out, s.skipped[i])
		}
	}
	return out, nil
}

func (s *memStore) state(scope string) *models.ImportState {
	st, ok := s.states[scope]
	if !ok {
		st = &models.ImportState{Scope: scope, Status: models.RunStatusIdle}
		s.states[scope] = st
	}
	return st
}

func (s *memStore) GetImportState(_ context.Context, scope string) (*models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[scope]
	if !ok {
		return nil, nil
	}
	out := *st
	return &out, nil
}

func (s *memStore) EnsureImportState(_ context.Context, scope string) (*models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.state(scope)
	return &out, nil
}

func (s *memStore) AdvanceCursor(_ context.Context, scope string, page int, totals models.CursorTotals) (*models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[scope]
	if !ok {
		return nil, fmt.Errorf("advance cursor %s: %w", scope, db.ErrNotFound)
	}
	if st.LastPageProcessed != page-1 {
		return nil, fmt.Errorf("advance cursor %s: %w", scope, db.ErrCursorConflict)
	}
	st.LastPageProcessed = page
	if totals.TotalPages > 0 {
		st.TotalPages = totals.TotalPages
	}
	if totals.TotalKnown > 0 {
		st.TotalKnown = totals.TotalKnown
	}
	var failed []int
	for _, p := range st.FailedPages {
		if p != page {
			failed = append(failed, p)
		}
	}
	st.FailedPages = failed
	st.Version++
	out := *st
	return &out, nil
}

func (s *memStore) SetImportStatus(_ context.Context, scope string, status models.RunStatus) (*models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(scope)
	st.Status = status
	st.Version++
	out := *st
	return &out, nil
}

func (s *memStore) SetImportMetadata(_ context.Context, scope string, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(scope).Metadata = meta
	return nil
}

func (s *memStore) RecordFailedPage(_ context.Context, scope string, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(scope)
	for _, p := range st.FailedPages {
		if p == page {
			st.Status = models.RunStatusFailed
			return nil
		}
	}
	st.FailedPages = append(st.FailedPages, page)
	st.Status = models.RunStatusFailed
	return nil
}

func (s *memStore) ResetImportState(_ context.Context, scope string, status models.RunStatus) (*models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(scope)
	*st = models.ImportState{Scope: scope, Status: status, Version: st.Version + 1}
	out := *st
	return &out, nil
}

func (s *memStore) ListImportStates(_ context.Context, prefix string) ([]models.ImportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportState
	for scope, st := range s.states {
		if strings.HasPrefix(scope, prefix) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (s *memStore) Enqueue(_ context.Context, kind models.JobKind, payload models.JobPayload, opts models.EnqueueOptions) (*models.ImportJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := opts.UniqueKey
	if id == "" {
		id = fmt.Sprintf("job_%d", len(s.jobOrder)+1)
	}
	if old, ok := s.jobs[id]; ok && !old.State.Terminal() {
		return nil, false, nil
	}
	if s.enqueueErr != nil {
		if s.enqueueSeen >= s.enqueueOKs {
			err := s.enqueueErr
			s.enqueueErr = nil
			return nil, false, err
		}
		s.enqueueSeen++
	}
	at := opts.ScheduledAt
	if at.IsZero() {
		at = time.Now()
	}
	job := &models.ImportJob{
		ID:          surrealmodels.NewRecordID("import_job", id),
		Kind:        kind,
		Payload:     payload,
		State:       models.JobStateAvailable,
		MaxAttempts: opts.MaxAttempts,
		ScheduledAt: at,
	}
	if _, ok := s.jobs[id]; !ok {
		s.jobOrder = append(s.jobOrder, id)
	}
	s.jobs[id] = job
	out := *job
	return &out, true, nil
}

func (s *memStore) CancelPending(_ context.Context, kind models.JobKind, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Kind == kind && (j.State == models.JobStateAvailable || j.State == models.JobStateRetryable) {
			j.State = models.JobStateCancelled
			n++
		}
	}
	return n, nil
}

func (s *memStore) ReplayJob(_ context.Context, id string) (*models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || (j.State != models.JobStateDiscarded && j.State != models.JobStateCancelled) {
		return nil, fmt.Errorf("replay job %s: %w", id, db.ErrNotFound)
	}
	j.State = models.JobStateAvailable
	j.Attempt = 0
	out := *j
	return &out, nil
}

func (s *memStore) JobCounts(_ context.Context) ([]models.JobCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[[2]string]int)
	for _, j := range s.jobs {
		counts[[2]string{string(j.Kind), string(j.State)}]++
	}
	var out []models.JobCount
	for k, n := range counts {
		out = append(out, models.JobCount{Kind: models.JobKind(k[0]), State: models.JobState(k[1]), Count: n})
	}
	return out, nil
}

func (s *memStore) ListJobs(_ context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportJob
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if (filter.Kind == "" || j.Kind == filter.Kind) && (filter.State == "" || j.State == filter.State) {
			out = append(out, *j)
		}
	}
	return out, nil
}

// Claim implements queue.Store over the in-memory jobs.
func (s *memStore) Claim(_ context.Context, kinds []models.JobKind, now time.Time) (*models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.ImportJob
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if j.State != models.JobStateAvailable && j.State != models.JobStateRetryable {
			continue
		}
		if !slices.Contains(kinds, j.Kind) || j.ScheduledAt.After(now) {
			continue
		}
		if best == nil || j.ScheduledAt.Before(best.ScheduledAt) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = models.JobStateExecuting
	best.Attempt++
	out := *best
	return &out, nil
}

func (s *memStore) setJobState(id string, state models.JobState, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, db.ErrNotFound)
	}
	j.State = state
	if msg != "" {
		j.LastError = &msg
		j.Errors = append(j.Errors, models.JobError{Attempt: j.Attempt, Error: msg, At: time.Now()})
	}
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, id string) error {
	return s.setJobState(id, models.JobStateCompleted, "")
}

func (s *memStore) DiscardJob(_ context.Context, id, msg string) error {
	return s.setJobState(id, models.JobStateDiscarded, msg)
}

func (s *memStore) CancelJob(_ context.Context, id, msg string) error {
	return s.setJobState(id, models.JobStateCancelled, msg)
}

func (s *memStore) RetryJobAt(_ context.Context, id string, at time.Time, msg string) error {
	if err := s.setJobState(id, models.JobStateRetryable, msg); err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[id].ScheduledAt = at
	s.mu.Unlock()
	return nil
}

func (s *memStore) RequeueExecuting(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.State == models.JobStateExecuting {
			j.State = models.JobStateAvailable
			n++
		}
	}
	return n, nil
}

func (s *memStore) job(id string) models.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return *j
	}
	return models.ImportJob{}
}

// pending returns the available jobs of kind in enqueue order.
func (s *memStore) pending(kind models.JobKind) []models.ImportJob {
	jobs, _ := s.ListJobs(context.Background(), models.JobFilter{Kind: kind, State: models.JobStateAvailable})
	return jobs
}

// finish marks a job completed so its unique key can be reused.
func (s *memStore) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.State = models.JobStateCompleted
	}
}

func (s *memStore) movie(id int) models.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[id]
	if !ok {
		return models.Movie{}
	}
	return cloneMovie(m)
}

// fakeCatalog serves canned discover pages and details.
type fakeCatalog struct {
	mu          sync.Mutex
	pages       map[int]provider.DiscoverResult
	details     map[int]models.MovieCandidate
	imdb        map[string]int
	failDetails map[int]error
	detailCalls map[int]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		pages:       make(map[int]provider.DiscoverResult),
		details:     make(map[int]models.MovieCandidate),
		imdb:        make(map[string]int),
		failDetails: make(map[int]error),
		detailCalls: make(map[int]int),
	}
}

func (c *fakeCatalog) Discover(_ context.Context, page int, _ string) (provider.DiscoverResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.pages[page]
	if !ok {
		return provider.DiscoverResult{}, &provider.Error{Provider: provider.NameTMDb, Op: "/discover/movie", StatusCode: 404, NotFound: true}
	}
	return res, nil
}

func (c *fakeCatalog) MovieDetails(_ context.Context, id int) (models.MovieCandidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailCalls[id]++
	if err := c.failDetails[id]; err != nil {
		return models.MovieCandidate{}, err
	}
	cand, ok := c.details[id]
	if !ok {
		return models.MovieCandidate{}, &provider.Error{Provider: provider.NameTMDb, Op: "/movie", StatusCode: 404, NotFound: true}
	}
	return cand, nil
}

func (c *fakeCatalog) FindByIMDbID(_ context.Context, imdbID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.imdb[imdbID]
	if !ok {
		return 0, &provider.Error{Provider: provider.NameTMDb, Op: "/find", NotFound: true}
	}
	return id, nil
}

func (c *fakeCatalog) add(cand models.MovieCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[cand.TMDbID] = cand
	if cand.IMDbID != nil {
		c.imdb[*cand.IMDbID] = cand.TMDbID
	}
}

type fakeEnricher struct {
	ratings map[string]any
	err     error
}

func (e fakeEnricher) Lookup(context.Context, string) (map[string]any, error) {
	return e.ratings, e.err
}

type fakeLists struct {
	pages map[int]provider.ListPage
}

func (l fakeLists) FetchPage(_ context.Context, _ string, page int) (provider.ListPage, error) {
	p, ok := l.pages[page]
	if !ok {
		return provider.ListPage{Page: page}, nil
	}
	return p, nil
}

type failingLists struct {
	err error
}

func (l failingLists) FetchPage(context.Context, string, int) (provider.ListPage, error) {
	return provider.ListPage{}, l.err
}

type fakeFestivals struct {
	ceremonies map[string]provider.Ceremony
}

func (f fakeFestivals) FetchCeremony(_ context.Context, festival string, year int) (provider.Ceremony, error) {
	c, ok := f.ceremonies[models.FestivalSourceKey(festival, year)]
	if !ok {
		return provider.Ceremony{}, &provider.Error{Provider: provider.NameScrape, Op: "/event", StatusCode: 404, NotFound: true}
	}
	return c, nil
}

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounter) Incr(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func (c *countingCounter) RecordTiming(string, time.Duration) {}

func (c *countingCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func strp(s string) *string     { return &s }
func intp(i int) *int           { return &i }
func floatp(f float64) *float64 { return &f }
