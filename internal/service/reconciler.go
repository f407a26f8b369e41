package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/metrics"
	"github.com/raphaelgruber/reelimport/internal/models"
)

// ReconcileInput is one write against the movie identified by TMDbID or,
// when TMDbID is zero, by IMDbID. The IMDb path can only stamp provenance.
type ReconcileInput struct {
	TMDbID int
	IMDbID string
	Fields models.MovieFields
	Status *models.ImportStatus
	Source *models.SourceStamp
}

// Outcome reports what a reconcile did.
type Outcome struct {
	TMDbID  int
	Created bool
	Status  models.ImportStatus
}

// Reconciler is the only writer of movie rows. Concurrent writers of the
// same movie converge on one row because every write is a single keyed
// upsert; transaction conflicts are retried a few times.
type Reconciler struct {
	store    MovieStore
	counter  Counter
	attempts uint64
	interval time.Duration
}

// NewReconciler creates a reconciler. counter may be nil.
func NewReconciler(store MovieStore, counter Counter) *Reconciler {
	if counter == nil {
		counter = nopCounter{}
	}
	return &Reconciler{store: store, counter: counter, attempts: 3, interval: 50 * time.Millisecond}
}

// Reconcile writes in and returns the resulting identity and status.
// A stamp for an IMDb id with no stored movie returns db.ErrNotFound.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (Outcome, error) {
	start := time.Now()
	defer func() { r.counter.RecordTiming(metrics.OpReconcile, time.Since(start)) }()

	switch {
	case in.TMDbID > 0:
		return r.upsert(ctx, in)
	case in.IMDbID != "":
		if in.Source == nil {
			return Outcome{}, fmt.Errorf("reconcile %s: imdb-only input needs a source", in.IMDbID)
		}
		if !in.Fields.Empty() || in.Status != nil {
			return Outcome{}, fmt.Errorf("reconcile %s: imdb-only input can only stamp a source", in.IMDbID)
		}
		var m *models.Movie
		err := r.retry(ctx, func() error {
			var err error
			m, err = r.store.StampMovieByIMDbID(ctx, in.IMDbID, *in.Source)
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{TMDbID: m.TMDbID, Status: m.ImportStatus}, nil
	default:
		return Outcome{}, errors.New("reconcile: no external id")
	}
}

func (r *Reconciler) upsert(ctx context.Context, in ReconcileInput) (Outcome, error) {
	var (
		m       *models.Movie
		created bool
	)
	err := r.retry(ctx, func() error {
		var err error
		m, created, err = r.store.UpsertMovie(ctx, in.TMDbID, in.Fields, in.Status, in.Source)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{TMDbID: m.TMDbID, Created: created, Status: m.ImportStatus}, nil
}

// AlreadyFull reports whether the movie is stored with full status.
func (r *Reconciler) AlreadyFull(ctx context.Context, tmdbID int) (bool, error) {
	start := time.Now()
	m, err := r.store.GetMovie(ctx, tmdbID)
	r.counter.RecordTiming(metrics.OpStoreRead, time.Since(start))
	if err != nil {
		return false, err
	}
	return m != nil && m.ImportStatus == models.ImportStatusFull, nil
}

func (r *Reconciler) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.attempts), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, db.ErrTransactionConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
