package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/metrics"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	"github.com/raphaelgruber/reelimport/internal/quality"
	"github.com/raphaelgruber/reelimport/internal/queue"
)

// DetailStore is what the detail worker persists besides movies.
type DetailStore interface {
	CreditStore
	RecordSkipped(ctx context.Context, s models.SkippedImport) error
}

// Detail handles movie_detail jobs: fetch, gate, reconcile, then persons,
// credits and collaborations for full movies.
type Detail struct {
	store      DetailStore
	reconciler *Reconciler
	catalog    Catalog
	enricher   Enricher
	gate       *quality.Gate
	policy     *config.PolicyStore
	counter    Counter
}

// DetailDeps are the collaborators of a Detail handler. Enricher and
// Counter are optional.
type DetailDeps struct {
	Store      DetailStore
	Reconciler *Reconciler
	Catalog    Catalog
	Enricher   Enricher
	Gate       *quality.Gate
	Policy     *config.PolicyStore
	Counter    Counter
}

// NewDetail creates a detail handler.
func NewDetail(d DetailDeps) *Detail {
	if d.Counter == nil {
		d.Counter = nopCounter{}
	}
	return &Detail{
		store:      d.Store,
		reconciler: d.Reconciler,
		catalog:    d.Catalog,
		enricher:   d.Enricher,
		gate:       d.Gate,
		policy:     d.Policy,
		counter:    d.Counter,
	}
}

// Handle runs one detail attempt. Fetch failures are returned so the queue
// retries them; gate rejections are audited and complete the job.
func (d *Detail) Handle(ctx context.Context, job models.ImportJob) error {
	p := job.Payload
	stamp := p.Stamp()

	id := p.TMDbID
	if id == 0 && p.IMDbID != "" {
		found, err := d.catalog.FindByIMDbID(ctx, p.IMDbID)
		if errors.Is(err, provider.ErrNotFound) {
			return d.record(ctx, models.SkippedImport{
				EntityKind: "movie",
				IMDbID:     p.IMDbID,
				Decision:   string(quality.Reject),
				Reason:     "not found at primary provider",
				Source:     p.SourceKey,
			})
		}
		if err != nil {
			return err
		}
		id = found
	}
	if id <= 0 {
		return queue.Permanent(errors.New("detail job has neither tmdb_id nor imdb_id"))
	}

	if !p.Force {
		full, err := d.reconciler.AlreadyFull(ctx, id)
		if err != nil {
			return err
		}
		if full {
			if stamp == nil {
				slog.Debug("movie already full, skipping", "tmdb_id", id)
				return nil
			}
			_, err := d.reconciler.Reconcile(ctx, ReconcileInput{TMDbID: id, Source: stamp})
			return err
		}
	}

	cand, err := d.catalog.MovieDetails(ctx, id)
	if err != nil {
		return err
	}

	decision := d.gate.EvaluateMovie(cand)
	switch decision.Outcome {
	case quality.Reject:
		d.counter.Incr(metrics.CounterMovieReject)
		return d.audit(ctx, "movie", cand.TMDbID, cand.Title, string(quality.Reject), decision.Reason, p.SourceKey)

	case quality.Soft:
		status := models.ImportStatusSoft
		if _, err := d.reconciler.Reconcile(ctx, ReconcileInput{
			TMDbID: cand.TMDbID,
			Fields: cand.Fields(),
			Status: &status,
			Source: stamp,
		}); err != nil {
			return err
		}
		d.counter.Incr(metrics.CounterMovieSoft)
		return d.audit(ctx, "movie", cand.TMDbID, cand.Title, string(quality.Soft), decision.Reason, p.SourceKey)
	}

	// The row keeps its current status until credits are written, so a
	// retry after a failed credit write is not short-circuited as full.
	fields := cand.Fields()
	fields.ExternalRatings = d.enrich(ctx, cand)
	out, err := d.reconciler.Reconcile(ctx, ReconcileInput{
		TMDbID: cand.TMDbID,
		Fields: fields,
		Source: stamp,
	})
	if err != nil {
		return err
	}
	if err := d.ingestCredits(ctx, cand); err != nil {
		return fmt.Errorf("credits for %d: %w", cand.TMDbID, err)
	}
	status := models.ImportStatusFull
	if _, err := d.reconciler.Reconcile(ctx, ReconcileInput{TMDbID: cand.TMDbID, Status: &status}); err != nil {
		return fmt.Errorf("promote %d: %w", cand.TMDbID, err)
	}
	d.counter.Incr(metrics.CounterMovieFull)
	slog.Debug("imported movie", "tmdb_id", cand.TMDbID, "title", cand.Title, "created", out.Created)
	return nil
}

// enrich fetches secondary ratings. Failures only cost the ratings.
func (d *Detail) enrich(ctx context.Context, cand models.MovieCandidate) map[string]any {
	if d.enricher == nil || cand.IMDbID == nil || *cand.IMDbID == "" {
		return nil
	}
	ratings, err := d.enricher.Lookup(ctx, *cand.IMDbID)
	if err != nil {
		if ctx.Err() == nil {
			d.counter.Incr(metrics.CounterEnrichFailed)
			slog.Warn("enrichment failed", "tmdb_id", cand.TMDbID, "imdb_id", *cand.IMDbID, "error", err)
		}
		return nil
	}
	return ratings
}

// ingestCredits gates every credited person, then writes persons, their
// credits and the movie's collaboration set. Significant members are key
// roles and are never rejected.
func (d *Detail) ingestCredits(ctx context.Context, cand models.MovieCandidate) error {
	pol := d.policy.Load().Collaboration
	keyRoles := make(map[int]bool)
	for _, id := range SignificantMembers(cand, pol) {
		keyRoles[id] = true
	}

	kept := make(map[int]bool)
	evaluated := make(map[int]bool)
	var persons []models.PersonWrite
	consider := func(pc models.PersonCandidate) error {
		if pc.TMDbID <= 0 || evaluated[pc.TMDbID] {
			return nil
		}
		evaluated[pc.TMDbID] = true
		dec := d.gate.EvaluatePerson(pc, keyRoles[pc.TMDbID])
		if dec.Outcome == quality.Reject {
			d.counter.Incr(metrics.CounterPersonReject)
			return d.audit(ctx, "person", pc.TMDbID, pc.Name, string(quality.Reject), dec.Reason, "movie_"+models.IntKey(cand.TMDbID))
		}
		kept[pc.TMDbID] = true
		persons = append(persons, models.PersonWrite{
			TMDbID:             pc.TMDbID,
			Name:               pc.Name,
			Popularity:         pc.Popularity,
			ProfilePath:        pc.ProfilePath,
			KnownForDepartment: pc.KnownForDepartment,
			ImportStatus:       dec.Status(),
		})
		return nil
	}
	for _, m := range cand.Cast {
		if err := consider(m.PersonCandidate); err != nil {
			return err
		}
	}
	for _, m := range cand.Crew {
		if err := consider(m.PersonCandidate); err != nil {
			return err
		}
	}
	if err := d.store.UpsertPersons(ctx, persons); err != nil {
		return err
	}

	var credits []models.Credit
	for _, m := range cand.Cast {
		if !kept[m.TMDbID] || m.CreditID == "" {
			continue
		}
		order := m.Order
		credits = append(credits, models.Credit{
			CreditID:     m.CreditID,
			MovieTMDbID:  cand.TMDbID,
			PersonTMDbID: m.TMDbID,
			Kind:         models.CreditKindCast,
			Character:    optional(m.Character),
			BillingOrder: &order,
		})
	}
	for _, m := range cand.Crew {
		if !kept[m.TMDbID] || m.CreditID == "" {
			continue
		}
		credits = append(credits, models.Credit{
			CreditID:     m.CreditID,
			MovieTMDbID:  cand.TMDbID,
			PersonTMDbID: m.TMDbID,
			Kind:         models.CreditKindCrew,
			Department:   optional(m.Department),
			Job:          optional(m.Job),
		})
	}
	if err := d.store.UpsertCredits(ctx, credits); err != nil {
		return err
	}

	collabs := BuildCollaborations(cand, pol, func(id int) bool { return kept[id] })
	return d.store.ReplaceCollaborations(ctx, cand.TMDbID, collabs)
}

func (d *Detail) audit(ctx context.Context, kind string, id int, title, decision, reason, source string) error {
	return d.record(ctx, models.SkippedImport{
		EntityKind: kind,
		ExternalID: id,
		Title:      title,
		Decision:   decision,
		Reason:     reason,
		Source:     source,
	})
}

func (d *Detail) record(ctx context.Context, row models.SkippedImport) error {
	if err := d.store.RecordSkipped(ctx, row); err != nil {
		return fmt.Errorf("audit %s: %w", row.Key(), err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
