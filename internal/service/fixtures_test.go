package service

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/quality"
)

func imdbFor(id int) string {
	return fmt.Sprintf("tt%07d", id)
}

func person(id int, popularity float64) models.PersonCandidate {
	return models.PersonCandidate{
		TMDbID:     id,
		Name:       fmt.Sprintf("Person %d", id),
		Popularity: floatp(popularity),
	}
}

// fullCandidate passes the default gate. Its credits are two billed actors,
// a director and a grip whose popularity is below the person bar.
func fullCandidate(id int) models.MovieCandidate {
	return models.MovieCandidate{
		TMDbID:      id,
		IMDbID:      strp(imdbFor(id)),
		Title:       fmt.Sprintf("Movie %d", id),
		ReleaseDate: strp("2024-05-01"),
		PosterPath:  strp("/poster.jpg"),
		VoteCount:   intp(250),
		Popularity:  floatp(12.5),
		Cast: []models.CastMember{
			{PersonCandidate: person(id*10+1, 8), CreditID: fmt.Sprintf("cr_%d_1", id), Character: "Lead", Order: 0},
			{PersonCandidate: person(id*10+2, 3), CreditID: fmt.Sprintf("cr_%d_2", id), Character: "Sidekick", Order: 1},
		},
		Crew: []models.CrewMember{
			{PersonCandidate: person(id*10+3, 2), CreditID: fmt.Sprintf("cr_%d_3", id), Department: "Directing", Job: "Director"},
			{PersonCandidate: person(id*10+4, 0.1), CreditID: fmt.Sprintf("cr_%d_4", id), Department: "Crew", Job: "Grip"},
		},
	}
}

// softCandidate has a title but no poster and no votes.
func softCandidate(id int) models.MovieCandidate {
	return models.MovieCandidate{
		TMDbID:      id,
		IMDbID:      strp(imdbFor(id)),
		Title:       fmt.Sprintf("Obscure %d", id),
		ReleaseDate: strp("1999-01-01"),
		VoteCount:   intp(0),
		Popularity:  floatp(0.2),
	}
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.Discovery.PageDelay = 0
	p.Discovery.ListPageDelay = 0
	return p
}

type harness struct {
	store      *memStore
	catalog    *fakeCatalog
	counter    *countingCounter
	gate       *quality.Gate
	policy     *config.PolicyStore
	reconciler *Reconciler
	detail     *Detail
	discovery  *Discovery
	controller *Controller
	now        time.Time
}

func newHarness() *harness {
	h := &harness{
		store:   newMemStore(),
		catalog: newFakeCatalog(),
		counter: &countingCounter{},
		policy:  config.StaticPolicy(testPolicy()),
		now:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	h.gate = quality.NewGate(h.policy.Load().Quality)
	h.reconciler = NewReconciler(h.store, h.counter)
	h.reconciler.interval = time.Millisecond
	h.detail = NewDetail(DetailDeps{
		Store:      h.store,
		Reconciler: h.reconciler,
		Catalog:    h.catalog,
		Enricher:   fakeEnricher{ratings: map[string]any{"imdb_rating": 7.9}},
		Gate:       h.gate,
		Policy:     h.policy,
		Counter:    h.counter,
	})
	h.discovery = NewDiscovery(h.store, h.catalog, h.policy)
	h.discovery.now = func() time.Time { return h.now }
	h.controller = NewController(h.store, h.policy, h.gate)
	return h
}

func (h *harness) secondary(lists ListScraper, festivals CeremonyScraper) *Secondary {
	s := NewSecondary(h.store, h.reconciler, lists, festivals, h.policy)
	s.now = func() time.Time { return h.now }
	return s
}

func detailJob(p models.JobPayload) models.ImportJob {
	return models.ImportJob{Kind: models.JobKindMovieDetail, Payload: p, Attempt: 1, MaxAttempts: 3}
}

func discoveryJob(page int) models.ImportJob {
	return models.ImportJob{Kind: models.JobKindDiscoveryPage, Payload: models.JobPayload{Page: page}, Attempt: 1, MaxAttempts: 5}
}
