package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	"github.com/raphaelgruber/reelimport/internal/queue"
)

// Secondary handles canonical list pages and festival ceremonies. Both only
// add provenance to movies; a referenced movie that is not stored yet gets
// a detail job carrying the provenance with it.
type Secondary struct {
	store      DiscoveryStore
	reconciler *Reconciler
	lists      ListScraper
	festivals  CeremonyScraper
	policy     *config.PolicyStore
	now        func() time.Time
}

// NewSecondary creates the secondary import handler.
func NewSecondary(store DiscoveryStore, reconciler *Reconciler, lists ListScraper, festivals CeremonyScraper, policy *config.PolicyStore) *Secondary {
	return &Secondary{
		store:      store,
		reconciler: reconciler,
		lists:      lists,
		festivals:  festivals,
		policy:     policy,
		now:        time.Now,
	}
}

// Handle dispatches on the job kind.
func (s *Secondary) Handle(ctx context.Context, job models.ImportJob) error {
	switch job.Kind {
	case models.JobKindListPage:
		return s.handleListPage(ctx, job.Payload)
	case models.JobKindCeremony:
		return s.handleCeremony(ctx, job.Payload)
	default:
		return queue.Permanent(fmt.Errorf("secondary import cannot handle %s", job.Kind))
	}
}

func (s *Secondary) handleListPage(ctx context.Context, p models.JobPayload) error {
	if !models.ValidSourceKey(p.ListKey) || p.ListID == "" || p.Page < 1 {
		return queue.Permanent(fmt.Errorf("invalid list job %q/%q page %d", p.ListKey, p.ListID, p.Page))
	}
	scope := models.ListScope(p.ListKey)

	st, err := s.store.EnsureImportState(ctx, scope)
	if err != nil {
		return err
	}
	if st.Status == models.RunStatusStopped {
		return queue.Cancel(fmt.Errorf("list %s stopped", p.ListKey))
	}
	if p.Page <= st.LastPageProcessed {
		if p.Page == st.LastPageProcessed && st.Status == models.RunStatusRunning {
			return s.scheduleListPage(ctx, p, p.Page+1)
		}
		return nil
	}
	if p.Page > st.LastPageProcessed+1 {
		// Pages are chained, so a cursor this far behind was rewound by a restart.
		return queue.Cancel(fmt.Errorf("%w: list %s page %d with cursor rewound to %d",
			db.ErrCursorConflict, p.ListKey, p.Page, st.LastPageProcessed))
	}

	lp, err := s.lists.FetchPage(ctx, p.ListID, p.Page)
	if err != nil {
		return err
	}

	stamped, referenced := 0, 0
	for _, e := range lp.Entries {
		stamp := models.SourceStamp{Key: p.ListKey, Meta: map[string]any{
			"list_id":  p.ListID,
			"position": e.Position,
			"page":     p.Page,
			"title":    e.Title,
		}}
		ok, err := s.stampOrReference(ctx, e.IMDbID, stamp)
		if err != nil {
			return err
		}
		if ok {
			stamped++
		} else {
			referenced++
		}
	}

	if _, err := s.store.AdvanceCursor(ctx, scope, p.Page, models.CursorTotals{}); err != nil {
		if errors.Is(err, db.ErrCursorConflict) {
			return cursorMoved(ctx, s.store, scope, p.Page, err)
		}
		return err
	}
	slog.Info("list page processed", "list", p.ListKey, "page", p.Page,
		"entries", len(lp.Entries), "stamped", stamped, "referenced", referenced)

	if lp.HasNext && len(lp.Entries) > 0 {
		return s.scheduleListPage(ctx, p, p.Page+1)
	}
	if _, err := s.store.SetImportStatus(ctx, scope, models.RunStatusComplete); err != nil {
		return err
	}
	slog.Info("list import complete", "list", p.ListKey, "pages", p.Page)
	return nil
}

func (s *Secondary) scheduleListPage(ctx context.Context, p models.JobPayload, page int) error {
	pol := s.policy.Load()
	_, _, err := s.store.Enqueue(ctx, models.JobKindListPage,
		models.JobPayload{Page: page, ListKey: p.ListKey, ListID: p.ListID},
		models.EnqueueOptions{
			UniqueKey:   ListJobKey(p.ListKey, page),
			ScheduledAt: s.now().Add(pol.Discovery.ListPageDelay),
			MaxAttempts: pol.Queue.Attempts(models.JobKindListPage),
		})
	if err != nil {
		return fmt.Errorf("schedule list %s page %d: %w", p.ListKey, page, err)
	}
	return nil
}

// OnDiscard records the failed list page, or fails the ceremony scope, so
// the operator sees it. A resume or a new import retries from the cursor.
func (s *Secondary) OnDiscard(ctx context.Context, job models.ImportJob, err error) {
	p := job.Payload
	switch job.Kind {
	case models.JobKindListPage:
		if !models.ValidSourceKey(p.ListKey) {
			return
		}
		if rerr := s.store.RecordFailedPage(ctx, models.ListScope(p.ListKey), p.Page); rerr != nil {
			slog.Error("failed to record failed list page", "list", p.ListKey, "page", p.Page, "error", rerr)
		}
	case models.JobKindCeremony:
		if p.Festival == "" || p.Year <= 0 {
			return
		}
		scope := models.FestivalScope(p.Festival, p.Year)
		if rerr := s.store.SetImportMetadata(ctx, scope, map[string]any{
			"festival": p.Festival,
			"year":     p.Year,
			"error":    err.Error(),
		}); rerr != nil {
			slog.Error("failed to record ceremony error", "festival", p.Festival, "year", p.Year, "error", rerr)
		}
		if _, rerr := s.store.SetImportStatus(ctx, scope, models.RunStatusFailed); rerr != nil {
			slog.Error("failed to mark ceremony failed", "festival", p.Festival, "year", p.Year, "error", rerr)
		}
	}
}

type filmNominations struct {
	imdbID     string
	title      string
	categories []string
	won        []string
}

func (s *Secondary) handleCeremony(ctx context.Context, p models.JobPayload) error {
	if p.Festival == "" || p.Year <= 0 {
		return queue.Permanent(fmt.Errorf("invalid ceremony job %q %d", p.Festival, p.Year))
	}
	key := models.FestivalSourceKey(p.Festival, p.Year)
	if !models.ValidSourceKey(key) {
		return queue.Permanent(fmt.Errorf("invalid festival key %q", key))
	}
	scope := models.FestivalScope(p.Festival, p.Year)

	st, err := s.store.EnsureImportState(ctx, scope)
	if err != nil {
		return err
	}
	if st.Status == models.RunStatusStopped {
		return queue.Cancel(fmt.Errorf("festival %s stopped", key))
	}

	cer, err := s.festivals.FetchCeremony(ctx, p.Festival, p.Year)
	if err != nil {
		return err
	}

	films := groupNominations(cer.Nominations)
	for _, f := range films {
		stamp := models.SourceStamp{Key: key, Meta: map[string]any{
			"festival":   p.Festival,
			"year":       p.Year,
			"category":   f.categories[0],
			"categories": f.categories,
			"winner":     len(f.won) > 0,
		}}
		if len(f.won) > 0 {
			stamp.Meta["won_categories"] = f.won
		}
		if _, err := s.stampOrReference(ctx, f.imdbID, stamp); err != nil {
			return err
		}
	}

	if err := s.store.SetImportMetadata(ctx, scope, map[string]any{
		"festival":    p.Festival,
		"year":        p.Year,
		"films":       len(films),
		"nominations": len(cer.Nominations),
	}); err != nil {
		return err
	}
	if _, err := s.store.SetImportStatus(ctx, scope, models.RunStatusComplete); err != nil {
		return err
	}
	slog.Info("ceremony imported", "festival", p.Festival, "year", p.Year,
		"films", len(films), "nominations", len(cer.Nominations))
	return nil
}

// groupNominations merges the nominations of each film in page order.
func groupNominations(noms []provider.Nomination) []*filmNominations {
	byID := make(map[string]*filmNominations)
	var films []*filmNominations
	for _, n := range noms {
		f, ok := byID[n.IMDbID]
		if !ok {
			f = &filmNominations{imdbID: n.IMDbID, title: n.Title}
			byID[n.IMDbID] = f
			films = append(films, f)
		}
		f.categories = append(f.categories, n.Category)
		if n.Winner {
			f.won = append(f.won, n.Category)
		}
	}
	return films
}

// stampOrReference stamps the stored movie with the source. When the movie
// is unknown it enqueues a detail job carrying the stamp and returns false.
func (s *Secondary) stampOrReference(ctx context.Context, imdbID string, stamp models.SourceStamp) (bool, error) {
	_, err := s.reconciler.Reconcile(ctx, ReconcileInput{IMDbID: imdbID, Source: &stamp})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	pol := s.policy.Load()
	_, _, err = s.store.Enqueue(ctx, models.JobKindMovieDetail,
		models.JobPayload{IMDbID: imdbID, SourceKey: stamp.Key, SourceMeta: stamp.Meta},
		models.EnqueueOptions{
			UniqueKey:   ReferencedDetailJobKey(imdbID, stamp.Key),
			MaxAttempts: pol.Queue.Attempts(models.JobKindMovieDetail),
		})
	if err != nil {
		return false, fmt.Errorf("enqueue detail for %s: %w", imdbID, err)
	}
	return false, nil
}
