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
	"github.com/raphaelgruber/reelimport/internal/queue"
)

// DiscoveryStore is what the discovery crawl persists.
type DiscoveryStore interface {
	StateStore
	Enqueue(ctx context.Context, kind models.JobKind, payload models.JobPayload, opts models.EnqueueOptions) (*models.ImportJob, bool, error)
}

// Discovery handles discovery_page jobs. Each page enqueues one detail job
// per listed movie, advances the cursor and schedules the next page, so
// the crawl is a chain of jobs that survives restarts.
type Discovery struct {
	store   DiscoveryStore
	catalog Catalog
	policy  *config.PolicyStore
	now     func() time.Time
}

// NewDiscovery creates a discovery handler.
func NewDiscovery(store DiscoveryStore, catalog Catalog, policy *config.PolicyStore) *Discovery {
	return &Discovery{store: store, catalog: catalog, policy: policy, now: time.Now}
}

// Handle processes one page. A page at or behind the cursor is a duplicate
// delivery and only makes sure the next page is queued.
func (d *Discovery) Handle(ctx context.Context, job models.ImportJob) error {
	page := job.Payload.Page
	if page < 1 {
		return queue.Permanent(fmt.Errorf("invalid discovery page %d", page))
	}

	st, err := d.store.EnsureImportState(ctx, DiscoveryScope)
	if err != nil {
		return err
	}
	if st.Status == models.RunStatusStopped {
		return queue.Cancel(fmt.Errorf("discovery stopped before page %d", page))
	}
	if page <= st.LastPageProcessed {
		slog.Debug("discovery page already processed", "page", page, "cursor", st.LastPageProcessed)
		if page == st.LastPageProcessed && st.Status == models.RunStatusRunning {
			return d.scheduleNext(ctx, page)
		}
		return nil
	}
	if page > st.LastPageProcessed+1 {
		// Pages are chained, so a cursor this far behind was rewound by a restart.
		return queue.Cancel(fmt.Errorf("%w: discovery page %d with cursor rewound to %d",
			db.ErrCursorConflict, page, st.LastPageProcessed))
	}

	pol := d.policy.Load()
	res, err := d.catalog.Discover(ctx, page, pol.Discovery.SortBy)
	if err != nil {
		return err
	}

	attempts := pol.Queue.Attempts(models.JobKindMovieDetail)
	queued := 0
	for _, id := range res.IDs {
		_, inserted, err := d.store.Enqueue(ctx, models.JobKindMovieDetail,
			models.JobPayload{TMDbID: id},
			models.EnqueueOptions{UniqueKey: DetailJobKey(id), MaxAttempts: attempts})
		if err != nil {
			return fmt.Errorf("enqueue detail %d: %w", id, err)
		}
		if inserted {
			queued++
		}
	}

	totalPages := min(res.TotalPages, pol.Discovery.MaxPages)
	totalKnown := res.TotalResults
	if res.TotalPages > totalPages && res.TotalPages > 0 {
		totalKnown = res.TotalResults * totalPages / res.TotalPages
	}
	next, err := d.store.AdvanceCursor(ctx, DiscoveryScope, page,
		models.CursorTotals{TotalPages: totalPages, TotalKnown: totalKnown})
	if errors.Is(err, db.ErrCursorConflict) {
		return cursorMoved(ctx, d.store, DiscoveryScope, page, err)
	}
	if err != nil {
		return err
	}

	slog.Info("discovery page processed",
		"page", page, "total_pages", next.TotalPages, "movies", len(res.IDs), "queued", queued)

	if page >= totalPages || len(res.IDs) == 0 {
		if _, err := d.store.SetImportStatus(ctx, DiscoveryScope, models.RunStatusComplete); err != nil {
			return err
		}
		slog.Info("discovery complete", "pages", page)
		return nil
	}
	return d.scheduleNext(ctx, page)
}

func (d *Discovery) scheduleNext(ctx context.Context, page int) error {
	pol := d.policy.Load()
	_, _, err := d.store.Enqueue(ctx, models.JobKindDiscoveryPage,
		models.JobPayload{Page: page + 1},
		models.EnqueueOptions{
			UniqueKey:   DiscoveryJobKey(page + 1),
			ScheduledAt: d.now().Add(pol.Discovery.PageDelay),
			MaxAttempts: pol.Queue.Attempts(models.JobKindDiscoveryPage),
		})
	if err != nil {
		return fmt.Errorf("schedule discovery page %d: %w", page+1, err)
	}
	return nil
}

// cursorMoved classifies a failed advance of scope to page. Another
// delivery of the page winning the race is success; a cursor rewound by a
// restart cancels the stale page. Anything else breaks the
// enqueue-then-advance order and is discarded.
func cursorMoved(ctx context.Context, store StateStore, scope string, page int, err error) error {
	cur, gerr := store.GetImportState(ctx, scope)
	if gerr != nil {
		return fmt.Errorf("%w (reread failed: %w)", err, gerr)
	}
	switch {
	case cur == nil:
		return queue.Permanent(err)
	case cur.LastPageProcessed >= page:
		return nil
	case cur.LastPageProcessed < page-1:
		slog.Warn("cursor rewound while page was in flight", "scope", scope, "page", page, "cursor", cur.LastPageProcessed)
		return queue.Cancel(err)
	}
	return queue.Permanent(err)
}

// OnDiscard marks the page failed so the operator sees it; the cursor stays
// put and a resume retries the page.
func (d *Discovery) OnDiscard(ctx context.Context, job models.ImportJob, err error) {
	if errors.Is(err, db.ErrCursorConflict) {
		slog.Error("discovery cursor conflict", "page", job.Payload.Page, "error", err)
	}
	if rerr := d.store.RecordFailedPage(ctx, DiscoveryScope, job.Payload.Page); rerr != nil {
		slog.Error("failed to record failed discovery page", "page", job.Payload.Page, "error", rerr)
	}
}
