package models

import (
	"time"

	"github.com/raphaelgruber/reelimport/internal/metrics"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RunStatus is the lifecycle of a resumable import scope.
type RunStatus string

const (
	RunStatusIdle     RunStatus = "idle"
	RunStatusRunning  RunStatus = "running"
	RunStatusStopped  RunStatus = "stopped"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ImportState is the durable cursor for one import scope.
// LastPageProcessed only advances after a page's jobs were enqueued.
type ImportState struct {
	ID                surrealmodels.RecordID `json:"id"`
	Scope             string                 `json:"scope"`
	LastPageProcessed int                    `json:"last_page_processed"`
	TotalPages        int                    `json:"total_pages"`
	TotalKnown        int                    `json:"total_known"`
	Status            RunStatus              `json:"status"`
	FailedPages       []int                  `json:"failed_pages,omitempty"`
	Version           int                    `json:"version"`
	Metadata          map[string]any         `json:"metadata,omitempty"`
	Updated           time.Time              `json:"updated,omitempty"`
}

// CursorTotals are the provider-reported totals stored with a cursor advance.
type CursorTotals struct {
	TotalPages int
	TotalKnown int
}

// ImportProgress is the operator-facing snapshot of a scope.
type ImportProgress struct {
	Scope                string    `json:"scope"`
	LastPageProcessed    int       `json:"last_page_processed"`
	TotalPages           int       `json:"total_pages"`
	TotalKnown           int       `json:"total_known"`
	TotalImported        int       `json:"total_imported"`
	CompletionPercentage float64   `json:"completion_percentage"`
	Status               RunStatus `json:"status"`
	FailedPages          []int     `json:"failed_pages,omitempty"`
}

// NewImportProgress derives the snapshot from the cursor and the number of
// movies stored with full status.
func NewImportProgress(st ImportState, imported int) ImportProgress {
	p := ImportProgress{
		Scope:             st.Scope,
		LastPageProcessed: st.LastPageProcessed,
		TotalPages:        st.TotalPages,
		TotalKnown:        st.TotalKnown,
		TotalImported:     imported,
		Status:            st.Status,
		FailedPages:       st.FailedPages,
	}
	if p.Status == "" {
		p.Status = RunStatusIdle
	}
	if st.TotalKnown > 0 {
		pct := float64(imported) / float64(st.TotalKnown) * 100
		if pct > 100 {
			pct = 100
		}
		p.CompletionPercentage = float64(int(pct*100)) / 100
	}
	return p
}

// ProgressReport is the periodic operator snapshot pushed to watchers.
type ProgressReport struct {
	Discovery ImportProgress   `json:"discovery"`
	Secondary []ImportProgress `json:"secondary,omitempty"`
	Jobs      []JobCount       `json:"jobs"`
}

// SkippedImport is the audit row for a candidate the quality gate did not
// accept as full. There is one row per candidate and source: redelivering
// the same candidate overwrites the decision but keeps the first Created.
type SkippedImport struct {
	ID         surrealmodels.RecordID `json:"id,omitempty"`
	EntityKind string                 `json:"entity_kind"`
	ExternalID int                    `json:"external_id"`
	IMDbID     string                 `json:"imdb_id,omitempty"`
	Title      string                 `json:"title"`
	Decision   string                 `json:"decision"`
	Reason     string                 `json:"reason"`
	Source     string                 `json:"source,omitempty"`
	Created    time.Time              `json:"created,omitempty"`
	Updated    time.Time              `json:"updated,omitempty"`
}

// Key identifies the audited candidate, e.g. "movie_20_discovery" or
// "movie_tt0000001_criterion" when only the IMDb id is known.
func (s SkippedImport) Key() string {
	ref := IntKey(s.ExternalID)
	if s.ExternalID == 0 && s.IMDbID != "" {
		ref = s.IMDbID
	}
	source := s.Source
	if source == "" {
		source = "discovery"
	}
	return s.EntityKind + "_" + ref + "_" + source
}

// ImportStats combines store totals with the runtime counters of the server.
type ImportStats struct {
	Movies  MovieCounts       `json:"movies"`
	Jobs    []JobCount        `json:"jobs"`
	Runtime *metrics.Snapshot `json:"runtime,omitempty"`
}
