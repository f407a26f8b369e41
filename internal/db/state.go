package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// GetImportState returns the cursor for scope, or nil when none exists.
func (c *Client) GetImportState(ctx context.Context, scope string) (*models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		SELECT * FROM type::record("import_state", $scope)
	`, map[string]any{"scope": scope})
	if err != nil {
		return nil, fmt.Errorf("get import state: %w", err)
	}
	return first(results), nil
}

// EnsureImportState returns the cursor for scope, creating an idle one at
// page 0 when missing. Existing cursors are returned unchanged.
func (c *Client) EnsureImportState(ctx context.Context, scope string) (*models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		UPSERT type::record("import_state", $scope) SET
			scope = $scope,
			last_page_processed = last_page_processed ?? 0,
			status = status ?? "idle",
			version = version ?? 0
		RETURN AFTER
	`, map[string]any{"scope": scope})
	if err != nil {
		return nil, fmt.Errorf("ensure import state: %w", wrapQueryError(err))
	}
	st := first(results)
	if st == nil {
		return nil, fmt.Errorf("ensure import state %s: empty result", scope)
	}
	return st, nil
}

// AdvanceCursor records page as processed. It succeeds only when the stored
// last page is page-1, so two workers can never both advance the same page.
// Returns ErrCursorConflict when the cursor is elsewhere and ErrNotFound when
// the scope has no cursor.
func (c *Client) AdvanceCursor(ctx context.Context, scope string, page int, totals models.CursorTotals) (*models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		UPDATE type::record("import_state", $scope) SET
			last_page_processed = $page,
			total_pages = IF $total_pages > 0 THEN $total_pages ELSE total_pages END,
			total_known = IF $total_known > 0 THEN $total_known ELSE total_known END,
			failed_pages = array::complement(failed_pages ?? [], [$page]),
			version += 1,
			updated = time::now()
		WHERE last_page_processed = $page - 1
		RETURN AFTER
	`, map[string]any{
		"scope":       scope,
		"page":        page,
		"total_pages": totals.TotalPages,
		"total_known": totals.TotalKnown,
	})
	if err != nil {
		return nil, fmt.Errorf("advance cursor: %w", wrapQueryError(err))
	}
	if st := first(results); st != nil {
		return st, nil
	}

	current, err := c.GetImportState(ctx, scope)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("advance cursor %s: %w", scope, ErrNotFound)
	}
	return nil, fmt.Errorf("advance cursor %s to page %d (at %d): %w",
		scope, page, current.LastPageProcessed, ErrCursorConflict)
}

// SetImportStatus changes the run status of scope, creating the cursor if needed.
func (c *Client) SetImportStatus(ctx context.Context, scope string, status models.RunStatus) (*models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		UPSERT type::record("import_state", $scope) SET
			scope = $scope,
			status = $status,
			version = (version ?? 0) + 1,
			updated = time::now()
		RETURN AFTER
	`, map[string]any{"scope": scope, "status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("set import status: %w", wrapQueryError(err))
	}
	return first(results), nil
}

// SetImportMetadata replaces the free-form metadata of scope.
func (c *Client) SetImportMetadata(ctx context.Context, scope string, meta map[string]any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("import_state", $scope) SET
			scope = $scope,
			metadata = $meta,
			updated = time::now()
	`, map[string]any{"scope": scope, "meta": meta})
	if err != nil {
		return fmt.Errorf("set import metadata: %w", wrapQueryError(err))
	}
	return nil
}

// RecordFailedPage marks page as permanently failed and the scope as failed.
// The cursor does not move.
func (c *Client) RecordFailedPage(ctx context.Context, scope string, page int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("import_state", $scope) SET
			scope = $scope,
			failed_pages = array::union(failed_pages ?? [], [$page]),
			status = "failed",
			version = (version ?? 0) + 1,
			updated = time::now()
	`, map[string]any{"scope": scope, "page": page})
	if err != nil {
		return fmt.Errorf("record failed page: %w", wrapQueryError(err))
	}
	return nil
}

// ResetImportState rewinds scope to page 0 with the given status.
func (c *Client) ResetImportState(ctx context.Context, scope string, status models.RunStatus) (*models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		UPSERT type::record("import_state", $scope) SET
			scope = $scope,
			last_page_processed = 0,
			total_pages = 0,
			total_known = 0,
			failed_pages = [],
			status = $status,
			version = (version ?? 0) + 1,
			updated = time::now()
		RETURN AFTER
	`, map[string]any{"scope": scope, "status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("reset import state: %w", wrapQueryError(err))
	}
	return first(results), nil
}

// ListImportStates returns the cursors whose scope starts with prefix.
func (c *Client) ListImportStates(ctx context.Context, prefix string) ([]models.ImportState, error) {
	results, err := surrealdb.Query[[]models.ImportState](ctx, c.db, `
		SELECT * FROM import_state WHERE string::starts_with(scope, $prefix) ORDER BY scope
	`, map[string]any{"prefix": prefix})
	if err != nil {
		return nil, fmt.Errorf("list import states: %w", err)
	}
	return rows(results), nil
}
