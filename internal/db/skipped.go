package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// RecordSkipped writes the audit row of one candidate. Rows are keyed by
// SkippedImport.Key, so a redelivered candidate updates its row in place
// and created keeps the time of the first decision.
func (c *Client) RecordSkipped(ctx context.Context, s models.SkippedImport) error {
	vars := map[string]any{
		"key":         s.Key(),
		"entity_kind": s.EntityKind,
		"external_id": s.ExternalID,
		"title":       s.Title,
		"decision":    s.Decision,
		"reason":      s.Reason,
	}
	var optional []string
	if s.Source != "" {
		optional = append(optional, "source = $source")
		vars["source"] = s.Source
	}
	if s.IMDbID != "" {
		optional = append(optional, "imdb_id = $imdb_id")
		vars["imdb_id"] = s.IMDbID
	}
	extra := ""
	if len(optional) > 0 {
		extra = ",\n\t\t\t" + strings.Join(optional, ",\n\t\t\t")
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("skipped_import", $key) SET
			entity_kind = $entity_kind,
			external_id = $external_id,
			title = $title,
			decision = $decision,
			reason = $reason`+extra+`,
			created = created ?? time::now(),
			updated = time::now()
	`, vars)
	if err != nil {
		return fmt.Errorf("record skipped %s: %w", s.Key(), wrapQueryError(err))
	}
	return nil
}

// ListSkipped returns the newest audit rows, optionally filtered by decision.
func (c *Client) ListSkipped(ctx context.Context, decision string, limit int) ([]models.SkippedImport, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	vars := map[string]any{"limit": limit}
	if decision != "" {
		where = "WHERE decision = $decision"
		vars["decision"] = decision
	}
	sql := fmt.Sprintf(`SELECT * FROM skipped_import %s ORDER BY created DESC LIMIT $limit`, where)
	results, err := surrealdb.Query[[]models.SkippedImport](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list skipped: %w", err)
	}
	return rows(results), nil
}

// Ping checks that the database answers queries.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, `RETURN true`, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
