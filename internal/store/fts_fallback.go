//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; content search uses LIKE on note_contents.content.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchContent returns ids of notes whose content contains token
// (case-insensitive for ASCII), ordered by note id.
func (db *DB) SearchContent(ctx context.Context, token string, limit int) ([]string, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	like := "%" + likeEscaper.Replace(token) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id
		FROM note_contents
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY note_id
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search content: %w", err)
	}
	return scanIDs(rows)
}
