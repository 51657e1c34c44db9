//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_contents_fts USING fts5(
			note_id UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, noteID, content string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_contents_fts WHERE note_id = ?`, noteID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO note_contents_fts (note_id, content) VALUES (?, ?)`, noteID, content); err != nil {
		return fmt.Errorf("upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, noteID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM note_contents_fts WHERE note_id = ?`, noteID)
	return err
}

// SearchContent returns ids of notes whose content contains a word starting
// with token, best FTS rank first.
func (db *DB) SearchContent(ctx context.Context, token string, limit int) ([]string, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	match := `"` + strings.ReplaceAll(token, `"`, `""`) + `"*`
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id
		FROM note_contents_fts
		WHERE note_contents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search content: %w", err)
	}
	return scanIDs(rows)
}
