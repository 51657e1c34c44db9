package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/arbor/internal/apperr"
)

// SetNoteContent stores the note body and refreshes its full-text entry.
func (db *DB) SetNoteContent(ctx context.Context, noteID, content string) error {
	return db.tx(ctx, "set content", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO note_contents (note_id, content) VALUES (?, ?)
			ON CONFLICT(note_id) DO UPDATE SET content = excluded.content
		`, noteID, content)
		if err != nil {
			return err
		}
		return ftsUpsert(ctx, tx, noteID, content)
	})
}

// NoteContent returns the stored body, or apperr.ErrNotFound.
func (db *DB) NoteContent(ctx context.Context, noteID string) (string, error) {
	var content string
	err := db.conn.QueryRowContext(ctx, `SELECT content FROM note_contents WHERE note_id = ?`, noteID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: content %q: %w", noteID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: content: %w", err)
	}
	return content, nil
}
