package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecentNote is one entry of the visit history.
type RecentNote struct {
	NoteID    string    `json:"noteId"`
	NotePath  string    `json:"notePath"`
	VisitedAt time.Time `json:"visitedAt"`
}

// AddRecentNote records a visit. Revisiting a note moves it to the front.
func (db *DB) AddRecentNote(ctx context.Context, noteID, notePath string) error {
	return db.exec(ctx, "add recent note", `
		INSERT INTO recent_notes (note_id, note_path, seq, visited_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM recent_notes), ?)
		ON CONFLICT(note_id) DO UPDATE SET
			note_path  = excluded.note_path,
			seq        = excluded.seq,
			visited_at = excluded.visited_at
	`, noteID, notePath, time.Now().UTC())
}

// RecentNotes returns up to limit visits, newest first.
func (db *DB) RecentNotes(ctx context.Context, limit int) ([]RecentNote, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id, note_path, visited_at
		FROM recent_notes
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent notes: %w", err)
	}
	defer rows.Close()

	var out []RecentNote
	for rows.Next() {
		var r RecentNote
		if err := rows.Scan(&r.NoteID, &r.NotePath, &r.VisitedAt); err != nil {
			return nil, fmt.Errorf("store: scan recent note: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
