package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/arbor/internal/models"
)

// LoadAllNotes returns every stored note, soft-deleted ones included.
func (db *DB) LoadAllNotes(ctx context.Context) ([]models.NoteRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id, title, type, mime, is_protected, is_deleted, date_created, date_modified
		FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load notes: %w", err)
	}
	defer rows.Close()

	var out []models.NoteRow
	for rows.Next() {
		var r models.NoteRow
		if err := rows.Scan(&r.NoteID, &r.Title, &r.Type, &r.Mime, &r.IsProtected, &r.IsDeleted, &r.DateCreated, &r.DateModified); err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadAllBranches returns every stored branch.
func (db *DB) LoadAllBranches(ctx context.Context) ([]models.BranchRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT branch_id, note_id, parent_note_id, note_position, prefix, is_expanded, from_search_note
		FROM branches
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load branches: %w", err)
	}
	defer rows.Close()

	var out []models.BranchRow
	for rows.Next() {
		var r models.BranchRow
		if err := rows.Scan(&r.BranchID, &r.NoteID, &r.ParentNoteID, &r.NotePosition, &r.Prefix, &r.IsExpanded, &r.FromSearchNote); err != nil {
			return nil, fmt.Errorf("store: scan branch: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadAllAttributes returns every stored attribute.
func (db *DB) LoadAllAttributes(ctx context.Context) ([]models.AttributeRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT attribute_id, note_id, type, name, value, position, is_inheritable
		FROM attributes
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load attributes: %w", err)
	}
	defer rows.Close()

	var out []models.AttributeRow
	for rows.Next() {
		var r models.AttributeRow
		if err := rows.Scan(&r.AttributeID, &r.NoteID, &r.Type, &r.Name, &r.Value, &r.Position, &r.IsInheritable); err != nil {
			return nil, fmt.Errorf("store: scan attribute: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertNote inserts or replaces a note row. Zero timestamps are set to now.
func (db *DB) UpsertNote(ctx context.Context, r models.NoteRow) error {
	now := time.Now().UTC()
	if r.DateCreated.IsZero() {
		r.DateCreated = now
	}
	if r.DateModified.IsZero() {
		r.DateModified = now
	}
	return db.exec(ctx, "upsert note", `
		INSERT INTO notes (note_id, title, type, mime, is_protected, is_deleted, date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			title         = excluded.title,
			type          = excluded.type,
			mime          = excluded.mime,
			is_protected  = excluded.is_protected,
			is_deleted    = excluded.is_deleted,
			date_modified = excluded.date_modified
	`, r.NoteID, r.Title, string(r.Type), r.Mime, r.IsProtected, r.IsDeleted, r.DateCreated, r.DateModified)
}

// UpsertBranch inserts or replaces a branch row.
func (db *DB) UpsertBranch(ctx context.Context, r models.BranchRow) error {
	return db.exec(ctx, "upsert branch", `
		INSERT INTO branches (branch_id, note_id, parent_note_id, note_position, prefix, is_expanded, from_search_note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(branch_id) DO UPDATE SET
			note_id          = excluded.note_id,
			parent_note_id   = excluded.parent_note_id,
			note_position    = excluded.note_position,
			prefix           = excluded.prefix,
			is_expanded      = excluded.is_expanded,
			from_search_note = excluded.from_search_note
	`, r.BranchID, r.NoteID, r.ParentNoteID, r.NotePosition, r.Prefix, r.IsExpanded, r.FromSearchNote)
}

// UpsertAttribute inserts or replaces an attribute row.
func (db *DB) UpsertAttribute(ctx context.Context, r models.AttributeRow) error {
	return db.exec(ctx, "upsert attribute", `
		INSERT INTO attributes (attribute_id, note_id, type, name, value, position, is_inheritable)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attribute_id) DO UPDATE SET
			note_id        = excluded.note_id,
			type           = excluded.type,
			name           = excluded.name,
			value          = excluded.value,
			position       = excluded.position,
			is_inheritable = excluded.is_inheritable
	`, r.AttributeID, r.NoteID, string(r.Type), r.Name, r.Value, r.Position, r.IsInheritable)
}

// DeleteNote erases a note with its owned attributes, every branch it
// takes part in, its content and its recent-notes entry. Children left
// without another real parent are erased the same way, in one transaction.
func (db *DB) DeleteNote(ctx context.Context, noteID string) error {
	return db.tx(ctx, "delete note", func(tx *sql.Tx) error {
		seen := map[string]bool{}
		queue := []string{noteID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true

			kids, err := childNoteIDs(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := deleteNoteRows(ctx, tx, id); err != nil {
				return err
			}
			for _, kid := range kids {
				var parents int
				if err := tx.QueryRowContext(ctx,
					`SELECT count(*) FROM branches WHERE note_id = ? AND from_search_note = 0`, kid,
				).Scan(&parents); err != nil {
					return err
				}
				if parents == 0 {
					queue = append(queue, kid)
				}
			}
		}
		return nil
	})
}

func childNoteIDs(ctx context.Context, tx *sql.Tx, parentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT note_id FROM branches WHERE parent_note_id = ?`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteNoteRows(ctx context.Context, tx *sql.Tx, noteID string) error {
	for _, q := range []string{
		`DELETE FROM attributes WHERE note_id = ?`,
		`DELETE FROM branches WHERE note_id = ?1 OR parent_note_id = ?1`,
		`DELETE FROM note_contents WHERE note_id = ?`,
		`DELETE FROM recent_notes WHERE note_id = ?`,
		`DELETE FROM notes WHERE note_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, noteID); err != nil {
			return err
		}
	}
	return ftsDelete(ctx, tx, noteID)
}

// DeleteBranch removes a branch row. Unknown ids are a no-op.
func (db *DB) DeleteBranch(ctx context.Context, branchID string) error {
	return db.exec(ctx, "delete branch", `DELETE FROM branches WHERE branch_id = ?`, branchID)
}

// DeleteAttribute removes an attribute row. Unknown ids are a no-op.
func (db *DB) DeleteAttribute(ctx context.Context, attributeID string) error {
	return db.exec(ctx, "delete attribute", `DELETE FROM attributes WHERE attribute_id = ?`, attributeID)
}

func (db *DB) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	db.touch()
	return nil
}

func (db *DB) tx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(tx); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: %s: commit: %w", op, err)
	}
	db.touch()
	return nil
}

func (db *DB) touch() {
	db.lastWrite.Store(time.Now().UnixNano())
}
