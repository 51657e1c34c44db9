package store

import (
	"context"

	"github.com/starford/arbor/internal/models"
)

// Repository is the set of entity-store operations the rest of the service
// depends on. Consumers take this interface so tests can swap in fakes.
type Repository interface {
	LoadAllNotes(ctx context.Context) ([]models.NoteRow, error)
	LoadAllBranches(ctx context.Context) ([]models.BranchRow, error)
	LoadAllAttributes(ctx context.Context) ([]models.AttributeRow, error)

	UpsertNote(ctx context.Context, row models.NoteRow) error
	UpsertBranch(ctx context.Context, row models.BranchRow) error
	UpsertAttribute(ctx context.Context, row models.AttributeRow) error
	DeleteNote(ctx context.Context, noteID string) error
	DeleteBranch(ctx context.Context, branchID string) error
	DeleteAttribute(ctx context.Context, attributeID string) error

	SetNoteContent(ctx context.Context, noteID, content string) error
	NoteContent(ctx context.Context, noteID string) (string, error)
	SearchContent(ctx context.Context, token string, limit int) ([]string, error)

	AddRecentNote(ctx context.Context, noteID, notePath string) error
	RecentNotes(ctx context.Context, limit int) ([]RecentNote, error)

	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
