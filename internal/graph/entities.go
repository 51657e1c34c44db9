package graph

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/models"
)

// Well-known note ids.
const (
	RootID       = "root"
	HiddenRootID = "_hidden"
)

// Relation names whose targets contribute their attributes to the owner.
const (
	RelationTemplate = "template"
	RelationInherit  = "inherit"
)

// Note is the cached form of a notes row.
type Note struct {
	ID           string
	Title        string
	Type         models.NoteType
	Mime         string
	IsProtected  bool
	IsDeleted    bool
	DateCreated  time.Time
	DateModified time.Time
}

// DisplayTitle is the title shown to users; protected notes are masked.
func (n Note) DisplayTitle() string {
	if n.IsProtected {
		return "[protected]"
	}
	return n.Title
}

// Branch is a parent→child edge.
type Branch struct {
	ID             string
	NoteID         string
	ParentNoteID   string
	Position       int
	Prefix         string
	IsExpanded     bool
	FromSearchNote bool
}

// Attribute is a label or relation owned by a note.
type Attribute struct {
	ID            string
	NoteID        string
	Type          models.AttributeType
	Name          string
	Value         string
	Position      int
	IsInheritable bool
}

// IsLabel reports whether a is a label.
func (a Attribute) IsLabel() bool { return a.Type == models.AttributeLabel }

// IsRelation reports whether a is a relation.
func (a Attribute) IsRelation() bool { return a.Type == models.AttributeRelation }

func (a Attribute) isTemplateLink() bool {
	return a.IsRelation() && (a.Name == RelationTemplate || a.Name == RelationInherit)
}

func noteFromRow(r models.NoteRow) *Note {
	return &Note{
		ID:           r.NoteID,
		Title:        r.Title,
		Type:         r.Type,
		Mime:         r.Mime,
		IsProtected:  r.IsProtected,
		IsDeleted:    r.IsDeleted,
		DateCreated:  r.DateCreated,
		DateModified: r.DateModified,
	}
}

func branchFromRow(r models.BranchRow) *Branch {
	return &Branch{
		ID:             r.BranchID,
		NoteID:         r.NoteID,
		ParentNoteID:   r.ParentNoteID,
		Position:       r.NotePosition,
		Prefix:         r.Prefix,
		IsExpanded:     r.IsExpanded,
		FromSearchNote: r.FromSearchNote,
	}
}

func attributeFromRow(r models.AttributeRow) *Attribute {
	return &Attribute{
		ID:            r.AttributeID,
		NoteID:        r.NoteID,
		Type:          r.Type,
		Name:          r.Name,
		Value:         r.Value,
		Position:      r.Position,
		IsInheritable: r.IsInheritable,
	}
}

// nameKey indexes attributes by type and case-folded name.
type nameKey struct {
	typ  models.AttributeType
	name string
}

func keyOf(typ models.AttributeType, name string) nameKey {
	return nameKey{typ: typ, name: strings.ToLower(name)}
}

// NewID returns a fresh random identifier for rows created without one.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
