package testutil

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
)

// Graph builds fixture note graphs directly into a graph.Cache.
type Graph struct {
	t     testing.TB
	Cache *graph.Cache
	Root  *NoteBuilder

	seq int
}

// Logger returns a logger that only reports errors, to keep test output quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewGraph returns a cache holding just the root note.
func NewGraph(t testing.TB, opts ...graph.Option) *Graph {
	t.Helper()
	g := &Graph{t: t, Cache: graph.New(Logger(), opts...)}
	g.Root = g.NoteWithID(graph.RootID, "root")
	return g
}

// Hidden returns the hidden subtree root, creating it under root on first use.
func (g *Graph) Hidden() *NoteBuilder {
	g.t.Helper()
	if n, ok := g.Cache.GetNote(graph.HiddenRootID); ok {
		return &NoteBuilder{g: g, ID: n.ID, row: rowOf(n)}
	}
	hidden := g.NoteWithID(graph.HiddenRootID, "Hidden Notes")
	g.Root.Child(hidden)
	return hidden
}

// Note creates a text note with a generated id.
func (g *Graph) Note(title string) *NoteBuilder {
	g.t.Helper()
	return g.NoteWithID(graph.NewID(), title)
}

// NoteWithID creates a text note with the given id.
func (g *Graph) NoteWithID(id, title string) *NoteBuilder {
	g.t.Helper()
	n := &NoteBuilder{g: g, ID: id, row: models.NoteRow{NoteID: id, Title: title, Type: models.NoteTypeText, Mime: "text/html"}}
	n.save()
	return n
}

func (g *Graph) nextID(kind string) string {
	g.seq++
	return fmt.Sprintf("%s%04d", kind, g.seq)
}

// NoteBuilder adds attributes and children to one fixture note.
type NoteBuilder struct {
	g   *Graph
	ID  string
	row models.NoteRow

	attrPos  int
	childPos int
}

func rowOf(n graph.Note) models.NoteRow {
	return models.NoteRow{
		NoteID: n.ID, Title: n.Title, Type: n.Type, Mime: n.Mime,
		IsProtected: n.IsProtected, IsDeleted: n.IsDeleted,
		DateCreated: n.DateCreated, DateModified: n.DateModified,
	}
}

func (n *NoteBuilder) save() {
	n.g.t.Helper()
	require.NoError(n.g.t, n.g.Cache.UpsertNote(n.row))
}

// Type changes the note type.
func (n *NoteBuilder) Type(t models.NoteType) *NoteBuilder {
	n.row.Type = t
	n.save()
	return n
}

// Protected marks the note as protected.
func (n *NoteBuilder) Protected() *NoteBuilder {
	n.row.IsProtected = true
	n.save()
	return n
}

// Deleted soft-deletes the note.
func (n *NoteBuilder) Deleted() *NoteBuilder {
	n.row.IsDeleted = true
	n.save()
	return n
}

// Label adds a non-inheritable label.
func (n *NoteBuilder) Label(name, value string) *NoteBuilder {
	return n.attr(models.AttributeLabel, name, value, false)
}

// InheritableLabel adds a label that propagates to descendants.
func (n *NoteBuilder) InheritableLabel(name, value string) *NoteBuilder {
	return n.attr(models.AttributeLabel, name, value, true)
}

// Relation adds a relation pointing at target.
func (n *NoteBuilder) Relation(name string, target *NoteBuilder) *NoteBuilder {
	return n.attr(models.AttributeRelation, name, target.ID, false)
}

// RelationTo adds a relation pointing at an arbitrary id, loaded or not.
func (n *NoteBuilder) RelationTo(name, targetID string) *NoteBuilder {
	return n.attr(models.AttributeRelation, name, targetID, false)
}

// Template makes target this note's template.
func (n *NoteBuilder) Template(target *NoteBuilder) *NoteBuilder {
	return n.Relation(graph.RelationTemplate, target)
}

func (n *NoteBuilder) attr(typ models.AttributeType, name, value string, inheritable bool) *NoteBuilder {
	n.g.t.Helper()
	n.attrPos += 10
	require.NoError(n.g.t, n.g.Cache.UpsertAttribute(models.AttributeRow{
		AttributeID:   n.g.nextID("attr"),
		NoteID:        n.ID,
		Type:          typ,
		Name:          name,
		Value:         value,
		Position:      n.attrPos,
		IsInheritable: inheritable,
	}))
	return n
}

// Child places children under n in order and returns n.
func (n *NoteBuilder) Child(children ...*NoteBuilder) *NoteBuilder {
	n.g.t.Helper()
	for _, c := range children {
		n.ChildWithPrefix(c, "")
	}
	return n
}

// ChildWithPrefix places child under n with a branch prefix and returns the branch id.
func (n *NoteBuilder) ChildWithPrefix(child *NoteBuilder, prefix string) string {
	n.g.t.Helper()
	n.childPos += 10
	id := n.g.nextID("branch")
	require.NoError(n.g.t, n.g.Cache.UpsertBranch(models.BranchRow{
		BranchID:     id,
		NoteID:       child.ID,
		ParentNoteID: n.ID,
		NotePosition: n.childPos,
		Prefix:       prefix,
	}))
	return id
}
