package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/testutil"
)

type attrView struct {
	Owner  string
	Name   string
	Value  string
	Origin graph.Origin
}

func effective(t *testing.T, g *testutil.Graph, id string) []attrView {
	t.Helper()
	var out []attrView
	for _, a := range g.Cache.EffectiveAttributes(id) {
		out = append(out, attrView{Owner: a.NoteID, Name: a.Name, Value: a.Value, Origin: a.Origin})
	}
	return out
}

func TestEffectiveAttributes_PrecedenceOrder(t *testing.T) {
	g := testutil.NewGraph(t)
	grand := g.Note("Grand").InheritableLabel("archived", "")
	parent := g.Note("Parent").InheritableLabel("color", "blue").Label("private", "")
	tmpl := g.Note("Template").Label("color", "red")
	n := g.Note("N").Label("color", "green").Template(tmpl)
	g.Root.Child(grand)
	grand.Child(parent)
	parent.Child(n)

	got := effective(t, g, n.ID)
	want := []attrView{
		{n.ID, "color", "green", graph.OriginOwned},
		{n.ID, "template", tmpl.ID, graph.OriginOwned},
		{tmpl.ID, "color", "red", graph.OriginTemplate},
		{parent.ID, "color", "blue", graph.OriginAncestor},
		{grand.ID, "archived", "", graph.OriginAncestor},
	}
	assert.Equal(t, want, got)

	v, ok := firstLabel(g, n.ID, "color")
	require.True(t, ok)
	assert.Equal(t, "green", v, "first value wins")
}

func firstLabel(g *testutil.Graph, id, name string) (v string, ok bool) {
	_ = g.Cache.View(func(s *graph.Snapshot) error {
		v, ok = s.LabelValue(id, name)
		return nil
	})
	return v, ok
}

func TestEffectiveAttributes_TemplateCycle(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A").Label("fromA", "1")
	b := g.Note("B").Label("fromB", "2")
	a.Template(b)
	b.Template(a)

	got := effective(t, g, a.ID)
	require.Len(t, got, 4)
	assert.Equal(t, []attrView{
		{a.ID, "fromA", "1", graph.OriginOwned},
		{a.ID, "template", b.ID, graph.OriginOwned},
		{b.ID, "fromB", "2", graph.OriginTemplate},
		{b.ID, "template", a.ID, graph.OriginTemplate},
	}, got)
}

func TestEffectiveAttributes_SelfTemplate(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A").Label("x", "1")
	a.Template(a)

	got := effective(t, g, a.ID)
	assert.Len(t, got, 2)
	for _, v := range got {
		assert.Equal(t, graph.OriginOwned, v.Origin)
	}
}

func TestEffectiveAttributes_DanglingTemplate(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A").Label("x", "1").RelationTo(graph.RelationTemplate, "gone")

	assert.Len(t, effective(t, g, a.ID), 2)
	assert.Empty(t, g.Cache.EffectiveAttributes("gone"))
}

func TestEffectiveAttributes_InheritRelationActsAsTemplate(t *testing.T) {
	g := testutil.NewGraph(t)
	base := g.Note("Base").Label("kind", "book")
	n := g.Note("N").Relation(graph.RelationInherit, base)

	vals := g.Cache.AttributeValues(n.ID, models.AttributeLabel, "kind")
	assert.Equal(t, []string{"book"}, vals)
}

func TestEffectiveAttributes_MultipleParentsNoDuplicates(t *testing.T) {
	g := testutil.NewGraph(t)
	top := g.Note("Top").InheritableLabel("shared", "")
	left := g.Note("Left").InheritableLabel("left", "")
	right := g.Note("Right").InheritableLabel("right", "")
	n := g.Note("N")
	g.Root.Child(top)
	top.Child(left, right)
	left.Child(n)
	right.Child(n)

	names := map[string]int{}
	for _, a := range g.Cache.EffectiveAttributes(n.ID) {
		names[a.Name]++
	}
	assert.Equal(t, map[string]int{"shared": 1, "left": 1, "right": 1}, names)
}

func TestEffectiveAttributes_NotTransitiveThroughAncestors(t *testing.T) {
	g := testutil.NewGraph(t)
	tmpl := g.Note("Template").InheritableLabel("fromTemplate", "")
	parent := g.Note("Parent").Template(tmpl)
	child := g.Note("Child")
	g.Root.Child(parent)
	parent.Child(child)

	assert.Equal(t, []string{""}, g.Cache.AttributeValues(parent.ID, models.AttributeLabel, "fromTemplate"))
	assert.Empty(t, g.Cache.AttributeValues(child.ID, models.AttributeLabel, "fromTemplate"),
		"attributes a parent only inherits are not passed further down")
}

func TestEffectiveAttributes_CyclicBranchesTerminate(t *testing.T) {
	c := graph.New(testutil.Logger(), graph.WithMaxDepth(10))
	require.NoError(t, c.Load(context.Background(), &fakeSource{
		notes: []models.NoteRow{noteRow("a", "A"), noteRow("b", "B")},
		branches: []models.BranchRow{
			{BranchID: "ab", NoteID: "b", ParentNoteID: "a"},
			{BranchID: "ba", NoteID: "a", ParentNoteID: "b"},
		},
		attrs: []models.AttributeRow{
			{AttributeID: "at-a", NoteID: "a", Type: models.AttributeLabel, Name: "a", IsInheritable: true},
			{AttributeID: "at-b", NoteID: "b", Type: models.AttributeLabel, Name: "b", IsInheritable: true},
		},
	}))

	names := map[string]bool{}
	for _, attr := range c.EffectiveAttributes("a") {
		names[attr.Name] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, names)
}

func TestEffectiveAttributes_MemoInvalidatedByMutation(t *testing.T) {
	g := testutil.NewGraph(t)
	parent := g.Note("Parent")
	n := g.Note("N")
	g.Root.Child(parent)
	parent.Child(n)

	assert.Empty(t, g.Cache.AttributeValues(n.ID, models.AttributeLabel, "lang"))
	parent.InheritableLabel("lang", "go")
	assert.Equal(t, []string{"go"}, g.Cache.AttributeValues(n.ID, models.AttributeLabel, "lang"))
}

func TestNotesWithLabel(t *testing.T) {
	g := testutil.NewGraph(t)
	project := g.Note("Project").InheritableLabel("project", "arbor")
	task := g.Note("Task")
	tmpl := g.Note("Tmpl").Label("todo", "")
	user := g.Note("Uses template").Template(tmpl)
	gone := g.Note("Gone").Label("todo", "").Deleted()
	g.Root.Child(project)
	project.Child(task)

	assert.ElementsMatch(t, []string{project.ID, task.ID}, g.Cache.NotesWithLabel("project"))
	assert.ElementsMatch(t, []string{tmpl.ID, user.ID}, g.Cache.NotesWithLabel("TODO"))
	assert.NotContains(t, g.Cache.NotesWithLabel("todo"), gone.ID)
	assert.ElementsMatch(t, []string{project.ID, task.ID}, g.Cache.NotesWithLabelValue("project", "arbor"))
	assert.Empty(t, g.Cache.NotesWithLabelValue("project", "other"))
}

func TestAncestryHelpers(t *testing.T) {
	g := testutil.NewGraph(t)
	hidden := g.Hidden()
	a := g.Note("A")
	b := g.Note("B")
	secret := g.Note("Secret")
	g.Root.Child(a)
	a.Child(b)
	hidden.Child(secret)

	_ = g.Cache.View(func(s *graph.Snapshot) error {
		assert.Equal(t, []string{a.ID, graph.RootID}, s.Ancestors(b.ID))
		assert.True(t, s.IsDescendantOf(b.ID, graph.RootID))
		assert.False(t, s.IsDescendantOf(a.ID, b.ID))
		assert.ElementsMatch(t, []string{hidden.ID, a.ID, b.ID, secret.ID}, s.Descendants(graph.RootID))
		assert.True(t, s.IsInHiddenSubtree(secret.ID))
		assert.False(t, s.IsInHiddenSubtree(b.ID))
		return nil
	})
}
