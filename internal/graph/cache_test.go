package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/testutil"
)

func noteRow(id, title string) models.NoteRow {
	return models.NoteRow{NoteID: id, Title: title, Type: models.NoteTypeText}
}

func TestUpsertNote_Idempotent(t *testing.T) {
	once := graph.New(testutil.Logger())
	twice := graph.New(testutil.Logger())
	row := noteRow("n1", "Groceries")

	require.NoError(t, once.UpsertNote(row))
	require.NoError(t, twice.UpsertNote(row))
	require.NoError(t, twice.UpsertNote(row))

	a, ok := once.GetNote("n1")
	require.True(t, ok)
	b, ok := twice.GetNote("n1")
	require.True(t, ok)
	assert.Equal(t, a, b)

	var countOnce, countTwice int
	_ = once.View(func(s *graph.Snapshot) error { countOnce = s.NoteCount(); return nil })
	_ = twice.View(func(s *graph.Snapshot) error { countTwice = s.NoteCount(); return nil })
	assert.Equal(t, countOnce, countTwice)
}

func TestUpsert_MalformedRowsRejected(t *testing.T) {
	c := graph.New(testutil.Logger())

	err := c.UpsertNote(models.NoteRow{Title: "no id", Type: models.NoteTypeText})
	assert.True(t, errors.Is(err, apperr.ErrMalformedRow), "err = %v", err)

	err = c.UpsertBranch(models.BranchRow{BranchID: "b1", NoteID: "child"})
	assert.True(t, errors.Is(err, apperr.ErrMalformedRow), "err = %v", err)

	err = c.UpsertAttribute(models.AttributeRow{AttributeID: "a1", NoteID: "n", Type: models.AttributeLabel})
	assert.True(t, errors.Is(err, apperr.ErrMalformedRow), "err = %v", err)
}

func TestChildBranches_OrderedByPositionThenID(t *testing.T) {
	c := graph.New(testutil.Logger())
	for _, id := range []string{"p", "x", "y", "z"} {
		require.NoError(t, c.UpsertNote(noteRow(id, id)))
	}
	require.NoError(t, c.UpsertBranch(models.BranchRow{BranchID: "b-z", NoteID: "z", ParentNoteID: "p", NotePosition: 10}))
	require.NoError(t, c.UpsertBranch(models.BranchRow{BranchID: "b-y", NoteID: "y", ParentNoteID: "p", NotePosition: 20}))
	require.NoError(t, c.UpsertBranch(models.BranchRow{BranchID: "b-x", NoteID: "x", ParentNoteID: "p", NotePosition: 10}))

	var got []string
	for _, b := range c.ChildBranches("p") {
		got = append(got, b.NoteID)
	}
	assert.Equal(t, []string{"x", "z", "y"}, got)
}

func TestUpsertBranch_MoveUpdatesBothParents(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A")
	b := g.Note("B")
	child := g.Note("Child")
	g.Root.Child(a, b)
	branchID := a.ChildWithPrefix(child, "")

	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{BranchID: branchID, NoteID: child.ID, ParentNoteID: b.ID}))

	assert.Empty(t, g.Cache.ChildBranches(a.ID))
	require.Len(t, g.Cache.ChildBranches(b.ID), 1)
	parents := g.Cache.ParentBranches(child.ID)
	require.Len(t, parents, 1)
	assert.Equal(t, b.ID, parents[0].ParentNoteID)
}

func TestRemoveNote_Cascades(t *testing.T) {
	g := testutil.NewGraph(t)
	n := g.Note("Doomed").Label("color", "red")
	g.Root.Child(n)
	child := g.Note("Orphan").Label("size", "s")
	grandchild := g.Note("Deeper")
	n.Child(child)
	child.Child(grandchild)

	require.NoError(t, g.Cache.RemoveNote(n.ID))
	require.NoError(t, g.Cache.RemoveNote(n.ID), "second removal is a no-op")

	for _, id := range []string{n.ID, child.ID, grandchild.ID} {
		_, ok := g.Cache.GetNote(id)
		assert.False(t, ok, "note %s should be gone", id)
	}
	assert.Empty(t, g.Cache.FindAttributes(models.AttributeLabel, "color"))
	assert.Empty(t, g.Cache.FindAttributes(models.AttributeLabel, "size"))
	assert.Empty(t, g.Cache.ChildBranches(graph.RootID))
	assert.Empty(t, g.Cache.ChildBranches(n.ID))
	assert.Empty(t, g.Cache.ChildBranches(child.ID))
	assert.True(t, g.Cache.CheckIndices())
}

func TestRemoveNote_KeepsChildrenWithAnotherParent(t *testing.T) {
	g := testutil.NewGraph(t)
	doomed := g.Note("Doomed")
	keeper := g.Note("Keeper")
	shared := g.Note("Shared")
	searchOnly := g.Note("Found by search")
	g.Root.Child(doomed, keeper)
	doomed.Child(shared, searchOnly)
	keeper.Child(shared)
	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{
		BranchID: "saved-search", NoteID: searchOnly.ID, ParentNoteID: keeper.ID, FromSearchNote: true,
	}))

	require.NoError(t, g.Cache.RemoveNote(doomed.ID))

	_, ok := g.Cache.GetNote(shared.ID)
	require.True(t, ok)
	_, ok = g.Cache.GetNote(searchOnly.ID)
	assert.False(t, ok, "a search branch does not keep a note alive")
	_ = g.Cache.View(func(s *graph.Snapshot) error {
		assert.Equal(t, []string{graph.RootID, keeper.ID, shared.ID}, s.NotePath(shared.ID))
		return nil
	})
	assert.Len(t, g.Cache.ChildBranches(keeper.ID), 1)
	assert.True(t, g.Cache.CheckIndices())
}

func TestUpsertBranch_RejectsCycles(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A")
	b := g.Note("B")
	g.Root.Child(a)
	a.Child(b)
	gen := g.Cache.Generation()

	err := g.Cache.UpsertBranch(models.BranchRow{BranchID: "b_a", NoteID: a.ID, ParentNoteID: b.ID})
	assert.ErrorIs(t, err, apperr.ErrCycle)
	err = g.Cache.UpsertBranch(models.BranchRow{BranchID: "a_a", NoteID: a.ID, ParentNoteID: a.ID})
	assert.ErrorIs(t, err, apperr.ErrCycle)
	err = g.Cache.UpsertBranch(models.BranchRow{BranchID: "root_root", NoteID: graph.RootID, ParentNoteID: b.ID})
	assert.ErrorIs(t, err, apperr.ErrCycle)

	assert.Len(t, g.Cache.ParentBranches(a.ID), 1)
	assert.Equal(t, gen, g.Cache.Generation(), "refused changes do not bump the generation")
	assert.ErrorIs(t, g.Cache.CheckBranch(models.BranchRow{BranchID: "b_a", NoteID: a.ID, ParentNoteID: b.ID}), apperr.ErrCycle)
}

func TestUpsertBranch_AllowsNonCyclicShapes(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A")
	b := g.Note("B")
	c := g.Note("C")
	g.Root.Child(a, b)
	branchID := a.ChildWithPrefix(c, "")

	// A second parent and a move under a sibling are both fine.
	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{BranchID: "b_c", NoteID: c.ID, ParentNoteID: b.ID}))
	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{BranchID: branchID, NoteID: c.ID, ParentNoteID: graph.RootID}))
	// c no longer descends from a, so a may move under it.
	abranch := g.Cache.ParentBranches(a.ID)[0].ID
	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{BranchID: abranch, NoteID: a.ID, ParentNoteID: c.ID}))
	// Search branches may point anywhere.
	require.NoError(t, g.Cache.UpsertBranch(models.BranchRow{
		BranchID: "search", NoteID: graph.RootID, ParentNoteID: a.ID, FromSearchNote: true,
	}))
	assert.NoError(t, g.Cache.CheckBranch(models.BranchRow{BranchID: "x", NoteID: a.ID, ParentNoteID: b.ID}))
	assert.ErrorIs(t, g.Cache.CheckBranch(models.BranchRow{BranchID: "x", NoteID: b.ID, ParentNoteID: a.ID}), apperr.ErrCycle)
}

func TestRemoveBranchAndAttribute_Idempotent(t *testing.T) {
	g := testutil.NewGraph(t)
	n := g.Note("N").Label("k", "v")
	branchID := g.Root.ChildWithPrefix(n, "")
	attrs := g.Cache.FindAttributes(models.AttributeLabel, "k")
	require.Len(t, attrs, 1)

	for i := 0; i < 2; i++ {
		require.NoError(t, g.Cache.RemoveBranch(branchID))
		require.NoError(t, g.Cache.RemoveAttribute(attrs[0].ID))
	}
	assert.Empty(t, g.Cache.ParentBranches(n.ID))
	assert.Empty(t, g.Cache.FindAttributes(models.AttributeLabel, "k"))
}

func TestFindAttributes_CaseInsensitiveName(t *testing.T) {
	g := testutil.NewGraph(t)
	g.Note("one").Label("Status", "open")
	g.Note("two").Label("status", "done")
	g.Note("three").RelationTo("status", "x")

	labels := g.Cache.FindAttributes(models.AttributeLabel, "STATUS")
	assert.Len(t, labels, 2)
	assert.Len(t, g.Cache.FindAttributes(models.AttributeRelation, "status"), 1)
}

type fakeSource struct {
	notes    []models.NoteRow
	branches []models.BranchRow
	attrs    []models.AttributeRow
	err      error
}

func (f *fakeSource) LoadAllNotes(context.Context) ([]models.NoteRow, error) { return f.notes, f.err }
func (f *fakeSource) LoadAllBranches(context.Context) ([]models.BranchRow, error) {
	return f.branches, nil
}
func (f *fakeSource) LoadAllAttributes(context.Context) ([]models.AttributeRow, error) {
	return f.attrs, nil
}

func TestLoad_SkipsMalformedRows(t *testing.T) {
	src := &fakeSource{
		notes: []models.NoteRow{
			noteRow("root", "root"),
			noteRow("a", "Alpha"),
			{Title: "missing id", Type: models.NoteTypeText},
			{NoteID: "weird", Type: "hologram"},
		},
		branches: []models.BranchRow{
			{BranchID: "b1", NoteID: "a", ParentNoteID: "root"},
			{BranchID: "b2", NoteID: "a"},
		},
		attrs: []models.AttributeRow{
			{AttributeID: "at1", NoteID: "a", Type: models.AttributeLabel, Name: "x"},
			{AttributeID: "at2", NoteID: "a", Type: "bogus", Name: "y"},
		},
	}
	c := graph.New(testutil.Logger())
	require.NoError(t, c.Load(context.Background(), src))

	_ = c.View(func(s *graph.Snapshot) error {
		assert.Equal(t, []string{"a", "root"}, s.NoteIDs())
		assert.Len(t, s.ParentBranches("a"), 1)
		assert.Len(t, s.OwnedAttributes("a"), 1)
		return nil
	})
	assert.True(t, c.CheckIndices())
}

func TestLoad_SourceErrorKeepsState(t *testing.T) {
	c := graph.New(testutil.Logger())
	require.NoError(t, c.UpsertNote(noteRow("keep", "Keep me")))

	err := c.Load(context.Background(), &fakeSource{err: errors.New("disk on fire")})
	require.Error(t, err)
	_, ok := c.GetNote("keep")
	assert.True(t, ok)
}

func TestShutdown_RejectsMutations(t *testing.T) {
	c := graph.New(testutil.Logger())
	require.NoError(t, c.UpsertNote(noteRow("n", "N")))
	c.Shutdown()

	_, ok := c.GetNote("n")
	assert.False(t, ok)
	assert.ErrorIs(t, c.UpsertNote(noteRow("m", "M")), apperr.ErrShutdown)
}

func TestGeneration_IncreasesOnMutation(t *testing.T) {
	c := graph.New(testutil.Logger())
	g0 := c.Generation()
	require.NoError(t, c.UpsertNote(noteRow("n", "N")))
	assert.Greater(t, c.Generation(), g0)
}

// Readers must never see a branch half-moved: the child is always under
// exactly one of the two parents.
func TestConcurrentReadersSeeAtomicMoves(t *testing.T) {
	g := testutil.NewGraph(t)
	a := g.Note("A")
	b := g.Note("B")
	child := g.Note("Child")
	branchID := a.ChildWithPrefix(child, "")

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		parents := []string{a.ID, b.ID}
		for i := 0; i < 500; i++ {
			_ = g.Cache.UpsertBranch(models.BranchRow{BranchID: branchID, NoteID: child.ID, ParentNoteID: parents[i%2]})
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_ = g.Cache.View(func(s *graph.Snapshot) error {
					total := len(s.ChildBranches(a.ID)) + len(s.ChildBranches(b.ID))
					if total != 1 || len(s.ParentBranches(child.ID)) != 1 {
						t.Errorf("observed partial move: children=%d parents=%d", total, len(s.ParentBranches(child.ID)))
					}
					return nil
				})
			}
		}()
	}
	wg.Wait()
}
