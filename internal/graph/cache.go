// Package graph holds the in-memory note graph: notes, branches and
// attributes with their back-reference indices, plus attribute inheritance
// and path resolution on top of them.
package graph

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// Source is the durable store the cache is loaded from.
type Source interface {
	LoadAllNotes(ctx context.Context) ([]models.NoteRow, error)
	LoadAllBranches(ctx context.Context) ([]models.BranchRow, error)
	LoadAllAttributes(ctx context.Context) ([]models.AttributeRow, error)
}

// Cache is the single authoritative in-process note graph.
//
// Mutations take the write lock for their whole index update, so readers
// never observe a half-applied change. Queries run against a Snapshot that
// holds the read lock for the duration of the query.
type Cache struct {
	logger   *slog.Logger
	maxDepth int

	mu         sync.RWMutex
	st         *state
	generation uint64
	closed     bool

	memoMu  sync.Mutex
	memoGen uint64
	memo    map[string][]EffectiveAttribute
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxDepth bounds ancestor walks; it guards against cyclic branch data.
func WithMaxDepth(depth int) Option {
	return func(c *Cache) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// New returns an empty cache.
func New(logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		logger:   logger,
		maxDepth: 100,
		st:       newState(),
		memo:     make(map[string][]EffectiveAttribute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// state is the primary storage plus every derived index.
type state struct {
	notes      map[string]*Note
	branches   map[string]*Branch
	attributes map[string]*Attribute

	children map[string][]*Branch    // parent note id → branches ordered by (position, id)
	parents  map[string][]*Branch    // child note id → branches ordered by id
	owned    map[string][]*Attribute // owner note id → attributes ordered by (position, id)
	byName   map[nameKey][]*Attribute
	targets  map[string][]*Attribute // relation target → relations pointing at it
}

func newState() *state {
	return &state{
		notes:      make(map[string]*Note),
		branches:   make(map[string]*Branch),
		attributes: make(map[string]*Attribute),
		children:   make(map[string][]*Branch),
		parents:    make(map[string][]*Branch),
		owned:      make(map[string][]*Attribute),
		byName:     make(map[nameKey][]*Attribute),
		targets:    make(map[string][]*Attribute),
	}
}

func cmpChild(a, b *Branch) int {
	return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
}

func cmpParent(a, b *Branch) int {
	return cmp.Compare(a.ID, b.ID)
}

func cmpOwned(a, b *Attribute) int {
	return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
}

func cmpIndexed(a, b *Attribute) int {
	return cmp.Or(cmp.Compare(a.NoteID, b.NoteID), cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
}

func insertSorted[T any](list []*T, item *T, cmpFn func(a, b *T) int) []*T {
	i, _ := slices.BinarySearchFunc(list, item, cmpFn)
	return slices.Insert(list, i, item)
}

func removeWhere[T any](list []*T, match func(*T) bool) []*T {
	return slices.DeleteFunc(list, match)
}

func (s *state) addBranch(b *Branch) {
	s.branches[b.ID] = b
	s.children[b.ParentNoteID] = insertSorted(s.children[b.ParentNoteID], b, cmpChild)
	s.parents[b.NoteID] = insertSorted(s.parents[b.NoteID], b, cmpParent)
}

func (s *state) dropBranch(id string) {
	old, ok := s.branches[id]
	if !ok {
		return
	}
	delete(s.branches, id)
	match := func(b *Branch) bool { return b.ID == id }
	s.children[old.ParentNoteID] = removeWhere(s.children[old.ParentNoteID], match)
	if len(s.children[old.ParentNoteID]) == 0 {
		delete(s.children, old.ParentNoteID)
	}
	s.parents[old.NoteID] = removeWhere(s.parents[old.NoteID], match)
	if len(s.parents[old.NoteID]) == 0 {
		delete(s.parents, old.NoteID)
	}
}

func (s *state) addAttribute(a *Attribute) {
	s.attributes[a.ID] = a
	s.owned[a.NoteID] = insertSorted(s.owned[a.NoteID], a, cmpOwned)
	k := keyOf(a.Type, a.Name)
	s.byName[k] = insertSorted(s.byName[k], a, cmpIndexed)
	if a.IsRelation() && a.Value != "" {
		s.targets[a.Value] = insertSorted(s.targets[a.Value], a, cmpIndexed)
	}
}

func (s *state) dropAttribute(id string) {
	old, ok := s.attributes[id]
	if !ok {
		return
	}
	delete(s.attributes, id)
	match := func(a *Attribute) bool { return a.ID == id }
	s.owned[old.NoteID] = removeWhere(s.owned[old.NoteID], match)
	if len(s.owned[old.NoteID]) == 0 {
		delete(s.owned, old.NoteID)
	}
	k := keyOf(old.Type, old.Name)
	s.byName[k] = removeWhere(s.byName[k], match)
	if len(s.byName[k]) == 0 {
		delete(s.byName, k)
	}
	if old.IsRelation() && old.Value != "" {
		s.targets[old.Value] = removeWhere(s.targets[old.Value], match)
		if len(s.targets[old.Value]) == 0 {
			delete(s.targets, old.Value)
		}
	}
}

// mutate runs fn under the write lock and bumps the generation.
func (c *Cache) mutate(fn func(s *state)) error {
	return c.tryMutate(func(s *state) error {
		fn(s)
		return nil
	})
}

// tryMutate is mutate for changes fn may refuse. A refused change must
// leave the state untouched; the generation is not bumped.
func (c *Cache) tryMutate(fn func(s *state) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperr.ErrShutdown
	}
	if err := fn(c.st); err != nil {
		return err
	}
	c.generation++
	return nil
}

// createsCycle reports whether placing b would make its note an ancestor of
// itself through real branches. Search branches never count.
func (s *state) createsCycle(b *Branch) bool {
	if b.FromSearchNote {
		return false
	}
	if b.NoteID == b.ParentNoteID {
		return true
	}
	seen := map[string]bool{}
	stack := []string{b.ParentNoteID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == b.NoteID {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, p := range s.parents[id] {
			if p.FromSearchNote || p.ID == b.ID {
				continue
			}
			stack = append(stack, p.ParentNoteID)
		}
	}
	return false
}

// hasRealParent reports whether id is still attached by a non-search branch.
func (s *state) hasRealParent(id string) bool {
	for _, p := range s.parents[id] {
		if !p.FromSearchNote {
			return true
		}
	}
	return false
}

// dropSubtree removes id and every descendant left without a real parent,
// together with their attributes and branches.
func (s *state) dropSubtree(id string) {
	seen := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, a := range slices.Clone(s.owned[id]) {
			s.dropAttribute(a.ID)
		}
		for _, b := range slices.Clone(s.parents[id]) {
			s.dropBranch(b.ID)
		}
		for _, b := range slices.Clone(s.children[id]) {
			s.dropBranch(b.ID)
			if !s.hasRealParent(b.NoteID) {
				queue = append(queue, b.NoteID)
			}
		}
		delete(s.notes, id)
	}
}

func cycleError(row models.BranchRow) error {
	return fmt.Errorf("graph: branch %q places %q under %q: %w",
		row.BranchID, row.NoteID, row.ParentNoteID, apperr.ErrCycle)
}

// UpsertNote inserts or replaces a note.
func (c *Cache) UpsertNote(row models.NoteRow) error {
	if err := row.Validate(); err != nil {
		return err
	}
	n := noteFromRow(row)
	return c.mutate(func(s *state) {
		s.notes[n.ID] = n
	})
}

// CheckBranch reports whether row could be upserted: it must be well formed
// and must not make a note its own ancestor. It fails with apperr.ErrCycle
// for the latter.
func (c *Cache) CheckBranch(row models.BranchRow) error {
	if err := row.Validate(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.st.createsCycle(branchFromRow(row)) {
		return cycleError(row)
	}
	return nil
}

// UpsertBranch inserts or replaces a branch. Moving a branch to another
// parent updates both parents' child lists in the same critical section.
// A real branch that would close a cycle is refused with apperr.ErrCycle.
func (c *Cache) UpsertBranch(row models.BranchRow) error {
	if err := row.Validate(); err != nil {
		return err
	}
	b := branchFromRow(row)
	return c.tryMutate(func(s *state) error {
		if s.createsCycle(b) {
			return cycleError(row)
		}
		s.dropBranch(b.ID)
		s.addBranch(b)
		return nil
	})
}

// UpsertAttribute inserts or replaces an attribute.
func (c *Cache) UpsertAttribute(row models.AttributeRow) error {
	if err := row.Validate(); err != nil {
		return err
	}
	a := attributeFromRow(row)
	return c.mutate(func(s *state) {
		s.dropAttribute(a.ID)
		s.addAttribute(a)
	})
}

// RemoveNote drops a note with its owned attributes and all its branches.
// Children left without another real parent are removed the same way, so
// the whole detached subtree goes in one critical section.
func (c *Cache) RemoveNote(id string) error {
	return c.mutate(func(s *state) {
		s.dropSubtree(id)
	})
}

// RemoveBranch drops a branch. Unknown ids are a no-op.
func (c *Cache) RemoveBranch(id string) error {
	return c.mutate(func(s *state) {
		s.dropBranch(id)
	})
}

// RemoveAttribute drops an attribute. Unknown ids are a no-op.
func (c *Cache) RemoveAttribute(id string) error {
	return c.mutate(func(s *state) {
		s.dropAttribute(id)
	})
}

// Load replaces the cache contents with everything src returns. The three
// tables are fetched concurrently and indexed off-lock; the swap itself is
// a single critical section. Malformed rows are logged and skipped.
func (c *Cache) Load(ctx context.Context, src Source) error {
	var (
		notes    []models.NoteRow
		branches []models.BranchRow
		attrs    []models.AttributeRow
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		notes, err = src.LoadAllNotes(gCtx)
		return err
	})
	g.Go(func() (err error) {
		branches, err = src.LoadAllBranches(gCtx)
		return err
	})
	g.Go(func() (err error) {
		attrs, err = src.LoadAllAttributes(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("graph: load: %w", err)
	}

	st := newState()
	skipped := 0
	for _, r := range notes {
		if err := r.Validate(); err != nil {
			c.logger.Warn("graph: skipping row", slog.String("error", err.Error()))
			skipped++
			continue
		}
		n := noteFromRow(r)
		st.notes[n.ID] = n
	}
	for _, r := range branches {
		if err := r.Validate(); err != nil {
			c.logger.Warn("graph: skipping row", slog.String("error", err.Error()))
			skipped++
			continue
		}
		st.addBranch(branchFromRow(r))
	}
	for _, r := range attrs {
		if err := r.Validate(); err != nil {
			c.logger.Warn("graph: skipping row", slog.String("error", err.Error()))
			skipped++
			continue
		}
		st.addAttribute(attributeFromRow(r))
	}

	if err := c.mutate(func(*state) { c.st = st }); err != nil {
		return err
	}

	c.logger.Info("graph: loaded",
		slog.Int("notes", len(st.notes)),
		slog.Int("branches", len(st.branches)),
		slog.Int("attributes", len(st.attributes)),
		slog.Int("skipped", skipped))
	return nil
}

// Shutdown drops all state; later mutations fail with apperr.ErrShutdown
// and reads see an empty graph.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.st = newState()
	c.generation++
}

// Generation increases on every mutation.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// View runs fn against a consistent snapshot of the cache.
func (c *Cache) View(fn func(s *Snapshot) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(&Snapshot{c: c, st: c.st, gen: c.generation})
}

func (c *Cache) read(fn func(s *Snapshot)) {
	_ = c.View(func(s *Snapshot) error {
		fn(s)
		return nil
	})
}

// GetNote returns the note with the given id.
func (c *Cache) GetNote(id string) (n Note, ok bool) {
	c.read(func(s *Snapshot) { n, ok = s.Note(id) })
	return n, ok
}

// ChildBranches returns id's child branches ordered by position then id.
func (c *Cache) ChildBranches(id string) (out []Branch) {
	c.read(func(s *Snapshot) { out = s.ChildBranches(id) })
	return out
}

// ParentBranches returns the branches attaching id to its parents.
func (c *Cache) ParentBranches(id string) (out []Branch) {
	c.read(func(s *Snapshot) { out = s.ParentBranches(id) })
	return out
}

// FindAttributes returns every attribute of the given type and name.
func (c *Cache) FindAttributes(typ models.AttributeType, name string) (out []Attribute) {
	c.read(func(s *Snapshot) { out = s.FindAttributes(typ, name) })
	return out
}

// AttributeValues returns the effective values of id's attributes with the given type and name.
func (c *Cache) AttributeValues(id string, typ models.AttributeType, name string) (out []string) {
	c.read(func(s *Snapshot) { out = s.AttributeValues(id, typ, name) })
	return out
}

// EffectiveAttributes resolves id's owned, template-derived and inherited attributes.
func (c *Cache) EffectiveAttributes(id string) (out []EffectiveAttribute) {
	c.read(func(s *Snapshot) { out = s.EffectiveAttributes(id) })
	return out
}

// NotesWithLabel returns ids of notes whose effective attributes carry the label.
func (c *Cache) NotesWithLabel(name string) (out []string) {
	c.read(func(s *Snapshot) { out = s.NotesWithLabel(name) })
	return out
}

// NotesWithLabelValue is NotesWithLabel restricted to an exact value.
func (c *Cache) NotesWithLabelValue(name, value string) (out []string) {
	c.read(func(s *Snapshot) { out = s.NotesWithLabelValue(name, value) })
	return out
}
