package search

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
)

// NoteSet is an unordered set of note ids.
type NoteSet map[string]struct{}

// NewNoteSet returns a set holding ids.
func NewNoteSet(ids ...string) NoteSet {
	s := make(NoteSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s NoteSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s NoteSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// cancelCheckInterval is how many per-note evaluations run between
// cancellation checks.
const cancelCheckInterval = 256

// execContext carries per-query state through expression evaluation.
type execContext struct {
	ctx  context.Context
	snap *graph.Snapshot
	fast bool
	// content maps a normalized free-text token to the notes whose body
	// matched it in the content index.
	content map[string]NoteSet
	steps   int
}

// tick counts one unit of work and reports cancellation periodically.
func (ec *execContext) tick() error {
	ec.steps++
	if ec.steps%cancelCheckInterval == 0 {
		return ec.ctx.Err()
	}
	return nil
}

// Expression filters an input set of notes down to the ones it matches.
type Expression interface {
	Execute(ec *execContext, in NoteSet) (NoteSet, error)
}

type matchAll struct{}

func (matchAll) Execute(_ *execContext, in NoteSet) (NoteSet, error) { return in, nil }

// andExp narrows the input through each child in order and stops as soon
// as nothing is left.
type andExp struct{ children []Expression }

func (e *andExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	cur := in
	for _, c := range e.children {
		if len(cur) == 0 {
			break
		}
		next, err := c.Execute(ec, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

type orExp struct{ children []Expression }

func (e *orExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	out := make(NoteSet)
	for _, c := range e.children {
		res, err := c.Execute(ec, in)
		if err != nil {
			return nil, err
		}
		for id := range res {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

type notExp struct{ child Expression }

func (e *notExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	matched, err := e.child.Execute(ec, in)
	if err != nil {
		return nil, err
	}
	out := make(NoteSet, len(in))
	for id := range in {
		if !matched.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// textExp matches one free-text token against a note's title, id and own
// attributes; outside fast mode also against content hits and fuzzily
// against title words.
type textExp struct{ token string }

func (e *textExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	out := make(NoteSet)
	for id := range in {
		if err := ec.tick(); err != nil {
			return nil, err
		}
		if ec.matchesText(id, e.token) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (ec *execContext) matchesText(id, tok string) bool {
	if strings.EqualFold(id, tok) {
		return true
	}
	n, ok := ec.snap.Note(id)
	if !ok {
		return false
	}
	title := ""
	if !n.IsProtected {
		title = Normalize(n.Title)
		if strings.Contains(title, tok) {
			return true
		}
	}
	for _, a := range ec.snap.OwnedAttributes(id) {
		if strings.Contains(Normalize(a.Name), tok) || (a.IsLabel() && strings.Contains(Normalize(a.Value), tok)) {
			return true
		}
	}
	if ec.fast {
		return false
	}
	if ec.content[tok].Has(id) {
		return true
	}
	return title != "" && FuzzyMatch(tok, title)
}

// attributeExp matches notes whose effective attributes contain an
// attribute of the given type and name, optionally satisfying cmp.
type attributeExp struct {
	typ  models.AttributeType
	name string
	cmp  comparator // nil means existence
}

func (e *attributeExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	out := make(NoteSet)
	for _, id := range ec.snap.AttributeCandidates(e.typ, e.name) {
		if !in.Has(id) {
			continue
		}
		if err := ec.tick(); err != nil {
			return nil, err
		}
		for _, a := range ec.snap.EffectiveAttributes(id) {
			if a.Type == e.typ && strings.EqualFold(a.Name, e.name) && (e.cmp == nil || e.cmp(a.Value)) {
				out[id] = struct{}{}
				break
			}
		}
	}
	return out, nil
}

// Properties addressable as note.<name>.
var noteProperties = map[string]func(s *graph.Snapshot, n graph.Note) string{
	"noteid":      func(_ *graph.Snapshot, n graph.Note) string { return n.ID },
	"title":       func(_ *graph.Snapshot, n graph.Note) string { return n.Title },
	"type":        func(_ *graph.Snapshot, n graph.Note) string { return string(n.Type) },
	"mime":        func(_ *graph.Snapshot, n graph.Note) string { return n.Mime },
	"isprotected": func(_ *graph.Snapshot, n graph.Note) string { return strconv.FormatBool(n.IsProtected) },
	"childrencount": func(s *graph.Snapshot, n graph.Note) string {
		return strconv.Itoa(len(s.ChildBranches(n.ID)))
	},
	"parentcount": func(s *graph.Snapshot, n graph.Note) string {
		return strconv.Itoa(len(s.ParentBranches(n.ID)))
	},
	"labelcount": func(s *graph.Snapshot, n graph.Note) string {
		count := 0
		for _, a := range s.OwnedAttributes(n.ID) {
			if a.IsLabel() {
				count++
			}
		}
		return strconv.Itoa(count)
	},
}

type propertyExp struct {
	get func(s *graph.Snapshot, n graph.Note) string
	cmp comparator
}

func (e *propertyExp) Execute(ec *execContext, in NoteSet) (NoteSet, error) {
	out := make(NoteSet)
	for id := range in {
		if err := ec.tick(); err != nil {
			return nil, err
		}
		n, ok := ec.snap.Note(id)
		if ok && e.cmp(e.get(ec.snap, n)) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}
