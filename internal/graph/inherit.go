package graph

import (
	"slices"

	"github.com/starford/arbor/internal/models"
)

// Origin tells where an effective attribute came from.
type Origin int

const (
	OriginOwned Origin = iota
	OriginTemplate
	OriginAncestor
)

func (o Origin) String() string {
	switch o {
	case OriginTemplate:
		return "template"
	case OriginAncestor:
		return "ancestor"
	default:
		return "owned"
	}
}

// EffectiveAttribute is an attribute as seen from a particular note. The
// embedded Attribute keeps its real owner in NoteID.
type EffectiveAttribute struct {
	Attribute
	Origin Origin
}

// EffectiveAttributes returns id's owned attributes, then attributes of its
// templates (recursively, cycle-guarded), then the inheritable attributes
// owned by its ancestors, nearest first. Entries with the same type and name
// are not merged; the first one wins for callers that want a single value.
// An attribute row never appears twice. Unknown notes yield nil.
//
// Results are memoized per cache generation.
func (s *Snapshot) EffectiveAttributes(id string) []EffectiveAttribute {
	c := s.c
	c.memoMu.Lock()
	if c.memoGen != s.gen {
		c.memo = make(map[string][]EffectiveAttribute)
		c.memoGen = s.gen
	}
	cached, ok := c.memo[id]
	c.memoMu.Unlock()
	if ok {
		return slices.Clone(cached)
	}

	out := s.resolve(id, make(map[string]bool))
	c.memoMu.Lock()
	if c.memoGen == s.gen {
		c.memo[id] = out
	}
	c.memoMu.Unlock()
	return slices.Clone(out)
}

// resolve computes the effective set with visiting holding the template
// chain currently being expanded. Intermediate results depend on visiting,
// so only top-level results are memoized.
func (s *Snapshot) resolve(id string, visiting map[string]bool) []EffectiveAttribute {
	if _, ok := s.st.notes[id]; !ok {
		return nil
	}
	visiting[id] = true
	defer delete(visiting, id)

	seen := make(map[string]bool)
	var out []EffectiveAttribute
	add := func(a Attribute, origin Origin) {
		if seen[a.ID] {
			return
		}
		seen[a.ID] = true
		out = append(out, EffectiveAttribute{Attribute: a, Origin: origin})
	}

	owned := s.st.owned[id]
	for _, a := range owned {
		add(*a, OriginOwned)
	}

	for _, a := range owned {
		if !a.isTemplateLink() || visiting[a.Value] {
			continue
		}
		for _, ta := range s.resolve(a.Value, visiting) {
			add(ta.Attribute, OriginTemplate)
		}
	}

	for _, anc := range s.ancestors(id) {
		for _, a := range s.st.owned[anc] {
			if a.IsInheritable {
				add(*a, OriginAncestor)
			}
		}
	}
	return out
}

// ancestors returns id's proper ancestors in breadth-first order (nearest
// first), each at most once, bounded by the cache's max depth. Virtual
// branches produced by search notes are not followed.
func (s *Snapshot) ancestors(id string) []string {
	visited := map[string]bool{id: true}
	var out []string
	frontier := []string{id}
	for depth := 0; depth < s.c.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, n := range frontier {
			for _, b := range s.st.parents[n] {
				if b.FromSearchNote || visited[b.ParentNoteID] {
					continue
				}
				visited[b.ParentNoteID] = true
				out = append(out, b.ParentNoteID)
				next = append(next, b.ParentNoteID)
			}
		}
		frontier = next
	}
	return out
}

// Ancestors returns id's proper ancestors, nearest first.
func (s *Snapshot) Ancestors(id string) []string {
	return s.ancestors(id)
}

// Descendants returns every note below id (id excluded), each once, in
// breadth-first order. Virtual search branches are not followed.
func (s *Snapshot) Descendants(id string) []string {
	visited := map[string]bool{id: true}
	var out []string
	frontier := []string{id}
	for depth := 0; depth < s.c.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, n := range frontier {
			for _, b := range s.st.children[n] {
				if b.FromSearchNote || visited[b.NoteID] {
					continue
				}
				visited[b.NoteID] = true
				out = append(out, b.NoteID)
				next = append(next, b.NoteID)
			}
		}
		frontier = next
	}
	return out
}

// IsDescendantOf reports whether ancestorID is a proper ancestor of id.
func (s *Snapshot) IsDescendantOf(id, ancestorID string) bool {
	return slices.Contains(s.ancestors(id), ancestorID)
}

// IsInHiddenSubtree reports whether id is the hidden root or lives below it.
func (s *Snapshot) IsInHiddenSubtree(id string) bool {
	return id == HiddenRootID || s.IsDescendantOf(id, HiddenRootID)
}

// AttributeCandidates returns, sorted, a superset of the notes whose
// effective attributes may contain an attribute of the given type and name:
// the owners, descendants of owners holding an inheritable copy, and every
// note reaching one of those through template relations. Callers verify
// each candidate against EffectiveAttributes.
func (s *Snapshot) AttributeCandidates(typ models.AttributeType, name string) []string {
	set := make(map[string]bool)
	for _, a := range s.st.byName[keyOf(typ, name)] {
		set[a.NoteID] = true
		if a.IsInheritable {
			for _, d := range s.Descendants(a.NoteID) {
				set[d] = true
			}
		}
	}

	queue := make([]string, 0, len(set))
	for id := range set {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]
		for _, rel := range s.st.targets[target] {
			if !rel.isTemplateLink() || set[rel.NoteID] {
				continue
			}
			set[rel.NoteID] = true
			queue = append(queue, rel.NoteID)
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		if _, ok := s.st.notes[id]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
