package graph

import (
	"slices"
	"strings"

	"github.com/starford/arbor/internal/models"
)

// Snapshot is a read-only view of the cache valid for the duration of a
// View callback. It must not be retained after the callback returns.
type Snapshot struct {
	c   *Cache
	st  *state
	gen uint64
}

// Generation is the cache generation this snapshot was taken at.
func (s *Snapshot) Generation() uint64 { return s.gen }

// Note returns the note with the given id.
func (s *Snapshot) Note(id string) (Note, bool) {
	n, ok := s.st.notes[id]
	if !ok {
		return Note{}, false
	}
	return *n, true
}

// HasNote reports whether id is loaded.
func (s *Snapshot) HasNote(id string) bool {
	_, ok := s.st.notes[id]
	return ok
}

// NoteIDs returns all loaded note ids, deleted ones included, sorted.
func (s *Snapshot) NoteIDs() []string {
	out := make([]string, 0, len(s.st.notes))
	for id := range s.st.notes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// NoteCount is the number of loaded notes.
func (s *Snapshot) NoteCount() int { return len(s.st.notes) }

// ChildBranches returns id's child branches ordered by position then id.
func (s *Snapshot) ChildBranches(id string) []Branch {
	return derefAll(s.st.children[id])
}

// ParentBranches returns the branches attaching id to its parents, ordered by branch id.
func (s *Snapshot) ParentBranches(id string) []Branch {
	return derefAll(s.st.parents[id])
}

// Branch returns the branch with the given id.
func (s *Snapshot) Branch(id string) (Branch, bool) {
	b, ok := s.st.branches[id]
	if !ok {
		return Branch{}, false
	}
	return *b, true
}

// BranchBetween returns the branch placing child under parent, if any.
func (s *Snapshot) BranchBetween(parentID, childID string) (Branch, bool) {
	for _, b := range s.st.parents[childID] {
		if b.ParentNoteID == parentID {
			return *b, true
		}
	}
	return Branch{}, false
}

// OwnedAttributes returns the attributes owned by id in position order.
func (s *Snapshot) OwnedAttributes(id string) []Attribute {
	return derefAll(s.st.owned[id])
}

// FindAttributes returns every attribute with the given type and
// (case-insensitive) name, ordered by owner, position and id.
func (s *Snapshot) FindAttributes(typ models.AttributeType, name string) []Attribute {
	return derefAll(s.st.byName[keyOf(typ, name)])
}

// HasAttributeNamed reports whether any note owns an attribute of that type and name.
func (s *Snapshot) HasAttributeNamed(typ models.AttributeType, name string) bool {
	return len(s.st.byName[keyOf(typ, name)]) > 0
}

// AttributeValues returns the values of id's effective attributes with the
// given type and name, in precedence order.
func (s *Snapshot) AttributeValues(id string, typ models.AttributeType, name string) []string {
	var out []string
	for _, a := range s.EffectiveAttributes(id) {
		if a.Type == typ && strings.EqualFold(a.Name, name) {
			out = append(out, a.Value)
		}
	}
	return out
}

// LabelValue returns the first effective value of the label, if present.
func (s *Snapshot) LabelValue(id, name string) (string, bool) {
	vals := s.AttributeValues(id, models.AttributeLabel, name)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// NotesWithLabel returns ids of non-deleted notes whose effective attributes
// carry the label, sorted.
func (s *Snapshot) NotesWithLabel(name string) []string {
	return s.notesWithLabel(name, func(Attribute) bool { return true })
}

// NotesWithLabelValue is NotesWithLabel restricted to an exact value.
func (s *Snapshot) NotesWithLabelValue(name, value string) []string {
	return s.notesWithLabel(name, func(a Attribute) bool { return a.Value == value })
}

func (s *Snapshot) notesWithLabel(name string, match func(Attribute) bool) []string {
	var out []string
	for _, id := range s.AttributeCandidates(models.AttributeLabel, name) {
		if s.st.notes[id].IsDeleted {
			continue
		}
		for _, a := range s.EffectiveAttributes(id) {
			if a.IsLabel() && strings.EqualFold(a.Name, name) && match(a.Attribute) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func derefAll[T any](list []*T) []T {
	if len(list) == 0 {
		return nil
	}
	out := make([]T, len(list))
	for i, p := range list {
		out[i] = *p
	}
	return out
}
