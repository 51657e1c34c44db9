package graph

import (
	"slices"
	"strings"

	"github.com/starford/arbor/internal/models"
)

// NotePath returns the preferred path of note ids from root to id. Paths
// that avoid the hidden subtree win over ones through it; otherwise parents
// are tried in branch id order. A note that cannot reach root yields the
// partial chain ending at id. Unknown notes yield nil.
func (s *Snapshot) NotePath(id string) []string {
	if !s.HasNote(id) {
		return nil
	}
	pf := &pathFinder{s: s, memo: make(map[string][]string), visiting: make(map[string]bool)}
	if p := pf.best(id, 0); p != nil {
		return p
	}
	return []string{id}
}

type pathFinder struct {
	s        *Snapshot
	memo     map[string][]string
	visiting map[string]bool
}

func (pf *pathFinder) best(id string, depth int) []string {
	if id == RootID {
		return []string{RootID}
	}
	if p, ok := pf.memo[id]; ok {
		return p
	}
	if depth >= pf.s.c.maxDepth || pf.visiting[id] {
		return nil
	}
	pf.visiting[id] = true
	defer delete(pf.visiting, id)

	var fallback []string
	for _, b := range pf.s.st.parents[id] {
		if b.FromSearchNote {
			continue
		}
		p := pf.best(b.ParentNoteID, depth+1)
		if p == nil {
			continue
		}
		candidate := append(slices.Clone(p), id)
		if !slices.Contains(candidate, HiddenRootID) {
			pf.memo[id] = candidate
			return candidate
		}
		if fallback == nil {
			fallback = candidate
		}
	}
	if fallback != nil {
		pf.memo[id] = fallback
	}
	return fallback
}

// NoteTitle is id's title as displayed under parentID, including the
// branch prefix when one is set.
func (s *Snapshot) NoteTitle(id, parentID string) string {
	n, ok := s.st.notes[id]
	if !ok {
		return "[missing]"
	}
	title := n.DisplayTitle()
	if b, ok := s.BranchBetween(parentID, id); ok && b.Prefix != "" {
		return b.Prefix + " - " + title
	}
	return title
}

// PathTitle joins the display titles along path with " / ", leaving out root.
func (s *Snapshot) PathTitle(path []string) string {
	var parts []string
	for i, id := range path {
		if id == RootID {
			continue
		}
		parent := ""
		if i > 0 {
			parent = path[i-1]
		}
		parts = append(parts, s.NoteTitle(id, parent))
	}
	return strings.Join(parts, " / ")
}

// NoteIcon is the icon class for id: an effective iconClass label wins,
// then a folder icon for text notes with children, then the type default.
func (s *Snapshot) NoteIcon(id string) string {
	if v, ok := s.LabelValue(id, "iconClass"); ok && v != "" {
		return v
	}
	n, ok := s.st.notes[id]
	if !ok {
		return models.NoteTypeText.Capabilities().Icon
	}
	if n.Type == models.NoteTypeText && len(s.st.children[id]) > 0 {
		return "bx bx-folder"
	}
	return n.Type.Capabilities().Icon
}
