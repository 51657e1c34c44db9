package graph

import (
	"fmt"
	"log/slog"
	"slices"
)

// CheckIndices rebuilds every derived index from the primary maps and
// compares it with the live one. On mismatch a debug build panics; a
// release build logs the problem and swaps in the rebuilt indices.
// It reports whether the indices were consistent.
func (c *Cache) CheckIndices() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := newState()
	fresh.notes = c.st.notes
	for _, b := range c.st.branches {
		fresh.addBranch(b)
	}
	for _, a := range c.st.attributes {
		fresh.addAttribute(a)
	}

	problem := diffIndices(c.st, fresh)
	if problem == "" {
		return true
	}
	if debugAssertions {
		panic("graph: index inconsistency: " + problem)
	}
	c.logger.Error("graph: index inconsistency, rebuilding", slog.String("problem", problem))
	c.st = fresh
	c.generation++
	return false
}

func diffIndices(live, fresh *state) string {
	if p := diffIndex("children", live.children, fresh.children, branchID); p != "" {
		return p
	}
	if p := diffIndex("parents", live.parents, fresh.parents, branchID); p != "" {
		return p
	}
	if p := diffIndex("owned", live.owned, fresh.owned, attributeID); p != "" {
		return p
	}
	if p := diffIndex("byName", live.byName, fresh.byName, attributeID); p != "" {
		return p
	}
	return diffIndex("targets", live.targets, fresh.targets, attributeID)
}

func branchID(b *Branch) string       { return b.ID }
func attributeID(a *Attribute) string { return a.ID }

func diffIndex[K comparable, T any](name string, live, fresh map[K][]*T, idOf func(*T) string) string {
	if len(live) != len(fresh) {
		return fmt.Sprintf("%s: %d keys, want %d", name, len(live), len(fresh))
	}
	for k, want := range fresh {
		got := live[k]
		if !slices.EqualFunc(got, want, func(a, b *T) bool { return idOf(a) == idOf(b) }) {
			return fmt.Sprintf("%s[%v]: entries differ", name, k)
		}
	}
	return ""
}
