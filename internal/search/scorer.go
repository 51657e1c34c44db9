package search

import (
	"strings"

	"github.com/starford/arbor/internal/graph"
)

// Score weights. Only their relative order is meaningful.
const (
	idMatchBonus     = 10000
	exactTitleBonus  = 2000
	titlePrefixBonus = 500
	titleWordBonus   = 300

	titleFactor = 2.0
	pathFactor  = 0.3

	hiddenPenalty = 3
)

// Score ranks note id for a query; higher is better. query is the raw
// free text and tokens its normalized words. Ties are left to the caller.
func Score(snap *graph.Snapshot, id, query string, tokens []string) float64 {
	n, ok := snap.Note(id)
	if !ok {
		return 0
	}
	var score float64

	raw := strings.TrimSpace(query)
	q := Normalize(raw)
	if raw != "" && id == raw {
		score += idMatchBonus
	}

	title := Normalize(n.DisplayTitle())
	if q != "" {
		switch {
		case title == q:
			score += exactTitleBonus
		case strings.HasPrefix(title, q):
			score += titlePrefixBonus
		}
		if containsWord(title, q) {
			score += titleWordBonus
		}
	}

	score += tokenScore(tokens, title, titleFactor)
	score += tokenScore(tokens, Normalize(snap.PathTitle(snap.NotePath(id))), pathFactor)

	if snap.IsInHiddenSubtree(id) {
		score /= hiddenPenalty
	}
	return score
}

// tokenScore rewards each token per word of s: an exact word counts four
// times the token length, a word prefix twice, a substring once.
func tokenScore(tokens []string, s string, factor float64) float64 {
	if s == "" {
		return 0
	}
	words := strings.Fields(s)
	var score float64
	for _, tok := range tokens {
		l := float64(len([]rune(tok)))
		for _, w := range words {
			switch {
			case w == tok:
				score += 4 * l * factor
			case strings.HasPrefix(w, tok):
				score += 2 * l * factor
			case strings.Contains(w, tok):
				score += l * factor
			}
		}
	}
	return score
}

// containsWord reports whether phrase occurs in s bounded by spaces or the
// ends of s.
func containsWord(s, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		if (start == 0 || s[start-1] == ' ') && (end == len(s) || s[end] == ' ') {
			return true
		}
		i = start + 1
		if i >= len(s) {
			return false
		}
	}
}
