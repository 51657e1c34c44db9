package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/arbor/internal/apperr"
)

const (
	// MinFuzzyTokenLength is the shortest token the fuzzy operators accept.
	MinFuzzyTokenLength = 3
	// maxFuzzyDistance caps the accepted edit distance regardless of length.
	maxFuzzyDistance = 2
	// maxEditDistanceInput is the rune length above which EditDistance
	// switches to a linear estimate.
	maxEditDistanceInput = 1000
)

// Normalize lowercases s and strips combining marks, so "Café" becomes "cafe".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// EditDistance is the Levenshtein distance between a and b in runes.
// When either input is longer than 1000 runes it returns a cheap estimate
// instead: the length difference plus mismatches over the aligned prefix.
// The estimate never undercounts the length difference.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > maxEditDistanceInput || len(rb) > maxEditDistanceInput {
		return estimateDistance(ra, rb)
	}
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func estimateDistance(a, b []rune) int {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	d := len(long) - len(short)
	for i := range short {
		if short[i] != long[i] {
			d++
		}
	}
	return d
}

// fuzzyThreshold is the edit distance accepted for a token of n runes.
func fuzzyThreshold(n int) int {
	switch {
	case n < MinFuzzyTokenLength:
		return 0
	case n <= 5:
		return 1
	default:
		return maxFuzzyDistance
	}
}

// FuzzyMatch reports whether token occurs in text, either as a substring
// after normalization or as a word within the length-scaled edit distance.
// Empty inputs never match; tokens shorter than three runes only match
// exactly.
func FuzzyMatch(token, text string) bool {
	token, text = Normalize(strings.TrimSpace(token)), Normalize(text)
	if token == "" || text == "" {
		return false
	}
	if strings.Contains(text, token) {
		return true
	}
	n := utf8.RuneCountInString(token)
	threshold := fuzzyThreshold(n)
	if threshold == 0 {
		return false
	}
	for _, word := range splitWords(text) {
		if abs(utf8.RuneCountInString(word)-n) > threshold {
			continue
		}
		if EditDistance(token, word) <= threshold {
			return true
		}
	}
	return false
}

// fuzzyEquals compares whole values rather than words.
func fuzzyEquals(token, value string) bool {
	token, value = Normalize(strings.TrimSpace(token)), Normalize(strings.TrimSpace(value))
	if token == "" || value == "" {
		return false
	}
	if token == value {
		return true
	}
	n := utf8.RuneCountInString(token)
	threshold := fuzzyThreshold(n)
	if threshold == 0 || abs(utf8.RuneCountInString(value)-n) > threshold {
		return false
	}
	return EditDistance(token, value) <= threshold
}

// ValidateTokens checks the operands of an operator before a query runs.
// The fuzzy operators need at least three characters per token.
func ValidateTokens(op string, tokens []string) error {
	if len(tokens) == 0 {
		return apperr.Validation(op, "at least one token is required")
	}
	for _, tok := range tokens {
		trimmed := strings.TrimSpace(tok)
		if trimmed == "" {
			return apperr.Validation(tok, "token must not be blank")
		}
		if isFuzzyOp(op) && utf8.RuneCountInString(trimmed) < MinFuzzyTokenLength {
			return apperr.Validation(tok, "fuzzy operator %s requires at least %d characters", op, MinFuzzyTokenLength)
		}
	}
	return nil
}

func isFuzzyOp(op string) bool { return op == opFuzzyEquals || op == opFuzzyContains }

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
