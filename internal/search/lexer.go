package search

import (
	"strings"
	"unicode"
)

// token is one lexical unit of a query.
type token struct {
	text   string
	quoted bool
	// spaced is true when whitespace (or the start of input) precedes the token.
	spaced bool
	// op marks a run of operator characters following an attribute or
	// property reference.
	op bool
}

const operatorChars = "=!<>*%~"

func isQuote(r rune) bool { return r == '"' || r == '\'' || r == '`' }

// isReference reports whether s names an attribute or note property, the
// only tokens an operator may follow.
func isReference(s string) bool {
	return (len(s) > 1 && (s[0] == '#' || s[0] == '~')) || strings.HasPrefix(strings.ToLower(s), "note.")
}

func isOperatorRun(s string) bool {
	return s != "" && strings.Trim(s, operatorChars) == ""
}

// lex splits a query into tokens. It never fails: an unterminated quote
// simply runs to the end of input.
func lex(query string) []token {
	var (
		out     []token
		cur     strings.Builder
		spaced  = true
		inQuote rune
	)
	flush := func(quoted bool) {
		if cur.Len() == 0 && !quoted {
			return
		}
		t := token{text: cur.String(), quoted: quoted, spaced: spaced}
		if !quoted && isOperatorRun(t.text) && len(out) > 0 {
			prev := out[len(out)-1]
			t.op = !prev.quoted && !prev.op && isReference(prev.text)
		}
		out = append(out, t)
		cur.Reset()
		spaced = false
	}

	rs := []rune(query)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
				flush(true)
				continue
			}
			cur.WriteRune(r)

		case unicode.IsSpace(r):
			flush(false)
			spaced = true

		case isQuote(r) && cur.Len() == 0:
			inQuote = r

		case r == '(' || r == ')':
			flush(false)
			cur.WriteRune(r)
			flush(false)

		case strings.ContainsRune(operatorChars, r) && isReference(cur.String()):
			flush(false)
			j := i
			for j < len(rs) && strings.ContainsRune(operatorChars, rs[j]) {
				j++
			}
			out = append(out, token{text: string(rs[i:j]), spaced: spaced, op: true})
			spaced = false
			i = j - 1

		default:
			cur.WriteRune(r)
		}
	}
	flush(inQuote != 0)
	return out
}
