package search

import (
	"regexp"
	"strings"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// Query is a compiled search query.
type Query struct {
	// Raw is the query text as given.
	Raw string
	// Text is the free text as typed, filters removed. It is what an id
	// lookup compares against.
	Text string
	// Tokens are the normalized free-text tokens, in query order, used for
	// scoring.
	Tokens []string
	expr   Expression
}

// Empty reports whether the query has neither text nor filters.
func (q *Query) Empty() bool {
	_, all := q.expr.(matchAll)
	return all && len(q.Tokens) == 0
}

var attrNameRe = regexp.MustCompile(`^[\p{L}\p{N}_:.\-]+$`)

// Compile parses query text. Fragments that cannot be read as filters are
// treated as free text; only unknown operators, malformed operands and
// fuzzy operands that are too short are rejected, with a
// *apperr.ValidationError naming the offending token.
func Compile(query string) (*Query, error) {
	p := &parser{toks: lex(query)}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	// Unmatched closing parentheses are dropped; keep reading after them.
	for p.pos < len(p.toks) {
		p.pos++
		rest, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		expr = and(expr, rest)
	}
	if expr == nil {
		expr = matchAll{}
	}
	return &Query{Raw: query, Text: strings.Join(p.raw, " "), Tokens: p.text, expr: expr}, nil
}

type parser struct {
	toks []token
	pos  int
	text []string
	raw  []string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) keyword(kw string) bool {
	t, ok := p.peek()
	return ok && !t.quoted && strings.EqualFold(t.text, kw)
}

func (p *parser) parseOr() (Expression, error) {
	var alts []Expression
	for {
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if e != nil {
			alts = append(alts, e)
		}
		if !p.keyword("or") {
			break
		}
		p.pos++
	}
	switch len(alts) {
	case 0:
		return nil, nil
	case 1:
		return alts[0], nil
	}
	return &orExp{children: alts}, nil
}

func (p *parser) parseAnd() (Expression, error) {
	var parts []Expression
	for {
		t, ok := p.peek()
		if !ok || p.keyword("or") || (!t.quoted && t.text == ")") {
			break
		}
		if p.keyword("and") {
			p.pos++
			continue
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if e != nil {
			parts = append(parts, e)
		}
	}
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	}
	return &andExp{children: parts}, nil
}

func (p *parser) parseUnary() (Expression, error) {
	t := p.toks[p.pos]
	p.pos++

	if !t.quoted {
		switch {
		case strings.EqualFold(t.text, "not") && p.nextIs("("):
			p.pos++
			inner, err := p.parseGroup()
			if err != nil || inner == nil {
				return nil, err
			}
			return &notExp{child: inner}, nil
		case t.text == "(":
			return p.parseGroup()
		case t.op:
			// An operator with nothing sensible before it reads as text.
			return p.textToken(t.text), nil
		case len(t.text) > 1 && (t.text[0] == '#' || t.text[0] == '~'):
			if e, ok, err := p.parseAttribute(t); ok || err != nil {
				return e, err
			}
		case strings.HasPrefix(strings.ToLower(t.text), "note."):
			return p.parseProperty(t)
		}
	}
	return p.textToken(t.text), nil
}

func (p *parser) nextIs(text string) bool {
	t, ok := p.peek()
	return ok && !t.quoted && t.text == text
}

// parseGroup reads up to the matching ")"; a missing one is implied at the end.
func (p *parser) parseGroup() (Expression, error) {
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.nextIs(")") {
		p.pos++
	}
	return e, nil
}

func (p *parser) textToken(s string) Expression {
	tok := Normalize(strings.TrimSpace(s))
	if tok == "" {
		return nil
	}
	p.text = append(p.text, tok)
	p.raw = append(p.raw, strings.TrimSpace(s))
	return &textExp{token: tok}
}

// parseAttribute reads #label / #!label / ~relation filters. ok is false
// when t is not a well-formed attribute reference and should be text.
func (p *parser) parseAttribute(t token) (e Expression, ok bool, err error) {
	typ := models.AttributeLabel
	if t.text[0] == '~' {
		typ = models.AttributeRelation
	}
	name := t.text[1:]
	negated := false
	if typ == models.AttributeLabel && strings.HasPrefix(name, "!") {
		negated = true
		name = name[1:]
	}
	if !attrNameRe.MatchString(name) {
		return nil, false, nil
	}

	exp := &attributeExp{typ: typ, name: name}
	if op, has := p.peek(); has && op.op {
		p.pos++
		cmp, err := p.operand(op)
		if err != nil {
			return nil, true, err
		}
		exp.cmp = cmp
	}
	if negated {
		if exp.cmp != nil {
			return nil, true, apperr.Validation(t.text, "negated label filters take no operator")
		}
		return &notExp{child: exp}, true, nil
	}
	return exp, true, nil
}

func (p *parser) parseProperty(t token) (Expression, error) {
	prop := strings.ToLower(strings.TrimPrefix(strings.ToLower(t.text), "note."))
	get, ok := noteProperties[prop]
	if !ok {
		return nil, apperr.Validation(t.text, "unknown note property")
	}
	op, has := p.peek()
	if !has || !op.op {
		return nil, apperr.Validation(t.text, "note property filters need an operator")
	}
	p.pos++
	cmp, err := p.operand(op)
	if err != nil {
		return nil, err
	}
	if cmp == nil {
		return &propertyExp{get: get, cmp: func(v string) bool { return v != "" }}, nil
	}
	return &propertyExp{get: get, cmp: cmp}, nil
}

// operand consumes the value after op and builds the comparator. A bare
// "=*" (no adjacent value) means existence and yields a nil comparator.
func (p *parser) operand(op token) (comparator, error) {
	if !knownOps[op.text] {
		return nil, apperr.Validation(op.text, "unknown operator %q", op.text)
	}
	v, has := p.peek()
	usable := has && !v.op && (v.quoted || (v.text != "(" && v.text != ")"))
	if op.text == opStartsWith && (!usable || (v.spaced && !op.spaced)) {
		return nil, nil
	}
	if !usable {
		return nil, apperr.Validation(op.text, "operator %s needs a value", op.text)
	}
	p.pos++
	if err := ValidateTokens(op.text, []string{v.text}); err != nil {
		if v.quoted && !isFuzzyOp(op.text) && v.text == "" {
			return buildComparator(op.text, "")
		}
		return nil, err
	}
	return buildComparator(op.text, v.text)
}

func and(a, b Expression) Expression {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &andExp{children: []Expression{a, b}}
}
