package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/arbor/internal/apperr"
)

// Comparison operators accepted after an attribute or property reference.
const (
	opEquals        = "="
	opNotEquals     = "!="
	opContains      = "*=*"
	opStartsWith    = "=*"
	opEndsWith      = "*="
	opRegex         = "%="
	opGreater       = ">"
	opGreaterEq     = ">="
	opLess          = "<"
	opLessEq        = "<="
	opFuzzyEquals   = "~="
	opFuzzyContains = "~*"
)

var knownOps = map[string]bool{
	opEquals: true, opNotEquals: true, opContains: true, opStartsWith: true,
	opEndsWith: true, opRegex: true, opGreater: true, opGreaterEq: true,
	opLess: true, opLessEq: true, opFuzzyEquals: true, opFuzzyContains: true,
}

// comparator tests one attribute or property value against the operand.
type comparator func(value string) bool

func buildComparator(op, operand string) (comparator, error) {
	lower := strings.ToLower(operand)
	switch op {
	case opEquals:
		return func(v string) bool { return strings.EqualFold(v, operand) }, nil
	case opNotEquals:
		return func(v string) bool { return !strings.EqualFold(v, operand) }, nil
	case opContains:
		return func(v string) bool { return strings.Contains(strings.ToLower(v), lower) }, nil
	case opStartsWith:
		return func(v string) bool { return strings.HasPrefix(strings.ToLower(v), lower) }, nil
	case opEndsWith:
		return func(v string) bool { return strings.HasSuffix(strings.ToLower(v), lower) }, nil
	case opRegex:
		re, err := regexp.Compile("(?i)" + operand)
		if err != nil {
			return nil, apperr.Validation(operand, "invalid regular expression: %v", err)
		}
		return re.MatchString, nil
	case opGreater, opGreaterEq, opLess, opLessEq:
		return ordered(op, operand), nil
	case opFuzzyEquals:
		return func(v string) bool { return fuzzyEquals(operand, v) }, nil
	case opFuzzyContains:
		return func(v string) bool { return FuzzyMatch(operand, v) }, nil
	}
	return nil, apperr.Validation(op, "unknown operator %q", op)
}

// ordered compares numerically when both sides parse as numbers and
// falls back to case-insensitive string order otherwise.
func ordered(op, operand string) comparator {
	num, numErr := strconv.ParseFloat(operand, 64)
	lower := strings.ToLower(operand)
	return func(v string) bool {
		var c int
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && numErr == nil {
			switch {
			case n < num:
				c = -1
			case n > num:
				c = 1
			}
		} else {
			c = strings.Compare(strings.ToLower(v), lower)
		}
		switch op {
		case opGreater:
			return c > 0
		case opGreaterEq:
			return c >= 0
		case opLess:
			return c < 0
		default:
			return c <= 0
		}
	}
}
