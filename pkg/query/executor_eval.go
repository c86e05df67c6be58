package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// rowValue resolves a column reference against a row. Qualified names
// fall back to their base column, and the _id pseudo-column exposes
// the row id.
func rowValue(row *storage.Row, col string) (storage.Value, bool) {
	if col == "_id" || strings.HasSuffix(col, "._id") {
		return storage.FromNative(row.ID), true
	}
	if v, ok := row.Columns[col]; ok {
		return v, true
	}
	if base := baseColumn(col); base != col {
		if v, ok := row.Columns[base]; ok {
			return v, true
		}
	}
	return storage.Value{Type: storage.TypeNull}, false
}

// evalCondition evaluates a predicate tree against one row
func evalCondition(row *storage.Row, c *Condition) (bool, error) {
	if len(c.Or) > 0 {
		for _, term := range c.Or {
			ok, err := evalCondition(row, term)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	if len(c.And) > 0 {
		for _, term := range c.And {
			ok, err := evalCondition(row, term)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	v, present := rowValue(row, c.Column)
	if !present {
		return false, nil
	}

	switch c.Op {
	case "=":
		return storage.Compare(v, c.Value) == 0, nil
	case "!=", "<>":
		return storage.Compare(v, c.Value) != 0, nil
	case "<":
		return storage.Compare(v, c.Value) < 0, nil
	case "<=":
		return storage.Compare(v, c.Value) <= 0, nil
	case ">":
		return storage.Compare(v, c.Value) > 0, nil
	case ">=":
		return storage.Compare(v, c.Value) >= 0, nil
	case "IN":
		for _, candidate := range c.Values {
			if storage.Compare(v, candidate) == 0 {
				return true, nil
			}
		}
		return false, nil
	case "BETWEEN":
		return storage.Compare(v, c.Low) >= 0 && storage.Compare(v, c.High) <= 0, nil
	case "LIKE":
		pattern, _ := c.Value.AsString()
		re, err := likePattern(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(valueText(v)), nil
	case "CONTAINS":
		needle, _ := c.Value.AsString()
		return strings.Contains(strings.ToLower(valueText(v)), strings.ToLower(needle)), nil
	case "REGEX":
		pattern, _ := c.Value.AsString()
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		return re.MatchString(valueText(v)), nil
	case "FUZZY":
		needle, _ := c.Value.AsString()
		return fuzzyMatch(valueText(v), needle), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", c.Op)
	}
}

// likePattern translates SQL LIKE wildcards into an anchored,
// case-insensitive regular expression.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// fuzzyMatch tolerates up to two edits between the candidate and the
// search term, compared case-insensitively.
func fuzzyMatch(candidate, needle string) bool {
	a := strings.ToLower(candidate)
	b := strings.ToLower(needle)
	if strings.Contains(a, b) {
		return true
	}
	return levenshtein(a, b) <= 2
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func valueText(v storage.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return fmt.Sprintf("%v", v.Native())
}

// joinKeyText canonicalizes a join key so 5 and 5.0 hash together
func joinKeyText(v storage.Value) string {
	if f, ok := v.AsFloat(); ok {
		return fmt.Sprintf("%g", f)
	}
	return valueText(v)
}
