// Package sanitize normalizes user-supplied filter values before they reach
// the query-string parser of the search engine.
package sanitize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// specials are the Lucene classic query parser metacharacters.
const specials = `\+-!():^[]"{}~*?|&/`

var stripper = strings.NewReplacer("*", "", "^", "")

// Value stringifies raw and makes it safe for query parsing:
// trim, drop wildcard and boost markers, escape metacharacters, and
// restore hyphens so dates and ranges like 2020-01-01 stay intact.
func Value(raw any) string {
	s := strings.TrimSpace(stringify(raw))
	s = stripper.Replace(s)
	s = Escape(s)
	return strings.ReplaceAll(s, `\-`, "-")
}

// Escape prefixes every query parser metacharacter with a backslash.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QueryStringTerm wraps a single non-digit character in wildcards.
// query_string cannot match one-character tokens on analyzed fields otherwise.
func QueryStringTerm(s string) string {
	if utf8.RuneCountInString(s) != 1 {
		return s
	}
	if s[0] >= '0' && s[0] <= '9' {
		return s
	}
	return "*" + s + "*"
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
