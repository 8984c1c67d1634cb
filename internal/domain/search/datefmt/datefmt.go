// Package datefmt translates SimpleDateFormat-style patterns
// (yyyy-MM-dd'T'HH:mm:ssZZZ) into Go reference layouts.
package datefmt

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPattern is the pattern used when none is configured.
const DefaultPattern = "yyyy-MM-dd'T'HH:mm:ssZZZ"

// Go layout chunks that a literal must not spell out.
var reservedLiterals = []string{"Jan", "Mon", "MST", "PM", "pm"}

// Layout is a parsed pattern together with its Go layout.
type Layout struct {
	pattern string
	layout  string
}

// Parse converts pattern into a Layout.
func Parse(pattern string) (Layout, error) {
	if pattern == "" {
		return Layout{}, fmt.Errorf("date pattern is required")
	}
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\'' {
			lit, next, err := quoted(runes, i)
			if err != nil {
				return Layout{}, fmt.Errorf("pattern %q: %w", pattern, err)
			}
			if err := checkLiteral(lit); err != nil {
				return Layout{}, fmt.Errorf("pattern %q: %w", pattern, err)
			}
			b.WriteString(lit)
			i = next
			continue
		}

		if !isLetter(r) {
			if r >= '0' && r <= '9' {
				return Layout{}, fmt.Errorf("pattern %q: digit literals are not supported", pattern)
			}
			b.WriteRune(r)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == r {
			n++
		}
		chunk, err := translate(r, n, b.String())
		if err != nil {
			return Layout{}, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		b.WriteString(chunk)
		i += n
	}
	return Layout{pattern: pattern, layout: b.String()}, nil
}

// MustParse is Parse that panics on error.
func MustParse(pattern string) Layout {
	l, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return l
}

// Pattern returns the source pattern.
func (l Layout) Pattern() string { return l.pattern }

// GoLayout returns the equivalent Go reference layout.
func (l Layout) GoLayout() string { return l.layout }

// Format renders t with the layout.
func (l Layout) Format(t time.Time) string { return t.Format(l.layout) }

// Parse reads s with the layout.
func (l Layout) Parse(s string) (time.Time, error) {
	t, err := time.Parse(l.layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q with pattern %q: %w", s, l.pattern, err)
	}
	return t, nil
}

func translate(r rune, n int, prefix string) (string, error) {
	switch r {
	case 'y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch {
		case n == 1:
			return "1", nil
		case n == 2:
			return "01", nil
		case n == 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		return pad(n, "2", "02"), nil
	case 'H':
		return "15", nil
	case 'h':
		return pad(n, "3", "03"), nil
	case 'm':
		return pad(n, "4", "04"), nil
	case 's':
		return pad(n, "5", "05"), nil
	case 'S':
		if !strings.HasSuffix(prefix, ".") && !strings.HasSuffix(prefix, ",") {
			return "", fmt.Errorf("fractional seconds must follow '.' or ','")
		}
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'E':
		if n >= 4 {
			return "Monday", nil
		}
		return "Mon", nil
	case 'Z':
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "-07", nil
		case 2:
			return "-0700", nil
		default:
			return "-07:00", nil
		}
	case 'z':
		return "MST", nil
	default:
		return "", fmt.Errorf("unsupported pattern letter %q", r)
	}
}

func pad(n int, short, long string) string {
	if n >= 2 {
		return long
	}
	return short
}

// quoted reads a '...' literal starting at runes[i]; '' is an escaped quote.
func quoted(runes []rune, i int) (string, int, error) {
	if i+1 < len(runes) && runes[i+1] == '\'' {
		return "'", i + 2, nil
	}
	var b strings.Builder
	for j := i + 1; j < len(runes); j++ {
		if runes[j] != '\'' {
			b.WriteRune(runes[j])
			continue
		}
		if j+1 < len(runes) && runes[j+1] == '\'' {
			b.WriteRune('\'')
			j++
			continue
		}
		return b.String(), j + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated quote")
}

func checkLiteral(lit string) error {
	if strings.ContainsAny(lit, "0123456789") {
		return fmt.Errorf("digit literals are not supported")
	}
	for _, r := range reservedLiterals {
		if strings.Contains(lit, r) {
			return fmt.Errorf("literal %q collides with layout token %q", lit, r)
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
