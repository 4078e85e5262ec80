package artifacts

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher matches workspace-relative paths against archive patterns.
// `*` and `?` stop at `/`, `**` crosses directories, and a pattern without
// wildcards also selects everything below it.
type Matcher struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewMatcher compiles patterns
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		pattern := normalizePattern(raw)
		if pattern == "" {
			continue
		}

		variants := []string{pattern}
		if !isGlob(pattern) {
			variants = append(variants, pattern+"/**")
		}
		for _, v := range variants {
			re, err := globToRegex(v)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", raw, err)
			}
			m.patterns = append(m.patterns, v)
			m.regexps = append(m.regexps, re)
		}
	}
	return m, nil
}

// Match reports whether path matches any pattern
func (m *Matcher) Match(path string) bool {
	path = filepath.ToSlash(path)
	for _, re := range m.regexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled pattern variants
func (m *Matcher) Patterns() []string {
	return m.patterns
}

func globToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			if i+2 < len(pattern) && pattern[i+2] == '/' {
				// `**/` also matches zero directories
				b.WriteString("(?:.*/)?")
				i += 3
			} else {
				b.WriteString(".*")
				i += 2
			}
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		case c == '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				b.WriteString("[^")
				j++
			} else {
				b.WriteString("[")
			}
			for j < len(pattern) && pattern[j] != ']' {
				if pattern[j] == '\\' && j+1 < len(pattern) {
					b.WriteByte(pattern[j])
					j++
				}
				b.WriteByte(pattern[j])
				j++
			}
			if j >= len(pattern) {
				return nil, fmt.Errorf("unclosed character class")
			}
			b.WriteByte(']')
			i = j + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func normalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	return strings.TrimSuffix(pattern, "/")
}
