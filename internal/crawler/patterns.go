package crawler

import (
	"fmt"
	"regexp"
)

// ExcludeMatcher tests URLs against exclusion patterns. A pattern matches when it
// matches a prefix of the URL, not necessarily the whole string.
type ExcludeMatcher struct {
	patterns []*regexp.Regexp
}

// CompileExcludePatterns anchors every pattern at the start of the input.
func CompileExcludePatterns(patterns []string) (*ExcludeMatcher, error) {
	m := &ExcludeMatcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether any pattern matches a prefix of rawURL.
func (m *ExcludeMatcher) Match(rawURL string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
