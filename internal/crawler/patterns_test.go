package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExcludeMatcher_PrefixSemantics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		patterns []string
		url      string
		want     bool
	}{
		{name: "prefix match", patterns: []string{"foo"}, url: "foobar", want: true},
		{name: "prefix with path", patterns: []string{"foo"}, url: "foo/x", want: true},
		{name: "not at start", patterns: []string{"foo"}, url: "xfoo", want: false},
		{name: "anchored admin", patterns: []string{"^/admin"}, url: "/admin/x", want: true},
		{name: "anchored admin mid string", patterns: []string{"^/admin"}, url: "/x/admin", want: false},
		{name: "alternation stays anchored", patterns: []string{"a|b"}, url: "xb", want: false},
		{name: "full url pattern", patterns: []string{`https://example\.com/private`}, url: "https://example.com/private/1", want: true},
		{name: "any of several", patterns: []string{"zzz", "https://"}, url: "https://example.com", want: true},
		{name: "no patterns", patterns: nil, url: "https://example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := CompileExcludePatterns(tt.patterns)
			require.NoError(t, err)
			require.Equal(t, tt.want, m.Match(tt.url))
		})
	}
}

func TestCompileExcludePatterns_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := CompileExcludePatterns([]string{"("})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"("`)
}

func TestExcludeMatcher_NilMatchesNothing(t *testing.T) {
	t.Parallel()

	var m *ExcludeMatcher
	require.False(t, m.Match("https://example.com"))
}
