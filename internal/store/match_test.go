package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"", "", true},
		{"", "x", false},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"ns:*", "ns:abc123", true},
		{"ns:*", "other:abc123", false},
		{"*:abc", "ns:abc", true},
		{"a*c", "abc", true},
		{"a*c", "ac", true},
		{"a*c", "abd", false},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXcYb", false},
		{"**", "whatever", true},
		{"prod:*:gpt-4*", "prod:chat:gpt-4o", true},
		{"prod:*:gpt-4*", "prod:chat:claude", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Match(tc.pattern, tc.s), "Match(%q, %q)", tc.pattern, tc.s)
	}
}

func TestMatchBacktracking(t *testing.T) {
	// Patterns that blow up naive recursive matchers.
	s := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaab"
	require.True(t, Match("*a*a*a*a*a*a*a*a*b", s))
	require.False(t, Match("*a*a*a*a*a*a*a*a*c", s))
}
