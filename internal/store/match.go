package store

// Match reports whether s matches pattern, where '*' matches any possibly
// empty run of characters and every other byte matches literally. This is
// the same subset redis SCAN MATCH uses for our patterns, implemented
// iteratively so runtime is bounded by len(pattern)+len(s) even for
// pathological inputs.
func Match(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0

	for si < len(s) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, si
			pi++
		case pi < len(pattern) && pattern[pi] == s[si]:
			pi++
			si++
		case star >= 0:
			// Backtrack: let the last '*' absorb one more byte.
			mark++
			pi, si = star+1, mark
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
