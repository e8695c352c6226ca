// Package pathutil holds small predicates shared by the request-path and
// provider-path validation layers.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasPrefixFold reports whether s begins with prefix under Unicode simple
// case-folding. Equivalent to strings.HasPrefix for ASCII paths except that
// letter case is ignored.
func HasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
