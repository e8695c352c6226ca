package fileprovider

import "github.com/bmatcuk/doublestar/v4"

func isValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// matchPattern reports whether name matches the glob. The error arm only
// triggers for malformed patterns, which Watch filters out up front.
func matchPattern(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
