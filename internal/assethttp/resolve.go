package assethttp

import (
	"path"
	"strings"

	"github.com/keithlinneman/assetgate/internal/pathutil"
)

// cleanRequestPath maps a URL path to a provider site path.
//
// Returns:
// - sitePath: cleaned absolute path, no trailing slash (except root "/")
// - listing: whether the request asked for a directory (trailing slash)
// - ok: whether the path is well formed
//
// The provider enforces the restriction prefix; this only rejects shapes
// that should never reach it.
func cleanRequestPath(urlPath string) (sitePath string, listing bool, ok bool) {
	p := urlPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// basic rejection of ambiguous/unsafe paths
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", false, false
	}
	if pathutil.HasDotSegments(p) {
		return "", false, false
	}

	trailingSlash := strings.HasSuffix(p, "/")

	clean := path.Clean(p)
	if clean == "/" {
		return "/", true, true
	}
	return clean, trailingSlash, true
}
