package fileprovider

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/assetgate/internal/pathutil"
)

// fsName maps a site-absolute path to an io/fs name. Suspicious shapes are
// rejected outright rather than normalized away: NUL bytes, backslashes, and
// dot segments all fail the mapping.
func fsName(sitePath string) (string, bool) {
	if sitePath == "" || !strings.HasPrefix(sitePath, "/") {
		return "", false
	}
	if strings.ContainsRune(sitePath, 0) || strings.Contains(sitePath, `\`) {
		return "", false
	}
	if pathutil.HasDotSegments(sitePath) {
		return "", false
	}
	name := strings.TrimPrefix(path.Clean(sitePath), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}
