package assets

import (
	"embed"
	"fmt"
	"io/fs"
)

// static/ and fallback/ must exist and have at least one file each to satisfy go:embed
//
//go:embed static fallback
var embedded embed.FS

// SiteFS returns the embedded tree rooted so that its top level contains
// static/. Bundled lookups for site paths like /static/css/site.css therefore
// line up with the default restriction prefix without any remapping.
func SiteFS() fs.FS {
	return embedded
}

// FallbackFS returns the error pages (404.html) rooted at fallback/.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("assets: fallback subfs: %w", err))
	}
	return sub
}
