package fileprovider

import (
	"fmt"
	"strings"

	"github.com/keithlinneman/assetgate/internal/pathutil"
)

// Restricted gates a provider behind a path prefix. Paths outside the prefix
// resolve to not-found without touching any backend; paths inside delegate to
// the primary provider, with files (never listings) optionally shadowed by an
// override provider consulted first.
//
// The prefix match for listings is case-sensitive while the match for files
// folds case. Deployed consumers rely on both behaviors, so they stay split.
type Restricted struct {
	prefix   string
	primary  Provider
	override Provider
}

var _ Provider = (*Restricted)(nil)

type RestrictedOption func(*Restricted)

// WithOverride supplies a provider consulted before the primary when
// resolving files. Its lifecycle stays with the caller.
func WithOverride(p Provider) RestrictedOption {
	return func(r *Restricted) { r.override = p }
}

// NewRestricted validates and normalizes the restriction path and wraps
// primary. The path has leading '~' characters stripped and must then be
// absolute and name something below the root.
func NewRestricted(primary Provider, restrictTo string, opts ...RestrictedOption) (*Restricted, error) {
	if primary == nil {
		return nil, fmt.Errorf("%w: primary provider is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(restrictTo) == "" {
		return nil, fmt.Errorf("%w: restriction path", ErrEmptyArgument)
	}
	prefix := strings.TrimLeft(restrictTo, "~")
	if !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("%w: restriction path %q must begin with /", ErrInvalidArgument, restrictTo)
	}
	if len(prefix) <= 1 {
		return nil, fmt.Errorf("%w: restriction path %q must name a subtree below the root", ErrInvalidArgument, restrictTo)
	}

	r := &Restricted{prefix: prefix, primary: primary}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Prefix returns the normalized restriction prefix.
func (r *Restricted) Prefix() string { return r.prefix }

// DirectoryContents lists through the primary provider for paths inside the
// prefix. The override provider is never consulted for listings.
func (r *Restricted) DirectoryContents(path string) DirectoryContents {
	if !strings.HasPrefix(path, r.prefix) {
		return NotFoundDirectory
	}
	return r.primary.DirectoryContents(path)
}

// FileInfo resolves a file inside the prefix, override first. An override
// result only wins when it exists; otherwise the primary's result is returned
// verbatim, its not-founds included.
func (r *Restricted) FileInfo(path string) FileInfo {
	if path == "" || !pathutil.HasPrefixFold(path, r.prefix) {
		return NotFoundFile(path)
	}
	if r.override != nil {
		if fi := r.override.FileInfo(path); fi.Exists() {
			return fi
		}
	}
	return r.primary.FileInfo(path)
}

// Watch delegates to the primary provider and returns its token unchanged.
func (r *Restricted) Watch(filter string) ChangeToken {
	return r.primary.Watch(filter)
}
