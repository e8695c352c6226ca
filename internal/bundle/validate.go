package bundle

import (
	"io/fs"
	"os"
	"strings"

	"github.com/keithlinneman/assetgate/internal/cryptoutil"
	"github.com/keithlinneman/assetgate/internal/xerrors"
)

// ValidationOptions controls which checks ValidateStaged performs.
// Zero value disables everything except the nil checks.
type ValidationOptions struct {
	// MinFiles rejects bundles with fewer than this many files.
	// 0 disables the check.
	MinFiles int

	// MaxFiles rejects bundles with more than this many files.
	// 0 disables the check.
	MaxFiles int

	// RequireManifest fails validation if manifest.json is missing or
	// unparseable. When false, a missing manifest is a warning upstream,
	// not an error here.
	RequireManifest bool

	// ContentDir requires every file except manifest.json to live under
	// this top-level directory (e.g. "static"). A bundle that unpacks
	// files outside it would never be served, so it is rejected rather
	// than silently ignored. Empty disables the check.
	ContentDir string
}

// DefaultValidationOptions returns the recommended production defaults.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinFiles:        1,
		MaxFiles:        maxEntries,
		RequireManifest: true,
	}
}

// ValidateStaged performs sanity checks on an extracted bundle before it is
// installed as the active asset tree. Used by the Watcher to prevent
// swapping in broken or empty releases.
// Returns nil if all checks pass, or an error describing the first failure.
func ValidateStaged(staged *Staged, opts ValidationOptions) error {
	if staged == nil {
		return xerrors.New("validate: staged bundle is nil")
	}
	if staged.Dir == "" {
		return xerrors.New("validate: staged bundle has no directory")
	}

	fsys := os.DirFS(staged.Dir)

	// file count and containment in one walk
	count, stray, err := sweepFiles(fsys, opts.ContentDir)
	if err != nil {
		return xerrors.Wrap(err, "validate: walking staged bundle")
	}
	if stray != "" {
		return xerrors.Newf("validate: file %s is outside %s/", stray, opts.ContentDir)
	}
	if opts.MinFiles > 0 && count < opts.MinFiles {
		return xerrors.Newf("validate: bundle has %d files, minimum is %d", count, opts.MinFiles)
	}
	if opts.MaxFiles > 0 && count > opts.MaxFiles {
		return xerrors.Newf("validate: bundle has %d files, maximum is %d", count, opts.MaxFiles)
	}

	// manifest checks
	if staged.Manifest == nil {
		if opts.RequireManifest {
			return xerrors.New("validate: manifest.json is required but missing")
		}
		return nil
	}
	if staged.Manifest.ContentHash != "" {
		got, err := ComputeTreeHash(fsys)
		if err != nil {
			return xerrors.Wrap(err, "validate: computing content hash")
		}
		if !cryptoutil.HashEqual(got, staged.Manifest.ContentHash) {
			return xerrors.Newf("validate: content hash mismatch: manifest says %s, tree is %s",
				staged.Manifest.ContentHash, got)
		}
	}

	return nil
}

// sweepFiles walks the filesystem and returns the total file count (not
// counting directories) plus the first file found outside contentDir.
// manifest.json at the root is exempt from containment and excluded from
// the count. An empty contentDir disables containment.
func sweepFiles(fsys fs.FS, contentDir string) (count int, stray string, err error) {
	prefix := ""
	if contentDir != "" {
		prefix = strings.Trim(contentDir, "/") + "/"
	}

	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path == ManifestFilePath {
			return nil
		}
		count++
		if prefix != "" && stray == "" && !strings.HasPrefix(path, prefix) {
			stray = path
		}
		return nil
	})
	return count, stray, err
}
