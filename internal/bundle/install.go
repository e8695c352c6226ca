package bundle

import (
	"os"
	"path/filepath"
	"time"

	"github.com/keithlinneman/assetgate/internal/xerrors"
)

// Install makes a staged bundle the active asset tree at activeRoot by
// renaming it into place. The staging area and activeRoot must live on the
// same filesystem so the swap is two renames, never a copy: requests either
// see the previous tree, a brief not-found window, or the complete new tree,
// never a half-written one.
func Install(staged *Staged, activeRoot string) (*Release, error) {
	if staged == nil {
		return nil, xerrors.New("install: staged bundle is nil")
	}
	if staged.Dir == "" {
		return nil, xerrors.New("install: staged bundle has no directory")
	}
	if activeRoot == "" {
		return nil, xerrors.New("install: active root is required")
	}

	if err := os.MkdirAll(filepath.Dir(activeRoot), 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "install: create parent of %s", activeRoot)
	}

	// clear a leftover from a crashed earlier swap
	old := activeRoot + ".old"
	if err := os.RemoveAll(old); err != nil {
		return nil, xerrors.Wrapf(err, "install: clear %s", old)
	}

	hadPrevious := false
	if _, err := os.Stat(activeRoot); err == nil {
		hadPrevious = true
		if err := os.Rename(activeRoot, old); err != nil {
			return nil, xerrors.Wrapf(err, "install: retire %s", activeRoot)
		}
	} else if !os.IsNotExist(err) {
		return nil, xerrors.Wrapf(err, "install: stat %s", activeRoot)
	}

	if err := os.Rename(staged.Dir, activeRoot); err != nil {
		if hadPrevious {
			os.Rename(old, activeRoot) // best effort rollback
		}
		return nil, xerrors.Wrapf(err, "install: activate %s", staged.Dir)
	}

	// best effort; a leftover .old is cleared on the next install
	os.RemoveAll(old)

	return &Release{
		Hash:        staged.Hash,
		Version:     manifestVersion(staged.Manifest),
		Source:      SourceS3,
		Manifest:    staged.Manifest,
		FileCount:   staged.FileCount,
		TotalBytes:  staged.TotalBytes,
		VerifiedAt:  staged.VerifiedAt,
		InstalledAt: time.Now().UTC(),
	}, nil
}
