package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"time"

	"github.com/keithlinneman/assetgate/internal/xerrors"
)

// Manifest describes a bundle's contents, written by the publishing pipeline
// as manifest.json at the bundle root (next to the asset tree, never inside
// it, so it is not servable).
type Manifest struct {
	Schema      string          `json:"schema"`
	Version     string          `json:"version"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
	Source      ManifestSource  `json:"source"`
	Summary     ManifestSummary `json:"summary"`
	Files       []ManifestFile  `json:"files"`
}

// ManifestSource contains git repository information
type ManifestSource struct {
	Repository  string    `json:"repository"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short"`
	CommitDate  time.Time `json:"commit_date"`
	Branch      string    `json:"branch"`
	Dirty       bool      `json:"dirty"`
}

// ManifestSummary contains aggregate statistics
type ManifestSummary struct {
	TotalFiles int            `json:"total_files"`
	TotalSize  int64          `json:"total_size"`
	FileTypes  map[string]int `json:"file_types"`
}

// ManifestFile represents a single file in the manifest
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
}

// ManifestFilePath is the expected location of manifest.json in the bundle
const ManifestFilePath = "manifest.json"

// LoadManifest reads and parses manifest.json from the given filesystem
func LoadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFilePath)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", ManifestFilePath)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xerrors.Wrapf(err, "parse %s", ManifestFilePath)
	}

	return &m, nil
}

// ComputeTreeHash computes a deterministic hash over every regular file in
// fsys except the manifest itself: per-file SHA-256 digests joined as
// "path:hash" lines in path order, hashed once more. A publishing pipeline
// can reproduce it without the archive, which is why content_hash is a tree
// hash and not the tar.gz digest (the manifest rides inside the archive and
// cannot contain its own hash).
func ComputeTreeHash(fsys fs.FS) (string, error) {
	var paths []string
	hashes := map[string]string{}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == ManifestFilePath {
			return nil
		}
		f, err := fsys.Open(path)
		if err != nil {
			return err
		}
		h := sha256.New()
		_, cpErr := io.Copy(h, f)
		f.Close()
		if cpErr != nil {
			return cpErr
		}
		paths = append(paths, path)
		hashes[path] = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	if err != nil {
		return "", xerrors.Wrap(err, "walk tree")
	}

	sort.Strings(paths)
	top := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(top, "%s:%s\n", p, hashes[p])
	}
	return hex.EncodeToString(top.Sum(nil)), nil
}

// manifestVersion extracts version from a manifest or returns empty string
func manifestVersion(m *Manifest) string {
	if m == nil {
		return ""
	}
	return m.Version
}
