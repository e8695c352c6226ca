package fileprovider

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"
)

// Bundled serves lookups from an immutable fs.FS, in production the asset
// tree compiled into the binary. Content cannot change, so Watch always
// returns NullToken.
type Bundled struct {
	fsys fs.FS
}

var _ Provider = (*Bundled)(nil)

func NewBundled(fsys fs.FS) (*Bundled, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: filesystem is required", ErrInvalidArgument)
	}
	return &Bundled{fsys: fsys}, nil
}

func (b *Bundled) FileInfo(sitePath string) FileInfo {
	name, ok := fsName(sitePath)
	if !ok {
		return NotFoundFile(sitePath)
	}
	info, err := fs.Stat(b.fsys, name)
	if err != nil || info.IsDir() {
		return NotFoundFile(sitePath)
	}
	return &bundledFile{fsys: b.fsys, name: name, info: info}
}

func (b *Bundled) DirectoryContents(sitePath string) DirectoryContents {
	name, ok := fsName(sitePath)
	if !ok {
		return NotFoundDirectory
	}
	entries, err := fs.ReadDir(b.fsys, name)
	if err != nil {
		return NotFoundDirectory
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, &bundledFile{fsys: b.fsys, name: path.Join(name, e.Name()), info: info})
	}
	return dirContents{files: files}
}

func (b *Bundled) Watch(string) ChangeToken { return NullToken }

type bundledFile struct {
	fsys fs.FS
	name string
	info fs.FileInfo
}

func (f *bundledFile) Exists() bool                 { return true }
func (f *bundledFile) Name() string                 { return f.info.Name() }
func (f *bundledFile) Size() int64                  { return f.info.Size() }
func (f *bundledFile) ModTime() time.Time           { return f.info.ModTime() }
func (f *bundledFile) IsDir() bool                  { return f.info.IsDir() }
func (f *bundledFile) Open() (io.ReadCloser, error) { return f.fsys.Open(f.name) }

// dirContents is the shared existing-listing value for both backends.
type dirContents struct{ files []FileInfo }

func (d dirContents) Exists() bool      { return true }
func (d dirContents) Files() []FileInfo { return d.files }
