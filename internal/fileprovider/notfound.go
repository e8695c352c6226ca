package fileprovider

import (
	"io"
	"io/fs"
	"time"
)

// NotFoundFile returns the FileInfo sentinel for an absent file. The sentinel
// remembers the requested path so callers can still log or render it.
func NotFoundFile(name string) FileInfo { return notFoundFile{name: name} }

type notFoundFile struct{ name string }

func (f notFoundFile) Exists() bool       { return false }
func (f notFoundFile) Name() string       { return f.name }
func (f notFoundFile) Size() int64        { return -1 }
func (f notFoundFile) ModTime() time.Time { return time.Time{} }
func (f notFoundFile) IsDir() bool        { return false }
func (f notFoundFile) Open() (io.ReadCloser, error) {
	return nil, &fs.PathError{Op: "open", Path: f.name, Err: fs.ErrNotExist}
}

// NotFoundDirectory is the DirectoryContents sentinel for an absent directory.
var NotFoundDirectory DirectoryContents = notFoundDirectory{}

type notFoundDirectory struct{}

func (notFoundDirectory) Exists() bool      { return false }
func (notFoundDirectory) Files() []FileInfo { return nil }

// NullToken never fires. Its Done channel blocks forever.
var NullToken ChangeToken = nullToken{}

var neverDone = make(chan struct{})

type nullToken struct{}

func (nullToken) HasChanged() bool      { return false }
func (nullToken) Done() <-chan struct{} { return neverDone }
