package fileprovider

import (
	"errors"
	"io"
	"time"
)

// Constructor failures. Lookup operations themselves never return errors.
var (
	// ErrInvalidArgument marks a missing collaborator or a malformed
	// restriction path.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyArgument marks a blank (empty or all-whitespace) path argument.
	ErrEmptyArgument = errors.New("empty argument")
)

// Provider resolves site-absolute paths ("/static/css/site.css") against a
// backing store. Implementations must be safe for concurrent use.
type Provider interface {
	// FileInfo resolves a single file. The result reports Exists() == false
	// for anything that is not a regular file, directories included.
	FileInfo(path string) FileInfo

	// DirectoryContents lists the immediate children of a directory.
	DirectoryContents(path string) DirectoryContents

	// Watch returns a token that fires when files matching filter change.
	// Backends without a change feed return NullToken.
	Watch(filter string) ChangeToken
}

// FileInfo is a point-in-time view of one file.
type FileInfo interface {
	Exists() bool
	Name() string
	Size() int64
	ModTime() time.Time
	IsDir() bool

	// Open returns the file content. Opening a non-existent file returns an
	// error satisfying errors.Is(err, fs.ErrNotExist).
	Open() (io.ReadCloser, error)
}

// DirectoryContents is a point-in-time directory listing.
type DirectoryContents interface {
	Exists() bool
	Files() []FileInfo
}

// ChangeToken signals at most once: Done is closed on the first detected
// change and HasChanged reports whether that happened yet.
type ChangeToken interface {
	HasChanged() bool
	Done() <-chan struct{}
}
