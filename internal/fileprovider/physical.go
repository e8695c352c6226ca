package fileprovider

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/keithlinneman/assetgate/internal/log"
)

const defaultPollInterval = 2 * time.Second

// Physical reads a mutable directory on disk. Every lookup stats the backing
// store so external writes are visible immediately; Watch polls file
// fingerprints because deployment targets include network mounts where inode
// notification is unreliable.
type Physical struct {
	root      string
	logger    log.Logger
	pollEvery time.Duration

	mu     sync.Mutex
	tokens []*pollToken
	loop   bool
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

var _ Provider = (*Physical)(nil)

type PhysicalOption func(*Physical)

func WithLogger(l log.Logger) PhysicalOption {
	return func(p *Physical) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPollInterval(d time.Duration) PhysicalOption {
	return func(p *Physical) {
		if d > 0 {
			p.pollEvery = d
		}
	}
}

// NewPhysical roots a provider at an existing directory. The directory is the
// site namespace root, so "/static/logo.png" resolves to
// <root>/static/logo.png.
func NewPhysical(root string, opts ...PhysicalOption) (*Physical, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: root directory", ErrEmptyArgument)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: root directory %q: %w", ErrInvalidArgument, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root %q is not a directory", ErrInvalidArgument, root)
	}

	p := &Physical{
		root:      root,
		logger:    log.Nop(),
		pollEvery: defaultPollInterval,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Physical) FileInfo(sitePath string) FileInfo {
	name, ok := fsName(sitePath)
	if !ok {
		return NotFoundFile(sitePath)
	}
	full := filepath.Join(p.root, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return NotFoundFile(sitePath)
	}
	return &physicalFile{path: full, info: info}
}

func (p *Physical) DirectoryContents(sitePath string) DirectoryContents {
	name, ok := fsName(sitePath)
	if !ok {
		return NotFoundDirectory
	}
	full := filepath.Join(p.root, filepath.FromSlash(name))
	entries, err := os.ReadDir(full)
	if err != nil {
		return NotFoundDirectory
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, &physicalFile{path: filepath.Join(full, e.Name()), info: info})
	}
	return dirContents{files: files}
}

type physicalFile struct {
	path string
	info os.FileInfo
}

func (f *physicalFile) Exists() bool                 { return true }
func (f *physicalFile) Name() string                 { return f.info.Name() }
func (f *physicalFile) Size() int64                  { return f.info.Size() }
func (f *physicalFile) ModTime() time.Time           { return f.info.ModTime() }
func (f *physicalFile) IsDir() bool                  { return f.info.IsDir() }
func (f *physicalFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }
