package fileprovider

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// test doubles
// ---------------------------------------------------------------------------

// stubFile is a canned existing FileInfo with a tag so tests can tell apart
// results from different providers.
type stubFile struct {
	tag  string
	name string
}

func (f stubFile) Exists() bool       { return true }
func (f stubFile) Name() string       { return f.name }
func (f stubFile) Size() int64        { return int64(len(f.tag)) }
func (f stubFile) ModTime() time.Time { return time.Time{} }
func (f stubFile) IsDir() bool        { return false }
func (f stubFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.tag)), nil
}

// spyProvider counts calls and returns canned results.
type spyProvider struct {
	fileCalls  int
	dirCalls   int
	watchCalls int

	file FileInfo
	dir  DirectoryContents
	tok  ChangeToken
}

func (s *spyProvider) FileInfo(path string) FileInfo {
	s.fileCalls++
	if s.file != nil {
		return s.file
	}
	return NotFoundFile(path)
}

func (s *spyProvider) DirectoryContents(path string) DirectoryContents {
	s.dirCalls++
	if s.dir != nil {
		return s.dir
	}
	return NotFoundDirectory
}

func (s *spyProvider) Watch(filter string) ChangeToken {
	s.watchCalls++
	if s.tok != nil {
		return s.tok
	}
	return NullToken
}

// ---------------------------------------------------------------------------
// --- NewRestricted validation ---
// ---------------------------------------------------------------------------

func TestNewRestricted_Valid(t *testing.T) {
	r, err := NewRestricted(&spyProvider{}, "/static")
	if err != nil {
		t.Fatalf("NewRestricted: %v", err)
	}
	if r.Prefix() != "/static" {
		t.Fatalf("Prefix() = %q, want /static", r.Prefix())
	}
}

func TestNewRestricted_NilPrimary(t *testing.T) {
	_, err := NewRestricted(nil, "/static")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

// nil primary is reported before the path is even looked at.
func TestNewRestricted_NilPrimaryWinsOverBlankPath(t *testing.T) {
	_, err := NewRestricted(nil, "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if errors.Is(err, ErrEmptyArgument) {
		t.Fatalf("err = %v, blank-path check should not run with nil primary", err)
	}
}

func TestNewRestricted_BlankPath(t *testing.T) {
	for _, path := range []string{"", "   ", "\t\n"} {
		t.Run("path="+path, func(t *testing.T) {
			_, err := NewRestricted(&spyProvider{}, path)
			if !errors.Is(err, ErrEmptyArgument) {
				t.Fatalf("err = %v, want ErrEmptyArgument", err)
			}
		})
	}
}

func TestNewRestricted_PathShape(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"relative", "static"},
		{"root only", "/"},
		{"tilde then relative", "~static"},
		{"tilde then root", "~/"},
		{"many tildes then root", "~~~/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRestricted(&spyProvider{}, tt.path)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("NewRestricted(%q) err = %v, want ErrInvalidArgument", tt.path, err)
			}
		})
	}
}

func TestNewRestricted_StripsLeadingTildes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"~/static", "/static"},
		{"~~/static", "/static"},
		{"/static", "/static"},
		{"/static/css", "/static/css"},
	}
	for _, tt := range tests {
		r, err := NewRestricted(&spyProvider{}, tt.in)
		if err != nil {
			t.Fatalf("NewRestricted(%q): %v", tt.in, err)
		}
		if r.Prefix() != tt.want {
			t.Fatalf("Prefix() = %q, want %q", r.Prefix(), tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// --- DirectoryContents: case-sensitive gate, primary only ---
// ---------------------------------------------------------------------------

func TestRestricted_DirectoryContents_OutsidePrefix(t *testing.T) {
	primary := &spyProvider{dir: dirContents{}}
	override := &spyProvider{dir: dirContents{}}
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	for _, path := range []string{"", "/other", "/stat", "/staticx-nope/.."} {
		got := r.DirectoryContents(path)
		if got.Exists() {
			t.Fatalf("DirectoryContents(%q).Exists() = true, want false", path)
		}
	}
	if primary.dirCalls != 0 || override.dirCalls != 0 {
		t.Fatalf("backends consulted for out-of-prefix paths: primary=%d override=%d",
			primary.dirCalls, override.dirCalls)
	}
}

// The listing gate compares exact bytes: /STATIC does not match /static.
func TestRestricted_DirectoryContents_CaseSensitive(t *testing.T) {
	primary := &spyProvider{dir: dirContents{}}
	r := mustRestricted(t, primary, "/static")

	if got := r.DirectoryContents("/STATIC/css"); got.Exists() {
		t.Fatal("case-folded path matched the case-sensitive listing gate")
	}
	if primary.dirCalls != 0 {
		t.Fatalf("primary consulted %d times, want 0", primary.dirCalls)
	}
}

func TestRestricted_DirectoryContents_DelegatesToPrimaryOnly(t *testing.T) {
	primary := &spyProvider{dir: dirContents{files: []FileInfo{stubFile{tag: "p", name: "a.css"}}}}
	override := &spyProvider{dir: dirContents{files: []FileInfo{stubFile{tag: "o", name: "b.css"}}}}
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	got := r.DirectoryContents("/static/css")
	if !got.Exists() {
		t.Fatal("expected primary's listing")
	}
	if len(got.Files()) != 1 || got.Files()[0].Name() != "a.css" {
		t.Fatalf("Files() = %v, want primary's listing", got.Files())
	}
	if primary.dirCalls != 1 {
		t.Fatalf("primary.dirCalls = %d, want 1", primary.dirCalls)
	}
	if override.dirCalls != 0 {
		t.Fatalf("override.dirCalls = %d, want 0 (listings never consult the override)", override.dirCalls)
	}
}

func TestRestricted_DirectoryContents_PrimaryNotFoundPassesThrough(t *testing.T) {
	primary := &spyProvider{} // returns NotFoundDirectory
	r := mustRestricted(t, primary, "/static")

	if got := r.DirectoryContents("/static/missing"); got.Exists() {
		t.Fatal("expected primary's not-found to pass through")
	}
	if primary.dirCalls != 1 {
		t.Fatalf("primary.dirCalls = %d, want 1", primary.dirCalls)
	}
}

// ---------------------------------------------------------------------------
// --- FileInfo: case-insensitive gate, override first ---
// ---------------------------------------------------------------------------

func TestRestricted_FileInfo_OutsidePrefix(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "p"}}
	override := &spyProvider{file: stubFile{tag: "o"}}
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	got := r.FileInfo("/other/a.png")
	if got.Exists() {
		t.Fatal("out-of-prefix path reported as existing")
	}
	if got.Name() != "/other/a.png" {
		t.Fatalf("not-found sentinel Name() = %q, want the requested path", got.Name())
	}
	if primary.fileCalls != 0 || override.fileCalls != 0 {
		t.Fatalf("backends consulted: primary=%d override=%d", primary.fileCalls, override.fileCalls)
	}
}

func TestRestricted_FileInfo_EmptyPath(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "p"}}
	r := mustRestricted(t, primary, "/static")

	if got := r.FileInfo(""); got.Exists() {
		t.Fatal("empty path reported as existing")
	}
	if primary.fileCalls != 0 {
		t.Fatalf("primary consulted for empty path")
	}
}

// The file gate folds case: /STATIC passes a /static restriction. This is
// deliberately different from the listing gate.
func TestRestricted_FileInfo_CaseInsensitive(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "p", name: "a.png"}}
	r := mustRestricted(t, primary, "/static")

	got := r.FileInfo("/STATIC/a.png")
	if !got.Exists() {
		t.Fatal("case-folded path rejected by the case-insensitive file gate")
	}
	if primary.fileCalls != 1 {
		t.Fatalf("primary.fileCalls = %d, want 1", primary.fileCalls)
	}
}

func TestRestricted_FileInfo_OverrideWins(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "primary", name: "a.png"}}
	override := &spyProvider{file: stubFile{tag: "override", name: "a.png"}}
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	got := r.FileInfo("/static/a.png")
	sf, ok := got.(stubFile)
	if !ok || sf.tag != "override" {
		t.Fatalf("FileInfo = %#v, want the override's result", got)
	}
	if override.fileCalls != 1 {
		t.Fatalf("override.fileCalls = %d, want 1", override.fileCalls)
	}
	if primary.fileCalls != 0 {
		t.Fatalf("primary.fileCalls = %d, want 0 (override short-circuits)", primary.fileCalls)
	}
}

func TestRestricted_FileInfo_OverrideMissFallsThrough(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "primary", name: "a.png"}}
	override := &spyProvider{} // returns not-found
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	got := r.FileInfo("/static/a.png")
	sf, ok := got.(stubFile)
	if !ok || sf.tag != "primary" {
		t.Fatalf("FileInfo = %#v, want the primary's result", got)
	}
	if override.fileCalls != 1 || primary.fileCalls != 1 {
		t.Fatalf("calls: override=%d primary=%d, want 1 and 1", override.fileCalls, primary.fileCalls)
	}
}

func TestRestricted_FileInfo_NoOverride(t *testing.T) {
	primary := &spyProvider{file: stubFile{tag: "primary", name: "a.png"}}
	r := mustRestricted(t, primary, "/static")

	got := r.FileInfo("/static/a.png")
	if sf, ok := got.(stubFile); !ok || sf.tag != "primary" {
		t.Fatalf("FileInfo = %#v, want the primary's result", got)
	}
}

// Primary's own not-found is returned verbatim, requested path intact.
func TestRestricted_FileInfo_PrimaryNotFoundVerbatim(t *testing.T) {
	primary := &spyProvider{}
	r := mustRestricted(t, primary, "/static")

	got := r.FileInfo("/static/missing.png")
	if got.Exists() {
		t.Fatal("missing file reported as existing")
	}
	if got.Name() != "/static/missing.png" {
		t.Fatalf("Name() = %q, want the requested path", got.Name())
	}
	if primary.fileCalls != 1 {
		t.Fatalf("primary.fileCalls = %d, want 1", primary.fileCalls)
	}
}

// ---------------------------------------------------------------------------
// --- Watch: pure delegation ---
// ---------------------------------------------------------------------------

func TestRestricted_Watch_DelegatesToPrimary(t *testing.T) {
	tok := &pollToken{done: make(chan struct{})}
	primary := &spyProvider{tok: tok}
	override := &spyProvider{tok: NullToken}
	r := mustRestricted(t, primary, "/static", WithOverride(override))

	got := r.Watch("/static/**")
	if got != ChangeToken(tok) {
		t.Fatal("Watch did not return the primary's token")
	}
	if primary.watchCalls != 1 {
		t.Fatalf("primary.watchCalls = %d, want 1", primary.watchCalls)
	}
	if override.watchCalls != 0 {
		t.Fatalf("override.watchCalls = %d, want 0 (the override is never watched)", override.watchCalls)
	}
}

func mustRestricted(t *testing.T, primary Provider, prefix string, opts ...RestrictedOption) *Restricted {
	t.Helper()
	r, err := NewRestricted(primary, prefix, opts...)
	if err != nil {
		t.Fatalf("NewRestricted: %v", err)
	}
	return r
}
