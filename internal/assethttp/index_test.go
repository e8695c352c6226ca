package assethttp

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/assetgate/internal/fileprovider"
)

type listEntry struct {
	name string
	dir  bool
}

func (e listEntry) Exists() bool                 { return true }
func (e listEntry) Name() string                 { return e.name }
func (e listEntry) Size() int64                  { return 0 }
func (e listEntry) ModTime() time.Time           { return time.Time{} }
func (e listEntry) IsDir() bool                  { return e.dir }
func (e listEntry) Open() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("")), nil }

func TestRenderIndex_DirsGetTrailingSlash(t *testing.T) {
	out := renderIndex("/static", []fileprovider.FileInfo{
		listEntry{name: "css", dir: true},
		listEntry{name: "app.js"},
	})

	if !strings.Contains(out, `href="css/"`) {
		t.Errorf("directory link missing trailing slash: %s", out)
	}
	if !strings.Contains(out, `href="app.js"`) {
		t.Errorf("file link malformed: %s", out)
	}
}

func TestRenderIndex_EscapesNames(t *testing.T) {
	out := renderIndex("/static", []fileprovider.FileInfo{
		listEntry{name: `<script>alert(1)</script>.js`},
	})

	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped name in listing: %s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped name: %s", out)
	}
}

func TestRenderIndex_EscapesTitle(t *testing.T) {
	out := renderIndex(`/static/<b>`, nil)

	if strings.Contains(out, "<b>") {
		t.Fatalf("unescaped path in title: %s", out)
	}
}
