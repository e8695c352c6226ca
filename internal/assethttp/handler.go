package assethttp

import (
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/keithlinneman/assetgate/internal/fileprovider"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		h.observe("method_not_allowed")
		return
	}

	sitePath, listing, ok := cleanRequestPath(r.URL.Path)
	if !ok {
		h.serveNotFound(w, r, "bad_path")
		return
	}

	if listing {
		h.serveListing(w, r, sitePath)
		return
	}

	fi := h.opts.Provider.FileInfo(sitePath)
	if !fi.Exists() {
		h.serveNotFound(w, r, "not_found")
		return
	}
	h.serveFile(w, r, fi)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, fi fileprovider.FileInfo) {
	rc, err := fi.Open()
	if err != nil {
		// raced a swap or deletion between stat and open
		h.opts.Logger.Warn(r.Context(), "asset open failed", "name", fi.Name(), "error", err)
		h.serveNotFound(w, r, "not_found")
		return
	}
	defer rc.Close()

	// apply cache-control policy based on file extension
	if cc := cacheControlForFile(fi.Name(), h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}

	// seekable content gets ranges, conditional requests, and type sniffing
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, fi.Name(), fi.ModTime(), rs)
		h.observe("ok")
		return
	}

	// non-seekable content is a single-shot copy without range support
	ctype := mime.TypeByExtension(path.Ext(fi.Name()))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	if size := fi.Size(); size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, rc); err != nil {
			h.opts.Logger.Debug(r.Context(), "asset copy aborted", "name", fi.Name(), "error", err)
		}
	}
	h.observe("ok")
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request, outcome string) {
	h.observe(outcome)

	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")

	if existsFile(h.opts.FallbackFS, h.opts.NotFoundFile) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.NotFoundFile)
		return
	}

	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

func (h *Handler) observe(outcome string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.IncAssetServed(outcome)
	}
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// we want to serve a file but force an HTTP status code (404)
// but http.ServeFileFS writes a status code on its own so wrapping
// ResponseWriter and overriding the first WriteHeader call here
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, fsys, name)
}
