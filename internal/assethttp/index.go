package assethttp

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/keithlinneman/assetgate/internal/fileprovider"
)

// serveListing answers a trailing-slash request. Listings are opt-in; with
// AutoIndex off a directory path is indistinguishable from a missing file.
func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, dirPath string) {
	if !h.opts.AutoIndex {
		h.serveNotFound(w, r, "not_found")
		return
	}

	dc := h.opts.Provider.DirectoryContents(dirPath)
	if !dc.Exists() {
		h.serveNotFound(w, r, "not_found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", h.opts.HTMLCacheControl)
	w.WriteHeader(http.StatusOK)
	h.observe("listing")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(renderIndex(dirPath, dc.Files()))); err != nil {
		h.opts.Logger.Debug(r.Context(), "listing write aborted", "path", dirPath, "error", err)
	}
}

func renderIndex(dirPath string, files []fileprovider.FileInfo) string {
	title := html.EscapeString(dirPath)

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head><meta charset=\"utf-8\"><title>Index of ")
	b.WriteString(title)
	b.WriteString("</title></head>\n<body>\n<h1>Index of ")
	b.WriteString(title)
	b.WriteString("</h1>\n<ul>\n")
	for _, fi := range files {
		name := fi.Name()
		if fi.IsDir() {
			name += "/"
		}
		esc := html.EscapeString(name)
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", esc, esc)
	}
	b.WriteString("</ul>\n</body>\n</html>\n")
	return b.String()
}
