package infohttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/assetgate/internal/bundle"
	"github.com/keithlinneman/assetgate/internal/fileprovider"
	"github.com/keithlinneman/assetgate/internal/log"
)

// ReleaseProvider reports the asset bundle currently being served, if any.
type ReleaseProvider interface {
	Get() (*bundle.Release, bool)
}

// Lister is the slice of the file provider the listing endpoint needs.
type Lister interface {
	DirectoryContents(path string) fileprovider.DirectoryContents
}

// API implements the read-only asset info endpoints.
type API struct {
	releases ReleaseProvider
	assets   Lister
	prefix   string
	override string
	logger   log.Logger
}

// Options configures the asset info API.
type Options struct {
	// Releases supplies active bundle metadata. Nil leaves the bundle
	// fields empty and turns /api/assets/manifest into a 404.
	Releases ReleaseProvider

	// Assets backs the listing endpoint. Normally the same restricted
	// provider the asset handler serves from.
	Assets Lister

	// Prefix is the restriction prefix the provider was built with.
	Prefix string

	// OverrideDir is the overrides root, or "" when no override backend
	// is wired.
	OverrideDir string

	Logger log.Logger
}

// NewAPI creates a new asset info API handler.
func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		releases: opts.Releases,
		assets:   opts.Assets,
		prefix:   opts.Prefix,
		override: opts.OverrideDir,
		logger:   logger,
	}
}

// RegisterRoutes attaches the asset info endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/assets/status", api.HandleStatus)
	r.Get("/api/assets/manifest", api.HandleManifest)
	r.Get("/api/assets/ls", api.HandleList)
}

// StatusResponse describes what the server is serving right now.
type StatusResponse struct {
	// Prefix is the path prefix assets are restricted to.
	Prefix string `json:"prefix"`

	// Override reports whether a disk override backend is configured.
	OverrideEnabled bool   `json:"override_enabled"`
	OverrideDir     string `json:"override_dir,omitempty"`

	// Bundle is the active bundle, omitted before anything is installed.
	Bundle *BundleInfo `json:"bundle,omitempty"`

	ServerTime time.Time `json:"server_time"`
}

// BundleInfo is the runtime view of the installed bundle.
type BundleInfo struct {
	Hash        string    `json:"hash"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	FileCount   int       `json:"file_count"`
	TotalBytes  int64     `json:"total_bytes"`
	InstalledAt time.Time `json:"installed_at"`
}

// ListResponse is a directory listing through the restricted provider.
type ListResponse struct {
	Path    string      `json:"path"`
	Entries []ListEntry `json:"entries"`
}

type ListEntry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Dir     bool      `json:"dir"`
	ModTime time.Time `json:"mod_time"`
}

// HandleStatus serves the serving configuration and active bundle metadata.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		Prefix:          api.prefix,
		OverrideEnabled: api.override != "",
		OverrideDir:     api.override,
		ServerTime:      time.Now().UTC().Truncate(time.Second),
	}

	if api.releases != nil {
		if rel, ok := api.releases.Get(); ok {
			resp.Bundle = &BundleInfo{
				Hash:        rel.Hash,
				Version:     rel.Version,
				Source:      string(rel.Source),
				FileCount:   rel.FileCount,
				TotalBytes:  rel.TotalBytes,
				InstalledAt: rel.InstalledAt.Truncate(time.Second),
			}
		}
	}

	api.logger.Debug(ctx, "served asset status",
		"prefix", api.prefix,
		"has_bundle", resp.Bundle != nil,
	)

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleManifest serves the active bundle's manifest verbatim.
func (api *API) HandleManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if api.releases == nil {
		http.Error(w, `{"error":"no bundle installed"}`, http.StatusNotFound)
		return
	}
	rel, ok := api.releases.Get()
	if !ok || rel.Manifest == nil {
		http.Error(w, `{"error":"no manifest for active bundle"}`, http.StatusNotFound)
		return
	}

	api.logger.Debug(ctx, "served bundle manifest",
		"version", rel.Manifest.Version,
		"hash", rel.Hash,
	)

	api.writeJSON(ctx, w, http.StatusOK, rel.Manifest)
}

// HandleList serves a directory listing resolved through the restricted
// provider, so it answers exactly what the asset handler would see: paths
// outside the prefix, including case variants of the prefix itself, read
// as absent.
func (api *API) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if api.assets == nil {
		http.Error(w, `{"error":"listing unavailable"}`, http.StatusNotFound)
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		path = api.prefix
	}

	contents := api.assets.DirectoryContents(path)
	if !contents.Exists() {
		http.Error(w, `{"error":"directory not found"}`, http.StatusNotFound)
		return
	}

	files := contents.Files()
	resp := ListResponse{
		Path:    path,
		Entries: make([]ListEntry, 0, len(files)),
	}
	for _, f := range files {
		resp.Entries = append(resp.Entries, ListEntry{
			Name:    f.Name(),
			Size:    f.Size(),
			Dir:     f.IsDir(),
			ModTime: f.ModTime().Truncate(time.Second),
		})
	}

	api.logger.Debug(ctx, "served asset listing",
		"path", path,
		"entries", len(resp.Entries),
	)

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
