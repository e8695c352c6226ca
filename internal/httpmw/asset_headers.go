package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AssetInfo provides release version information for headers
type AssetInfo interface {
	AssetVersion() string
	AssetHash() string
}

// AssetHeaders middleware adds X-Asset-Version and X-Asset-Hash headers
// to all responses when release information is available
func AssetHeaders(info AssetInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				v := info.AssetVersion()
				h := info.AssetHash()
				if v != "" {
					w.Header().Set("X-Asset-Version", v)
				}
				if h != "" {
					// Use short hash for header (first 12 chars)
					headerHash := h
					if len(headerHash) > 12 {
						headerHash = headerHash[:12]
					}
					w.Header().Set("X-Asset-Hash", headerHash)
				}
				// Enrich the current trace span with release version info
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if v != "" {
						span.SetAttributes(attribute.String("asset.version", v))
					}
					if h != "" {
						span.SetAttributes(attribute.String("asset.hash", h))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
