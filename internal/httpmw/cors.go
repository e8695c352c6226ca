package httpmw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows cross-origin reads of served assets. Browsers block
// cross-origin font and script fetches without it, so deployments that
// serve assets to another origin set one allowed origin (or "*").
// An empty origin returns nil, which Chain skips.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		return nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		MaxAge:         86400,
	})
	return func(next http.Handler) http.Handler {
		// assets are meant to be embedded cross-origin; relax the default
		// same-origin resource policy set by SecurityHeaders upstream
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
			next.ServeHTTP(w, r)
		})
		return c.Handler(h)
	}
}
