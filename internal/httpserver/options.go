package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/assetgate/internal/health"
	"github.com/keithlinneman/assetgate/internal/httpmw"
	"github.com/keithlinneman/assetgate/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// AssetHandler serves everything no explicit route claims. In production
	// this is the assethttp handler over the restricted provider.
	AssetHandler http.Handler

	// APIRoutes registers additional routes (asset status/manifest API) on
	// the main router before the catch-all takes over.
	APIRoutes func(chi.Router)

	Health    health.Probe
	Readiness health.Probe

	UseRecoverMW bool
	OnPanic      func() // counts recovered panics, called by Recover

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	// AssetInfo feeds the X-Asset-Version and X-Asset-Hash response headers.
	AssetInfo httpmw.AssetInfo

	// CORSOrigin enables cross-origin asset reads for one origin (or "*").
	// Empty leaves CORS off.
	CORSOrigin string
}
