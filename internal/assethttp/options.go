package assethttp

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/assetgate/internal/fileprovider"
	"github.com/keithlinneman/assetgate/internal/log"
)

// ErrInvalidOptions marks a configuration problem detected by New.
var ErrInvalidOptions = errors.New("invalid options")

// Metrics observes serve outcomes. Implemented by the metrics package;
// a nil value disables observation.
type Metrics interface {
	IncAssetServed(outcome string)
}

type Options struct {
	Logger log.Logger

	// Provider resolves site paths to files and listings. In production this
	// is the restricted provider, so everything outside the configured prefix
	// already comes back not-found.
	Provider fileprovider.Provider

	// FallbackFS holds the error pages compiled into the binary.
	FallbackFS fs.FS

	// NotFoundFile is the error page inside FallbackFS. Default: "404.html".
	NotFoundFile string

	// AutoIndex renders an HTML listing for trailing-slash paths. Off by
	// default; listings reveal tree layout.
	AutoIndex bool

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"

	Metrics Metrics
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Provider == nil {
		return fmt.Errorf("%w: Provider is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// Ensure the error page exists (fail fast on boot if mispackaged).
	if _, err := fs.Stat(o.FallbackFS, o.NotFoundFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.NotFoundFile, err)
	}
	return nil
}
