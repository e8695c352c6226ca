package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/assetgate/internal/log"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	HTTPPort  int
	AdminPort int

	AssetPrefix  string
	DevRoot      string
	OverridesDir string
	WatchPoll    time.Duration
	AutoIndex    bool

	EnableBundleSync    bool
	BundleSSMParam      string
	BundleS3Bucket      string
	BundleS3Prefix      string
	BundleSigningKeyARN string
	BundlePollInterval  time.Duration
	BundleDataDir       string

	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	TrustedHops int
	CORSOrigin  string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.AssetPrefix, "asset-prefix", "/static", "URL path prefix assets are restricted to (must start with /)")
	fs.StringVar(&c.DevRoot, "dev-root", "", "serve assets from this directory instead of the embedded tree (dev mode)")
	fs.StringVar(&c.OverridesDir, "overrides-dir", "", "directory of per-file asset overrides, wins over the primary tree")
	fs.DurationVar(&c.WatchPoll, "watch-poll", 2*time.Second, "poll interval for detecting on-disk asset changes")
	fs.BoolVar(&c.AutoIndex, "autoindex", false, "serve generated directory listings under the asset prefix")
	fs.BoolVar(&c.EnableBundleSync, "enable-bundle-sync", false, "Enable syncing signed asset bundles from S3/SSM")
	fs.StringVar(&c.BundleSSMParam, "bundle-ssm-param", "/app/assetgate/assets/stable/release/hash", "ssm parameter name holding the active bundle hash")
	fs.StringVar(&c.BundleS3Bucket, "bundle-s3-bucket", "", "s3 bucket name to fetch asset bundles from")
	fs.StringVar(&c.BundleS3Prefix, "bundle-s3-prefix", "apps/assetgate/assets/bundles", "s3 prefix (key) to fetch asset bundles from")
	fs.StringVar(&c.BundleSigningKeyARN, "bundle-signing-key-arn", "", "KMS key ARN for bundle signature verification")
	fs.DurationVar(&c.BundlePollInterval, "bundle-poll-interval", 60*time.Second, "how often to poll SSM for a new bundle hash")
	fs.StringVar(&c.BundleDataDir, "bundle-data-dir", "/var/lib/assetgate/bundles", "directory for staged and installed synced bundles")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "trusted reverse proxies for client IP extraction (0 ignores X-Forwarded-For)")
	fs.StringVar(&c.CORSOrigin, "cors-origin", "", "allowed CORS origin for cross-origin asset requests (empty disables CORS)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Asset serving. Provider construction enforces the prefix shape too,
	// but checking here fails fast with a message that names the knob.
	if !strings.HasPrefix(c.AssetPrefix, "/") || len(c.AssetPrefix) < 2 {
		errs = append(errs, fmt.Errorf("invalid ASSET_PREFIX %q (must start with / and name a directory)", c.AssetPrefix))
	}
	if c.WatchPoll <= 0 {
		errs = append(errs, fmt.Errorf("invalid WATCH_POLL %v (must be positive)", c.WatchPoll))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	// CORS
	if c.CORSOrigin != "" && c.CORSOrigin != "*" {
		if u, err := url.Parse(c.CORSOrigin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CORS_ORIGIN must be * or an origin URL (got %q)", c.CORSOrigin))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Bundle sync. Fail closed: sync without a signing key would install
	// unverified content, so the key is mandatory whenever sync is on.
	if c.EnableBundleSync {
		if c.BundleSSMParam == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_SSM_PARAM is required when ENABLE_BUNDLE_SYNC=true"))
		}
		if c.BundleS3Bucket == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_BUCKET is required when ENABLE_BUNDLE_SYNC=true"))
		}
		if c.BundleS3Prefix == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_PREFIX is required when ENABLE_BUNDLE_SYNC=true"))
		}
		if c.BundleSigningKeyARN == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_SIGNING_KEY_ARN is required when ENABLE_BUNDLE_SYNC=true"))
		}
		if c.BundleDataDir == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_DATA_DIR is required when ENABLE_BUNDLE_SYNC=true"))
		}
		if c.BundlePollInterval < time.Second {
			errs = append(errs, fmt.Errorf("BUNDLE_POLL_INTERVAL must be at least 1s (got %v)", c.BundlePollInterval))
		}

		// Synced bundles are served through the override slot of the
		// restricted provider, so they can't share it with a hand-managed
		// overrides dir, and a dev tree has no business syncing releases.
		if c.OverridesDir != "" {
			errs = append(errs, fmt.Errorf("OVERRIDES_DIR and ENABLE_BUNDLE_SYNC are mutually exclusive"))
		}
		if c.DevRoot != "" {
			errs = append(errs, fmt.Errorf("DEV_ROOT and ENABLE_BUNDLE_SYNC are mutually exclusive"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
