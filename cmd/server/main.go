package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/keithlinneman/assetgate/internal/assethttp"
	"github.com/keithlinneman/assetgate/internal/assets"
	"github.com/keithlinneman/assetgate/internal/bundle"
	"github.com/keithlinneman/assetgate/internal/cfg"
	"github.com/keithlinneman/assetgate/internal/fileprovider"
	"github.com/keithlinneman/assetgate/internal/health"
	"github.com/keithlinneman/assetgate/internal/httpmw"
	"github.com/keithlinneman/assetgate/internal/infohttp"
	"github.com/keithlinneman/assetgate/internal/opshttp"
	"github.com/keithlinneman/assetgate/internal/ratelimit"

	"github.com/keithlinneman/assetgate/internal/httpserver"
	"github.com/keithlinneman/assetgate/internal/log"
	"github.com/keithlinneman/assetgate/internal/metrics"
	"github.com/keithlinneman/assetgate/internal/otelx"
	"github.com/keithlinneman/assetgate/internal/prof"
	v "github.com/keithlinneman/assetgate/internal/version"
)

const appName = "assetgate"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix ASSETGATE_ and validate
	cfg.FillFromEnv(flag.CommandLine, "ASSETGATE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JSONFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildID,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"asset_prefix", conf.AssetPrefix,
		"dev_root", conf.DevRoot,
		"overrides_dir", conf.OverridesDir,
		"autoindex", conf.AutoIndex,
		"enable_bundle_sync", conf.EnableBundleSync,
		"bundle_ssm_param", conf.BundleSSMParam,
		"bundle_s3_bucket", conf.BundleS3Bucket,
		"bundle_s3_prefix", conf.BundleS3Prefix,
		"bundle_signing_key_arn", conf.BundleSigningKeyARN,
		"bundle_data_dir", conf.BundleDataDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"trusted_hops", conf.TrustedHops,
		"cors_origin", conf.CORSOrigin,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildID,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	var m *metrics.ServerMetrics = metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)

	// setup the primary asset source: the tree compiled into the binary, or a
	// working tree on disk when a dev root is configured
	var primary fileprovider.Provider
	seedSource := bundle.SourceEmbedded
	if conf.DevRoot != "" {
		p, err := fileprovider.NewPhysical(conf.DevRoot,
			fileprovider.WithLogger(L),
			fileprovider.WithPollInterval(conf.WatchPoll),
		)
		if err != nil {
			L.Error(ctx, err, "failed to open dev root", "dev_root", conf.DevRoot)
			os.Exit(1)
		}
		defer p.Close()
		primary = p
		seedSource = bundle.SourceDisk
		L.Info(ctx, "serving assets from dev root", "dev_root", conf.DevRoot)
	} else {
		p, err := fileprovider.NewBundled(assets.SiteFS())
		if err != nil {
			L.Error(ctx, err, "failed to open embedded assets")
			os.Exit(1)
		}
		primary = p
	}

	// setup the override slot. a hand-managed overrides dir and the synced
	// bundle tree both serve through it, which is why cfg.Validate keeps the
	// two mutually exclusive
	activeRoot := filepath.Join(conf.BundleDataDir, "active")
	var override fileprovider.Provider
	overrideDir := ""
	switch {
	case conf.EnableBundleSync:
		// the active root has to exist before the provider can stat it; the
		// first install replaces the empty directory wholesale
		if err := os.MkdirAll(activeRoot, 0o755); err != nil {
			L.Error(ctx, err, "failed to create bundle active root", "active_root", activeRoot)
			os.Exit(1)
		}
		p, err := fileprovider.NewPhysical(activeRoot,
			fileprovider.WithLogger(L),
			fileprovider.WithPollInterval(conf.WatchPoll),
		)
		if err != nil {
			L.Error(ctx, err, "failed to open bundle active root", "active_root", activeRoot)
			os.Exit(1)
		}
		defer p.Close()
		override = p
		overrideDir = activeRoot
	case conf.OverridesDir != "":
		p, err := fileprovider.NewPhysical(conf.OverridesDir,
			fileprovider.WithLogger(L),
			fileprovider.WithPollInterval(conf.WatchPoll),
		)
		if err != nil {
			L.Error(ctx, err, "failed to open overrides dir", "overrides_dir", conf.OverridesDir)
			os.Exit(1)
		}
		defer p.Close()
		override = p
		overrideDir = conf.OverridesDir
		L.Info(ctx, "serving overrides from disk", "overrides_dir", conf.OverridesDir)
	}

	// gate everything behind the configured prefix
	var ropts []fileprovider.RestrictedOption
	if override != nil {
		ropts = append(ropts, fileprovider.WithOverride(override))
	}
	restricted, err := fileprovider.NewRestricted(primary, conf.AssetPrefix, ropts...)
	if err != nil {
		L.Error(ctx, err, "failed to build restricted provider", "asset_prefix", conf.AssetPrefix)
		os.Exit(1)
	}

	if !restricted.DirectoryContents(conf.AssetPrefix).Exists() {
		L.Warn(ctx, "no asset directory at the configured prefix, most lookups will miss",
			"asset_prefix", conf.AssetPrefix)
	}

	// release state feeds readiness, response headers and the status API
	state := bundle.NewState()
	if conf.EnableBundleSync {
		// re-adopt a bundle installed by an earlier run so a restart serves
		// the synced tree without waiting for the next poll
		if man, err := bundle.LoadManifest(os.DirFS(activeRoot)); err == nil {
			installedAt := time.Now().UTC()
			if fi, err := os.Stat(activeRoot); err == nil {
				installedAt = fi.ModTime().UTC()
			}
			state.Set(bundle.Release{
				Hash:        man.ContentHash,
				Version:     man.Version,
				Source:      bundle.SourceS3,
				Manifest:    man,
				FileCount:   man.Summary.TotalFiles,
				TotalBytes:  man.Summary.TotalSize,
				InstalledAt: installedAt,
			})
			L.Info(ctx, "re-adopted installed bundle",
				"bundle_hash", man.ContentHash,
				"bundle_version", man.Version,
			)
		}
	}
	if _, ok := state.Get(); !ok {
		state.Set(bundle.Release{
			Version:     vi.Version,
			Source:      seedSource,
			InstalledAt: time.Now().UTC(),
		})
	}
	if rel, ok := state.Get(); ok {
		m.SetAssetSource(string(rel.Source))
		m.SetBundleInfo(rel.Hash, rel.Version)
		m.SetBundleInstalledTimestamp(rel.InstalledAt)
	}

	// log and count edits to mutable trees. synced installs are reported by
	// the bundle watcher instead
	if !conf.EnableBundleSync {
		if conf.DevRoot != "" {
			fileprovider.OnChange(ctx, primary, "**", func() {
				L.Info(ctx, "dev root content changed", "dev_root", conf.DevRoot)
			})
		}
		if override != nil {
			fileprovider.OnChange(ctx, override, "**", func() {
				L.Info(ctx, "override content changed", "overrides_dir", conf.OverridesDir)
				m.IncOverrideChange()
			})
		}
	}

	if conf.EnableBundleSync {
		// setup bundle loader to fetch, verify and stage releases from S3
		loader, err := bundle.NewLoader(ctx, bundle.LoaderOptions{
			Logger:        L,
			SSMParam:      conf.BundleSSMParam,
			S3Bucket:      conf.BundleS3Bucket,
			S3Prefix:      conf.BundleS3Prefix,
			SigningKeyARN: conf.BundleSigningKeyARN,
			StagingDir:    filepath.Join(conf.BundleDataDir, "staging"),
		})
		if err != nil {
			L.Error(ctx, err, "failed to create bundle loader")
			os.Exit(1)
		}

		// staged bundles must keep their files under the served prefix or
		// the install would go live with nothing reachable
		vopts := bundle.DefaultValidationOptions()
		vopts.ContentDir = strings.TrimPrefix(conf.AssetPrefix, "/")

		// setup bundle watcher to poll for new releases, validate and install
		watcher := bundle.NewWatcher(&bundle.WatcherOptions{
			Logger:       L,
			Loader:       loader,
			State:        state,
			ActiveRoot:   activeRoot,
			PollInterval: conf.BundlePollInterval,
			Validation:   &vopts,
			OnSwap: func(hash, version string) {
				m.SetAssetSource(string(bundle.SourceS3))
				m.SetBundleInfo(hash, version)
				m.SetBundleInstalledTimestamp(time.Now())
			},
			Metrics: m,
		})
		// Run the watcher in a separate goroutine
		go watcher.Run(ctx)
	}

	// setup asset info API
	infoAPI := infohttp.NewAPI(infohttp.Options{
		Releases:    state,
		Assets:      restricted,
		Prefix:      conf.AssetPrefix,
		OverrideDir: overrideDir,
		Logger:      L,
	})

	// setup asset handler that serves the restricted tree
	assetHandler, err := assethttp.New(assethttp.Options{
		Logger:     L,
		Provider:   restricted,
		FallbackFS: assets.FallbackFS(),
		AutoIndex:  conf.AutoIndex,
		Metrics:    m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create asset handler")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// setup readiness checks, both shutdown gate and release state must pass.
	// checks that a release has been installed from at least one seed source
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			return state.ReadyErr()
		}),
	)

	// Setup rate limiter middleware for the asset handler
	limiter := ratelimit.New(ctx,
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	// start asset http server
	siteHTTPStop, err := httpserver.Start(
		ctx,
		httpserver.Options{
			Port:         conf.HTTPPort,
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
			APIRoutes:    infoAPI.RegisterRoutes,
			AssetHandler: assetHandler,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			Logger:       L,
			ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
			AssetInfo:    state, // Pass release state for headers
			CORSOrigin:   conf.CORSOrigin,
		},
	)

	if err != nil {
		L.Error(ctx, err, "failed to start asset http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof and any future admin APIs
	// sg restricts inbound to internal monitoring infrastructure
	// we reject connections from public ips in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic there
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// wait for ctrl+c / sigterm
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	gate.Set("draining")
	// sleep for 60s to allow in-flight requests to finish and for load balancer to detect unhealthy and stop sending new requests
	L.Info(context.Background(), "shutdown gate closed")

	// will make sleep time tunable in the future
	L.Info(context.Background(), "sleeping 60s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(60 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "asset http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
