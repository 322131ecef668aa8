package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/integrail/gamma-client/internal/config"
	"github.com/integrail/gamma-client/internal/logger"
	"github.com/integrail/gamma-client/pkg/client"
	"github.com/integrail/gamma-client/pkg/metrics"
	"github.com/integrail/gamma-client/pkg/storage"
)

type rootOpts struct {
	configPath     string
	url            string
	apiKey         string
	outputDir      string
	exportAs       string
	pollInterval   string
	maxWait        string
	requestTimeout string
	logLevel       string
	logFormat      string
	metricsAddr    string
	mirror         storage.Config
}

func (o *rootOpts) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "gamma.yaml", "Config file (yaml), GAMMA_* env vars are applied on top")
	flags.StringVarP(&o.url, "url", "u", "", "Gamma API base URL")
	flags.StringVarP(&o.apiKey, "key", "k", "", "Gamma API key")
	flags.StringVarP(&o.outputDir, "output-dir", "o", "", "Directory to save artifacts to")
	flags.StringVarP(&o.exportAs, "export-as", "e", "", "Artifact format: pdf or pptx")
	flags.StringVar(&o.pollInterval, "poll-interval", "", "Delay before each status query (duration, e.g. 5s)")
	flags.StringVar(&o.maxWait, "max-wait", "", "Max time to wait for a generation (duration, e.g. 5m)")
	flags.StringVar(&o.requestTimeout, "request-timeout", "", "Max time for each request (duration, e.g. 30s)")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "", "Log format: console or json")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while running")
	flags.StringVar(&o.mirror.Endpoint, "mirror-endpoint", "", "S3 compatible endpoint to mirror artifacts to")
	flags.StringVar(&o.mirror.Bucket, "mirror-bucket", "", "Bucket to mirror artifacts to")
	flags.StringVar(&o.mirror.Prefix, "mirror-prefix", "", "Object key prefix for mirrored artifacts")
	flags.BoolVar(&o.mirror.UseSSL, "mirror-ssl", false, "Use TLS for the mirror endpoint")
}

// env holds everything a command needs once config, flags and logging are resolved.
type env struct {
	cfg    *config.File
	log    zerolog.Logger
	client client.Client
	mirror *storage.Mirror
}

// setup loads the config file and environment, then applies flags that were set explicitly.
func (o *rootOpts) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	override := func(name string, target *string, value string) {
		if flags.Changed(name) {
			*target = value
		}
	}
	override("url", &cfg.Gamma.Url, o.url)
	override("key", &cfg.Gamma.ApiKey, o.apiKey)
	override("output-dir", &cfg.Gamma.OutputDir, o.outputDir)
	override("export-as", &cfg.Gamma.ExportAs, o.exportAs)
	override("poll-interval", &cfg.Gamma.PollInterval, o.pollInterval)
	override("max-wait", &cfg.Gamma.MaxWait, o.maxWait)
	override("request-timeout", &cfg.Gamma.RequestTimeout, o.requestTimeout)
	override("log-level", &cfg.LogLevel, o.logLevel)
	override("log-format", &cfg.LogFormat, o.logFormat)
	override("metrics-addr", &cfg.MetricsAddr, o.metricsAddr)
	override("mirror-endpoint", &cfg.Mirror.Endpoint, o.mirror.Endpoint)
	override("mirror-bucket", &cfg.Mirror.Bucket, o.mirror.Bucket)
	override("mirror-prefix", &cfg.Mirror.Prefix, o.mirror.Prefix)
	if flags.Changed("mirror-ssl") {
		cfg.Mirror.UseSSL = o.mirror.UseSSL
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	settings, err := client.NewSettings(cfg.Gamma)
	if err != nil {
		return nil, err
	}
	res := &env{
		cfg:    cfg,
		log:    log,
		client: client.NewClient(settings, client.WithLogger(log)),
	}
	if cfg.Mirror.Enabled() {
		if res.mirror, err = storage.NewMirror(cfg.Mirror); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// serveMetrics exposes /metrics until ctx is done.
func (e *env) serveMetrics(ctx context.Context) {
	if e.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Str("addr", e.cfg.MetricsAddr).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	e.log.Info().Str("addr", e.cfg.MetricsAddr).Msg("serving metrics")
}

// mirrorArtifact copies a fetched artifact to object storage when a mirror is configured.
func (e *env) mirrorArtifact(ctx context.Context, res *client.ArtifactResult) {
	if e.mirror == nil || res == nil {
		return
	}
	objectURL, err := e.mirror.Upload(ctx, res.Path, res.ContentType)
	if err != nil {
		e.log.Error().Err(err).Str("path", res.Path).Msg("failed to mirror artifact")
		return
	}
	e.log.Info().Str("object", objectURL).Msg("artifact mirrored")
}
