// Command tdvms-fetch requests continuous seismic data archives from
// the TDVMS service in checkpointed batches and optionally harvests the
// fulfillment emails.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
	"github.com/seismoworks/tdvms-client/pkg/checkpoint"
	"github.com/seismoworks/tdvms-client/pkg/client"
	"github.com/seismoworks/tdvms-client/pkg/export"
	"github.com/seismoworks/tdvms-client/pkg/logging"
	"github.com/seismoworks/tdvms-client/pkg/mail"
	"github.com/seismoworks/tdvms-client/pkg/orchestrator"
	"github.com/seismoworks/tdvms-client/pkg/plan"
)

type options struct {
	plotFile        string
	refreshStations bool
	imapCreds       string
	workDir         string
	cacheBackend    string
	redisAddr       string
	retryInterval   time.Duration
	autoApprove     bool
	logLevel        string
	pretty          bool
	metricsAddr     string
	catalogURL      string
	submitURL       string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tdvms-fetch <config.yml> <email>",
		Short: "Batched continuous-data requests against the TDVMS service",
		Long: `tdvms-fetch resolves a station selection into bounded-size batches and
submits one asynchronous, email-fulfilled data request per batch. Progress is
checkpointed per configuration file, so an interrupted run resumes at the
first unrequested batch.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], args[1], opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.plotFile, "plot", "", "write selected stations as GeoJSON to this file before downloading")
	flags.BoolVar(&opts.refreshStations, "refresh-stations", false, "fetch the catalog even if a local copy exists")
	flags.StringVar(&opts.imapCreds, "use-imap-email", "", "IMAP credentials file; enables automatic fulfillment harvesting")
	flags.StringVar(&opts.workDir, "work-dir", ".", "directory for cache files, checkpoints, and downloads")
	flags.StringVar(&opts.cacheBackend, "cache-backend", "file", "catalog cache backend: file, redis, or none")
	flags.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "redis address for the redis cache backend")
	flags.DurationVar(&opts.retryInterval, "retry-interval", 60*time.Second, "wait between attempts when the service is busy or failing")
	flags.BoolVar(&opts.autoApprove, "yes", false, "answer yes to all prompts (unattended run)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.pretty, "pretty", true, "human-readable log output")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	flags.StringVar(&opts.catalogURL, "catalog-url", "", "override the catalog base URL")
	flags.StringVar(&opts.submitURL, "submit-url", "", "override the submission base URL")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, email string, opts *options) error {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: os.Stderr,
	})

	ctx, stop := signalContext(logger)
	defer stop()

	// Metrics come up before any prompt or network call, so an aborted
	// run is still observable.
	if opts.metricsAddr != "" {
		if err := serveMetrics(ctx, opts.metricsAddr, logger); err != nil {
			return err
		}
	}

	// Read and validate the job configuration. The raw bytes feed the
	// drift-detection hash.
	cfg, raw, err := plan.LoadFile(configPath)
	if err != nil {
		return err
	}
	hash := checkpoint.HashConfig(raw)
	name := configName(configPath)

	clientCfg := client.DefaultConfig()
	if opts.catalogURL != "" {
		clientCfg.CatalogBaseURL = opts.catalogURL
	}
	if opts.submitURL != "" {
		clientCfg.SubmitBaseURL = opts.submitURL
	}
	tdvms, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	cache, err := newCache(opts)
	if err != nil {
		return err
	}
	svc := catalog.NewService(tdvms, cache, opts.refreshStations)

	var confirmer orchestrator.Confirmer = &orchestrator.Interactive{In: os.Stdin, Out: os.Stdout}
	if opts.autoApprove {
		confirmer = orchestrator.AutoApprove{}
	}

	var notifier orchestrator.Notifier
	if opts.imapCreds != "" {
		settings, err := mail.LoadSettings(opts.imapCreds)
		if err != nil {
			return err
		}
		mailCfg := mail.DefaultConfig()
		mailCfg.DownloadDir = opts.workDir
		harvester, err := mail.New(settings, mailCfg)
		if err != nil {
			return err
		}
		notifier = harvester
	}

	store := checkpoint.NewFileStore(opts.workDir)
	orchCfg := orchestrator.DefaultConfig(email)
	orchCfg.RetryInterval = opts.retryInterval
	orch, err := orchestrator.New(store, tdvms, confirmer, notifier, orchCfg)
	if err != nil {
		return err
	}

	// Reconcile the checkpoint before any network activity, so a
	// declined reset terminates with no side effects.
	state, err := orch.ResolveCheckpoint(name, hash)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAborted) {
			logger.Info().Msg("Exiting without changes")
			return nil
		}
		return err
	}

	logger.Info().Str("config", name).Msg("Constructing station list")
	p, err := cfg.Build(ctx, svc)
	if err != nil {
		return err
	}

	if opts.plotFile != "" {
		groups := partitionGroups(p)
		if err := export.WriteStationsFile(opts.plotFile, p.Stations, groups); err != nil {
			return err
		}
		logger.Info().Str("file", opts.plotFile).Msg("Wrote station map")
	}

	state, err = orch.Run(ctx, name, p, state)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAborted) || errors.Is(err, context.Canceled) {
			logger.Info().
				Int("requested", state.Requested).
				Int("total", p.Total()).
				Msg("Stopped, progress checkpointed")
			return nil
		}
		return err
	}
	return nil
}

// configName derives the checkpoint name from the config file path:
// the base name without its extension.
func configName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newCache(opts *options) (catalog.Cache, error) {
	switch opts.cacheBackend {
	case "file":
		return catalog.NewFileCache(opts.workDir), nil
	case "redis":
		return catalog.NewRedisCache(redis.NewClient(&redis.Options{Addr: opts.redisAddr})), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", opts.cacheBackend)
	}
}

// partitionGroups recovers the per-format-independent station groups
// from the plan for map annotation.
func partitionGroups(p *plan.Plan) [][]catalog.Station {
	groups := make([][]catalog.Station, 0, p.Partitions)
	for i := 0; i < p.Partitions && i < len(p.Batches); i++ {
		groups = append(groups, p.Batches[i].Stations)
	}
	return groups
}

// signalContext cancels on the first interrupt and terminates on a
// second one, so one impatient Ctrl-C still lets the current sleep
// finish cleanly while a double press exits immediately. No
// mid-submission cancellation happens either way: the checkpoint is
// only written after a submission fully completes.
func signalContext(logger zerolog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Warn().Msg("Interrupt received, stopping at the next safe point (press again to force)")
		cancel()
		<-sigCh
		logger.Error().Msg("Second interrupt, terminating immediately")
		os.Exit(130)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// serveMetrics exposes Prometheus metrics for the duration of the run.
// It returns once the listener is bound, so scrapes work even while the
// run is blocked on a prompt.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	serveMetricsOn(ctx, ln, logger)
	return nil
}

// serveMetricsOn serves until ctx is cancelled, then shuts the server
// down with a short grace period.
func serveMetricsOn(ctx context.Context, ln net.Listener, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics shutdown")
		}
	}()
}
