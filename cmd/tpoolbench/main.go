// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command tpoolbench drives the tpool runtime through a set of scenarios and
// reports callback throughput. It can expose runtime statistics to Prometheus
// and export callback spans to stdout while it runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/petenewcomb/tpool-go"
	"github.com/petenewcomb/tpool-go/tpconfig"
	"github.com/petenewcomb/tpool-go/tpprom"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type options struct {
	configFile  string
	logLevel    string
	metricsAddr string
	trace       bool
	maxThreads  int
	minThreads  int
	params      scenarioParams
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	v := tpconfig.New()

	root := &cobra.Command{
		Use:   "tpoolbench",
		Short: "Exercise the tpool runtime",
		Long: `tpoolbench runs work, timer, wait and cleanup group scenarios against a
tpool pool and prints a throughput summary for each.

Runtime settings come from --config, TPOOL_* environment variables and the
flags below, in increasing order of precedence.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to a YAML, JSON or TOML runtime configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9090")
	pf.BoolVar(&opts.trace, "trace", false, "Export callback spans to stdout")
	pf.IntVar(&opts.maxThreads, "max-threads", 0, "Maximum workers in the benchmark pool (0 keeps the configured default)")
	pf.IntVar(&opts.minThreads, "min-threads", 0, "Minimum workers in the benchmark pool")
	pf.IntVar(&opts.params.Objects, "objects", 100, "Number of callback objects per scenario")
	pf.IntVar(&opts.params.Posts, "posts", 100, "Submissions per object")
	pf.DurationVar(&opts.params.Duration, "duration", time.Second, "Run time of the timer scenario and timeout of waits")
	pf.DurationVar(&opts.params.Period, "period", 10*time.Millisecond, "Timer period")
	pf.DurationVar(&opts.params.Window, "window", 0, "Timer coalescing window")
	pf.Duration("worker-idle-timeout", 0, "Override the worker idle timeout")
	pf.Int("bucket-capacity", 0, "Override the number of waits per wait bucket")
	mustBind(v, "worker_idle_timeout", root, "worker-idle-timeout")
	mustBind(v, "bucket_capacity", root, "bucket-capacity")

	for _, name := range scenarioOrder {
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Run the %s scenario", name),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, v, opts, name)
			},
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run every scenario in turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, opts, scenarioOrder...)
		},
	})
	return root
}

// mustBind binds a flag to a configuration key, leaving the configured value
// in place unless the flag is given.
func mustBind(v *viper.Viper, key string, cmd *cobra.Command, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func run(cmd *cobra.Command, v *viper.Viper, opts *options, names ...string) error {
	logger, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer zap.ReplaceGlobals(logger)()
	tpool.SetLogger(logger)
	defer tpool.SetLogger(nil)

	if opts.configFile != "" {
		if err := tpconfig.ReadFile(v, opts.configFile); err != nil {
			return err
		}
	}
	cfg, err := tpconfig.Decode(v)
	if err != nil {
		return err
	}
	if err := tpool.Configure(cfg); err != nil {
		return err
	}
	logger.Debug("configuration applied", zap.Any("config", cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if opts.trace {
		shutdown, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	pool := tpool.NewPool()
	defer pool.Release()
	if opts.maxThreads > 0 {
		pool.SetMaxThreads(opts.maxThreads)
	}
	if opts.minThreads > 0 && !pool.SetMinThreads(opts.minThreads) {
		return fmt.Errorf("starting %d workers: %w", opts.minThreads, tpool.ErrOutOfResources)
	}

	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(logger, opts.metricsAddr, pool)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		result, err := scenarios[name](ctx, pool, opts.params)
		if err != nil {
			return fmt.Errorf("%s scenario: %w", name, err)
		}
		result.print(out)
	}
	stats := pool.Stats()
	fmt.Fprintf(out, "pool   workers=%d max=%d objects=%d\n", stats.Workers, stats.MaxWorkers, stats.Objects)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	return cfg.Build()
}

func setupTracing(cmd *cobra.Command) (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.OutOrStdout()))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}, nil
}

func serveMetrics(logger *zap.Logger, addr string, pool *tpool.Pool) (func(), error) {
	reg := prom.NewRegistry()
	if _, err := tpprom.Register(reg, pool); err != nil {
		return nil, fmt.Errorf("registering collector: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.Stringer("addr", ln.Addr()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
