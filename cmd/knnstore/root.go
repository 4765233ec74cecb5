package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/knnstore"
	"github.com/hupe1980/knnstore/metrics/prom"
)

// app carries what the subcommands share.
type app struct {
	cfg     *Config
	logger  *knnstore.Logger
	metrics knnstore.MetricsCollector
	server  *http.Server
}

func newRootCmd(cfg *Config) *cobra.Command {
	a := &app{cfg: cfg, logger: knnstore.NoopLogger(), metrics: knnstore.NoopMetricsCollector{}}

	root := &cobra.Command{
		Use:           "knnstore",
		Short:         "Build and query kNN-LM datastores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.shutdown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address while the command runs")
	pf.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker goroutines (0 = GOMAXPROCS)")

	root.AddCommand(newBuildCmd(a), newInfoCmd(a), newSearchCmd(a))

	return root
}

func (a *app) setup(ctx context.Context) error {
	logger, err := a.cfg.logger()
	if err != nil {
		return err
	}
	a.logger = logger

	if a.cfg.MetricsAddr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	c := prom.New("knnstore")
	reg.MustRegister(c)
	a.metrics = c

	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.InfoContext(ctx, "serving metrics", "addr", ln.Addr().String())

	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// datastoreOptions returns the configured options plus logging and metrics.
func (a *app) datastoreOptions() ([]knnstore.Option, error) {
	opts, err := a.cfg.options()
	if err != nil {
		return nil, err
	}
	return append(opts, knnstore.WithLogger(a.logger), knnstore.WithMetricsCollector(a.metrics)), nil
}
