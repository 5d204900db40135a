package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwantia/mdquery"
	"github.com/mwantia/mdquery/config"
	"github.com/mwantia/mdquery/log"
	"github.com/mwantia/mdquery/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// loadConfig applies command line flags over the config file.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}

	if f.source != "" {
		cfg.Source.Address = f.source
	}
	if cmd.Flags().Changed("scope") {
		cfg.Query.Scopes = f.scopes
	}
	if cmd.Flags().Changed("limit") {
		cfg.Query.Limit = f.limit
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metrics != "" {
		cfg.Metrics.Address = f.metrics
	}

	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, f *flags, predicate string) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := cfg.Logger("mdfind")

	e, err := cfg.NewEngine(logger.Named("engine"))
	if err != nil {
		return err
	}
	if err := e.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()

		if err := e.Close(closeCtx); err != nil {
			logger.Warn("Failed to close engine: %v", err)
		}
	}()

	opts := []mdquery.Option{
		mdquery.WithScopes(cfg.Query.Scopes...),
		mdquery.WithMaxResultCount(cfg.Query.Limit),
		mdquery.WithLogger(logger.Named("query")),
	}

	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, mdquery.WithMetrics(metrics.New(reg)))

		stop := serveMetrics(cfg.Metrics.Address, reg, logger)
		defer stop()
	}

	out := newPrinter(cmd.OutOrStdout(), f.json)

	if !f.live {
		items, err := mdquery.Search(ctx, e, predicate, opts...)
		if err != nil {
			return err
		}
		return out.items(items)
	}

	return watch(ctx, e, predicate, out, logger, opts)
}

// watch prints the gathered items and then every update batch until ctx ends.
func watch(ctx context.Context, service mdquery.Service, predicate string, out *printer, logger *log.Logger, opts []mdquery.Option) error {
	q, err := mdquery.New(service, predicate, opts...)
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Watch(out.batch); err != nil {
		return err
	}

	// Printed on the callback loop, so no update batch can overtake the list.
	gathered := make(chan struct{})
	if err := q.Start(func(items []*mdquery.Item) {
		_ = out.items(items)
		close(gathered)
	}); err != nil {
		return err
	}

	select {
	case <-gathered:
		if err := out.Err(); err != nil {
			return err
		}
	case <-ctx.Done():
		return nil
	}

	logger.Info("Watching '%s' for changes", predicate)
	<-ctx.Done()

	q.StopWatch()
	return out.Err()
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
