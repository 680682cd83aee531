package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/butler/internal/config"
	"github.com/aristath/butler/internal/httpapi"
	"github.com/aristath/butler/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger := observability.NewLogger(cfg.Log.SlogLevel(), os.Stderr)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics := observability.NewMetrics("butler", prometheus.NewRegistry())
	metricEvents := a.bus.SubscribeAll(1024)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(a.manager, a.bus, metrics, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		metrics.Consume(gctx, metricEvents)
		return nil
	})

	g.Go(func() error {
		return config.Watch(gctx, opts.globalConfig, opts.projectConfig, logger, func(updated *config.Config) {
			n := updated.Scheduler.MaxConcurrent
			logger.Debug("applying max_concurrent", "value", n)
			a.manager.SetMaxConcurrent(n)
		})
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
