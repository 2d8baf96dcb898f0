// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/go-a2a/a2a-taskd/internal/config"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server"
	"github.com/go-a2a/a2a-taskd/server/agent"
	"github.com/go-a2a/a2a-taskd/server/task"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg))
		},
	}

	flags := cmd.Flags()
	flags.String(flagName(config.KeyHost), "0.0.0.0", "Listen host")
	flags.IntP(flagName(config.KeyPort), "p", 8000, "Listen port")
	flags.BoolP(flagName(config.KeyDebug), "d", false, "Enable debug logging")
	flags.String(flagName(config.KeyLogFormat), "text", "Log format: text or json")
	flags.Bool(flagName(config.KeyPersistenceEnabled), false, "Persist task snapshots to SQLite")
	flags.String(flagName(config.KeyStoragePath), "./data", "Directory of the task database")
	flags.Bool(flagName(config.KeyTelemetryEnabled), false, "Expose Prometheus metrics at /metrics")
	flags.Duration(flagName(config.KeyStageDelay), time.Second, "Pause between the stages of a streamed task")
	flags.Int(flagName(config.KeyStoreMaxTasks), 0, "Maximum number of retained tasks (0 is unbounded)")
	flags.Duration(flagName(config.KeyStoreTTL), 0, "Expire tasks after this long without updates (0 disables)")
	flags.Bool(flagName(config.KeyH2C), false, "Serve HTTP/2 without TLS")
	flags.Duration(flagName(config.KeyShutdownTimeout), 10*time.Second, "Grace period for running tasks on shutdown")
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})

	return cmd
}

// flagName returns the command line spelling of a config key.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Debug {
		opts.Level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// serve runs the server until ctx is done, then drains running tasks.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)

	tmCfg := server.TaskManagerConfig{
		StageDelay: cfg.StageDelay,
		MaxTasks:   cfg.StoreMaxTasks,
		TaskTTL:    cfg.StoreTTL,
		Logger:     logger,
	}
	var srvOpts []server.Option

	if cfg.PersistenceEnabled {
		persister, err := openPersister(ctx, cfg.StoragePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := persister.Close(context.Background()); err != nil {
				logger.Warn("failed to close task database", "error", err)
			}
		}()
		tmCfg.Persister = persister
		logger.Info("task persistence enabled", "path", cfg.StoragePath)
	}

	if cfg.TelemetryEnabled {
		provider, err := telemetry.NewPrometheusProvider()
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to shut down meter provider", "error", err)
			}
		}()
		metrics := provider.Metrics()
		tmCfg.Metrics = metrics
		srvOpts = append(srvOpts, server.WithMetrics(metrics), server.WithMetricsHandler(provider.Handler()))
	}

	manager := server.NewDefaultTaskManager(tmCfg)
	srvOpts = append(srvOpts,
		server.WithLogger(logger),
		server.WithAgentCard(agent.DefaultCard("http://"+cfg.Addr())),
	)
	srv, err := server.NewServer(manager, srvOpts...)
	if err != nil {
		return err
	}

	var handler http.Handler = srv
	if cfg.H2C {
		handler = h2c.NewHandler(srv, &http2.Server{})
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("a2a-taskd listening", "addr", cfg.Addr(), "h2c", cfg.H2C)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", cfg.Addr(), err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := manager.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain tasks: %w", err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func openPersister(ctx context.Context, dir string) (*task.DatabaseTaskStore, error) {
	db, err := task.OpenSQLite(dir)
	if err != nil {
		return nil, err
	}
	store, err := task.NewDatabaseTaskStore(task.DatabaseTaskStoreConfig{DB: db, CreateTable: true})
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize task database: %w", err)
	}
	return store, nil
}
