package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/config"
	"github.com/MrEthical07/goTasks/internal/httpapi"
	"github.com/MrEthical07/goTasks/internal/security"
	otelexport "github.com/MrEthical07/goTasks/metrics/export/otel"
	promexport "github.com/MrEthical07/goTasks/metrics/export/prometheus"
	"github.com/MrEthical07/goTasks/tasks"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		embedded   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, embedded)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().BoolVar(&embedded, "embedded-redis", false, "Run against an in-process Redis (development only)")
	return cmd
}

func runServe(ctx context.Context, configPath string, embedded bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := cfg.Logger()
	slog.SetDefault(log)
	log.Info("starting gotasks", slog.String("env", cfg.Env))

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	logPosture(log, cfg, engineCfg)

	rdb, closeRedis, err := openRedis(ctx, cfg.Redis, embedded, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	engine, err := goTasks.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(log).
		WithAuditSink(goTasks.NewSlogSink(log.With(slog.String("component", "audit")))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{
		Logger:     log,
		Timeout:    cfg.HTTP.RequestTimeout,
		BasePath:   cfg.HTTP.BasePath,
		TrustProxy: cfg.HTTP.TrustProxy,
		Health:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewPrometheusExporter(engine).Handler()

		otelExp, err := otelexport.NewGlobalOTelExporter(engine)
		if err != nil {
			return err
		}
		defer otelExp.Close()
	}
	handler := httpapi.NewRouter(httpapi.Deps{
		Engine: engine,
		Tasks:  tasks.NewStore(rdb, cfg.Redis.Prefix),
	}, opts)

	addr := cfg.HTTP.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("http_listen_start", slog.String("addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.Any("err", err))
		return err
	}
	log.Info("http_stopped")
	return nil
}

func posture(cfg *config.Config, engineCfg goTasks.Config) security.Report {
	return security.BuildReport(security.Input{
		ProductionMode: cfg.Env == config.EnvProd,
		TrustProxy:     cfg.HTTP.TrustProxy,
		Engine:         engineCfg,
	})
}

func logPosture(log *slog.Logger, cfg *config.Config, engineCfg goTasks.Config) {
	rep := posture(cfg, engineCfg)
	log.Info("security_posture", slog.Any("security", rep))
	for _, w := range rep.Warnings {
		log.Warn("security_warning", slog.String("detail", w))
	}
}
