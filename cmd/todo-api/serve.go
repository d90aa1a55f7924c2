package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"todo-api/background"
	"todo-api/config"
	"todo-api/middleware/ratelimit"
	"todo-api/server"
	"todo-api/todo"
	"todo-api/todo/application"
	"todo-api/todo/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (server.addr)")
	cmd.Flags().String("db-type", "", "database type: sqlite, postgres or mysql (database.type)")
	cmd.Flags().String("db-dsn", "", "database DSN (database.dsn)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	db, err := infra.Open(ctx, infra.Options{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	store := infra.NewStore(db)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close database", "err", err)
		}
	}()

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = server.OpenRedis(ctx, cfg.RateLimit.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	rl, err := server.NewRateLimit(cfg.RateLimit, rdb, logger)
	if err != nil {
		return err
	}
	rl.StartJanitor(ctx)

	runner := background.NewRunner(logger)
	todos := &todo.Handler{
		Service:      application.Service{Store: store},
		Runner:       runner,
		Logger:       logger,
		ProcessDelay: cfg.Background.Delay,
	}

	h := server.NewHandler(server.Options{
		Todos:     todos,
		RateLimit: rl,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
		},
		Logger: logger,
	})
	srv := server.NewHTTPServer(cfg.Server, h)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	logger.Info("todo-api listening",
		"addr", ln.Addr().String(),
		"db", cfg.Database.Type,
		"ratelimit", cfg.RateLimit.Enabled,
		"algorithm", cfg.RateLimit.Algorithm,
		"limit", cfg.RateLimit.Limit,
		"window", cfg.RateLimit.Window,
		"stats", cfg.RateLimit.Stats.Backend,
		"concurrency_max", cfg.Concurrency.Max,
	)

	serveErr := server.Serve(ctx, srv, ln, cfg.Server.ShutdownTimeout)

	// pending background delays are cancelled; tasks get what is left of
	// the shutdown budget to finish
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := runner.Close(drainCtx); err != nil {
		logger.Warn("background tasks still running at exit", "err", err)
	}
	logger.Info("todo-api stopped")
	return serveErr
}
