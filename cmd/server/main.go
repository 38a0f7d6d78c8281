package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/gemstock/internal/application"
	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/logging"
	"github.com/JonMunkholm/gemstock/internal/watch"
	"github.com/JonMunkholm/gemstock/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"watch_enabled", cfg.Watch.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Store.Close()

	slog.Info("inventory schema",
		"gem_types", len(app.Options.GemTypes),
		"statuses", len(app.Options.Statuses),
		"default_status", app.Options.DefaultStatus,
	)

	server := web.NewServer(app.Service, cfg, app.Options)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		core.RunHistoryPruner(gctx, app.Store, cfg.History)
		return nil
	})

	if cfg.Watch.Enabled {
		w := watch.New(cfg.Watch.Dir, cfg.Watch.Settle, app.Service)
		g.Go(func() error { return w.Run(gctx) })
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting work, then let running batches stop before their next row.
		err := server.Shutdown(shutdownCtx)
		app.Service.CancelAll()

		uploadStatus := app.Service.UploadLimiterStatus()
		if uploadStatus.Active > 0 {
			slog.Info("waiting for uploads to stop", "active", uploadStatus.Active)
			if werr := app.Service.WaitForUploads(shutdownCtx); werr != nil {
				slog.Warn("uploads did not stop in time", "error", werr)
			} else {
				slog.Info("all uploads stopped")
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		app.Store.Close()
		os.Exit(1)
	}
	slog.Info("server stopped")
}
