package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/database"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/memstore"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/notify"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/storage"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/tracing"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"tracing", cfg.Tracing.Enabled,
		"archive", cfg.Storage.Enabled(),
	)

	tp, err := tracing.Setup(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var opts []core.Option
	if cfg.Storage.Enabled() {
		archive, err := storage.NewReportArchive(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to configure report archive", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithArchiver(archive))
	}

	service, err := core.NewService(store, cfg, opts...)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	var notifier core.Notifier = core.LogNotifier{}
	if cfg.Outbox.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Outbox.WebhookURL, cfg.Outbox.WebhookSecret, cfg.Outbox.WebhookTimeout)
	}
	dispatcher := core.NewDispatcher(store, notifier, core.DispatcherConfig{
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Parallelism: cfg.Outbox.Parallelism,
		BaseBackoff: cfg.Outbox.BaseBackoff,
		ClaimLease:  cfg.Outbox.ClaimLease,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	scheduler, err := service.StartScheduler(jobCtx, dispatcher, core.SchedulerConfig{
		PaymentExpiryInterval: cfg.Payment.ExpiryCheckInterval,
		OutboxInterval:        cfg.Outbox.DispatchInterval,
	})
	if err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let running imports finish their commit phase
		if status := service.ImportLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			}
		}

		cancelJobs()
		if err := scheduler.Stop(); err != nil {
			slog.Warn("scheduler stop", "error", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openStore returns the configured store and its cleanup.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	if strings.EqualFold(cfg.Database.Driver, "memory") {
		slog.Warn("using in-memory store; registrations are lost on restart")
		return memstore.New(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, nil, err
		}
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	return db, db.Close, nil
}
