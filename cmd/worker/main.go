package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cryptiomt/cryptiomt/internal/database"
	"github.com/cryptiomt/cryptiomt/internal/notify"
	"github.com/cryptiomt/cryptiomt/internal/nvd"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/internal/tasks"
	"github.com/cryptiomt/cryptiomt/pkg/config"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"github.com/cryptiomt/cryptiomt/pkg/queue"
	"github.com/cryptiomt/cryptiomt/pkg/util"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting CryptIoMT worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Initialize encryptor for stored SMTP credentials
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	// Asynq client for follow-up jobs enqueued from handlers
	asynqClient := queue.NewClient(&cfg.Redis)
	enqueuer := tasks.NewEnqueuer(asynqClient)

	// Feed importer
	nvdClient := nvd.NewClient(cfg.NVD.BaseURL, cfg.NVD.APIKey)
	importer := nvd.NewImporter(db, nvdClient, enqueuer, logger)

	// Report delivery
	archiver, err := reports.NewS3Archiver(context.Background(), cfg.Archive)
	if err != nil {
		logger.Error("failed to create report archiver", "error", err)
		os.Exit(1)
	}
	var mailer reports.Mailer = reports.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, report mail delivery disabled")
		mailer = reports.NoopMailer{}
	}

	var archiverIface reports.Archiver
	if archiver != nil {
		archiverIface = archiver
	}
	reportService := reports.NewService(db, mailer, archiverIface, encryptor, cfg.SMTP, logger)
	sweeper := reports.NewSweeper(db, enqueuer, logger)
	notifyService := notify.NewService(db, logger)

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, logger, cfg, importer, sweeper, reportService, notifyService)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic entries. The feed sync cron is validated at startup so a
	// bad NVD_SYNC_CRON fails fast instead of silently never running.
	if err := util.ValidateCronExpr(cfg.NVD.SyncCron); err != nil {
		logger.Error("invalid NVD_SYNC_CRON", "cron", cfg.NVD.SyncCron, "error", err)
		os.Exit(1)
	}
	scheduler := queue.NewScheduler(&cfg.Redis)
	registerPeriodic := func(spec string, task *asynq.Task, taskErr error) {
		if taskErr != nil {
			logger.Error("failed to build periodic task", "error", taskErr)
			os.Exit(1)
		}
		if _, err := scheduler.Register(spec, task); err != nil {
			logger.Error("failed to register periodic task", "type", task.Type(), "error", err)
			os.Exit(1)
		}
	}

	feedTask, feedErr := tasks.NewFeedSyncTask(tasks.FeedSyncPayload{LookbackDays: cfg.NVD.LookbackDays})
	registerPeriodic(cfg.NVD.SyncCron, feedTask, feedErr)

	sweepTask, sweepErr := tasks.NewReportSweepTask()
	registerPeriodic("* * * * *", sweepTask, sweepErr)

	offlineTask, offlineErr := tasks.NewOfflineSweepTask()
	registerPeriodic("0 * * * *", offlineTask, offlineErr)

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
			os.Exit(1)
		}
	}()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	asynqClient.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
