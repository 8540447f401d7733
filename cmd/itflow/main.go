package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"itflow/internal/config"
	"itflow/internal/database"
	"itflow/internal/handler"
	"itflow/internal/logging"
	"itflow/internal/report"
	"itflow/internal/service"
	"itflow/internal/storage"
	"itflow/internal/token"
	"itflow/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.New()
	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(ctx, db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	disk, err := storage.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	var store token.Store = token.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		store = token.NewRedisStore(rdb)
	}
	tokens := token.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, store)

	var mailer service.Mailer = service.LogMailer{}
	if cfg.SendGridAPIKey != "" {
		mailer = service.NewSendGridClient(cfg.SendGridURL, cfg.SendGridAPIKey, cfg.MailFrom)
	}

	// Services
	authSvc := service.NewAuthService(db)
	userSvc := service.NewUserService(db)
	orderSvc := service.NewOrderService(db, cfg.AdminEmail)
	historySvc := service.NewHistoryService(db)
	fileSvc := service.NewFileService(db, disk, cfg.MaxUploadBytes, report.Company{
		Name:    cfg.CompanyName,
		Address: cfg.CompanyAddress,
		TaxID:   cfg.CompanyTaxID,
		Phone:   cfg.CompanyPhone,
	})
	contactSvc := service.NewContactService(db)
	notificationSvc := service.NewNotificationService(db, mailer)
	backupSvc := service.NewBackupService(db, disk)

	// Workers
	notificationWorker := worker.NewNotificationWorker(notificationSvc, mailer, cfg.NotifyInterval)
	backupWorker := worker.NewBackupWorker(backupSvc, cfg.BackupInterval, cfg.BackupRetentionDays)

	router := handler.NewRouter(handler.Deps{
		Auth:          authSvc,
		Tokens:        tokens,
		Users:         userSvc,
		Orders:        orderSvc,
		History:       historySvc,
		Files:         fileSvc,
		Contacts:      contactSvc,
		Mailer:        notificationSvc,
		Backups:       backupSvc,
		MaxUploadSize: cfg.MaxUploadBytes,
		RetentionDays: cfg.BackupRetentionDays,
	})

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.RunAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		notificationWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		backupWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
