package worker

import (
	"context"
	"log/slog"
	"time"

	"itflow/internal/model"
)

type Backuper interface {
	Create(ctx context.Context) (*model.Backup, error)
	Cleanup(ctx context.Context, days int) (int, error)
}

// BackupWorker takes a backup every interval and prunes old archives after
// each run.
type BackupWorker struct {
	backups       Backuper
	interval      time.Duration
	retentionDays int
}

func NewBackupWorker(backups Backuper, interval time.Duration, retentionDays int) *BackupWorker {
	return &BackupWorker{backups: backups, interval: interval, retentionDays: retentionDays}
}

func (w *BackupWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		slog.Info("backup worker disabled")
		return
	}

	slog.Info("starting backup worker", "interval", w.interval, "retention_days", w.retentionDays)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("backup worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *BackupWorker) runOnce(ctx context.Context) {
	if _, err := w.backups.Create(ctx); err != nil {
		slog.Error("scheduled backup failed", "error", err)
	}

	n, err := w.backups.Cleanup(ctx, w.retentionDays)
	if err != nil {
		slog.Error("backup cleanup failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("old backups cleaned", "count", n)
	}
}
