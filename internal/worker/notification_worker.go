package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"itflow/internal/metrics"
	"itflow/internal/model"
	"itflow/internal/service"
)

const (
	notifyBatchSize   = 20
	notifyMaxAttempts = 5
	notifyInterval    = 5 * time.Second
)

type NotificationStore interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// NotificationWorker drains the notification outbox.
type NotificationWorker struct {
	store       NotificationStore
	mailer      service.Mailer
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewNotificationWorker(store NotificationStore, mailer service.Mailer, interval time.Duration) *NotificationWorker {
	if interval <= 0 {
		interval = notifyInterval
	}
	return &NotificationWorker{
		store:       store,
		mailer:      mailer,
		interval:    interval,
		batchSize:   notifyBatchSize,
		maxAttempts: notifyMaxAttempts,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	slog.Info("starting notification worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification worker stopped")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				slog.Error("batch processing failed", "error", err)
			}
		}
	}
}

func (w *NotificationWorker) processBatch(ctx context.Context) error {
	pending, err := w.store.FetchPending(ctx, w.batchSize, w.maxAttempts)
	if err != nil {
		return fmt.Errorf("get pending notifications: %w", err)
	}

	for _, n := range pending {
		err := w.mailer.Send(ctx, service.Mail{To: n.Recipient, Subject: n.Subject, Body: n.Body})
		switch {
		case errors.Is(err, service.ErrRateLimited):
			metrics.NotificationsSent.WithLabelValues("deferred").Inc()
			slog.Warn("rate limited, stopping batch", "notification", n.ID)
			return nil
		case err != nil:
			metrics.NotificationsSent.WithLabelValues("failed").Inc()
			slog.Error("failed to send notification", "notification", n.ID, "to", n.Recipient, "attempt", n.Attempts+1, "error", err)
			if err := w.store.MarkFailed(ctx, n.ID, err.Error()); err != nil {
				slog.Error("failed to record notification error", "notification", n.ID, "error", err)
			}
		default:
			metrics.NotificationsSent.WithLabelValues("sent").Inc()
			if err := w.store.MarkSent(ctx, n.ID); err != nil {
				slog.Error("failed to mark notification sent", "notification", n.ID, "error", err)
				continue
			}
			slog.Info("notification sent", "notification", n.ID, "to", n.Recipient)
		}
	}

	return nil
}
