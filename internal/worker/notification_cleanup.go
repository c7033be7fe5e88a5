package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/letter-api/internal/repository"
	"github.com/jwalitptl/letter-api/pkg/logger"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

// NotificationCleanupWorker deletes read notifications past retention.
// Unread notifications are never removed.
type NotificationCleanupWorker struct {
	repo            repository.NotificationRepository
	retentionDays   int
	cleanupInterval time.Duration
	metrics         *metrics.Metrics
	logger          *logger.Logger
	now             func() time.Time
}

func NewNotificationCleanupWorker(
	repo repository.NotificationRepository,
	retentionDays int,
	cleanupInterval time.Duration,
	m *metrics.Metrics,
	log *logger.Logger,
) *NotificationCleanupWorker {
	return &NotificationCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		metrics:         m,
		logger:          log.WithFields(map[string]interface{}{"worker": "notification_cleanup"}),
		now:             time.Now,
	}
}

func (w *NotificationCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "interval", w.cleanupInterval.String(), "retention_days", w.retentionDays)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "notification cleanup failed")
			}
		}
	}
}

func (w *NotificationCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup notifications: %w", err)
	}

	w.metrics.NotificationsPurged.Add(float64(rows))
	w.logger.Info("cleaned up read notifications", "deleted", rows, "cutoff", cutoff)
	return rows, nil
}
