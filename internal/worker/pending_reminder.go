package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/letter-api/internal/repository"
	"github.com/jwalitptl/letter-api/pkg/logger"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

// MessagePendingStale is published on the letters channel when letters have
// waited for approval longer than the reminder age.
const MessagePendingStale = "letters.pending_stale"

type PendingStalePayload struct {
	Count     int       `json:"count"`
	OlderThan time.Time `json:"older_than"`
}

// PendingReminderWorker watches for high/urgent letters that nobody has
// approved or rejected.
type PendingReminderWorker struct {
	letters  repository.LetterRepository
	broker   messaging.Broker
	metrics  *metrics.Metrics
	logger   *logger.Logger
	interval time.Duration
	age      time.Duration
	now      func() time.Time
}

func NewPendingReminderWorker(
	letters repository.LetterRepository,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
	interval, age time.Duration,
) *PendingReminderWorker {
	if broker == nil {
		broker = messaging.NoopBroker{}
	}
	return &PendingReminderWorker{
		letters:  letters,
		broker:   broker,
		metrics:  m,
		logger:   log.WithFields(map[string]interface{}{"worker": "pending_reminder"}),
		interval: interval,
		age:      age,
		now:      time.Now,
	}
}

func (w *PendingReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", "interval", w.interval.String(), "age", w.age.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "pending reminder run failed")
			}
		}
	}
}

// RunOnce counts stale pending letters, exports the gauge and, when there
// are any, publishes a reminder for admin clients.
func (w *PendingReminderWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.age)

	count, err := w.letters.CountPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending letters: %w", err)
	}
	w.metrics.PendingStale.Set(float64(count))

	if count == 0 {
		return 0, nil
	}

	w.logger.Warn("letters awaiting approval", "count", count, "older_than", cutoff)

	msg := messaging.NewMessage(MessagePendingStale, PendingStalePayload{Count: count, OlderThan: cutoff})
	if err := w.broker.Publish(ctx, messaging.ChannelLetters, msg); err != nil {
		w.metrics.BrokerOperations.WithLabelValues("publish", "error").Inc()
		w.logger.Error(err, "failed to publish pending reminder")
		return count, nil
	}
	w.metrics.BrokerOperations.WithLabelValues("publish", "success").Inc()
	return count, nil
}
