package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository/memory"
	"github.com/jwalitptl/letter-api/pkg/logger"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	return nil, args.Error(1)
}

func (m *mockBroker) Close() error {
	return m.Called().Error(0)
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.DebugLevel, Output: &bytes.Buffer{}, JSON: true})
}

func seedLetter(t *testing.T, repo *memory.LetterRepository, status model.LetterStatus, age time.Duration) {
	t.Helper()
	l := &model.Letter{
		Subject:  "Budget",
		Priority: model.PriorityUrgent,
		Content:  "body",
		Status:   status,
	}
	require.NoError(t, repo.Create(context.Background(), l))
	repo.SetCreatedAt(l.ID, testNow.Add(-age))
}

func TestPendingReminder_CountsStaleLetters(t *testing.T) {
	letters := memory.NewLetterRepository()
	seedLetter(t, letters, model.LetterStatusPending, 48*time.Hour)
	seedLetter(t, letters, model.LetterStatusPending, 30*time.Hour)
	seedLetter(t, letters, model.LetterStatusPending, time.Hour)
	seedLetter(t, letters, model.LetterStatusSent, 72*time.Hour)

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, messaging.ChannelLetters, mock.MatchedBy(func(msg messaging.Message) bool {
		payload, ok := msg.Payload.(PendingStalePayload)
		return ok && msg.Type == MessagePendingStale && payload.Count == 2
	})).Return(nil).Once()

	m := metrics.NewNop()
	w := NewPendingReminderWorker(letters, broker, m, testLogger(), time.Hour, 24*time.Hour)
	w.now = func() time.Time { return testNow }

	count, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PendingStale))
	broker.AssertExpectations(t)
}

func TestPendingReminder_NothingStale(t *testing.T) {
	letters := memory.NewLetterRepository()
	seedLetter(t, letters, model.LetterStatusPending, time.Hour)

	broker := &mockBroker{}
	m := metrics.NewNop()
	m.PendingStale.Set(5)

	w := NewPendingReminderWorker(letters, broker, m, testLogger(), time.Hour, 24*time.Hour)
	w.now = func() time.Time { return testNow }

	count, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, testutil.ToFloat64(m.PendingStale))
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPendingReminder_PublishFailureIsNotFatal(t *testing.T) {
	letters := memory.NewLetterRepository()
	seedLetter(t, letters, model.LetterStatusPending, 48*time.Hour)

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	m := metrics.NewNop()
	w := NewPendingReminderWorker(letters, broker, m, testLogger(), time.Hour, 24*time.Hour)
	w.now = func() time.Time { return testNow }

	count, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BrokerOperations.WithLabelValues("publish", "error")))
}

func TestPendingReminder_StopsOnCancel(t *testing.T) {
	w := NewPendingReminderWorker(memory.NewLetterRepository(), nil, metrics.NewNop(), testLogger(), time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNotificationCleanup_DeletesOnlyOldReadNotifications(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewNotificationRepository()
	recipient := uuid.New()

	seed := func(read bool, age time.Duration) *model.Notification {
		n := &model.Notification{
			RecipientID: recipient,
			Type:        model.NotificationNewLetter,
			Title:       "New Letter Received",
			Message:     "hello",
			Priority:    model.NotificationPriorityMedium,
		}
		require.NoError(t, repo.Create(ctx, n))
		if read {
			require.NoError(t, repo.MarkRead(ctx, n.ID))
		}
		repo.SetCreatedAt(n.ID, testNow.Add(-age))
		return n
	}

	seed(true, 100*24*time.Hour)
	seed(true, 95*24*time.Hour)
	keptUnread := seed(false, 200*24*time.Hour)
	keptRecent := seed(true, 10*24*time.Hour)

	m := metrics.NewNop()
	w := NewNotificationCleanupWorker(repo, 90, time.Hour, m, testLogger())
	w.now = func() time.Time { return testNow }

	deleted, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.NotificationsPurged))

	remaining := repo.All()
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, keptUnread.ID)
	assert.Contains(t, ids, keptRecent.ID)
}
