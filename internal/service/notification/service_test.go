package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

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

func newNotification(recipient uuid.UUID) *model.Notification {
	return &model.Notification{
		RecipientID: recipient,
		Type:        model.NotificationNewLetter,
		Title:       "New Letter Received",
		Message:     "You have received a new letter",
	}
}

func TestCreate_PublishesEvent(t *testing.T) {
	broker := new(mockBroker)
	repo := memory.NewNotificationRepository()
	svc := NewService(repo, broker, metrics.NewNop())

	recipient := uuid.New()
	broker.On("Publish", mock.Anything, messaging.ChannelNotifications, mock.MatchedBy(func(msg messaging.Message) bool {
		event, ok := msg.Payload.(model.NotificationEvent)
		return ok && msg.Type == "new_letter" && event.UserID == recipient
	})).Return(nil).Once()

	n := newNotification(recipient)
	require.NoError(t, svc.Create(context.Background(), n))

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, model.NotificationPriorityLow, n.Priority)
	assert.Len(t, repo.All(), 1)
	broker.AssertExpectations(t)
}

func TestCreate_PublishFailureIsNotFatal(t *testing.T) {
	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	repo := memory.NewNotificationRepository()
	svc := NewService(repo, broker, metrics.NewNop())

	require.NoError(t, svc.Create(context.Background(), newNotification(uuid.New())))
	assert.Len(t, repo.All(), 1)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(memory.NewNotificationRepository(), nil, metrics.NewNop())

	cases := map[string]*model.Notification{
		"no recipient": {Type: model.NotificationNewLetter, Title: "t", Message: "m"},
		"bad type":     {RecipientID: uuid.New(), Type: "fax", Title: "t", Message: "m"},
		"no title":     {RecipientID: uuid.New(), Type: model.NotificationNewLetter, Message: "m"},
		"bad priority": {RecipientID: uuid.New(), Type: model.NotificationNewLetter, Title: "t", Message: "m", Priority: "critical"},
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			err := svc.Create(context.Background(), n)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
		})
	}
}

func TestEventPayloadShape(t *testing.T) {
	event := model.NotificationEvent{ID: uuid.New(), UserID: uuid.New(), Type: model.NotificationLetterRead, Title: "Letter Read"}
	raw, err := json.Marshal(messaging.NewMessage(string(event.Type), event))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "letter_read", decoded["type"])
	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, "Letter Read", payload["title"])
	assert.Equal(t, event.UserID.String(), payload["user_id"])
}

func TestReadAndDelete(t *testing.T) {
	repo := memory.NewNotificationRepository()
	svc := NewService(repo, nil, metrics.NewNop())
	ctx := context.Background()
	user := uuid.New()

	first := newNotification(user)
	second := newNotification(user)
	require.NoError(t, svc.Create(ctx, first))
	require.NoError(t, svc.Create(ctx, second))
	require.NoError(t, svc.Create(ctx, newNotification(uuid.New())))

	list, err := svc.ListForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, svc.MarkRead(ctx, first.ID))
	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	n, err := svc.MarkAllRead(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, svc.Delete(ctx, first.ID))
	err = svc.Delete(ctx, first.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	err = svc.MarkRead(ctx, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
