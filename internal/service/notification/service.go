package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

type Service interface {
	Create(ctx context.Context, notification *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo    repository.NotificationRepository
	broker  messaging.Broker
	metrics *metrics.Metrics
}

func NewService(repo repository.NotificationRepository, broker messaging.Broker, m *metrics.Metrics) Service {
	if broker == nil {
		broker = messaging.NoopBroker{}
	}
	return &service{
		repo:    repo,
		broker:  broker,
		metrics: m,
	}
}

// Create persists the notification and publishes it for in-app delivery.
// A publish failure is logged; the stored notification stands.
func (s *service) Create(ctx context.Context, n *model.Notification) error {
	if err := s.validateNotification(n); err != nil {
		return err
	}
	if n.Priority == "" {
		n.Priority = model.NotificationPriorityLow
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return apperrors.Persistence("create notification", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	s.publish(ctx, n)
	return nil
}

func (s *service) publish(ctx context.Context, n *model.Notification) {
	event := model.NotificationEvent{
		ID:             uuid.New(),
		NotificationID: n.ID,
		UserID:         n.RecipientID,
		Type:           n.Type,
		Title:          n.Title,
		Content:        n.Message,
		CreatedAt:      n.CreatedAt,
	}

	msg := messaging.NewMessage(string(n.Type), event)
	if err := s.broker.Publish(ctx, messaging.ChannelNotifications, msg); err != nil {
		s.metrics.BrokerOperations.WithLabelValues("publish", "error").Inc()
		log.Warn().
			Err(err).
			Str("notification_id", n.ID.String()).
			Msg("failed to publish notification event")
		return
	}
	s.metrics.BrokerOperations.WithLabelValues("publish", "success").Inc()
}

func (s *service) validateNotification(n *model.Notification) error {
	if n.RecipientID == uuid.Nil {
		return apperrors.Validation("notification recipient is required")
	}
	if !n.Type.Valid() {
		return apperrors.Validation(fmt.Sprintf("invalid notification type: %s", n.Type))
	}
	if n.Title == "" || n.Message == "" {
		return apperrors.Validation("notification title and message are required")
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return apperrors.Validation(fmt.Sprintf("invalid notification priority: %s", n.Priority))
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load notification")
	}
	return n, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	notifications, err := s.repo.ListByRecipient(ctx, userID)
	if err != nil {
		return nil, apperrors.Persistence("list notifications", err)
	}
	if notifications == nil {
		notifications = []*model.Notification{}
	}
	return notifications, nil
}

func (s *service) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return notFoundOr(err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.Persistence("mark notifications read", err)
	}
	return n, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "delete notification")
	}
	return nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("notification", err)
	}
	return apperrors.Persistence(op, err)
}
