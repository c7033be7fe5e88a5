package letter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/email"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	"github.com/jwalitptl/letter-api/internal/service/notification"
	"github.com/jwalitptl/letter-api/internal/service/recipient"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

// Partial failure stages, used as the metric label.
const (
	stageNotification = "notification"
	stageCCLookup     = "cc_lookup"
	stageCCDuplicate  = "cc_duplicate"
	stageMail         = "mail"
	stageReply        = "reject_reply"
)

type Config struct {
	// ReplyOnReject sends the original sender a reply letter carrying the
	// rejection reason.
	ReplyOnReject bool
}

type Service interface {
	Send(ctx context.Context, req *model.SendLetterRequest) (*model.Letter, error)
	Approve(ctx context.Context, id uuid.UUID) (*model.Letter, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, reviewerID uuid.UUID) (*model.Letter, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*model.Letter, error)
	MarkUnread(ctx context.Context, id uuid.UUID) (*model.Letter, error)
	ToggleStar(ctx context.Context, id uuid.UUID, starred bool) (*model.Letter, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.LetterStatus) (*model.Letter, error)
	Forward(ctx context.Context, id uuid.UUID, caller *model.User, recipients []string, comment string) ([]*model.Letter, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Letter, error)
	ListAll(ctx context.Context) ([]*model.Letter, error)
	ListInbox(ctx context.Context, email string) ([]*model.Letter, error)
	ListSent(ctx context.Context, email string) ([]*model.Letter, error)
	ListPending(ctx context.Context) ([]*model.Letter, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetAttachment(ctx context.Context, id uuid.UUID, filename string) (*model.Attachment, error)
}

type service struct {
	letters       repository.LetterRepository
	resolver      *recipient.Resolver
	notifications notification.Service
	mailer        email.Sender
	metrics       *metrics.Metrics
	config        Config
	now           func() time.Time
}

func NewService(
	letters repository.LetterRepository,
	resolver *recipient.Resolver,
	notifications notification.Service,
	mailer email.Sender,
	m *metrics.Metrics,
	config Config,
) Service {
	return &service{
		letters:       letters,
		resolver:      resolver,
		notifications: notifications,
		mailer:        mailer,
		metrics:       m,
		config:        config,
		now:           time.Now,
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	letter, err := s.letters.Get(ctx, id)
	if err != nil {
		return nil, letterNotFoundOr(err, "load letter")
	}
	return letter, nil
}

func (s *service) ListAll(ctx context.Context) ([]*model.Letter, error) {
	return s.list(ctx, &model.LetterFilters{})
}

func (s *service) ListInbox(ctx context.Context, email string) ([]*model.Letter, error) {
	return s.list(ctx, &model.LetterFilters{ToEmail: email})
}

// ListSent returns the caller's delivered sends, without CC-duplicates.
func (s *service) ListSent(ctx context.Context, email string) ([]*model.Letter, error) {
	return s.list(ctx, &model.LetterFilters{
		FromEmail: email,
		Status:    model.LetterStatusSent,
		Canonical: true,
	})
}

func (s *service) ListPending(ctx context.Context) ([]*model.Letter, error) {
	return s.list(ctx, &model.LetterFilters{Status: model.LetterStatusPending})
}

func (s *service) list(ctx context.Context, filters *model.LetterFilters) ([]*model.Letter, error) {
	letters, err := s.letters.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Persistence("list letters", err)
	}
	if letters == nil {
		letters = []*model.Letter{}
	}
	return letters, nil
}

// Delete removes a letter. Its CC-duplicates go with it.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.letters.Delete(ctx, id); err != nil {
		return letterNotFoundOr(err, "delete letter")
	}
	log.Info().Str("letter_id", id.String()).Msg("letter deleted")
	return nil
}

func (s *service) GetAttachment(ctx context.Context, id uuid.UUID, filename string) (*model.Attachment, error) {
	att, err := s.letters.GetAttachment(ctx, id, filename)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("attachment", err)
	}
	if err != nil {
		return nil, apperrors.Persistence("load attachment", err)
	}
	return att, nil
}

// notify creates a notification and records, but swallows, a failure. It
// runs after the letter itself is stored.
func (s *service) notify(ctx context.Context, n *model.Notification) {
	if err := s.notifications.Create(ctx, n); err != nil {
		s.partialFailure(stageNotification, err, n.RelatedLetterID)
	}
}

func (s *service) partialFailure(stage string, err error, letterID *uuid.UUID) {
	s.metrics.PartialFailures.WithLabelValues(stage).Inc()
	event := log.Error().Err(err).Str("stage", stage)
	if letterID != nil {
		event = event.Str("letter_id", letterID.String())
	}
	event.Msg("letter side effect failed")
}

func letterNotFoundOr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("letter", err)
	}
	return apperrors.Persistence(op, err)
}
