package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("record already exists")
	// ErrReferenced is returned when a delete is blocked by a foreign key.
	ErrReferenced = errors.New("record is still referenced")
)

// All repository interfaces in one file
type (
	// UserRepository is the read side of the user directory plus registration.
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		GetByName(ctx context.Context, name string) (*model.User, error)
		FindByNames(ctx context.Context, names []string) ([]*model.User, error)
		List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// PasswordResetRepository keeps one outstanding reset token per user.
	// Only a hash of the token is stored.
	PasswordResetRepository interface {
		Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
		// Consume marks the token used and returns its user. Unknown, used and
		// expired tokens all report ErrNotFound.
		Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	}

	// LetterRepository persists letters and their embedded attachments. The
	// Set*/Transition methods are conditional updates and report whether a
	// row actually changed.
	LetterRepository interface {
		Create(ctx context.Context, letter *model.Letter) error
		Get(ctx context.Context, id uuid.UUID) (*model.Letter, error)
		List(ctx context.Context, filters *model.LetterFilters) ([]*model.Letter, error)
		Delete(ctx context.Context, id uuid.UUID) error
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.LetterStatus) (bool, error)
		Reject(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
		SetUnread(ctx context.Context, id uuid.UUID, unread bool) (bool, error)
		SetStarred(ctx context.Context, id uuid.UUID, starred bool) (bool, error)
		GetAttachment(ctx context.Context, letterID uuid.UUID, filename string) (*model.Attachment, error)
		CountPendingBefore(ctx context.Context, before time.Time) (int, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id uuid.UUID) error
		MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
		Delete(ctx context.Context, id uuid.UUID) error
		DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
