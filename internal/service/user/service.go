package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/email"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/security"
)

const defaultTokenTTL = time.Hour

// DirectoryCache is told when a user's lookup keys may have changed.
type DirectoryCache interface {
	Forget()
}

type Config struct {
	TokenTTL time.Duration
	// ResetURL gets the token appended as its last path segment.
	ResetURL string
	From     email.Address
}

// Service manages the user directory and password resets.
type Service struct {
	repo   repository.UserRepository
	resets repository.PasswordResetRepository
	mailer email.Sender
	cache  DirectoryCache
	hasher security.PasswordHasher
	config Config
	now    func() time.Time
}

func NewService(
	repo repository.UserRepository,
	resets repository.PasswordResetRepository,
	mailer email.Sender,
	cache DirectoryCache,
	hasher security.PasswordHasher,
	config Config,
) *Service {
	if config.TokenTTL <= 0 {
		config.TokenTTL = defaultTokenTTL
	}
	return &Service{
		repo:   repo,
		resets: resets,
		mailer: mailer,
		cache:  cache,
		hasher: hasher,
		config: config,
		now:    time.Now,
	}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, apperrors.Persistence("load user", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, filters *model.UserFilters) ([]*model.User, error) {
	users, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Persistence("list users", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// UpdateUser applies the present fields. Names and emails key the resolver
// cache, so it is flushed on success.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Department != nil {
		user.Department = strings.TrimSpace(*req.Department)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if err := validateUser(user); err != nil {
		return nil, err
	}

	err = s.repo.Update(ctx, user)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.InvalidState("a user with this email already exists")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("user", err)
	case err != nil:
		return nil, apperrors.Persistence("update user", err)
	}

	s.forget()
	log.Info().Str("user_id", id.String()).Msg("user updated")
	return user, nil
}

// DeleteUser refuses while letters still name the user as sender.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("user", err)
	case errors.Is(err, repository.ErrReferenced):
		return apperrors.InvalidState("user has sent letters and cannot be deleted")
	case err != nil:
		return apperrors.Persistence("delete user", err)
	}

	s.forget()
	log.Info().Str("user_id", id.String()).Msg("user deleted")
	return nil
}

// RequestPasswordReset emails a single-use reset link. Unknown addresses
// succeed silently so the endpoint does not reveal who has an account.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) error {
	address = strings.ToLower(strings.TrimSpace(address))
	user, err := s.repo.GetByEmail(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		log.Debug().Msg("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return apperrors.Persistence("load user", err)
	}

	token := uuid.NewString()
	if err := s.resets.Store(ctx, user.ID, hashToken(token), s.now().Add(s.config.TokenTTL)); err != nil {
		return apperrors.Persistence("store reset token", err)
	}

	msg, err := email.ComposePasswordReset(email.PasswordReset{
		From:   s.config.From,
		Name:   user.Name,
		Email:  user.Email,
		Link:   strings.TrimRight(s.config.ResetURL, "/") + "/" + token,
		Expiry: s.config.TokenTTL,
	})
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send password reset email")
		return apperrors.MailDelivery(err)
	}
	return nil
}

// ResetPassword consumes the token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return apperrors.Validation("password must be at least 8 characters")
	}
	if err != nil {
		return apperrors.Internal(err)
	}

	userID, err := s.resets.Consume(ctx, hashToken(token), s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.BadRequest("reset token is invalid or expired", err)
	}
	if err != nil {
		return apperrors.Persistence("consume reset token", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return apperrors.Persistence("update password", err)
	}
	log.Info().Str("user_id", userID.String()).Msg("password reset")
	return nil
}

func (s *Service) forget() {
	if s.cache != nil {
		s.cache.Forget()
	}
}

func validateUser(user *model.User) error {
	if user.Name == "" {
		return apperrors.Validation("name is required")
	}
	if user.Email == "" {
		return apperrors.Validation("email is required")
	}
	if user.Department == "" {
		return apperrors.Validation("department is required")
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
