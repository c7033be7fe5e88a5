package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	"github.com/jwalitptl/letter-api/pkg/auth"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/security"
)

var errInvalidCredentials = errors.New("invalid email or password")

type Service interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error)
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type service struct {
	users  repository.UserRepository
	hasher security.PasswordHasher
	jwt    auth.JWTService
}

func NewService(users repository.UserRepository, hasher security.PasswordHasher, jwt auth.JWTService) Service {
	if hasher == nil {
		hasher = security.NewBcryptHasher(security.DefaultCost)
	}
	return &service{
		users:  users,
		hasher: hasher,
		jwt:    jwt,
	}
}

func (s *service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	role := req.Role
	if role == "" {
		role = model.UserRoleUser
	}

	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Department:   strings.TrimSpace(req.Department),
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.InvalidState("a user with this email already exists")
		}
		return nil, apperrors.Persistence("create user", err)
	}

	log.Info().Str("user_id", user.ID.String()).Str("role", user.Role).Msg("user registered")
	return user, nil
}

func (s *service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(errInvalidCredentials)
	}
	if err != nil {
		return nil, apperrors.Persistence("load user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(errInvalidCredentials)
	}

	token, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwt.TTL().Seconds()),
		User:        user,
	}, nil
}

func (s *service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
