package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/repository"
)

type resetToken struct {
	hash      string
	expiresAt time.Time
	used      bool
}

type PasswordResetRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*resetToken
}

func NewPasswordResetRepository() *PasswordResetRepository {
	return &PasswordResetRepository{tokens: make(map[uuid.UUID]*resetToken)}
}

func (r *PasswordResetRepository) Store(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[userID] = &resetToken{hash: tokenHash, expiresAt: expiresAt}
	return nil
}

func (r *PasswordResetRepository) Consume(_ context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, t := range r.tokens {
		if t.hash == tokenHash && !t.used && t.expiresAt.After(now) {
			t.used = true
			return userID, nil
		}
	}
	return uuid.Nil, repository.ErrNotFound
}

// Len reports how many users have a token on file.
func (r *PasswordResetRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
