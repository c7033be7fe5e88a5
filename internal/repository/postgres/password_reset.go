package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/letter-api/internal/repository"
)

type passwordResetRepository struct {
	BaseRepository
}

func NewPasswordResetRepository(base BaseRepository) repository.PasswordResetRepository {
	return &passwordResetRepository{base}
}

// Store replaces any earlier token for the user.
func (r *passwordResetRepository) Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id) DO UPDATE
			SET token_hash = $2, expires_at = $3, used_at = NULL, created_at = NOW()
		`
		if _, err := tx.ExecContext(ctx, query, userID, tokenHash, expiresAt); err != nil {
			return fmt.Errorf("failed to store reset token: %w", err)
		}
		return nil
	})
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	query := `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE token_hash = $1
		AND used_at IS NULL
		AND expires_at > $2
		RETURNING user_id
	`

	var userID uuid.UUID
	if err := r.db.GetContext(ctx, &userID, query, tokenHash, now); err != nil {
		return uuid.Nil, fmt.Errorf("failed to consume reset token: %w", translate(err))
	}
	return userID, nil
}
