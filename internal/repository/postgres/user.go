package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
)

const userColumns = `id, name, email, department, role, password_hash, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, name, email, department, role, password_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	user.Touch(time.Now())
	if user.Role == "" {
		user.Role = model.UserRoleUser
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Department,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translate(err))
	}
	return &user, nil
}

// GetByName returns the oldest user with an exact name match.
func (r *userRepository) GetByName(ctx context.Context, name string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name = $1 ORDER BY created_at LIMIT 1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, name); err != nil {
		return nil, fmt.Errorf("failed to get user by name: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) FindByNames(ctx context.Context, names []string) ([]*model.User, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE name = ANY($1) ORDER BY created_at`

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to find users by name: %w", err)
	}
	return users, nil
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []interface{}{}

	if filters != nil {
		if filters.Department != "" {
			query += fmt.Sprintf(" AND department = $%d", len(args)+1)
			args = append(args, filters.Department)
		}
		if filters.Role != "" {
			query += fmt.Sprintf(" AND role = $%d", len(args)+1)
			args = append(args, filters.Role)
		}
	}
	query += " ORDER BY name"

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET name = $2, email = $3, department = $4, role = $5, updated_at = $6
		WHERE id = $1
	`

	user.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Department,
		user.Role,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}
	return requireRow(result)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result)
}

// Delete fails with ErrReferenced while the user is still the sender of any
// letter. Their notifications and reset tokens cascade.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", translate(err))
	}
	return requireRow(result)
}
