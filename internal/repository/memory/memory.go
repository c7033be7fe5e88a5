// Package memory holds map-backed repositories with the same conditional
// update semantics as the postgres implementations. They back service and
// handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
	order []uuid.UUID
	// Referenced, when set, stands in for the letters foreign key on Delete.
	Referenced func(uuid.UUID) bool
}

func NewUserRepository(users ...*model.User) *UserRepository {
	r := &UserRepository{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		_ = r.Create(context.Background(), u)
	}
	return r
}

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.Touch(time.Now())
	if user.Role == "" {
		user.Role = model.UserRoleUser
	}
	cp := *user
	r.users[user.ID] = &cp
	r.order = append(r.order, user.ID)
	return nil
}

func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.first(func(u *model.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByName(_ context.Context, name string) (*model.User, error) {
	return r.first(func(u *model.User) bool { return u.Name == name })
}

func (r *UserRepository) FindByNames(_ context.Context, names []string) ([]*model.User, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	return r.all(func(u *model.User) bool { return want[u.Name] }), nil
}

func (r *UserRepository) List(_ context.Context, filters *model.UserFilters) ([]*model.User, error) {
	users := r.all(func(u *model.User) bool {
		if filters == nil {
			return true
		}
		if filters.Department != "" && u.Department != filters.Department {
			return false
		}
		if filters.Role != "" && u.Role != filters.Role {
			return false
		}
		return true
	})
	sort.SliceStable(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (r *UserRepository) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, u := range r.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.UpdatedAt = time.Now()
	cp := *user
	cp.PasswordHash = stored.PasswordHash
	r.users[user.ID] = &cp
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	if r.Referenced != nil && r.Referenced(id) {
		return repository.ErrReferenced
	}
	delete(r.users, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *UserRepository) first(match func(*model.User) bool) (*model.User, error) {
	if users := r.all(match); len(users) > 0 {
		return users[0], nil
	}
	return nil, repository.ErrNotFound
}

// all returns copies in insertion order.
func (r *UserRepository) all(match func(*model.User) bool) []*model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.User
	for _, id := range r.order {
		if u := r.users[id]; match(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out
}
