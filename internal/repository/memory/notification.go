package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
)

type NotificationRepository struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*model.Notification
	seq           map[uuid.UUID]int
	next          int
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		notifications: make(map[uuid.UUID]*model.Notification),
		seq:           make(map[uuid.UUID]int),
	}
}

func (r *NotificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n.Touch(time.Now())
	cp := *n
	r.notifications[n.ID] = &cp
	r.seq[n.ID] = r.next
	r.next++
	return nil
}

func (r *NotificationRepository) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *NotificationRepository) ListByRecipient(_ context.Context, recipientID uuid.UUID) ([]*model.Notification, error) {
	return r.filter(func(n *model.Notification) bool { return n.RecipientID == recipientID }), nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Read = true
	n.UpdatedAt = time.Now()
	return nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, recipientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notifications[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.notifications, id)
	return nil
}

func (r *NotificationRepository) DeleteReadBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, n := range r.notifications {
		if n.Read && n.CreatedAt.Before(before) {
			delete(r.notifications, id)
			count++
		}
	}
	return count, nil
}

// All returns every notification, oldest first.
func (r *NotificationRepository) All() []*model.Notification {
	out := r.filter(func(*model.Notification) bool { return true })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SetCreatedAt backdates a stored notification.
func (r *NotificationRepository) SetCreatedAt(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		n.CreatedAt = at
	}
}

// filter returns copies, newest first.
func (r *NotificationRepository) filter(match func(*model.Notification) bool) []*model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Notification
	for _, n := range r.notifications {
		if match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] > r.seq[out[j].ID] })
	return out
}
