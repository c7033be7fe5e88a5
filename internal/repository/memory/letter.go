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

type LetterRepository struct {
	mu      sync.Mutex
	letters map[uuid.UUID]*model.Letter
	seq     map[uuid.UUID]int
	next    int
	// FailCreate, when set, is returned by Create for letters matching it.
	FailCreate func(*model.Letter) error
}

func NewLetterRepository() *LetterRepository {
	return &LetterRepository{
		letters: make(map[uuid.UUID]*model.Letter),
		seq:     make(map[uuid.UUID]int),
	}
}

func (r *LetterRepository) Create(_ context.Context, letter *model.Letter) error {
	if r.FailCreate != nil {
		if err := r.FailCreate(letter); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	letter.Touch(now)
	for _, a := range letter.Attachments {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.LetterID = letter.ID
		a.Size = int64(len(a.Data))
		if a.UploadedAt.IsZero() {
			a.UploadedAt = now
		}
	}

	r.letters[letter.ID] = cloneLetter(letter, true)
	r.seq[letter.ID] = r.next
	r.next++
	return nil
}

func (r *LetterRepository) Get(_ context.Context, id uuid.UUID) (*model.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.letters[id]; ok {
		return cloneLetter(l, true), nil
	}
	return nil, repository.ErrNotFound
}

// List returns newest first, without attachment bytes.
func (r *LetterRepository) List(_ context.Context, filters *model.LetterFilters) ([]*model.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Letter
	for _, l := range r.letters {
		if filters != nil {
			if filters.ToEmail != "" && l.ToEmail != filters.ToEmail {
				continue
			}
			if filters.FromEmail != "" && l.FromEmail != filters.FromEmail {
				continue
			}
			if filters.Status != "" && l.Status != filters.Status {
				continue
			}
			if filters.Canonical && l.IsCC {
				continue
			}
		}
		out = append(out, cloneLetter(l, false))
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] > r.seq[out[j].ID] })
	return out, nil
}

// Delete cascades to CC-duplicates of the letter.
func (r *LetterRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.letters[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.letters, id)
	for dupID, l := range r.letters {
		if l.OriginalLetterID != nil && *l.OriginalLetterID == id {
			delete(r.letters, dupID)
		}
	}
	return nil
}

func (r *LetterRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.LetterStatus) (bool, error) {
	return r.update(id, func(l *model.Letter) bool {
		if l.Status != from {
			return false
		}
		l.Status = to
		return true
	})
}

func (r *LetterRepository) Reject(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.update(id, func(l *model.Letter) bool {
		if l.Status != model.LetterStatusPending {
			return false
		}
		l.Status = model.LetterStatusRejected
		l.RejectionReason = &reason
		l.RejectedAt = &at
		return true
	})
}

func (r *LetterRepository) SetUnread(_ context.Context, id uuid.UUID, unread bool) (bool, error) {
	return r.update(id, func(l *model.Letter) bool {
		if l.Unread == unread {
			return false
		}
		l.Unread = unread
		return true
	})
}

func (r *LetterRepository) SetStarred(_ context.Context, id uuid.UUID, starred bool) (bool, error) {
	return r.update(id, func(l *model.Letter) bool {
		if l.Starred == starred {
			return false
		}
		l.Starred = starred
		return true
	})
}

func (r *LetterRepository) GetAttachment(_ context.Context, letterID uuid.UUID, filename string) (*model.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.letters[letterID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, a := range l.Attachments {
		if a.Filename == filename {
			cp := *a
			cp.Data = append([]byte(nil), a.Data...)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *LetterRepository) CountPendingBefore(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, l := range r.letters {
		if l.Status == model.LetterStatusPending && l.CreatedAt.Before(before) {
			count++
		}
	}
	return count, nil
}

// Len reports how many letters are stored.
func (r *LetterRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.letters)
}

// SetCreatedAt backdates a stored letter.
func (r *LetterRepository) SetCreatedAt(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.letters[id]; ok {
		l.CreatedAt = at
	}
}

// update applies fn under the lock. A row that does not exist reports false
// the same way a failed WHERE clause does.
func (r *LetterRepository) update(id uuid.UUID, fn func(*model.Letter) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.letters[id]
	if !ok || !fn(l) {
		return false, nil
	}
	l.UpdatedAt = time.Now()
	return true, nil
}

func cloneLetter(l *model.Letter, withData bool) *model.Letter {
	cp := *l
	cp.CC = append(cp.CC[:0:0], l.CC...)
	if l.CCEmployees != nil {
		cp.CCEmployees = make(model.DepartmentCC, len(l.CCEmployees))
		for k, v := range l.CCEmployees {
			cp.CCEmployees[k] = append([]string(nil), v...)
		}
	}
	cp.Attachments = nil
	for _, a := range l.Attachments {
		ac := *a
		if withData {
			ac.Data = append([]byte(nil), a.Data...)
		} else {
			ac.Data = nil
		}
		cp.Attachments = append(cp.Attachments, &ac)
	}
	return &cp
}
