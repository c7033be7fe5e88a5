package recipient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

type Config struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	// DedupeCC collapses repeated CC addresses. Off by default so that an
	// employee selected under two departments is copied twice.
	DedupeCC bool
}

// Resolution is the canonical set of parties for one letter.
type Resolution struct {
	Sender    *model.User
	Recipient *model.User
	CC        []string
}

// Resolver maps loosely typed sender, recipient and CC input onto users of
// the directory. It only reads from the user store.
type Resolver struct {
	users  repository.UserRepository
	cache  *cache.Cache
	dedupe bool
}

func NewResolver(users repository.UserRepository, cfg Config) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &Resolver{
		users:  users,
		cache:  cache.New(cfg.CacheTTL, cfg.CleanupInterval),
		dedupe: cfg.DedupeCC,
	}
}

// Resolve runs sender, recipient and CC resolution in that order. Sender or
// recipient failures abort; unknown CC names are dropped.
func (r *Resolver) Resolve(ctx context.Context, from []string, to string, cc []string, ccEmployees model.CCInput) (*Resolution, error) {
	sender, err := r.ResolveSender(ctx, from)
	if err != nil {
		return nil, err
	}

	recipient, err := r.ResolveRecipient(ctx, to)
	if err != nil {
		return nil, err
	}

	ccEmails, err := r.ResolveCC(ctx, ccEmployees, cc)
	if err != nil {
		return nil, err
	}

	return &Resolution{Sender: sender, Recipient: recipient, CC: ccEmails}, nil
}

// ResolveSender takes the first non-blank value and tries it as a user id,
// then as a name, then as an email.
func (r *Resolver) ResolveSender(ctx context.Context, from []string) (*model.User, error) {
	value := firstNonBlank(from)
	if value == "" {
		return nil, apperrors.SenderMissing()
	}

	if id, err := uuid.Parse(value); err == nil {
		user, err := r.lookup(ctx, "id:"+id.String(), func() (*model.User, error) {
			return r.users.Get(ctx, id)
		})
		if user != nil || err != nil {
			return user, err
		}
	}

	user, err := r.lookup(ctx, "name:"+value, func() (*model.User, error) {
		return r.users.GetByName(ctx, value)
	})
	if user != nil || err != nil {
		return user, err
	}

	user, err = r.LookupByEmail(ctx, value)
	if user != nil || err != nil {
		return user, err
	}

	return nil, apperrors.SenderNotFound(value)
}

// ResolveRecipient matches the primary recipient by exact name.
func (r *Resolver) ResolveRecipient(ctx context.Context, to string) (*model.User, error) {
	name := strings.TrimSpace(to)
	if name == "" {
		return nil, apperrors.Validation("recipient is required")
	}

	user, err := r.lookup(ctx, "name:"+name, func() (*model.User, error) {
		return r.users.GetByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.RecipientNotFound(name)
	}
	return user, nil
}

// ResolveCC flattens the plain CC list and the CC selection into one list
// of addresses. Department names that match no user contribute nothing.
func (r *Resolver) ResolveCC(ctx context.Context, input model.CCInput, plain []string) ([]string, error) {
	emails := model.NormalizeEmails(plain)

	switch input.Kind {
	case model.CCEmailList:
		emails = append(emails, model.NormalizeEmails(input.Emails)...)
	case model.CCDepartmentMap:
		for _, dept := range input.Departments.Departments() {
			names := model.NormalizeEmails(input.Departments[dept])
			if len(names) == 0 {
				continue
			}
			users, err := r.users.FindByNames(ctx, names)
			if err != nil {
				return nil, apperrors.Persistence("resolve cc employees", err)
			}
			for _, u := range users {
				emails = append(emails, u.Email)
			}
		}
	}

	if r.dedupe {
		emails = dedupe(emails)
	}
	return emails, nil
}

// LookupByEmail returns nil without error when no user has the address.
func (r *Resolver) LookupByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return r.lookup(ctx, "email:"+strings.ToLower(email), func() (*model.User, error) {
		return r.users.GetByEmail(ctx, email)
	})
}

// lookup consults the cache before fetch. Only hits are cached so users
// registered after a miss become resolvable immediately.
func (r *Resolver) lookup(ctx context.Context, key string, fetch func() (*model.User, error)) (*model.User, error) {
	if v, ok := r.cache.Get(key); ok {
		return v.(*model.User), nil
	}

	user, err := fetch()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Persistence("look up user", fmt.Errorf("%s: %w", key, err))
	}

	r.cache.SetDefault(key, user)
	r.cache.SetDefault("id:"+user.ID.String(), user)
	r.cache.SetDefault("email:"+strings.ToLower(user.Email), user)
	return user, nil
}

// Forget drops every cached entry; used after directory changes.
func (r *Resolver) Forget() {
	r.cache.Flush()
}

func firstNonBlank(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := emails[:0]
	for _, e := range emails {
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
