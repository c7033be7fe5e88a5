package recipient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
	"github.com/jwalitptl/letter-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

func newUser(name, email, dept string) *model.User {
	return &model.User{Name: name, Email: email, Department: dept}
}

func setup(t *testing.T, dedupe bool) (*Resolver, map[string]*model.User) {
	t.Helper()
	users := map[string]*model.User{
		"alice": newUser("Alice", "alice@example.com", "Finance"),
		"bob":   newUser("Bob", "bob@example.com", "HR"),
		"carol": newUser("Carol", "carol@example.com", "Finance"),
	}
	repo := memory.NewUserRepository(users["alice"], users["bob"], users["carol"])
	return NewResolver(repo, Config{DedupeCC: dedupe}), users
}

func TestResolveSender(t *testing.T) {
	r, users := setup(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		from []string
		want string
	}{
		{"by id", []string{users["alice"].ID.String()}, "alice@example.com"},
		{"by name", []string{"Bob"}, "bob@example.com"},
		{"by email", []string{"carol@example.com"}, "carol@example.com"},
		{"first non-blank entry", []string{"", "  ", "Alice", "Bob"}, "alice@example.com"},
		{"trims whitespace", []string{"  Bob  "}, "bob@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := r.ResolveSender(ctx, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, user.Email)
		})
	}
}

func TestResolveSender_Blank(t *testing.T) {
	r, _ := setup(t, false)

	for _, from := range [][]string{nil, {}, {""}, {"   ", "\t"}} {
		_, err := r.ResolveSender(context.Background(), from)
		require.Error(t, err)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrValidation, appErr.Code)
		assert.Equal(t, "sender information is missing", appErr.Message)
	}
}

func TestResolveSender_NotFound(t *testing.T) {
	r, _ := setup(t, false)

	_, err := r.ResolveSender(context.Background(), []string{uuid.NewString()})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = r.ResolveSender(context.Background(), []string{"Mallory"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "sender user not found")
}

func TestResolveRecipient(t *testing.T) {
	r, _ := setup(t, false)

	user, err := r.ResolveRecipient(context.Background(), "Carol")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", user.Email)

	_, err = r.ResolveRecipient(context.Background(), "carol@example.com")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = r.ResolveRecipient(context.Background(), " ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

func TestResolveCC_DepartmentMapSkipsUnknown(t *testing.T) {
	r, _ := setup(t, false)

	cc, err := r.ResolveCC(context.Background(), model.DepartmentMapCC(map[string][]string{
		"deptA": {"Alice"},
		"deptB": {"Bob", "Unknown"},
	}), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, cc)
	assert.Len(t, cc, 2)
}

func TestResolveCC_EmailListUsedAsIs(t *testing.T) {
	r, _ := setup(t, false)

	cc, err := r.ResolveCC(context.Background(), model.EmailListCC("x@example.com", " ", "y@example.com"), []string{"plain@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"plain@example.com", "x@example.com", "y@example.com"}, cc)
}

func TestResolveCC_Dedupe(t *testing.T) {
	selection := model.DepartmentMapCC(map[string][]string{
		"Finance": {"Alice"},
		"Board":   {"Alice", "Carol"},
	})

	r, _ := setup(t, false)
	cc, err := r.ResolveCC(context.Background(), selection, nil)
	require.NoError(t, err)
	assert.Len(t, cc, 3)

	r, _ = setup(t, true)
	cc, err = r.ResolveCC(context.Background(), selection, []string{"ALICE@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ALICE@example.com", "carol@example.com"}, cc)
}

func TestResolve(t *testing.T) {
	r, users := setup(t, false)

	res, err := r.Resolve(context.Background(), []string{"Alice"}, "Bob", nil,
		model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}}))
	require.NoError(t, err)
	assert.Equal(t, users["alice"].ID, res.Sender.ID)
	assert.Equal(t, users["bob"].ID, res.Recipient.ID)
	assert.Equal(t, []string{"carol@example.com"}, res.CC)

	_, err = r.Resolve(context.Background(), []string{""}, "Bob", nil, model.CCInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) GetByName(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection reset")
}

func TestResolveRecipient_StoreFailure(t *testing.T) {
	r := NewResolver(failingUsers{}, Config{})

	_, err := r.ResolveRecipient(context.Background(), "Bob")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrPersistence))
}

func TestLookupByEmail_CachesHits(t *testing.T) {
	repo := memory.NewUserRepository(newUser("Dan", "dan@example.com", "Ops"))
	r := NewResolver(repo, Config{})
	ctx := context.Background()

	miss, err := r.LookupByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, repo.Create(ctx, newUser("Erin", "erin@example.com", "Ops")))
	hit, err := r.LookupByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Erin", hit.Name)

	_, cached := r.cache.Get("email:erin@example.com")
	assert.True(t, cached)
}
