package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-app/custodia/internal/shared"
)

// memoryRepository emulates the store including the unique index on usuario.
type memoryRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{nextID: 1, users: map[int64]User{}}
}

func (m *memoryRepository) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryRepository) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *memoryRepository) CreateUser(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return User{}, shared.ErrDuplicate
		}
	}
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.nextID++
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepository) UpdateUser(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	for id, other := range m.users {
		if id != user.ID && other.Username == user.Username {
			return User{}, shared.ErrDuplicate
		}
	}
	user.CreatedAt = existing.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepository) DeleteUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	delete(m.users, id)
	return u, nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	service := NewService(newMemoryRepository())

	user, err := service.CreateUser(context.Background(), "jdoe", "hunter22", "Jane Doe", true)
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))
}

func TestCreateUserValidation(t *testing.T) {
	service := NewService(newMemoryRepository())

	_, err := service.CreateUser(context.Background(), "  ", "hunter22", "", true)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreateUser(context.Background(), "jdoe", "", "", true)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	service := NewService(newMemoryRepository())

	_, err := service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)

	_, err = service.CreateUser(context.Background(), "jdoe", "other-secret", "", true)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestConcurrentCreateSameUsername(t *testing.T) {
	service := NewService(newMemoryRepository())

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
		}(i)
	}
	wg.Wait()

	var created, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, shared.ErrDuplicate):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, created, "exactly one creation wins")
	require.Equal(t, workers-1, duplicates)
}

func TestUpdateUserKeepsHashOnEmptyPassword(t *testing.T) {
	service := NewService(newMemoryRepository())

	user, err := service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)

	updated, err := service.UpdateUser(context.Background(), user.ID, "jdoe", "", "Jane", false)
	require.NoError(t, err)
	require.Equal(t, user.PasswordHash, updated.PasswordHash)
	require.False(t, updated.Active)

	updated, err = service.UpdateUser(context.Background(), user.ID, "jdoe", "new-secret", "Jane", true)
	require.NoError(t, err)
	require.NotEqual(t, user.PasswordHash, updated.PasswordHash)
}

func TestAuthenticateCollapsesFailureModes(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo)

	active, err := service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)
	_, err = service.CreateUser(context.Background(), "dormant", "hunter22", "", false)
	require.NoError(t, err)

	got, err := service.Authenticate(context.Background(), "jdoe", "hunter22")
	require.NoError(t, err)
	require.Equal(t, active.ID, got.ID)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "ghost", "hunter22"},
		{"wrong password", "jdoe", "nope"},
		{"inactive account", "dormant", "hunter22"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Authenticate(context.Background(), tc.username, tc.password)
			require.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

// wrappingRepository returns its not-found error wrapped, the way the
// Postgres repository annotates sentinels.
type wrappingRepository struct {
	*memoryRepository
}

func (w *wrappingRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return User{}, fmt.Errorf("users: lookup %q: %w", username, shared.ErrNotFound)
}

func TestAuthenticateUnwrapsNotFound(t *testing.T) {
	service := NewService(&wrappingRepository{newMemoryRepository()})

	_, err := service.Authenticate(context.Background(), "ghost", "hunter22")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestDeleteUserReturnsRemovedRecord(t *testing.T) {
	service := NewService(newMemoryRepository())

	user, err := service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)

	removed, err := service.DeleteUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, removed.ID)

	_, err = service.GetUser(context.Background(), user.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
