// Package testutil holds stateful in-memory doubles shared by tests across
// packages. Set the *Err fields to inject failures.
package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/users"
)

// MemoryCache implements cache.Store. Patterns follow path.Match, which is
// close enough to Redis glob for the keys used here.
type MemoryCache struct {
	GetErr  error
	SetErr  error
	DelErr  error
	KeysErr error
	PingErr error

	Data map[string]string
	TTLs map[string]time.Duration

	mu sync.Mutex
}

var _ cache.Store = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{Data: map[string]string{}, TTLs: map[string]time.Duration{}}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
	m.TTLs[key] = ttl
	return nil
}

func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	if m.DelErr != nil {
		return m.DelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.Data, k)
		delete(m.TTLs, k)
	}
	return nil
}

func (m *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	if m.KeysErr != nil {
		return nil, m.KeysErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.Data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryCache) ValuesForPattern(ctx context.Context, pattern string) (map[string]string, error) {
	keys, err := m.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = m.Data[k]
	}
	return out, nil
}

func (m *MemoryCache) Ping(context.Context) error { return m.PingErr }

// Has reports whether key is present.
func (m *MemoryCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Data[key]
	return ok
}

// MockUserStore implements users.Store over maps keyed by email and role name.
type MockUserStore struct {
	UserByEmailErr error
	EmailExistsErr error
	SaveUserErr    error
	DeleteAllErr   error
	ListErr        error
	PingErr        error

	Users map[string]users.User
	Roles map[string]users.Role

	// UserByEmailCalls counts store reads, which lets tests observe caching.
	UserByEmailCalls int

	mu sync.Mutex
}

var _ users.Store = (*MockUserStore)(nil)

// NewMockUserStore returns a store holding ROLE_ADMIN and ROLE_USER plus the given users.
func NewMockUserStore(seed ...users.User) *MockUserStore {
	m := &MockUserStore{
		Users: make(map[string]users.User),
		Roles: map[string]users.Role{
			users.RoleAdmin: {ID: "role-admin", Name: users.RoleAdmin},
			users.RoleUser:  {ID: "role-user", Name: users.RoleUser},
		},
	}
	for _, u := range seed {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		m.Users[u.Email] = u
	}
	return m
}

// Role returns the seeded role by name; it panics on unknown names.
func (m *MockUserStore) Role(name string) users.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Roles[name]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown role %q", name))
	}
	return r
}

func (m *MockUserStore) UserByEmail(_ context.Context, email string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserByEmailCalls++
	if m.UserByEmailErr != nil {
		return users.User{}, m.UserByEmailErr
	}
	u, ok := m.Users[email]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	if m.EmailExistsErr != nil {
		return false, m.EmailExistsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Users[email]
	return ok, nil
}

func (m *MockUserStore) SaveUser(_ context.Context, u *users.User) error {
	if m.SaveUserErr != nil {
		return m.SaveUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if u.ID == "" {
		if _, taken := m.Users[u.Email]; taken {
			return fmt.Errorf("%w: %s", users.ErrEmailTaken, u.Email)
		}
		u.ID = uuid.NewString()
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	stored := *u
	stored.Roles = append([]users.Role(nil), u.Roles...)
	m.Users[u.Email] = stored
	return nil
}

func (m *MockUserStore) DeleteAllUsers(context.Context) error {
	if m.DeleteAllErr != nil {
		return m.DeleteAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users = make(map[string]users.User)
	return nil
}

func (m *MockUserStore) ListUsers(_ context.Context, q users.ListQuery) ([]users.User, int64, error) {
	if m.ListErr != nil {
		return nil, 0, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []users.User
	for _, u := range m.Users {
		if q.Query != "" && !strings.Contains(u.Name, q.Query) && !strings.Contains(u.Email, q.Query) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })
	total := int64(len(matched))
	start := q.Page * q.Size
	if start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+q.Size, len(matched))
	return matched[start:end], total, nil
}

func (m *MockUserStore) RoleByName(_ context.Context, name string) (users.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Roles[name]
	if !ok {
		return users.Role{}, users.ErrRoleNotFound
	}
	return r, nil
}

func (m *MockUserStore) CreateRole(_ context.Context, name string) (users.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Roles[name]; ok {
		return r, nil
	}
	r := users.Role{ID: uuid.NewString(), Name: name}
	m.Roles[name] = r
	return r, nil
}

func (m *MockUserStore) Ping(context.Context) error { return m.PingErr }
