package cache

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store with error injection.
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	gets    int
	GetErr  error
	SetErr  error
	DelErr  error
	KeysErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DelErr != nil {
		return m.DelErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.KeysErr != nil {
		return nil, m.KeysErr
	}
	var out []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ValuesForPattern(ctx context.Context, pattern string) (map[string]string, error) {
	keys, err := m.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = m.data[k]
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
