package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// MockKeyValueStore is an in-memory KeyValueStore for testing.
// Per-key failures can be injected with FailGet and FailSet.
type MockKeyValueStore struct {
	mu      sync.RWMutex
	data    map[string]string
	getErrs map[string]error
	setErrs map[string]error
	writes  int

	// PingFn overrides Ping when set
	PingFn func() error
}

// NewMockKeyValueStore creates an empty MockKeyValueStore
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{
		data:    make(map[string]string),
		getErrs: make(map[string]error),
		setErrs: make(map[string]error),
	}
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.getErrs[key]; ok {
		return "", err
	}
	value, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.setErrs[key]; ok {
		return err
	}
	m.data[key] = value
	m.writes++
	return nil
}

func (m *MockKeyValueStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.setErrs[key]; ok {
		return err
	}
	delete(m.data, key)
	m.writes++
	return nil
}

func (m *MockKeyValueStore) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Helper methods for testing

// FailGet makes every Get of key return err
func (m *MockKeyValueStore) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs[key] = err
}

// FailSet makes every Set and Remove of key return err
func (m *MockKeyValueStore) FailSet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErrs[key] = err
}

// Heal clears all injected failures
func (m *MockKeyValueStore) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs = make(map[string]error)
	m.setErrs = make(map[string]error)
}

// Put stores a raw value, bypassing injected failures
func (m *MockKeyValueStore) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Raw returns the stored value for key
func (m *MockKeyValueStore) Raw(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

// Keys returns the stored keys in sorted order
func (m *MockKeyValueStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes returns the number of successful Set and Remove calls
func (m *MockKeyValueStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MockKeyValueStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	m.getErrs = make(map[string]error)
	m.setErrs = make(map[string]error)
	m.writes = 0
}
