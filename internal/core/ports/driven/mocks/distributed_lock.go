package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDistributedLock simulates the drain lock in memory.
// Hooks replace the default behaviour when set.
type MockDistributedLock struct {
	mu      sync.Mutex
	holders map[string]time.Time
	calls   map[string]int

	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
	PingFn    func() error
}

// NewMockDistributedLock creates a lock with nothing held
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		holders: make(map[string]time.Time),
		calls:   make(map[string]int),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.record("acquire")
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, held := m.holders[name]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.holders[name] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.record("release")
	if m.ReleaseFn != nil {
		return m.ReleaseFn(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holders, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.record("extend")

	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.holders[name]
	if !held || time.Now().After(expiry) {
		return fmt.Errorf("lock %s not held", name)
	}
	m.holders[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// HoldExternally marks name as held by another process
func (m *MockDistributedLock) HoldExternally(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders[name] = time.Now().Add(ttl)
}

// IsHeld reports whether name is currently held
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.holders[name]
	return held && time.Now().Before(expiry)
}

// Calls returns how many times op ("acquire", "release", "extend") was invoked
func (m *MockDistributedLock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockDistributedLock) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}
