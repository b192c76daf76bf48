package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven/mocks"
)

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// slowStore widens the gap between a read and the write that follows it,
// as a store shared with another process does
type slowStore struct {
	*mocks.MockKeyValueStore
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(s.delay)
	return s.MockKeyValueStore.Get(ctx, key)
}
