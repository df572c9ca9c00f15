package qpu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Given: Limiter configured for 3 submissions/minute
// When: Making 4 submissions within a minute
// Then: The 4th is rejected and marked ErrRateLimited
func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(3, clock.Now)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(), "submission %d", i+1)
		clock.Advance(time.Second)
	}

	err := limiter.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

// Given: A full window
// When: The oldest submission slides out
// Then: Capacity returns one slot at a time
func TestLimiter_SlidingWindow(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, clock.Now)

	require.NoError(t, limiter.Allow())
	clock.Advance(30 * time.Second)
	require.NoError(t, limiter.Allow())
	require.Error(t, limiter.Allow())

	clock.Advance(30 * time.Second) // first submission now exactly one window old
	require.NoError(t, limiter.Allow())
	require.Error(t, limiter.Allow())

	inWindow, remaining := limiter.Stats()
	assert.Equal(t, 2, inWindow)
	assert.Equal(t, 0, remaining)

	clock.Advance(61 * time.Second)
	inWindow, remaining = limiter.Stats()
	assert.Equal(t, 0, inWindow)
	assert.Equal(t, 2, remaining)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Allow())
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)
	require.NoError(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_WaitReturnsWhenSlotFrees(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)
	require.NoError(t, limiter.Allow())

	clock.Advance(2 * time.Minute)
	assert.NoError(t, limiter.Wait(context.Background()))
}
