package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStateMachine(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 3, 10*time.Second).WithClock(func() time.Time { return now })

	require.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.Failure()
	cb.Failure()
	assert.True(t, cb.Allow(), "below threshold stays closed")

	cb.Failure()
	require.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())

	// After the reset timeout a single probe is let through.
	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow())
	require.Equal(t, BreakerHalfOpen, cb.State())

	// A half-open failure reopens immediately.
	cb.Failure()
	require.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())

	// A half-open success closes and resets the count.
	now = now.Add(11 * time.Second)
	require.True(t, cb.Allow())
	cb.Success()
	require.Equal(t, BreakerClosed, cb.State())
	cb.Failure()
	cb.Failure()
	assert.Equal(t, BreakerClosed, cb.State(), "count was reset on success")
}

func TestAgentRateLimiterIsolatesAgents(t *testing.T) {
	rl := NewAgentRateLimiter(1, 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")

	assert.True(t, rl.Allow("b"), "agents do not share buckets")
}

func TestAgentRateLimiterEvictsIdleAgents(t *testing.T) {
	rl := NewAgentRateLimiter(1, 1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	require.Len(t, rl.agents, 2)

	// Agent b stays active past a's idle TTL; the next sweep drops
	// only a.
	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	now = now.Add(2 * time.Minute)
	rl.Allow("c")

	rl.mu.Lock()
	_, hasA := rl.agents["a"]
	_, hasB := rl.agents["b"]
	rl.mu.Unlock()
	assert.False(t, hasA, "idle bucket evicted")
	assert.True(t, hasB)
}
