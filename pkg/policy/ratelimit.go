package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 3 * time.Minute
	limiterSweepInterval = time.Minute
)

type agentLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AgentRateLimiter manages per-agent token buckets. Agents that go
// quiet are evicted during Allow so the map does not grow with session
// churn; no background goroutine is involved.
type AgentRateLimiter struct {
	mu        sync.Mutex
	agents    map[string]*agentLimiter
	rps       rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewAgentRateLimiter creates a per-agent limiter.
// rps: decisions per second allowed per agent.
// burst: maximum burst size.
func NewAgentRateLimiter(rps float64, burst int) *AgentRateLimiter {
	return &AgentRateLimiter{
		agents: make(map[string]*agentLimiter),
		rps:    rate.Limit(rps),
		burst:  burst,
		now:    time.Now,
	}
}

// Allow consumes one token for the agent. A false return means the
// agent exhausted its budget and the request must be denied.
func (rl *AgentRateLimiter) Allow(agentID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	a, ok := rl.agents[agentID]
	if !ok {
		a = &agentLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.agents[agentID] = a
	}
	a.lastSeen = now
	return a.limiter.Allow()
}

// sweep drops buckets idle past the TTL. Caller holds the lock.
func (rl *AgentRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < limiterSweepInterval {
		return
	}
	rl.lastSweep = now
	for id, a := range rl.agents {
		if now.Sub(a.lastSeen) > limiterIdleTTL {
			delete(rl.agents, id)
		}
	}
}
