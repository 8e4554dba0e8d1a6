package llm

import (
	"sync"
	"time"
)

// cooldownTable tracks per-model rate-limit cooldowns so the gateway
// can route around a throttled model instead of hammering it.
type cooldownTable struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{until: make(map[string]time.Time), now: time.Now}
}

// Set places model on cooldown for d from now. A shorter duration
// never shrinks an existing cooldown.
func (c *cooldownTable) Set(model string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	release := c.now().Add(d)
	if existing, ok := c.until[model]; ok && existing.After(release) {
		return
	}
	c.until[model] = release
}

// Remaining returns how long model stays on cooldown, or zero when it
// is free to use. Expired entries are dropped.
func (c *cooldownTable) Remaining(model string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	release, ok := c.until[model]
	if !ok {
		return 0
	}
	remaining := release.Sub(c.now())
	if remaining <= 0 {
		delete(c.until, model)
		return 0
	}
	return remaining
}

// EarliestRelease returns the shortest remaining cooldown among the
// given models. Zero means at least one model is already free.
func (c *cooldownTable) EarliestRelease(models []string) time.Duration {
	var earliest time.Duration
	for _, model := range models {
		remaining := c.Remaining(model)
		if remaining == 0 {
			return 0
		}
		if earliest == 0 || remaining < earliest {
			earliest = remaining
		}
	}
	return earliest
}
