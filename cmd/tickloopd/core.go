package main

import (
	"sync"
	"time"

	"github.com/tickloop/tickloop/pkg/bucket"
	"github.com/tickloop/tickloop/pkg/wheel"
)

// core owns the wheel and the limiter. Both are single-threaded by
// contract, and the daemon shares them between the update loop and the
// HTTP handlers, so every access goes through one mutex. That is the
// external mutual exclusion the components document as a precondition.
type core struct {
	mu  sync.Mutex
	whl *wheel.Wheel
	lim *bucket.Map
}

func newCore(whl *wheel.Wheel, lim *bucket.Map) *core {
	return &core{whl: whl, lim: lim}
}

func (c *core) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.whl.Tick(now)
}

func (c *core) approve(key string, cost float64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lim.Approve(key, cost, now)
}

// schedule registers a deferred action. The callback runs inside a
// tick, with the core mutex already held: it must use the raw wheel
// and limiter fields, never the locking wrappers.
func (c *core) schedule(id string, delay time.Duration, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whl.Schedule(id, delay, fn)
}

func (c *core) snapshot() map[string]bucket.TokenState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lim.Snapshot()
}

func (c *core) debug() (wheel.DebugInfo, bucket.DebugInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whl.Debug(), c.lim.Debug()
}
