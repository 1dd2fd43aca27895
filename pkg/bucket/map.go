package bucket

import (
	"time"

	"github.com/tickloop/tickloop/pkg/clock"
	"github.com/tickloop/tickloop/pkg/event"
)

type state struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

// Map holds one lazily created token bucket per key. Create with New;
// the zero value is not usable.
type Map struct {
	buckets     map[string]*state
	def         BucketConfig
	max         int
	interval    time.Duration
	inactive    time.Duration
	maxRemovals int
	lastCleanup time.Time
	sink        event.Sink
	sample      float64
	clk         clock.Clock
}

// New constructs a Map. Invalid static configuration (non-positive
// capacity or refill rate) fails here, never later in Approve.
func New(cfg Config) (*Map, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	return &Map{
		buckets:     make(map[string]*state),
		def:         cfg.Default,
		max:         cfg.MaxBuckets,
		interval:    cfg.CleanupInterval,
		inactive:    cfg.InactiveThreshold,
		maxRemovals: cfg.MaxRemovalsPerCleanup,
		lastCleanup: cfg.Clock.Now(),
		sink:        cfg.Sink,
		sample:      cfg.EventSampleRate,
		clk:         cfg.Clock,
	}, nil
}

// Approve reports whether a request of the given cost is admitted for
// key at time now. The key's bucket is created on first use, refilled
// for the elapsed time, and charged cost when the balance covers it.
// A denial leaves the balance untouched.
//
// Cost 0 (or below) is always approved without touching any state.
// Cost above Capacity can never be approved.
func (m *Map) Approve(key string, cost float64, now time.Time) bool {
	if cost <= 0 {
		return true
	}
	b, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.max {
			m.cleanup(now, key)
		}
		b = &state{
			tokens:     *m.def.InitialTokens,
			lastRefill: now,
			lastAccess: now,
		}
		m.buckets[key] = b
	} else {
		m.refill(key, b, now)
		b.lastAccess = now
	}
	if now.Sub(m.lastCleanup) >= m.interval {
		m.cleanup(now, key)
	}
	if b.tokens >= cost {
		b.tokens -= cost
		if m.sink != nil {
			event.Emit(m.sink, m.sample, event.BucketApprove{
				Time: now, Key: key, Cost: cost, Remaining: b.tokens,
			})
		}
		return true
	}
	if m.sink != nil {
		event.Emit(m.sink, m.sample, event.BucketDeny{
			Time: now, Key: key, Cost: cost, Tokens: b.tokens,
		})
	}
	return false
}

// refill advances b's balance for the time elapsed since its last
// refill, clamped to [0, capacity].
func (m *Map) refill(key string, b *state, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		// A clock that moved backwards earns nothing.
		b.lastRefill = now
		return
	}
	added := elapsed.Seconds() * m.def.RefillRatePerSec
	tokens := b.tokens + added
	if tokens > m.def.Capacity {
		tokens = m.def.Capacity
	}
	added = tokens - b.tokens
	b.tokens = tokens
	b.lastRefill = now
	if added > 0 && m.sink != nil {
		event.Emit(m.sink, m.sample, event.BucketRefill{
			Time: now, Key: key, Added: added,
			Tokens: b.tokens, Capacity: m.def.Capacity,
		})
	}
}

// RefillAll forces the refill step for every bucket without consuming
// tokens or counting as access. Intended for tests and manual resets.
func (m *Map) RefillAll(now time.Time) {
	for key, b := range m.buckets {
		m.refill(key, b, now)
	}
}

// TokenState is one key's entry in a Snapshot.
type TokenState struct {
	Tokens   float64
	Capacity float64
}

// Snapshot returns a point-in-time view of every tracked key. The view
// is best-effort: balances are whatever the last access left behind,
// with no forced refill.
func (m *Map) Snapshot() map[string]TokenState {
	snap := make(map[string]TokenState, len(m.buckets))
	for key, b := range m.buckets {
		snap[key] = TokenState{Tokens: b.tokens, Capacity: m.def.Capacity}
	}
	return snap
}

// Clear drops the bucket for key, reporting whether it existed.
func (m *Map) Clear(key string) bool {
	if _, ok := m.buckets[key]; !ok {
		return false
	}
	delete(m.buckets, key)
	return true
}

// ClearAll drops every bucket.
func (m *Map) ClearAll() {
	clear(m.buckets)
}

// DebugInfo aggregates map state for introspection.
type DebugInfo struct {
	KeyCount      int
	AvgFillRatio  float64  // mean tokens/capacity over tracked buckets
	SaturatedKeys []string // keys with zero tokens
}

// Debug reports aggregate state. It also runs the same opportunistic
// cleanup check as Approve, so a map left over its soft cap by a burst
// of new keys settles back without further traffic.
func (m *Map) Debug() DebugInfo {
	now := m.clk.Now()
	if len(m.buckets) > m.max || now.Sub(m.lastCleanup) >= m.interval {
		m.cleanup(now, "")
	}
	info := DebugInfo{KeyCount: len(m.buckets)}
	if len(m.buckets) == 0 {
		return info
	}
	var sum float64
	for key, b := range m.buckets {
		sum += b.tokens / m.def.Capacity
		if b.tokens == 0 {
			info.SaturatedKeys = append(info.SaturatedKeys, key)
		}
	}
	info.AvgFillRatio = sum / float64(len(m.buckets))
	return info
}
