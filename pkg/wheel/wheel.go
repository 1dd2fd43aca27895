// Package wheel implements a bucketed timing wheel: one-shot callbacks
// quantized onto a fixed circular array of slots, advanced by an
// explicit Tick call driven from the host's own update loop.
//
// # Model
//
// Schedule places a callback max(1, ceil(delay/SlotDuration)) slots
// ahead of the cursor. Tick advances the cursor toward the slot implied
// by the supplied wall clock and drains every slot it passes through,
// so a call costs O(k) in the number of newly due slots — independent
// of how many timers are outstanding. Delay is deliberately quantized:
// callers needing finer precision configure a smaller SlotDuration.
//
// Items in the same slot fire in exact Schedule-call order via a
// monotonic insertion sequence, which keeps replays deterministic.
//
// # Concurrency
//
// The wheel is single-threaded by design: Schedule, Cancel, Tick and
// Debug run to completion on the caller's goroutine, with no internal
// locking, goroutines or timers. A host sharing one wheel across
// goroutines must provide its own external mutual exclusion; adding
// locks here would tax the per-tick budget for every single-threaded
// user.
package wheel

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tickloop/tickloop/pkg/clock"
	"github.com/tickloop/tickloop/pkg/event"
)

var (
	// ErrInvalidConfig reports a non-positive slot count or duration.
	ErrInvalidConfig = errors.New("wheel: invalid config")

	// ErrInvalidDelay reports a negative delay passed to Schedule.
	ErrInvalidDelay = errors.New("wheel: invalid delay")

	// ErrDuplicateID reports a Schedule call reusing an id that is
	// still pending. Re-scheduling is never a silent overwrite.
	ErrDuplicateID = errors.New("wheel: duplicate id")
)

// Config parametrizes a Wheel.
type Config struct {
	// Slots is the number of slots in the circular array. One full
	// revolution (Slots * SlotDuration) is the longest schedulable
	// horizon and the per-Tick advancement cap.
	Slots int

	// SlotDuration is the width of one slot.
	SlotDuration time.Duration

	// MaxDrift is the tolerated divergence between the supplied tick
	// time and the expected wall clock of the slot boundary just
	// processed. Defaults to SlotDuration/10.
	MaxDrift time.Duration

	// EventSampleRate in (0,1) samples emitted events; 0 or 1 emits
	// everything.
	EventSampleRate float64

	// Sink receives scheduler events. Nil discards them.
	Sink event.Sink

	// Clock measures per-callback latency. Defaults to the wall clock.
	Clock clock.Clock
}

type item struct {
	id  string
	fn  func()
	seq uint64
}

// Wheel is a fixed-size circular timer array. Create one with New;
// the zero value is not usable.
type Wheel struct {
	slots   []map[string]*item
	index   map[string]int // pending id -> slot, makes Cancel O(1)
	current int
	ticks   uint64 // total slots advanced since epoch, never wraps back
	epoch   time.Time
	slotDur time.Duration
	drift   time.Duration
	seq     uint64
	sink    event.Sink
	sample  float64
	clk     clock.Clock
}

// New constructs a Wheel. The epoch is the clock's current time; the
// first slot becomes due one SlotDuration later.
func New(cfg Config) (*Wheel, error) {
	if cfg.Slots <= 0 {
		return nil, fmt.Errorf("%w: slots %d", ErrInvalidConfig, cfg.Slots)
	}
	if cfg.SlotDuration <= 0 {
		return nil, fmt.Errorf("%w: slot duration %v", ErrInvalidConfig, cfg.SlotDuration)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall{}
	}
	if cfg.MaxDrift <= 0 {
		cfg.MaxDrift = cfg.SlotDuration / 10
	}
	if cfg.Sink == nil {
		cfg.Sink = event.NopSink
	}
	slots := make([]map[string]*item, cfg.Slots)
	for i := range slots {
		slots[i] = make(map[string]*item)
	}
	return &Wheel{
		slots:   slots,
		index:   make(map[string]int),
		epoch:   cfg.Clock.Now(),
		slotDur: cfg.SlotDuration,
		drift:   cfg.MaxDrift,
		sink:    cfg.Sink,
		sample:  cfg.EventSampleRate,
		clk:     cfg.Clock,
	}, nil
}

// Schedule registers fn to run once, roughly delay from now. The delay
// is rounded up to whole slots and coerced to at least one slot ahead,
// so fn can never fire inside the Tick call that is currently draining
// the cursor's slot. The id must be unique among pending items.
//
// The schedulable horizon is one revolution (Slots * SlotDuration);
// longer delays wrap onto the same horizon.
func (w *Wheel) Schedule(id string, delay time.Duration, fn func()) error {
	if delay < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDelay, delay)
	}
	if _, ok := w.index[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	ahead := int((delay + w.slotDur - 1) / w.slotDur)
	if ahead < 1 {
		ahead = 1
	}
	target := (w.current + ahead) % len(w.slots)
	w.seq++
	w.slots[target][id] = &item{id: id, fn: fn, seq: w.seq}
	w.index[id] = target
	return nil
}

// Cancel removes a pending item and reports whether it was found.
// Cancelling an id whose callback is currently executing is a no-op:
// the item already left the pending set.
func (w *Wheel) Cancel(id string) bool {
	slot, ok := w.index[id]
	if !ok {
		return false
	}
	delete(w.slots[slot], id)
	delete(w.index, id)
	return true
}

// Tick advances the wheel toward the slot implied by now and drains
// every slot passed through, firing contained callbacks in insertion
// order. At most one full revolution of slots is processed per call;
// anything still due beyond that is picked up by the next Tick, which
// bounds the cost of a call regardless of how stale the previous one
// was.
//
// A callback that panics is reported as an InvariantFailure event and
// the drain continues with the next due item.
func (w *Wheel) Tick(now time.Time) {
	elapsed := now.Sub(w.epoch)
	if elapsed < 0 {
		elapsed = 0
	}
	target := uint64(elapsed / w.slotDur)
	steps := 0
	for w.ticks < target && steps < len(w.slots) {
		w.current = (w.current + 1) % len(w.slots)
		w.ticks++
		steps++
		w.drain(w.current, now)
	}
	if steps == 0 {
		return
	}
	// Expected wall clock for the boundary just processed. Divergence
	// beyond tolerance means the host is ticking too coarsely, or the
	// revolution cap left the wheel behind after a long stall.
	expected := w.epoch.Add(time.Duration(w.ticks) * w.slotDur)
	if d := now.Sub(expected); d > w.drift || d < -w.drift {
		event.Emit(w.sink, w.sample, event.DriftWarning{
			Time:      now,
			Drift:     d,
			Tolerance: w.drift,
			Slot:      w.current,
		})
	}
}

func (w *Wheel) drain(slot int, now time.Time) {
	pending := w.slots[slot]
	if len(pending) == 0 {
		return
	}
	due := make([]*item, 0, len(pending))
	for _, it := range pending {
		due = append(due, it)
	}
	// Execution order is by insertion sequence, not map order.
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	for _, it := range due {
		// A callback earlier in this drain may have cancelled this
		// item, or cancelled and re-scheduled its id into the same
		// slot a revolution out; only the original pointer is due.
		if cur, ok := pending[it.id]; !ok || cur != it {
			continue
		}
		delete(pending, it.id)
		delete(w.index, it.id)
		w.run(it, slot, now)
	}
}

func (w *Wheel) run(it *item, slot int, now time.Time) {
	start := w.clk.Now()
	defer func() {
		if r := recover(); r != nil {
			event.Emit(w.sink, w.sample, event.InvariantFailure{
				Time: now,
				ID:   it.id,
				Err:  fmt.Errorf("wheel: callback %q panicked: %v", it.id, r),
			})
		}
	}()
	it.fn()
	event.Emit(w.sink, w.sample, event.SchedulerDue{
		Time:    now,
		ID:      it.id,
		Slot:    slot,
		Latency: w.clk.Now().Sub(start),
	})
}

// DebugInfo is a read-only view of wheel state.
type DebugInfo struct {
	Scheduled   int       // pending items across all slots
	WheelTime   time.Time // wall clock of the last processed boundary
	CurrentSlot int
	Slots       int
}

// Debug returns current wheel state without side effects.
func (w *Wheel) Debug() DebugInfo {
	return DebugInfo{
		Scheduled:   len(w.index),
		WheelTime:   w.epoch.Add(time.Duration(w.ticks) * w.slotDur),
		CurrentSlot: w.current,
		Slots:       len(w.slots),
	}
}
