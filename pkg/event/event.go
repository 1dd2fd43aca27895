// Package event defines the observability contract shared by the wheel
// scheduler and the bucket limiter: a closed set of typed, timestamped
// event records handed synchronously to an injected Sink.
//
// Events are transient. The core never retains them after the Sink
// returns, and a Sink that panics is silenced so observability failures
// can never change scheduling or admission outcomes.
package event

import (
	"math/rand/v2"
	"time"
)

// Kind discriminates the event union.
type Kind string

const (
	KindBucketRefill     Kind = "bucket-refill"
	KindBucketApprove    Kind = "bucket-approve"
	KindBucketDeny       Kind = "bucket-deny"
	KindSchedulerDue     Kind = "scheduler-due"
	KindDriftWarning     Kind = "drift-warning"
	KindInvariantFailure Kind = "invariant-failure"
)

// Event is implemented by every record in this package. Consumers
// type-switch on the concrete struct; Kind is for sinks that only tag.
type Event interface {
	Kind() Kind
	When() time.Time
}

// Sink receives events synchronously on the caller's goroutine.
type Sink func(Event)

// BucketRefill records tokens added to a bucket by a refill step.
type BucketRefill struct {
	Time     time.Time
	Key      string
	Added    float64
	Tokens   float64
	Capacity float64
}

// BucketApprove records a granted admission request.
type BucketApprove struct {
	Time      time.Time
	Key       string
	Cost      float64
	Remaining float64
}

// BucketDeny records a rejected admission request. Tokens is the
// balance at decision time, left untouched by the denial.
type BucketDeny struct {
	Time   time.Time
	Key    string
	Cost   float64
	Tokens float64
}

// SchedulerDue records one fired timer, including how long its
// callback ran.
type SchedulerDue struct {
	Time    time.Time
	ID      string
	Slot    int
	Latency time.Duration
}

// DriftWarning reports wall-clock divergence from the wheel's expected
// slot-boundary time beyond the configured tolerance. Non-fatal.
type DriftWarning struct {
	Time      time.Time
	Drift     time.Duration
	Tolerance time.Duration
	Slot      int
}

// InvariantFailure reports a fired callback that panicked. The tick
// that caught it continues with the next due item.
type InvariantFailure struct {
	Time time.Time
	ID   string
	Err  error
}

func (e BucketRefill) Kind() Kind { return KindBucketRefill }

func (e BucketApprove) Kind() Kind { return KindBucketApprove }

func (e BucketDeny) Kind() Kind { return KindBucketDeny }

func (e SchedulerDue) Kind() Kind { return KindSchedulerDue }

func (e DriftWarning) Kind() Kind { return KindDriftWarning }

func (e InvariantFailure) Kind() Kind { return KindInvariantFailure }

func (e BucketRefill) When() time.Time { return e.Time }

func (e BucketApprove) When() time.Time { return e.Time }

func (e BucketDeny) When() time.Time { return e.Time }

func (e SchedulerDue) When() time.Time { return e.Time }

func (e DriftWarning) When() time.Time { return e.Time }

func (e InvariantFailure) When() time.Time { return e.Time }

// NopSink discards every event. Constructors substitute it for a nil
// Sink so emit paths never have to nil-check.
func NopSink(Event) {}

// Emit delivers ev to sink, applying sampleRate (0 disables sampling,
// i.e. delivers everything; otherwise an event is delivered with
// probability sampleRate). Sink panics are swallowed.
func Emit(sink Sink, sampleRate float64, ev Event) {
	if sink == nil {
		return
	}
	if sampleRate > 0 && sampleRate < 1 && rand.Float64() >= sampleRate {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink(ev)
}
