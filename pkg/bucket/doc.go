// Package bucket provides per-key admission control based on the Token
// Bucket algorithm, tuned for a single-threaded real-time loop.
//
// The primary entry point is Map.Approve:
//
//	ok := m.Approve(key, cost, now)
//
// The boolean is the whole decision: Approve never returns an error for
// a structurally valid key/cost.
//
// # Overview
//
// Each key has an independent "bucket" holding a real-valued token
// balance:
//
//   - The bucket refills continuously over time up to Capacity.
//   - Each Approve call consumes Cost tokens when available.
//   - Refill happens lazily, on access: there is no background timer.
//
// Unlike fixed-window counters, token buckets naturally support bursts
// while still enforcing a long-term average rate.
//
// # Core Types
//
// BucketConfig defines the policy applied to every bucket:
//
//   - Capacity: maximum tokens a bucket can hold (also the maximum
//     immediate burst)
//   - RefillRatePerSec: tokens earned per second
//   - InitialTokens: balance a bucket is born with (defaults to
//     Capacity)
//
// Config wraps the policy together with the map-wide bounds: MaxBuckets
// soft-caps how many keys are tracked, CleanupInterval and
// InactiveThreshold control garbage collection, and
// MaxRemovalsPerCleanup bounds the pause a single cleanup pass may
// cause.
//
// # Time
//
// Approve takes the current time explicitly rather than sampling a
// clock, which keeps decisions deterministic and lets tests drive the
// map on simulated time. The injected Clock is used only where no
// caller-supplied time exists (Debug's opportunistic cleanup check).
//
// # Boundary Behavior
//
// Two edges are deliberate, documented behavior rather than errors:
//
//   - Cost 0 is always approved and never mutates state.
//   - Cost above Capacity can never be approved, no matter how long the
//     bucket has refilled. Callers asking for more than a full bucket
//     get a plain false.
//
// # Garbage Collection
//
// The map enforces a soft MaxBuckets cap. A cleanup pass runs when a
// new key would exceed the cap or when CleanupInterval has elapsed:
// first buckets idle longer than InactiveThreshold are dropped, then
// least-recently-accessed buckets until the map is back at the cap.
// Each pass removes at most MaxRemovalsPerCleanup buckets, and the key
// touched by the current call is never removed by that same call. A
// burst of new keys may therefore transiently exceed the cap until the
// next pass.
//
// # Concurrency
//
// Map is single-threaded and non-blocking: every method runs to
// completion on the caller's goroutine with no internal locking. The
// intended host is a simulation loop calling Approve from its one
// update goroutine. A multi-goroutine host must wrap the Map in its own
// mutex (or shard per goroutine); internal locks are deliberately
// absent because they would tax every call made by the common
// single-threaded host.
//
// # Observability
//
// An optional event.Sink receives bucket-refill, bucket-approve and
// bucket-deny records. Sink failures are swallowed and never change an
// admission outcome. With no sink configured the hot path allocates
// nothing after a bucket's first touch.
//
// # Durability
//
// All state is in-memory and dies with the process. Snapshot returns a
// best-effort point-in-time view for callers that persist externally;
// see the snapshot package for a Redis-backed exporter.
package bucket
