package bucket

import (
	"errors"
	"fmt"
	"time"

	"github.com/tickloop/tickloop/pkg/clock"
	"github.com/tickloop/tickloop/pkg/event"
)

// ErrInvalidCapacity reports a non-positive capacity or refill rate.
var ErrInvalidCapacity = errors.New("bucket: invalid capacity")

// BucketConfig is the policy applied to every bucket in a Map.
type BucketConfig struct {
	Capacity         float64
	RefillRatePerSec float64

	// InitialTokens is the balance of a freshly created bucket.
	// Nil means start full.
	InitialTokens *float64
}

// Config parametrizes a Map. Zero values take the documented defaults.
type Config struct {
	Default BucketConfig

	// MaxBuckets soft-caps the number of tracked keys. Default 10000.
	MaxBuckets int

	// CleanupInterval is how often the periodic cleanup check fires.
	// Default 5m.
	CleanupInterval time.Duration

	// InactiveThreshold is the idle age past which a bucket is removed
	// by cleanup. Default 10m.
	InactiveThreshold time.Duration

	// MaxRemovalsPerCleanup bounds removals in one pass. Default 1000.
	MaxRemovalsPerCleanup int

	// EventSampleRate in (0,1) samples emitted events; 0 or 1 emits
	// everything.
	EventSampleRate float64

	// Sink receives bucket events. Nil disables emission entirely,
	// which keeps Approve allocation-free after first touch.
	Sink event.Sink

	// Clock backs Debug's cleanup check. Defaults to the wall clock.
	Clock clock.Clock
}

func (c *Config) withDefaults() error {
	if c.Default.Capacity <= 0 {
		return fmt.Errorf("%w: capacity %v", ErrInvalidCapacity, c.Default.Capacity)
	}
	if c.Default.RefillRatePerSec <= 0 {
		return fmt.Errorf("%w: refill rate %v", ErrInvalidCapacity, c.Default.RefillRatePerSec)
	}
	if c.Default.InitialTokens == nil {
		full := c.Default.Capacity
		c.Default.InitialTokens = &full
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = 10000
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	if c.InactiveThreshold <= 0 {
		c.InactiveThreshold = 10 * time.Minute
	}
	if c.MaxRemovalsPerCleanup <= 0 {
		c.MaxRemovalsPerCleanup = 1000
	}
	if c.Clock == nil {
		c.Clock = clock.Wall{}
	}
	return nil
}
