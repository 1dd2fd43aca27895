// Package config loads the tickloopd YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Loop      LoopConfig      `yaml:"loop"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Server    ServerConfig    `yaml:"server"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// LoopConfig controls the fixed-timestep update loop.
type LoopConfig struct {
	TickInterval Duration `yaml:"tick_interval"` // how often the loop calls Tick
}

// SchedulerConfig configures the timing wheel.
type SchedulerConfig struct {
	Slots        int      `yaml:"slots"`
	SlotDuration Duration `yaml:"slot_duration"`
	MaxDrift     Duration `yaml:"max_drift"` // 0 = 10% of slot_duration
}

// LimiterConfig configures the per-key token bucket map.
type LimiterConfig struct {
	Capacity          float64  `yaml:"capacity"`
	RefillRatePerSec  float64  `yaml:"refill_rate_per_sec"`
	MaxBuckets        int      `yaml:"max_buckets"`
	CleanupInterval   Duration `yaml:"cleanup_interval"`
	InactiveThreshold Duration `yaml:"inactive_threshold"`
}

// ServerConfig controls the HTTP/websocket front of the daemon.
type ServerConfig struct {
	Listen          string  `yaml:"listen"`            // e.g. ":8080"
	EventsPerSecond float64 `yaml:"events_per_second"` // per-subscriber stream pacing
}

// SnapshotConfig controls periodic Redis snapshot export. An empty
// addr disables export.
type SnapshotConfig struct {
	RedisAddr string   `yaml:"redis_addr"`
	Prefix    string   `yaml:"prefix"`
	Interval  Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling from strings
// like "250ms", "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Loop:      LoopConfig{TickInterval: Duration{16 * time.Millisecond}},
		Scheduler: SchedulerConfig{Slots: 512, SlotDuration: Duration{100 * time.Millisecond}},
		Limiter: LimiterConfig{
			Capacity:          10,
			RefillRatePerSec:  5,
			MaxBuckets:        10000,
			CleanupInterval:   Duration{5 * time.Minute},
			InactiveThreshold: Duration{10 * time.Minute},
		},
		Server:   ServerConfig{Listen: ":8080", EventsPerSecond: 50},
		Snapshot: SnapshotConfig{Prefix: "tickloop:", Interval: Duration{time.Minute}},
	}
}

// LoadConfig reads a YAML configuration file from the specified path,
// layered over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Loop.TickInterval.Duration <= 0 {
		return fmt.Errorf("config: loop.tick_interval must be positive")
	}
	if c.Scheduler.Slots <= 0 || c.Scheduler.SlotDuration.Duration <= 0 {
		return fmt.Errorf("config: scheduler.slots and scheduler.slot_duration must be positive")
	}
	if c.Limiter.Capacity <= 0 || c.Limiter.RefillRatePerSec <= 0 {
		return fmt.Errorf("config: limiter.capacity and limiter.refill_rate_per_sec must be positive")
	}
	return nil
}
