package snapshot

import "time"

// Option customizes an Exporter.
type Option func(*Exporter)

// WithPrefix sets the Redis key prefix (default "tickloop:").
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = prefix
	}
}

// WithTimeout sets the per-operation Redis timeout (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		e.timeout = d
	}
}
