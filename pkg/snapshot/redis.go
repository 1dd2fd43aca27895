// Package snapshot persists bucket.Map snapshots to Redis.
//
// The core limiter is in-memory by design and loses all state on
// process exit; this package is the external snapshot surface for
// hosts that want balances to survive a restart or be visible to
// other tooling. It sits strictly on top of Map.Snapshot and never
// participates in admission decisions.
package snapshot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickloop/tickloop/pkg/bucket"
)

// Exporter writes limiter snapshots into one Redis hash per limiter
// name. Hash fields are "<key>:tokens" and "<key>:capacity".
type Exporter struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewExporter verifies the Redis connection and returns an Exporter.
func NewExporter(client *redis.Client, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		client:  client,
		prefix:  "tickloop:",
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return e, nil
}

// Export replaces the stored snapshot for name with snap.
func (e *Exporter) Export(ctx context.Context, name string, snap map[string]bucket.TokenState) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	key := e.prefix + name
	fields := make([]any, 0, len(snap)*4)
	for k, st := range snap {
		fields = append(fields,
			k+":tokens", strconv.FormatFloat(st.Tokens, 'f', -1, 64),
			k+":capacity", strconv.FormatFloat(st.Capacity, 'f', -1, 64),
		)
	}

	pipe := e.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Load reads back the snapshot stored under name. A missing name
// yields an empty map, not an error.
func (e *Exporter) Load(ctx context.Context, name string) (map[string]bucket.TokenState, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fields, err := e.client.HGetAll(ctx, e.prefix+name).Result()
	if err != nil {
		return nil, err
	}

	snap := make(map[string]bucket.TokenState)
	for field, raw := range fields {
		idx := strings.LastIndexByte(field, ':')
		if idx < 0 {
			continue
		}
		key, attr := field[:idx], field[idx+1:]
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		st := snap[key]
		switch attr {
		case "tokens":
			st.Tokens = val
		case "capacity":
			st.Capacity = val
		}
		snap[key] = st
	}
	return snap, nil
}
