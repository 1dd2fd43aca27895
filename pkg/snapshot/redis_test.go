package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickloop/tickloop/pkg/bucket"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestExporter_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("tickloop_test_%d:", time.Now().UnixNano())
	exp, err := NewExporter(client, WithPrefix(prefix), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	t.Cleanup(func() { client.Del(ctx, prefix+"limiter") })

	snap := map[string]bucket.TokenState{
		"ip:10.0.0.1": {Tokens: 3.5, Capacity: 10},
		"ip:10.0.0.2": {Tokens: 0, Capacity: 10},
	}
	if err := exp.Export(ctx, "limiter", snap); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	got, err := exp.Load(ctx, "limiter")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(snap) {
		t.Fatalf("loaded %d keys, want %d", len(got), len(snap))
	}
	for key, want := range snap {
		if got[key] != want {
			t.Errorf("loaded %s = %+v, want %+v", key, got[key], want)
		}
	}
}

func TestExporter_ExportReplaces(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("tickloop_test_%d:", time.Now().UnixNano())
	exp, err := NewExporter(client, WithPrefix(prefix))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	t.Cleanup(func() { client.Del(ctx, prefix+"limiter") })

	first := map[string]bucket.TokenState{
		"old": {Tokens: 1, Capacity: 5},
	}
	if err := exp.Export(ctx, "limiter", first); err != nil {
		t.Fatalf("first Export failed: %v", err)
	}
	second := map[string]bucket.TokenState{
		"new": {Tokens: 2, Capacity: 5},
	}
	if err := exp.Export(ctx, "limiter", second); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}

	got, err := exp.Load(ctx, "limiter")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := got["old"]; ok {
		t.Error("stale key survived a re-export")
	}
	if got["new"] != (bucket.TokenState{Tokens: 2, Capacity: 5}) {
		t.Errorf("loaded new = %+v", got["new"])
	}
}

func TestExporter_LoadMissing(t *testing.T) {
	client := testClient(t)

	exp, err := NewExporter(client, WithPrefix(fmt.Sprintf("tickloop_test_%d:", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	got, err := exp.Load(context.Background(), "never-exported")
	if err != nil {
		t.Fatalf("Load of a missing name failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("loaded %d keys from a missing name, want 0", len(got))
	}
}
