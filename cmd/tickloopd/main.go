// tickloopd is a demo host for the tickloop core: a fixed-timestep
// loop driving the timing wheel, an HTTP endpoint gated per client IP
// by the token bucket map, a websocket event stream, and optional
// periodic snapshot export to Redis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickloop/tickloop/internal/config"
	"github.com/tickloop/tickloop/pkg/bucket"
	"github.com/tickloop/tickloop/pkg/event"
	"github.com/tickloop/tickloop/pkg/snapshot"
	"github.com/tickloop/tickloop/pkg/wheel"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPrinter()
	h := newHub(cfg.Server.EventsPerSecond)
	sink := event.Sink(func(ev event.Event) {
		p.print(ev)
		h.publish(ev)
	})

	whl, err := wheel.New(wheel.Config{
		Slots:        cfg.Scheduler.Slots,
		SlotDuration: cfg.Scheduler.SlotDuration.Duration,
		MaxDrift:     cfg.Scheduler.MaxDrift.Duration,
		Sink:         sink,
	})
	if err != nil {
		return err
	}
	lim, err := bucket.New(bucket.Config{
		Default: bucket.BucketConfig{
			Capacity:         cfg.Limiter.Capacity,
			RefillRatePerSec: cfg.Limiter.RefillRatePerSec,
		},
		MaxBuckets:        cfg.Limiter.MaxBuckets,
		CleanupInterval:   cfg.Limiter.CleanupInterval.Duration,
		InactiveThreshold: cfg.Limiter.InactiveThreshold.Duration,
		Sink:              sink,
	})
	if err != nil {
		return err
	}
	c := newCore(whl, lim)

	// Fixed-timestep loop: the only goroutine that advances the wheel.
	go func() {
		ticker := time.NewTicker(cfg.Loop.TickInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				c.tick(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Snapshot.RedisAddr != "" {
		if err := startExporter(ctx, cfg, c); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", pingHandler(c))
	mux.HandleFunc("/debug", debugHandler(c))
	mux.HandleFunc("/events", h.handleEvents)

	srv := &http.Server{Addr: cfg.Server.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("tickloopd listening on %s (tick every %v, %d wheel slots)",
		cfg.Server.Listen, cfg.Loop.TickInterval.Duration, cfg.Scheduler.Slots)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

var retrySeq atomic.Uint64

// pingHandler gates requests per client IP. A denied request gets a
// Retry-After, and a probe is scheduled on the wheel to log whether
// the bucket has recovered a second later.
func pingHandler(c *core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !c.approve("ip:"+ip, 1, time.Now()) {
			id := fmt.Sprintf("retry:%s:%d", ip, retrySeq.Add(1))
			key := "ip:" + ip
			// Callback runs inside a tick with the core mutex held:
			// use the raw limiter, not c.approve.
			c.schedule(id, time.Second, func() {
				if c.lim.Approve(key, 1, time.Now()) {
					log.Printf("retry %s: %s recovered", id, key)
				} else {
					log.Printf("retry %s: %s still exhausted", id, key)
				}
			})
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		fmt.Fprintln(w, "pong")
	}
}

func debugHandler(c *core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wd, bd := c.debug()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"scheduler": map[string]any{
				"scheduled":    wd.Scheduled,
				"wheel_time":   wd.WheelTime,
				"current_slot": wd.CurrentSlot,
				"slots":        wd.Slots,
			},
			"limiter": map[string]any{
				"key_count":      bd.KeyCount,
				"avg_fill_ratio": bd.AvgFillRatio,
				"saturated_keys": bd.SaturatedKeys,
			},
		})
	}
}

// startExporter pushes limiter snapshots to Redis on the configured
// interval. Export failures are logged and retried next interval; the
// core never depends on them.
func startExporter(ctx context.Context, cfg *config.Config, c *core) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Snapshot.RedisAddr})
	exp, err := snapshot.NewExporter(client, snapshot.WithPrefix(cfg.Snapshot.Prefix))
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	interval := cfg.Snapshot.Interval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := exp.Export(ctx, "limiter", c.snapshot()); err != nil {
					log.Printf("snapshot export: %v", err)
				}
			case <-ctx.Done():
				client.Close()
				return
			}
		}
	}()
	return nil
}
