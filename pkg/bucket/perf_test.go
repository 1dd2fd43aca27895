package bucket

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/tickloop/tickloop/pkg/clock"
)

// TestApprove_LatencyFlatAcrossKeyCounts enforces the hot-path
// contract: Approve median latency stays effectively constant as the
// number of tracked keys grows into the thousands. The absolute bound
// is generous to keep CI quiet; the logged numbers are what matter
// when profiling.
func TestApprove_LatencyFlatAcrossKeyCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("latency measurement")
	}

	const samples = 20000
	medians := map[int]time.Duration{}

	for _, keys := range []int{1, 1000, 5000} {
		m := newTestMap(t, Config{
			Default: BucketConfig{Capacity: 1e12, RefillRatePerSec: 1e9},
		})
		ids := make([]string, keys)
		for i := range ids {
			ids[i] = fmt.Sprintf("key-%d", i)
			m.Approve(ids[i], 1, t0)
		}

		durs := make([]time.Duration, samples)
		now := t0
		for i := 0; i < samples; i++ {
			now = now.Add(time.Microsecond)
			key := ids[i%keys]
			start := time.Now()
			m.Approve(key, 1, now)
			durs[i] = time.Since(start)
		}
		sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
		med := durs[samples/2]
		medians[keys] = med
		t.Logf("%5d keys: median %v, p99 %v", keys, med, durs[samples*99/100])
	}

	for keys, med := range medians {
		if med > 20*time.Microsecond {
			t.Errorf("median approve latency at %d keys = %v, want well under 20µs", keys, med)
		}
	}
}

func benchmarkApprove(b *testing.B, keys int) {
	clk := clock.NewManual(time.Unix(0, 0))
	m, err := New(Config{
		Default: BucketConfig{Capacity: 1e12, RefillRatePerSec: 1e9},
		Clock:   clk,
	})
	if err != nil {
		b.Fatal(err)
	}
	ids := make([]string, keys)
	now := time.Unix(0, 0)
	for i := range ids {
		ids[i] = fmt.Sprintf("key-%d", i)
		m.Approve(ids[i], 1, now)
	}
	b.ResetTimer()
	i := 0
	for b.Loop() {
		m.Approve(ids[i%keys], 1, now)
		i++
	}
}

func BenchmarkApprove_1Key(b *testing.B)    { benchmarkApprove(b, 1) }
func BenchmarkApprove_1kKeys(b *testing.B)  { benchmarkApprove(b, 1000) }
func BenchmarkApprove_10kKeys(b *testing.B) { benchmarkApprove(b, 10000) }
