package bucket

import (
	"sort"
	"time"
)

// cleanup is the bounded garbage-collection pass. It runs in two
// phases: drop buckets idle past the inactive threshold, then drop
// least-recently-accessed buckets until the map is back at its soft
// cap. At most maxRemovals buckets go per pass, and the protected key
// (the one touched by the call that triggered the pass) is never
// removed.
func (m *Map) cleanup(now time.Time, protect string) {
	m.lastCleanup = now
	removed := 0
	cutoff := now.Add(-m.inactive)
	for key, b := range m.buckets {
		if removed >= m.maxRemovals {
			return
		}
		if key == protect || !b.lastAccess.Before(cutoff) {
			continue
		}
		delete(m.buckets, key)
		removed++
	}
	if len(m.buckets) <= m.max || removed >= m.maxRemovals {
		return
	}

	// Still over cap: evict by last access, oldest first.
	type victim struct {
		key  string
		last time.Time
	}
	victims := make([]victim, 0, len(m.buckets))
	for key, b := range m.buckets {
		if key != protect {
			victims = append(victims, victim{key: key, last: b.lastAccess})
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].last.Before(victims[j].last)
	})
	for _, v := range victims {
		if len(m.buckets) <= m.max || removed >= m.maxRemovals {
			return
		}
		delete(m.buckets, v.key)
		removed++
	}
}
