// Package dedup implements C2, the duplicate-chat suppressor. It is a direct
// port of original_source/src/danmaku/fudujikiller.rs ("anti-flood killer"):
// a single-writer single-reader map from chat text to a (last-seen, count)
// pair, decayed and evicted per spec §4.2/§8. It is per-pipeline and is
// recreated (not reset in place) on every supervisor restart, matching
// §3's "cleared on restart" ownership note.
package dedup

import "time"

const (
	decayWindow   = 3000 * time.Millisecond
	denyThreshold = 20
	evictAbove    = 30
	evictCountMax = 5
	evictAge      = 20 * time.Second
)

type entry struct {
	lastSeen time.Time
	count    int
}

// Suppressor rate-limits repeated chat text within a sliding window. It is
// not safe for concurrent use — the single-threaded cooperative scheduler
// (§5) guarantees callers never overlap.
type Suppressor struct {
	start time.Time
	seen  map[string]*entry
}

// New creates a Suppressor anchored at the given start time (typically the
// pipeline's monotonic baseline, so callers can pass pre-computed elapsed
// durations without re-reading the clock).
func New() *Suppressor {
	return &Suppressor{
		start: time.Now(),
		seen:  make(map[string]*entry),
	}
}

// Allow reports whether text may pass, per §4.2:
//
//   - absent: insert with count 1, allow.
//   - present, now-lastSeen > 3s: decay count by 1, allow.
//   - present, count > 20: deny, still increment count.
//   - otherwise: allow, increment count.
//
// When the map exceeds 30 entries, entries with count < 5 OR older than 20s
// are evicted.
func (s *Suppressor) Allow(text string, now time.Time) bool {
	e, ok := s.seen[text]
	if !ok {
		s.seen[text] = &entry{lastSeen: now, count: 1}
		s.evictIfNeeded(now)
		return true
	}

	allow := true
	if now.Sub(e.lastSeen) > decayWindow {
		e.lastSeen = now
		if e.count > 0 {
			e.count--
		}
	} else if e.count >= denyThreshold {
		allow = false
		e.count++
	} else {
		e.count++
	}

	s.evictIfNeeded(now)
	return allow
}

func (s *Suppressor) evictIfNeeded(now time.Time) {
	if len(s.seen) <= evictAbove {
		return
	}
	for text, e := range s.seen {
		if e.count < evictCountMax || now.Sub(e.lastSeen) > evictAge {
			delete(s.seen, text)
		}
	}
}

// Len reports the number of distinct texts currently tracked (test/debug aid).
func (s *Suppressor) Len() int { return len(s.seen) }
