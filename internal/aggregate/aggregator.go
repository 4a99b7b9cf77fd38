package aggregate

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key identifies one live attack stream
type Key struct {
	IP         string
	URL        string
	AttackType string
}

// Entry is the live window state for one key
type Entry struct {
	AlertID     string
	Confidence  int
	Occurrences int
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Result reports what Ingest decided for one trigger
type Result struct {
	AlertID     string
	IsNew       bool
	Confidence  int // max of old and new on merge
	Occurrences int
	FirstSeen   time.Time
	LastSeen    time.Time
}

const (
	numShards          = 16
	maxTrackedPerShard = 4096 // ingestion-flood protection
)

type shard struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// Aggregator is the single source of truth for "is this a repeat of an
// existing attack or a new one". It keeps a sliding window per
// (ip, url, attackType) key. Updates to the same key are serialized by
// the shard lock; different keys proceed in parallel across shards.
// Window expiry is lazy: checked on the next ingest for the key, never by
// a background sweep.
type Aggregator struct {
	window time.Duration
	shards [numShards]shard
}

func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = 5 * time.Minute
	}
	a := &Aggregator{window: window}
	for i := range a.shards {
		a.shards[i].entries = make(map[Key]*Entry)
	}
	return a
}

func (a *Aggregator) shardFor(k Key) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.IP))
	h.Write([]byte{0})
	h.Write([]byte(k.URL))
	h.Write([]byte{0})
	h.Write([]byte(k.AttackType))
	return &a.shards[h.Sum32()%numShards]
}

// Ingest records one trigger. If a live entry exists for the key within
// the window, the entry is merged: occurrence count incremented, last-seen
// advanced and confidence raised to the max of old and new. Otherwise the
// stale entry (if any) is replaced by a fresh one with a new alert ID.
func (a *Aggregator) Ingest(ip, url, attackType string, confidence int, ts time.Time) Result {
	if ts.IsZero() {
		ts = time.Now()
	}
	key := Key{IP: ip, URL: url, AttackType: attackType}
	s := a.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok && ts.Sub(e.LastSeen) <= a.window && e.LastSeen.Sub(ts) <= a.window {
		e.Occurrences++
		if confidence > e.Confidence {
			e.Confidence = confidence
		}
		if ts.After(e.LastSeen) {
			e.LastSeen = ts
		}
		return Result{
			AlertID:     e.AlertID,
			IsNew:       false,
			Confidence:  e.Confidence,
			Occurrences: e.Occurrences,
			FirstSeen:   e.FirstSeen,
			LastSeen:    e.LastSeen,
		}
	}

	if !ok && len(s.entries) >= maxTrackedPerShard {
		s.evictOldest()
	}

	e = &Entry{
		AlertID:     uuid.NewString(),
		Confidence:  confidence,
		Occurrences: 1,
		FirstSeen:   ts,
		LastSeen:    ts,
	}
	s.entries[key] = e
	return Result{
		AlertID:     e.AlertID,
		IsNew:       true,
		Confidence:  confidence,
		Occurrences: 1,
		FirstSeen:   ts,
		LastSeen:    ts,
	}
}

// evictOldest removes the entry with the oldest last-seen to make room.
// The oldest entry is the closest to window expiry, so losing it costs at
// most one extra alert for that key. Caller must hold the shard lock.
func (s *shard) evictOldest() {
	var oldestKey Key
	var oldest time.Time
	first := true
	for k, e := range s.entries {
		if first || e.LastSeen.Before(oldest) {
			oldest = e.LastSeen
			oldestKey = k
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
	}
}

// Snapshot copies the live entries, for persistence across restarts
func (a *Aggregator) Snapshot() map[Key]Entry {
	out := make(map[Key]Entry)
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			out[k] = *e
		}
		s.mu.Unlock()
	}
	return out
}

// Restore primes the aggregator from a snapshot. Stale entries are
// dropped on restore; live ones resume their window.
func (a *Aggregator) Restore(state map[Key]Entry) {
	now := time.Now()
	for k, e := range state {
		if now.Sub(e.LastSeen) > a.window {
			continue
		}
		s := a.shardFor(k)
		e := e
		s.mu.Lock()
		s.entries[k] = &e
		s.mu.Unlock()
	}
}
