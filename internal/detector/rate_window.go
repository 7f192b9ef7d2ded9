package detector

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultWindow is the sliding window used for failed-login rates
	DefaultWindow = 300 * time.Second

	// DefaultMaxKeys caps the number of tracked keys
	DefaultMaxKeys = 10000
)

// window holds the ordered event times for one key
type window struct {
	mu      sync.Mutex
	events  []time.Time
	removed bool
}

// prune drops events that are no longer inside the window at instant at.
// Callers must hold w.mu.
func (w *window) prune(at time.Time, size time.Duration) {
	i := 0
	for i < len(w.events) && at.Sub(w.events[i]) >= size {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// insert keeps events ordered when producers report slightly out of order.
// Callers must hold w.mu.
func (w *window) insert(at time.Time) {
	n := len(w.events)
	if n == 0 || !at.Before(w.events[n-1]) {
		w.events = append(w.events, at)
		return
	}
	i := sort.Search(n, func(i int) bool { return w.events[i].After(at) })
	w.events = append(w.events, time.Time{})
	copy(w.events[i+1:], w.events[i:])
	w.events[i] = at
}

// RateWindowTracker counts events per key over a sliding time window.
// Each key has its own lock so unrelated keys never contend; the key set is
// bounded by an LRU cache.
type RateWindowTracker struct {
	size  time.Duration
	cache *lru.Cache[string, *window]
}

// NewRateWindowTracker creates a tracker. Non-positive arguments fall back to
// DefaultWindow and DefaultMaxKeys.
func NewRateWindowTracker(size time.Duration, maxKeys int) *RateWindowTracker {
	if size <= 0 {
		size = DefaultWindow
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	cache, _ := lru.New[string, *window](maxKeys)
	return &RateWindowTracker{size: size, cache: cache}
}

// Window returns the window length fixed at construction
func (t *RateWindowTracker) Window() time.Duration {
	return t.size
}

// RecordEvent appends an event for key at instant at
func (t *RateWindowTracker) RecordEvent(key string, at time.Time) {
	for {
		w := t.getOrCreate(key)

		w.mu.Lock()
		if w.removed {
			// swept between lookup and lock
			w.mu.Unlock()
			continue
		}
		w.prune(at, t.size)
		w.insert(at)
		w.mu.Unlock()
		return
	}
}

// CurrentRate returns events per minute for key over the window ending at at.
// Unknown keys have a rate of zero.
func (t *RateWindowTracker) CurrentRate(key string, at time.Time) float64 {
	w, ok := t.cache.Get(key)
	if !ok {
		return 0
	}

	w.mu.Lock()
	w.prune(at, t.size)
	count := len(w.events)
	w.mu.Unlock()

	return float64(count) / (t.size.Seconds() / 60)
}

// Sweep prunes every key against now and forgets keys left empty. It returns
// the number of keys removed.
func (t *RateWindowTracker) Sweep(now time.Time) int {
	removed := 0
	for _, key := range t.cache.Keys() {
		w, ok := t.cache.Peek(key)
		if !ok {
			continue
		}

		w.mu.Lock()
		w.prune(now, t.size)
		if len(w.events) == 0 {
			w.removed = true
			if cur, ok := t.cache.Peek(key); ok && cur == w {
				t.cache.Remove(key)
			}
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys
func (t *RateWindowTracker) Len() int {
	return t.cache.Len()
}

func (t *RateWindowTracker) getOrCreate(key string) *window {
	if w, ok := t.cache.Get(key); ok {
		return w
	}
	fresh := &window{}
	if prev, found, _ := t.cache.PeekOrAdd(key, fresh); found {
		return prev
	}
	return fresh
}
