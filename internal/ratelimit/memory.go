package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	shardCount = 64
	// sweepEvery controls how many hits a shard takes between expiry sweeps.
	sweepEvery = 256
)

type window struct {
	start time.Time
	ttl   time.Duration
	count int64
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
	hits    int
}

// MemoryLimiter keeps fixed-window counters in process memory. Keys are spread
// over independently locked shards so unrelated keys do not contend.
type MemoryLimiter struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryLimiter constructs an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return l
}

// Allow records a hit for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	now := l.now()
	s := l.shards[xxhash.Sum64String(key)%shardCount]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits++
	if s.hits >= sweepEvery {
		s.hits = 0
		s.sweep(now)
	}

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= w.ttl {
		w = &window{start: now, ttl: rule.Window}
		s.windows[key] = w
	}
	w.count++
	return decide(w.count, rule, w.start.Add(w.ttl).Sub(now)), nil
}

// Len reports how many live windows are tracked.
func (l *MemoryLimiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}

func (s *shard) sweep(now time.Time) {
	for key, w := range s.windows {
		if now.Sub(w.start) >= w.ttl {
			delete(s.windows, key)
		}
	}
}
