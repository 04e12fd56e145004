package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memEntry struct {
	p       Prediction
	expires time.Time
}

// Memory is a process-local cache with per-entry expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{entries: map[string]memEntry{}, ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key Key) (Prediction, bool, error) {
	h := key.Hash()
	m.mu.RLock()
	e, ok := m.entries[h]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		if ok {
			m.evict(h)
		}
		m.misses.Add(1)
		return Prediction{}, false, nil
	}
	m.hits.Add(1)
	return e.p, true, nil
}

// evict drops h if it is still expired. A Set that raced in between the read
// and write locks keeps its fresh entry.
func (m *Memory) evict(h string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[h]; ok && !m.now().Before(e.expires) {
		delete(m.entries, h)
	}
}

func (m *Memory) Set(_ context.Context, key Key, p Prediction) error {
	now := m.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	m.mu.Lock()
	m.entries[key.Hash()] = memEntry{p: p, expires: now.Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	now := m.now()
	var n int64
	m.mu.RLock()
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	m.mu.RUnlock()
	return Stats{Backend: "memory", Hits: m.hits.Load(), Misses: m.misses.Load(), Entries: n}, nil
}
