package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/data/repos/testutil"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

func TestKeyHash(t *testing.T) {
	a := Key{DocID: "d", ParagraphID: 3, Text: "The <b>Heart</b>   pumps", Zone: "BODY"}
	b := Key{DocID: "d", ParagraphID: 3, Text: "the heart pumps", Zone: "BODY"}
	if a.Hash() != b.Hash() {
		t.Fatalf("normalized text must hash equally")
	}
	if len(a.Hash()) != 64 {
		t.Fatalf("hash length: %d", len(a.Hash()))
	}
	for _, other := range []Key{
		{DocID: "e", ParagraphID: 3, Text: "the heart pumps", Zone: "BODY"},
		{DocID: "d", ParagraphID: 4, Text: "the heart pumps", Zone: "BODY"},
		{DocID: "d", ParagraphID: 3, Text: "the heart pumps", Zone: "TABLE"},
	} {
		if other.Hash() == a.Hash() {
			t.Fatalf("distinct key collided: %+v", other)
		}
	}
}

func TestMemoryTTLAndStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	k := Key{DocID: "d", ParagraphID: 1, Text: "x", Zone: "BODY"}
	if _, ok, _ := m.Get(ctx, k); ok {
		t.Fatalf("unexpected hit")
	}
	if err := m.Set(ctx, k, Prediction{Tag: "TXT", Confidence: 0.9}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p, ok, _ := m.Get(ctx, k)
	if !ok || p.Tag != "TXT" || p.CreatedAt != now {
		t.Fatalf("Get: %+v %v", p, ok)
	}
	st, _ := m.Stats(ctx)
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 1 || st.HitRate() != 0.5 {
		t.Fatalf("stats: %+v", st)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := m.Get(ctx, k); ok {
		t.Fatalf("expired entry returned")
	}
	if st, _ := m.Stats(ctx); st.Entries != 0 {
		t.Fatalf("expired entry counted: %+v", st)
	}
}

func TestMemoryEvictKeepsRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	k := Key{DocID: "d", ParagraphID: 1, Text: "x", Zone: "BODY"}

	_ = m.Set(ctx, k, Prediction{Tag: "TXT"})
	now = now.Add(2 * time.Hour)
	// A writer refreshes the key after a reader saw it expired.
	_ = m.Set(ctx, k, Prediction{Tag: "H1"})
	m.evict(k.Hash())
	if p, ok, _ := m.Get(ctx, k); !ok || p.Tag != "H1" {
		t.Fatalf("refreshed entry evicted: %+v %v", p, ok)
	}

	now = now.Add(2 * time.Hour)
	m.evict(k.Hash())
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expired entry kept: %d", n)
	}
}

func TestMemoryConcurrentGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Nanosecond)
	k := Key{DocID: "d", ParagraphID: 1, Text: "x", Zone: "BODY"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = m.Set(ctx, k, Prediction{Tag: "TXT"})
				_, _, _ = m.Get(ctx, k)
			}
		}()
	}
	wg.Wait()
	st, _ := m.Stats(ctx)
	if st.Hits+st.Misses != 8*200 {
		t.Fatalf("lookups lost: %+v", st)
	}
}

type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	failSets int
	sets     int
	ttl      time.Duration
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failSets > 0 {
		f.failSets--
		return goredis.NewStatusResult("", errors.New("connection reset"))
	}
	raw, _ := value.([]byte)
	f.data[key] = string(raw)
	f.ttl = expiration
	return goredis.NewStatusResult("OK", nil)
}

func TestRedisRetriesWrites(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}, failSets: 2}
	r := NewRedis(logger.Nop(), fake, 0)
	r.backoff = time.Millisecond

	k := Key{DocID: "d", ParagraphID: 1, Text: "x", Zone: "BODY"}
	if _, ok, err := r.Get(ctx, k); ok || err != nil {
		t.Fatalf("miss expected: %v %v", ok, err)
	}
	if err := r.Set(ctx, k, Prediction{Tag: "H1", Confidence: 0.95}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if fake.sets != 3 || fake.ttl != DefaultTTL {
		t.Fatalf("sets=%d ttl=%s", fake.sets, fake.ttl)
	}
	p, ok, err := r.Get(ctx, k)
	if err != nil || !ok || p.Tag != "H1" {
		t.Fatalf("Get: %+v %v %v", p, ok, err)
	}

	fake.failSets = 10
	if err := r.Set(ctx, k, Prediction{Tag: "H2"}); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if st, _ := r.Stats(ctx); st.Hits != 1 || st.Misses != 1 || st.Entries != -1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestStoreAndTiered(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	store := NewStore(repos.NewPredictionRepo(db, testutil.Logger(t)), time.Hour)
	front := NewMemory(time.Hour)
	tiered := NewTiered(front, store)

	k := Key{DocID: "d", ParagraphID: 7, Text: "Chapter 1", Zone: "FRONT_MATTER"}
	if _, ok, err := tiered.Get(ctx, k); ok || err != nil {
		t.Fatalf("miss expected: %v %v", ok, err)
	}
	if err := store.Set(ctx, k, Prediction{Tag: "CN", Confidence: 0.92, Model: "m"}); err != nil {
		t.Fatalf("store Set: %v", err)
	}

	p, ok, err := tiered.Get(ctx, k)
	if err != nil || !ok || p.Tag != "CN" || p.Model != "m" {
		t.Fatalf("tiered Get: %+v %v %v", p, ok, err)
	}
	if _, ok, _ := front.Get(ctx, k); !ok {
		t.Fatalf("back hit must populate the front tier")
	}

	st, err := tiered.Stats(ctx)
	if err != nil || st.Entries != 1 || st.Backend != "memory+store" {
		t.Fatalf("stats: %+v %v", st, err)
	}

	store.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, ok, _ := store.Get(ctx, k); ok {
		t.Fatalf("expired row returned")
	}
	if n, err := store.Prune(ctx); err != nil || n != 1 {
		t.Fatalf("Prune: %d %v", n, err)
	}
}
