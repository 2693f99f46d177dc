package cache

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestModelListCacheCoalescesConcurrentFetches(t *testing.T) {
	var c ModelListCache
	var calls int64

	fetch := func() ([]ModelEntry, error) {
		atomic.AddInt64(&calls, 1)
		return []ModelEntry{{ID: "gpt-4", OwnedBy: "OpenAI"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := c.Get(fetch)
			if err != nil {
				t.Errorf("get: %v", err)
			}
			if len(entries) != 1 || entries[0].ID != "gpt-4" {
				t.Errorf("unexpected entries: %+v", entries)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected exactly 1 underlying fetch, got %d", calls)
	}
}

func TestModelListCacheInvalidateForcesRefetch(t *testing.T) {
	var c ModelListCache
	var calls int64
	fetch := func() ([]ModelEntry, error) {
		atomic.AddInt64(&calls, 1)
		return []ModelEntry{{ID: "m", OwnedBy: "X"}}, nil
	}

	if _, err := c.Get(fetch); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.Get(fetch); err != nil {
		t.Fatalf("get: %v", err)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected cache hit, got %d calls", calls)
	}

	c.Invalidate()
	if _, err := c.Get(fetch); err != nil {
		t.Fatalf("get: %v", err)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}
