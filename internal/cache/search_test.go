package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int, ttl time.Duration) (*SearchCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewSearchCache(capacity, ttl)
	c.now = clock.now
	c.chance = func() float64 { return 1 }
	return c, clock
}

func results(ids ...string) []models.SearchResult {
	out := make([]models.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = models.SearchResult{ID: id}
	}
	return out
}

func TestSearchCache(t *testing.T) {
	t.Run("normalized keys", func(t *testing.T) {
		c, _ := newTestCache(5, time.Minute)
		c.Put("  Hello   World ", results("a"))

		got, ok := c.Get("hello world")
		if !ok || len(got) != 1 || got[0].ID != "a" {
			t.Fatalf("expected hit for normalized query, got %v %v", got, ok)
		}
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c, clock := newTestCache(5, time.Minute)
		c.Put("q", results("a"))
		clock.advance(2 * time.Minute)

		if _, ok := c.Get("q"); ok {
			t.Error("expected miss after ttl")
		}
		if c.Len() != 0 {
			t.Errorf("expired entry should be removed, len=%d", c.Len())
		}
	})

	t.Run("over capacity keeps highest hits per age", func(t *testing.T) {
		c, clock := newTestCache(2, time.Hour)
		c.Put("popular", results("p"))
		c.Put("cold", results("c"))
		for range 5 {
			c.Get("popular")
		}
		clock.advance(10 * time.Second)
		c.Put("fresh", results("f"))
		c.Get("fresh")

		if c.Len() != 2 {
			t.Fatalf("expected 2 entries, got %d", c.Len())
		}
		if _, ok := c.Get("cold"); ok {
			t.Error("cold entry should have been evicted")
		}
		if _, ok := c.Get("popular"); !ok {
			t.Error("popular entry should be kept")
		}
	})

	t.Run("ttl sweep runs before score eviction", func(t *testing.T) {
		c, clock := newTestCache(2, time.Minute)
		c.Put("old", results("o"))
		clock.advance(2 * time.Minute)
		c.Put("a", results("a"))
		c.Put("b", results("b"))

		if c.Len() != 2 {
			t.Fatalf("expected 2 entries, got %d", c.Len())
		}
		if _, ok := c.Get("a"); !ok {
			t.Error("a should survive")
		}
		if _, ok := c.Get("b"); !ok {
			t.Error("b should survive")
		}
	})

	t.Run("sweep is skipped under capacity when chance misses", func(t *testing.T) {
		c, clock := newTestCache(5, time.Minute)
		c.chance = func() float64 { return 0.99 }
		c.Put("old", results("o"))
		clock.advance(2 * time.Minute)
		c.Put("new", results("n"))

		if c.Len() != 2 {
			t.Errorf("expected lazy eviction to leave 2 entries, got %d", c.Len())
		}
		c.Evict()
		if c.Len() != 1 {
			t.Errorf("expected explicit eviction to leave 1 entry, got %d", c.Len())
		}
	})

	t.Run("stored results are copied", func(t *testing.T) {
		c, _ := newTestCache(5, time.Minute)
		in := results("a")
		c.Put("q", in)
		in[0].ID = "mutated"

		got, _ := c.Get("q")
		got[0].ID = "also mutated"
		again, _ := c.Get("q")
		if again[0].ID != "a" {
			t.Errorf("cache contents should be isolated, got %s", again[0].ID)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		c := NewSearchCache(0, 0)
		if c.capacity != DefaultSearchCapacity || c.ttl != DefaultSearchTTL {
			t.Errorf("unexpected defaults: %d %s", c.capacity, c.ttl)
		}
	})
}

type countingProvider struct {
	calls int
	err   error
	size  int
}

func (p *countingProvider) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	n := 3
	if p.size > 0 {
		n = p.size
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{ID: fmt.Sprintf("%s-%d", query, i)}
	}
	return out, nil
}

func TestCachedSearcher(t *testing.T) {
	t.Run("second query is served from cache", func(t *testing.T) {
		p := &countingProvider{}
		c, _ := newTestCache(5, time.Minute)
		s := NewCachedSearcher(p, c)

		if _, err := s.Search(context.Background(), "q", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := s.Search(context.Background(), "Q ", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.calls != 1 {
			t.Errorf("expected 1 provider call, got %d", p.calls)
		}
		if len(got) != 2 {
			t.Errorf("expected limit to trim cached results, got %d", len(got))
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		p := &countingProvider{err: errors.New("boom")}
		c, _ := newTestCache(5, time.Minute)
		s := NewCachedSearcher(p, c)

		for range 2 {
			if _, err := s.Search(context.Background(), "q", 3); err == nil {
				t.Fatal("expected error")
			}
		}
		if p.calls != 2 {
			t.Errorf("expected 2 provider calls, got %d", p.calls)
		}
	})

	t.Run("larger limit refetches a cut short list", func(t *testing.T) {
		p := &countingProvider{size: 10}
		c, _ := newTestCache(5, time.Minute)
		s := NewCachedSearcher(p, c)

		if got, _ := s.Search(context.Background(), "q", 2); len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		got, err := s.Search(context.Background(), "q", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 5 || p.calls != 2 {
			t.Errorf("expected refetch with 5 results, got %d results after %d calls", len(got), p.calls)
		}

		if got, _ := s.Search(context.Background(), "q", 4); len(got) != 4 || p.calls != 2 {
			t.Errorf("expected smaller limit served from cache, got %d results after %d calls", len(got), p.calls)
		}
	})

	t.Run("exhausted list serves any limit", func(t *testing.T) {
		p := &countingProvider{size: 3}
		c, _ := newTestCache(5, time.Minute)
		s := NewCachedSearcher(p, c)

		s.Search(context.Background(), "q", 5)
		if got, _ := s.Search(context.Background(), "q", 10); len(got) != 3 || p.calls != 1 {
			t.Errorf("expected cached complete list, got %d results after %d calls", len(got), p.calls)
		}
	})
}
