package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
)

func TestCache_GetPutExpiry(t *testing.T) {
	c := NewCache(0, 0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", &domain.SearchResponse{Query: "q"}, time.Hour)
	got, ok := c.Get("k")
	if !ok || got.Query != "q" {
		t.Fatalf("expected hit, got %v %v", got, ok)
	}
	now = now.Add(time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should expire at its TTL")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry should be dropped on access")
	}
}

func TestCache_HitsDoNotShareResults(t *testing.T) {
	c := NewCache(0, 0)
	section := "Restart"
	orig := &domain.SearchResponse{Query: "q", Results: []domain.SearchResult{{
		Content:     "restart the agent",
		Page:        domain.Page{Labels: []string{"ops"}},
		ContextPath: []string{"Runbook", "Restart"},
		Citations:   []domain.Citation{{Quote: "restart the agent", Section: &section}},
	}}}
	c.Put("k", orig, time.Hour)
	orig.Results[0].Content = "changed after put"

	r1, _ := c.Get("k")
	r1.Results[0].Content = "mutated"
	r1.Results[0].Page.Labels[0] = "mutated"
	r1.Results[0].ContextPath[0] = "mutated"
	r1.Results[0].Citations[0].Quote = "mutated"
	*r1.Results[0].Citations[0].Section = "mutated"

	r2, _ := c.Get("k")
	res := r2.Results[0]
	if res.Content != "restart the agent" || res.Page.Labels[0] != "ops" || res.ContextPath[0] != "Runbook" {
		t.Fatalf("cached result changed through a returned copy: %+v", res)
	}
	if res.Citations[0].Quote != "restart the agent" || *res.Citations[0].Section != "Restart" {
		t.Fatalf("cached citation changed through a returned copy: %+v", res.Citations[0])
	}
}

func TestCache_ZeroTTLStoresNothing(t *testing.T) {
	c := NewCache(0, 0)
	c.Put("k", &domain.SearchResponse{}, 0)
	if c.Len() != 0 {
		t.Fatal("zero ttl should not cache")
	}
}

func TestCache_EvictsOldestByInsertion(t *testing.T) {
	c := NewCache(10, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	for i := 0; i < 11; i++ {
		c.Put(fmt.Sprintf("k%d", i), &domain.SearchResponse{}, time.Hour)
		now = now.Add(time.Second)
	}
	if c.Len() != 8 {
		t.Fatalf("expected 8 entries after eviction, got %d", c.Len())
	}
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Errorf("k%d should have been evicted", i)
		}
	}
	if _, ok := c.Get("k10"); !ok {
		t.Error("newest entry should survive")
	}
}

func TestCache_DefaultLimits(t *testing.T) {
	c := NewCache(0, 0)
	for i := 0; i <= DefaultCacheLimit; i++ {
		c.Put(fmt.Sprintf("k%d", i), &domain.SearchResponse{}, time.Hour)
	}
	if c.Len() != DefaultCacheLimit+1-DefaultCacheEvict {
		t.Fatalf("expected %d entries, got %d", DefaultCacheLimit+1-DefaultCacheEvict, c.Len())
	}
	c.EvictIfOver(10)
	if c.Len() != DefaultCacheLimit+1-2*DefaultCacheEvict {
		t.Fatalf("EvictIfOver dropped %d", DefaultCacheLimit+1-DefaultCacheEvict-c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatal("Clear left entries")
	}
}

func TestCache_GetOrCompute(t *testing.T) {
	c := NewCache(0, 0)
	calls := 0
	compute := func(context.Context) (*domain.SearchResponse, error) {
		calls++
		return &domain.SearchResponse{Query: "q"}, nil
	}
	_, hit, err := c.GetOrCompute(context.Background(), "k", time.Hour, compute)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	_, hit, _ = c.GetOrCompute(context.Background(), "k", time.Hour, compute)
	if !hit || calls != 1 {
		t.Fatalf("second call: hit=%v calls=%d", hit, calls)
	}

	_, _, err = c.GetOrCompute(context.Background(), "bad", time.Hour, func(context.Context) (*domain.SearchResponse, error) {
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Get("bad"); ok {
		t.Fatal("errors must not be cached")
	}
}

func TestCacheKey(t *testing.T) {
	cfg := domain.DefaultSearchConfig()
	a := cfg
	a.SpaceKeys = []string{"B", "A"}
	b := cfg
	b.SpaceKeys = []string{"A", "B"}
	if CacheKey("q", a) != CacheKey("q", b) {
		t.Error("filter order should not change the key")
	}
	if CacheKey("q", cfg) == CacheKey("Q", cfg) {
		t.Error("query must be part of the key")
	}
	c := cfg
	c.TopK = 5
	if CacheKey("q", cfg) == CacheKey("q", c) {
		t.Error("top_k must be part of the key")
	}
	d := cfg
	d.ChunkTypes = []domain.ChunkType{domain.ChunkCode}
	if CacheKey("q", cfg) == CacheKey("q", d) {
		t.Error("chunk types must be part of the key")
	}
	if len(a.SpaceKeys) != 2 || a.SpaceKeys[0] != "B" {
		t.Error("CacheKey must not reorder the caller's slice")
	}
}
