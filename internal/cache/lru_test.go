package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLRUCapacityEviction(t *testing.T) {
	var evicted []string
	c := NewLRUCache[int](2, time.Minute, WithEvict(func(k string, _ int) { evicted = append(evicted, k) }))

	c.Set("a", 1)
	c.Set("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used goes first")
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	clock := newClock()
	var evicted []string
	c := NewLRUCache[string](10, time.Minute,
		WithClock[string](clock.Now),
		WithEvict(func(k string, _ string) { evicted = append(evicted, k) }))

	c.Set("a", "x")
	c.Set("b", "y")
	clock.Advance(2 * time.Minute)
	c.Set("c", "z")

	assert.Equal(t, 2, c.CleanExpired())
	assert.ElementsMatch(t, []string{"a", "b"}, evicted)
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "z", v)
}

func TestLRUSlidingTTL(t *testing.T) {
	clock := newClock()
	c := NewLRUCache[int](10, time.Minute, WithClock[int](clock.Now), WithSlidingTTL[int]())

	c.Set("a", 1)
	for i := 0; i < 5; i++ {
		clock.Advance(40 * time.Second)
		_, ok := c.Get("a")
		require.True(t, ok, "reads keep the entry alive")
	}
	clock.Advance(61 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUDeleteSkipsEvictCallback(t *testing.T) {
	called := false
	c := NewLRUCache[int](10, time.Minute, WithEvict(func(string, int) { called = true }))
	c.Set("a", 1)
	c.Delete("a")
	assert.False(t, called)
	assert.Equal(t, 0, c.Size())
}

func TestLRUEachSkipsExpired(t *testing.T) {
	clock := newClock()
	c := NewLRUCache[int](10, time.Minute, WithClock[int](clock.Now))
	c.Set("old", 1)
	clock.Advance(2 * time.Minute)
	c.Set("new", 2)

	seen := map[string]int{}
	c.Each(func(k string, v int) { seen[k] = v })
	assert.Equal(t, map[string]int{"new": 2}, seen)
}

func TestManagerCleanNow(t *testing.T) {
	clock := newClock()
	c := NewLRUCache[int](10, time.Second, WithClock[int](clock.Now))
	c.Set("a", 1)
	clock.Advance(time.Minute)

	m := NewManager()
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Hour)
	m.Stop()
}
