package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(ttl, WithClock(clk.now)), clk
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("classify", []string{"medical"}, Params{"text": "환자 진료"})

	got, ok := c.Get("classify", Params{"text": "환자 진료"})
	require.True(t, ok)
	assert.Equal(t, []string{"medical"}, got)
}

func TestGet_Missing(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	_, ok := c.Get("classify", Params{"text": "nothing here"})
	assert.False(t, ok)
}

func TestExpiry_LazyEviction(t *testing.T) {
	c, clk := newTestCache(time.Minute)

	c.Set("analysis", "result", Params{"session": "s1"})

	// Just under the TTL: still present.
	clk.advance(59 * time.Second)
	_, ok := c.Get("analysis", Params{"session": "s1"})
	assert.True(t, ok)

	// At the TTL boundary the entry is treated as absent and evicted.
	clk.advance(time.Second)
	_, ok = c.Get("analysis", Params{"session": "s1"})
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be removed on read")
}

func TestLookupHook_ObservesHitsAndMisses(t *testing.T) {
	hits := map[string]int{}
	misses := map[string]int{}
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := New(time.Minute, WithClock(clk.now), WithLookupHook(func(ns string, hit bool) {
		if hit {
			hits[ns]++
		} else {
			misses[ns]++
		}
	}))

	c.Get("classification", Params{"text": "x"})
	c.Set("classification", "result", Params{"text": "x"})
	c.Get("classification", Params{"text": "x"})

	assert.Equal(t, 1, hits["classification"])
	assert.Equal(t, 1, misses["classification"])

	// An expired entry reads as a miss.
	clk.advance(time.Minute)
	c.Get("classification", Params{"text": "x"})
	assert.Equal(t, 1, hits["classification"])
	assert.Equal(t, 2, misses["classification"])
}

func TestKey_ParamOrderIndependent(t *testing.T) {
	a := Key("ns", Params{"alpha": 1, "beta": "x"})
	b := Key("ns", Params{"beta": "x", "alpha": 1})
	assert.Equal(t, a, b)

	c := Key("ns", Params{"alpha": 2, "beta": "x"})
	assert.NotEqual(t, a, c)
}

func TestKey_NamespaceSeparation(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("ns1", "one", Params{"k": "v"})
	c.Set("ns2", "two", Params{"k": "v"})

	got1, ok := c.Get("ns1", Params{"k": "v"})
	require.True(t, ok)
	got2, ok := c.Get("ns2", Params{"k": "v"})
	require.True(t, ok)

	assert.Equal(t, "one", got1)
	assert.Equal(t, "two", got2)
}

func TestSet_ResetsTTL(t *testing.T) {
	c, clk := newTestCache(time.Minute)

	c.Set("ns", "v1", Params{"k": "v"})
	clk.advance(45 * time.Second)
	c.Set("ns", "v2", Params{"k": "v"})
	clk.advance(45 * time.Second)

	// 90s after the first set but only 45s after the second: still alive.
	got, ok := c.Get("ns", Params{"k": "v"})
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestRemoveAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("ns", 1, Params{"a": 1})
	c.Set("ns", 2, Params{"a": 2})

	c.Remove("ns", Params{"a": 1})
	_, ok := c.Get("ns", Params{"a": 1})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
