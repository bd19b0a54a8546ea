package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_000_000)}
}

func meshOf(size float64) *kernel.Mesh {
	return kernel.BoxMesh(kernel.CenteredBox(size, size, size))
}

type countingMetrics struct {
	hits, misses, evictions int
}

func (m *countingMetrics) CacheHit()      { m.hits++ }
func (m *countingMetrics) CacheMiss()     { m.misses++ }
func (m *countingMetrics) CacheEviction() { m.evictions++ }

func TestGetReturnsIndependentClone(t *testing.T) {
	c := New(10)
	src := meshOf(2)
	c.Put("k", src)

	// Mutating the source after Put does not reach the cache.
	src.Vertices[0] = 42

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.NotEqual(t, float32(42), got.Vertices[0])

	// Mutating a fetched clone does not reach the cache either.
	got.Vertices[0] = 99
	again, ok := c.Get("k")
	require.True(t, ok)
	assert.NotEqual(t, float32(99), again.Vertices[0])
}

func TestGetMiss(t *testing.T) {
	m := &countingMetrics{}
	c := New(10, WithMetrics(m))
	_, ok := c.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCacheBound(t *testing.T) {
	clock := newClock()
	c := New(3, WithClock(clock.now))
	for i := 0; i < 10; i++ {
		clock.advance(time.Millisecond)
		c.Put(fmt.Sprintf("k%d", i), meshOf(1))
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(7), c.Stats().Evictions)
}

func TestEvictsLowestScore(t *testing.T) {
	clock := newClock()
	m := &countingMetrics{}
	c := New(2, WithClock(clock.now), WithMetrics(m))

	c.Put("old-popular", meshOf(1)) // t0, count 1
	clock.advance(10 * time.Millisecond)
	c.Put("recent", meshOf(1)) // t0+10, count 1

	// Three hits make old-popular's score roughly 4×t0, far above recent's.
	for i := 0; i < 3; i++ {
		_, ok := c.Get("old-popular")
		require.True(t, ok)
	}
	clock.advance(10 * time.Millisecond)

	victim := c.entries["recent"].mesh
	c.Put("new", meshOf(1))

	_, ok := c.Get("recent")
	assert.False(t, ok, "lowest score entry should be evicted")
	_, ok = c.Get("old-popular")
	assert.True(t, ok)
	assert.True(t, victim.Released(), "evicted mesh should be released")
	assert.Equal(t, 1, m.evictions)
}

func TestEvictionTieBreaksOnKey(t *testing.T) {
	clock := newClock()
	c := New(2, WithClock(clock.now))
	c.Put("b", meshOf(1))
	c.Put("a", meshOf(1))
	c.Put("c", meshOf(1))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestPutReplaceReleasesOld(t *testing.T) {
	c := New(1)
	c.Put("k", meshOf(1))
	old := c.entries["k"].mesh
	c.Put("k", meshOf(2))

	assert.True(t, old.Released())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(0), c.Stats().Evictions)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, [3]float64{2, 2, 2}, got.BoundingBox().Size())
}

func TestPutIgnoresReleased(t *testing.T) {
	c := New(1)
	m := meshOf(1)
	m.Release()
	c.Put("k", m)
	c.Put("n", nil)
	assert.Equal(t, 0, c.Len())
}

func TestClearReleasesAll(t *testing.T) {
	c := New(5)
	c.Put("a", meshOf(1))
	c.Put("b", meshOf(1))
	held := []*kernel.Mesh{c.entries["a"].mesh, c.entries["b"].mesh}

	c.Clear()
	assert.Equal(t, 0, c.Len())
	for _, m := range held {
		assert.True(t, m.Released())
	}
}

func TestStatsTopKeys(t *testing.T) {
	c := New(10)
	for i := 0; i < 7; i++ {
		c.Put(fmt.Sprintf("k%d", i), meshOf(1))
	}
	for i := 0; i < 3; i++ {
		c.Get("k4")
	}
	c.Get("k2")
	c.Get("missing")

	s := c.Stats()
	require.Len(t, s.TopKeys, 5)
	assert.Equal(t, KeyAccess{Key: "k4", Count: 4}, s.TopKeys[0])
	assert.Equal(t, KeyAccess{Key: "k2", Count: 2}, s.TopKeys[1])
	assert.Equal(t, "k0", s.TopKeys[2].Key)
	assert.InDelta(t, 0.8, s.HitRate, 1e-9)
	assert.Equal(t, 10, s.MaxEntries)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(8)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("k%d", (g*50+i)%16)
				if _, ok := c.Get(key); !ok {
					c.Put(key, meshOf(1))
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

// memBacking is an in-memory Backing used to test tiering.
type memBacking struct {
	data    map[string]*kernel.Mesh
	saveErr error
}

func (b *memBacking) Load(key string) (*kernel.Mesh, bool, error) {
	m, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

func (b *memBacking) Save(key string, m *kernel.Mesh) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.data[key] = m
	return nil
}

func (b *memBacking) Clear() error {
	b.data = map[string]*kernel.Mesh{}
	return nil
}

func TestBackingWriteThroughAndPromotion(t *testing.T) {
	b := &memBacking{data: map[string]*kernel.Mesh{}}
	c := New(1, WithBacking(b))

	c.Put("a", meshOf(1))
	c.Put("b", meshOf(2)) // evicts a from memory; still in backing
	require.Len(t, b.data, 2)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, [3]float64{1, 1, 1}, got.BoundingBox().Size())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().BackingHits)

	c.Clear()
	assert.Empty(t, b.data)
}

func TestBackingSaveErrorIsNotFatal(t *testing.T) {
	b := &memBacking{data: map[string]*kernel.Mesh{}, saveErr: errors.New("disk full")}
	c := New(2, WithBacking(b))
	c.Put("a", meshOf(1))
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestKeyDeterministicAndOrderInvariant(t *testing.T) {
	el := feature.Element{ID: "B1", Profile: feature.ProfileIBeam,
		Dimensions: feature.Dimensions{Length: 6000, Height: 300, Width: 150}}
	fs := []feature.Feature{
		{ID: "h1", Type: feature.TypeHole, Position: feature.Vec3{X: 100}, Params: feature.Params{"diameter": 22.0}},
		{ID: "c1", Type: feature.TypeContour, Params: feature.Params{"points": []float64{0, 0, 10, 0, 10, 10}}},
		{ID: "m1", Type: feature.TypeMarking, Params: feature.Params{"b": 1, "a": 2}},
	}
	k1, err := Key(el, fs)
	require.NoError(t, err)
	k2, err := Key(el, fs)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	permuted := []feature.Feature{fs[2], fs[0], fs[1]}
	k3, err := Key(el, permuted)
	require.NoError(t, err)
	assert.Equal(t, k1, k3)

	assert.True(t, strings.HasPrefix(k1, "geom:B1:"))
	assert.Len(t, strings.TrimPrefix(k1, "geom:B1:"), 32)
}

func TestKeySensitivity(t *testing.T) {
	el := feature.Element{ID: "B1", Dimensions: feature.Dimensions{Length: 1000}}
	base := []feature.Feature{{ID: "h1", Type: feature.TypeHole, Params: feature.Params{"diameter": 10.0}}}
	k0, err := Key(el, base)
	require.NoError(t, err)

	tests := []struct {
		name string
		el   feature.Element
		fs   []feature.Feature
	}{
		{"dimension", feature.Element{ID: "B1", Dimensions: feature.Dimensions{Length: 1001}}, base},
		{"param", el, []feature.Feature{{ID: "h1", Type: feature.TypeHole, Params: feature.Params{"diameter": 11.0}}}},
		{"position", el, []feature.Feature{{ID: "h1", Type: feature.TypeHole, Position: feature.Vec3{Z: 1}, Params: feature.Params{"diameter": 10.0}}}},
		{"type", el, []feature.Feature{{ID: "h1", Type: feature.TypeTappedHole, Params: feature.Params{"diameter": 10.0}}}},
		{"id", el, []feature.Feature{{ID: "h2", Type: feature.TypeHole, Params: feature.Params{"diameter": 10.0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Key(tt.el, tt.fs)
			require.NoError(t, err)
			assert.NotEqual(t, k0, k)
		})
	}
}
