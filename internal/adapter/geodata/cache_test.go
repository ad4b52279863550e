package geodata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// --- mock for cache tests ---

type countingDissolver struct {
	calls  int
	result geom.T
}

func (d *countingDissolver) Dissolve(_ string, _ []geom.T) geom.T {
	d.calls++
	return d.result
}

func unitSquare(t *testing.T, x, y float64) *geom.Polygon {
	t.Helper()
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
}

// --- CachedDissolver tests ---

func TestCachedDissolver_CacheHit(t *testing.T) {
	inner := &countingDissolver{result: geom.NewMultiPolygon(geom.XY)}
	cached := NewCachedDissolver(inner, 10)
	members := []geom.T{unitSquare(t, 0, 0), unitSquare(t, 1, 0)}

	g1 := cached.Dissolve("province/Utrecht", members)
	g2 := cached.Dissolve("province/Utrecht", members)

	assert.Same(t, g1, g2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedDissolver_MemberCountChangesKey(t *testing.T) {
	inner := &countingDissolver{result: geom.NewMultiPolygon(geom.XY)}
	cached := NewCachedDissolver(inner, 10)

	cached.Dissolve("province/Utrecht", []geom.T{unitSquare(t, 0, 0)})
	cached.Dissolve("province/Utrecht", []geom.T{unitSquare(t, 0, 0), unitSquare(t, 1, 0)})

	assert.Equal(t, 2, inner.calls, "a changed boundary set must re-dissolve")
}

func TestCachedDissolver_DifferentKeysMiss(t *testing.T) {
	inner := &countingDissolver{result: geom.NewMultiPolygon(geom.XY)}
	cached := NewCachedDissolver(inner, 10)
	members := []geom.T{unitSquare(t, 0, 0)}

	cached.Dissolve("province/Utrecht", members)
	cached.Dissolve("province/Drenthe", members)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedDissolver_NilResultNotCached(t *testing.T) {
	inner := &countingDissolver{result: nil}
	cached := NewCachedDissolver(inner, 10)

	cached.Dissolve("national/", nil)
	cached.Dissolve("national/", nil)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedDissolver_DissolvesThrough(t *testing.T) {
	cached := NewCachedDissolver(domain.NewUnionDissolver(), 10)

	g := cached.Dissolve("province/Utrecht", []geom.T{unitSquare(t, 0, 0), unitSquare(t, 1, 0)})

	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)
	a := geom.NewMultiPolygon(geom.XY)

	c.put("a", a)

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", geom.NewMultiPolygon(geom.XY))
	c.put("b", geom.NewMultiPolygon(geom.XY))
	c.put("c", geom.NewMultiPolygon(geom.XY)) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	_, ok = c.get("b")
	assert.True(t, ok)

	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", geom.NewMultiPolygon(geom.XY))
	c.put("b", geom.NewMultiPolygon(geom.XY))

	// Access "a" to promote it
	c.get("a")

	c.put("c", geom.NewMultiPolygon(geom.XY))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	first := geom.NewMultiPolygon(geom.XY)
	second := geom.NewMultiPolygon(geom.XY)

	c.put("a", first)
	c.put("a", second)

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Same(t, second, got)
}
