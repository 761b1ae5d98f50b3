package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/testutil"
)

// counting wraps a source and counts Select calls.
type counting struct {
	source engine.Querier
	calls  atomic.Int64
}

func (c *counting) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	c.calls.Add(1)
	return c.source.Select(ctx, sel)
}

func movies(t *testing.T) *counting {
	return &counting{source: testutil.Memory(t,
		testutil.Entity("m1", "movie/title", "Up", "movie/year", 2009),
		testutil.Entity("m2", "movie/title", "Coco", "movie/year", 2017),
		testutil.Entity("m3", "movie/title", "Soul"),
	)}
}

func byEntity(of string) ir.Selector   { return ir.Selector{Of: ir.String(of)} }
func byAttribute(a string) ir.Selector { return ir.Selector{The: ir.String(a)} }

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(movies(t), 0)
	require.Error(t, err)
}

func TestHitServesCachedResult(t *testing.T) {
	source := movies(t)
	c, err := New(source, 10)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.Select(ctx, byEntity("m1"))
	require.NoError(t, err)
	second, err := c.Select(ctx, byEntity("m1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), source.calls.Load())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Facts)
}

func TestKeyIgnoresFieldOrder(t *testing.T) {
	source := movies(t)
	c, err := New(source, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Select(ctx, ir.Selector{Of: ir.String("m1"), The: ir.String("movie/year")})
	require.NoError(t, err)
	_, err = c.Select(ctx, ir.Selector{The: ir.String("movie/year"), Of: ir.String("m1")})
	require.NoError(t, err)

	assert.Equal(t, int64(1), source.calls.Load())
}

func TestDistinctKindsAreDistinctKeys(t *testing.T) {
	source := movies(t)
	c, err := New(source, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Select(ctx, ir.Selector{Is: ir.Int(2009)})
	require.NoError(t, err)
	got, err := c.Select(ctx, ir.Selector{Is: ir.Float(2009)})
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Equal(t, int64(2), source.calls.Load())
}

// =============================================================================
// Eviction
// =============================================================================

func TestEvictsWholeResultsLeastRecentlyUsed(t *testing.T) {
	source := movies(t)
	c, err := New(source, 4)
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = c.Select(ctx, byEntity("m1")) // 2 facts
	_, _ = c.Select(ctx, byEntity("m2")) // 2 facts, full
	_, _ = c.Select(ctx, byEntity("m1")) // touch m1
	_, _ = c.Select(ctx, byEntity("m3")) // 1 fact, evicts m2

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 3, stats.Facts)

	before := source.calls.Load()
	_, _ = c.Select(ctx, byEntity("m1"))
	assert.Equal(t, before, source.calls.Load(), "m1 should still be cached")
	_, _ = c.Select(ctx, byEntity("m2"))
	assert.Equal(t, before+1, source.calls.Load(), "m2 should have been evicted")
}

func TestEmptyResultsWeighOne(t *testing.T) {
	source := movies(t)
	c, err := New(source, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, of := range []string{"x", "y", "z"} {
		got, err := c.Select(ctx, byEntity(of))
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestOversizedResultIsNotCached(t *testing.T) {
	source := movies(t)
	c, err := New(source, 2)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := c.Select(ctx, byAttribute("movie/title"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = c.Select(ctx, byAttribute("movie/title"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestPurge(t *testing.T) {
	source := movies(t)
	c, err := New(source, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = c.Select(ctx, byEntity("m1"))
	c.Purge()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 0, stats.Facts)
	assert.Equal(t, uint64(1), stats.Misses, "counters survive a purge")

	_, _ = c.Select(ctx, byEntity("m1"))
	assert.Equal(t, int64(2), source.calls.Load())
}

// =============================================================================
// Querier contract
// =============================================================================

func TestErrorsAreNotCached(t *testing.T) {
	errDown := errors.New("store down")
	var fail atomic.Bool
	fail.Store(true)
	source := engine.QuerierFunc(func(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
		if fail.Load() {
			return nil, errDown
		}
		return []ir.Datum{testutil.Fact("m1", "movie/title", "Up")}, nil
	})

	c, err := New(source, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Select(ctx, byEntity("m1"))
	assert.ErrorIs(t, err, errDown)

	fail.Store(false)
	got, err := c.Select(ctx, byEntity("m1"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCallerCannotCorruptCache(t *testing.T) {
	c, err := New(movies(t), 10)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := c.Select(ctx, byEntity("m1"))
	require.NoError(t, err)
	got[0] = ir.Datum{}

	again, err := c.Select(ctx, byEntity("m1"))
	require.NoError(t, err)
	assert.Equal(t, ir.String("m1"), again[0].Of)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	source := engine.QuerierFunc(func(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
		calls.Add(1)
		<-release
		return []ir.Datum{testutil.Fact("m1", "movie/title", "Up")}, nil
	})

	c, err := New(source, 10)
	require.NoError(t, err)

	const callers = 4
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			started.Done()
			got, err := c.Select(context.Background(), byEntity("m1"))
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	started.Wait()
	close(release)
	done.Wait()

	// Late arrivals may hit the cache instead of joining the flight, but the
	// source is asked at most once while the first fetch is outstanding.
	assert.Equal(t, int64(1), calls.Load())
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(movies(t), 10, WithRegisterer(reg))
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = c.Select(ctx, byEntity("m1"))
	_, _ = c.Select(ctx, byEntity("m1"))

	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.misses))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.metrics.facts))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestCacheUnderEngine(t *testing.T) {
	unit := testutil.Rules(t, `
rule: released: {
	match: { title: "?title", year: "?year" }
	when: [
		{ match: { of: "?m", the: "movie/title", is: "?title" } },
		{ match: { of: "?m", the: "movie/year", is: "?year" } },
	]
}

query: "released-in": {
	rule: "released"
	match: { title: "?title", year: "?year" }
	select: { title: "?title" }
}
`)
	q, ok := unit.Query("released-in")
	require.True(t, ok)
	bindings, err := q.Bind(map[string]any{"year": 2009})
	require.NoError(t, err)

	source := movies(t)
	c, err := New(source, 10)
	require.NoError(t, err)
	eng := engine.New(unit.Program)
	req := engine.Request{Application: q.Application, Bindings: bindings, Select: q.Select}

	for i := 0; i < 2; i++ {
		records, err := eng.Query(context.Background(), c, req)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, map[string]any{"title": "Up"}, records[0].Plain())
	}

	// The second run is served without touching the source.
	calls := source.calls.Load()
	assert.Positive(t, calls)
	stats := c.Stats()
	assert.Equal(t, uint64(calls), stats.Misses)
	assert.Equal(t, stats.Misses, stats.Hits)
}
