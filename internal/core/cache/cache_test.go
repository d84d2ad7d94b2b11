package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(ttl time.Duration) Config {
	return Config{TTL: ttl, Strategy: StrategyLRU}
}

func TestGet_HitReturnsCachedValue(t *testing.T) {
	c := New[string](Options{MaxSize: 10})
	c.Set("k", "v", testConfig(time.Minute))

	calls := 0
	got, hit, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}, testConfig(time.Minute))
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "v", got)
	require.Zero(t, calls, "live hit must not fetch")
}

func TestGet_MissFetchesAndStores(t *testing.T) {
	c := New[string](Options{MaxSize: 10})

	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "fetched", nil
	}

	got, hit, err := c.Get(context.Background(), "k", fetch, testConfig(time.Minute))
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "fetched", got)
	require.Equal(t, 1, calls)

	// Second call is served from cache.
	got, hit, err = c.Get(context.Background(), "k", fetch, testConfig(time.Minute))
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "fetched", got)
	require.Equal(t, 1, calls)
}

func TestGet_ExpiredEntryIsAMiss(t *testing.T) {
	c := New[string](Options{MaxSize: 10})
	c.Set("k", "old", testConfig(30*time.Millisecond))
	require.True(t, c.Has("k"))

	time.Sleep(50 * time.Millisecond)
	require.False(t, c.Has("k"))

	got, hit, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		return "new", nil
	}, testConfig(time.Minute))
	require.NoError(t, err)
	require.False(t, hit, "expired entry counts as a miss")
	require.Equal(t, "new", got)
}

func TestGet_FetchErrorPropagatesAndLeavesCacheUntouched(t *testing.T) {
	c := New[string](Options{MaxSize: 10})
	boom := errors.New("upstream down")

	_, _, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	}, testConfig(time.Minute))
	require.ErrorIs(t, err, boom)
	require.False(t, c.Has("k"), "no poisoned entries on fetch failure")
	require.Zero(t, c.Len())
}

func TestGet_BackgroundRefreshDoesNotBlockReader(t *testing.T) {
	c := New[string](Options{MaxSize: 10})
	cfg := Config{TTL: 200 * time.Millisecond, RefreshThreshold: 150 * time.Millisecond, Strategy: StrategyLRU}
	c.Set("k", "stale", cfg)

	// Let the entry age into the refresh window.
	time.Sleep(80 * time.Millisecond)

	refreshed := make(chan struct{})
	got, hit, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		defer close(refreshed)
		return "fresh", nil
	}, cfg)
	require.NoError(t, err)
	require.True(t, hit, "a refresh-triggering read is still a hit")
	require.Equal(t, "stale", got, "triggering reader sees the cached value")

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("background refresh never ran")
	}

	// The next caller sees the refreshed value.
	require.Eventually(t, func() bool {
		v, _, err := c.Get(context.Background(), "k", nil, cfg)
		return err == nil && v == "fresh"
	}, time.Second, 5*time.Millisecond)
}

func TestGet_ConcurrentMissesShareOneFetch(t *testing.T) {
	c := New[int](Options{MaxSize: 10})

	var mu sync.Mutex
	calls := 0
	gate := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-gate
		return 7, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.Get(context.Background(), "k", fetch, testConfig(time.Minute))
			require.NoError(t, err)
			require.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls, "concurrent misses for one key share a single fetch")
}

func TestSet_CapacityBoundHolds(t *testing.T) {
	const maxSize = 20
	c := New[int](Options{MaxSize: maxSize})

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, testConfig(time.Minute))
		require.LessOrEqual(t, c.Len(), maxSize, "size bound must hold after every set")
	}
	require.Positive(t, c.Stats().Evictions)
}

func TestSet_EvictionStrategies(t *testing.T) {
	tests := []struct {
		name        string
		strategy    string
		wantEvicted string
	}{
		{name: "lru evicts least recently accessed", strategy: StrategyLRU, wantEvicted: "cold"},
		{name: "fifo evicts oldest inserted", strategy: StrategyFIFO, wantEvicted: "first"},
		{name: "ttl evicts nearest expiry", strategy: StrategyTTL, wantEvicted: "dying"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// EvictionFraction small enough that one victim goes per batch.
			c := New[string](Options{MaxSize: 3, EvictionFraction: 0.01})
			cfg := Config{TTL: time.Minute, Strategy: tc.strategy}

			switch tc.strategy {
			case StrategyLRU:
				c.Set("cold", "v", cfg)
				time.Sleep(2 * time.Millisecond)
				c.Set("warm", "v", cfg)
				time.Sleep(2 * time.Millisecond)
				c.Set("hot", "v", cfg)
				// Touch cold's peers so cold stays least recently accessed.
				_, _, _ = c.Get(context.Background(), "warm", nil, cfg)
				_, _, _ = c.Get(context.Background(), "hot", nil, cfg)
				time.Sleep(2 * time.Millisecond)
				_, _, _ = c.Get(context.Background(), "warm", nil, cfg)
			case StrategyFIFO:
				c.Set("first", "v", cfg)
				time.Sleep(2 * time.Millisecond)
				c.Set("second", "v", cfg)
				time.Sleep(2 * time.Millisecond)
				c.Set("third", "v", cfg)
				// Access order must not matter for FIFO.
				_, _, _ = c.Get(context.Background(), "first", nil, cfg)
			case StrategyTTL:
				c.Set("dying", "v", Config{TTL: 5 * time.Second, Strategy: tc.strategy})
				c.Set("steady", "v", cfg)
				c.Set("fresh", "v", cfg)
			}

			c.Set("overflow", "v", cfg)
			require.False(t, c.Has(tc.wantEvicted))
			require.True(t, c.Has("overflow"))
		})
	}
}

func TestGetMany_PartitionsHitsAndMisses(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	cfg := testConfig(time.Minute)
	c.Set("a", 1, cfg)
	c.Set("b", 2, cfg)

	var fetchedKeys []string
	got, err := c.GetMany(context.Background(), []string{"a", "b", "c", "d"},
		func(_ context.Context, missing []string) (map[string]int, error) {
			fetchedKeys = missing
			return map[string]int{"c": 3, "d": 4}, nil
		}, cfg)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}, got)
	require.ElementsMatch(t, []string{"c", "d"}, fetchedKeys)

	// Misses are now populated.
	require.True(t, c.Has("c"))
	require.True(t, c.Has("d"))
}

func TestGetMany_BulkFetchErrorFailsCall(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	boom := errors.New("bulk failed")

	_, err := c.GetMany(context.Background(), []string{"x"},
		func(context.Context, []string) (map[string]int, error) {
			return nil, boom
		}, testConfig(time.Minute))
	require.ErrorIs(t, err, boom)
	require.False(t, c.Has("x"))
}

func TestSetMany(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	c.SetMany(map[string]int{"a": 1, "b": 2, "c": 3}, testConfig(time.Minute))
	require.Equal(t, 3, c.Len())
	require.True(t, c.Has("b"))
}

func TestPrefetch_BestEffort(t *testing.T) {
	c := New[string](Options{MaxSize: 10})
	cfg := testConfig(time.Minute)
	c.Set("already", "cached", cfg)

	var mu sync.Mutex
	fetched := map[string]bool{}
	c.Prefetch(context.Background(), []string{"already", "ok", "bad"},
		func(_ context.Context, key string) (string, error) {
			mu.Lock()
			fetched[key] = true
			mu.Unlock()
			if key == "bad" {
				return "", errors.New("nope")
			}
			return "warm:" + key, nil
		}, cfg)

	require.False(t, fetched["already"], "cached keys are skipped")
	require.True(t, c.Has("ok"))
	require.False(t, c.Has("bad"), "individual failures do not fail the batch")
}

func TestInvalidate(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	cfg := testConfig(time.Minute)
	c.Set("agg:retirements|a", 1, cfg)
	c.Set("agg:retirements|b", 2, cfg)
	c.Set("agg:projects|a", 3, cfg)

	require.True(t, c.Invalidate("agg:projects|a"))
	require.False(t, c.Invalidate("agg:projects|a"), "second invalidation is a no-op")

	require.Equal(t, 2, c.InvalidatePrefix("agg:retirements|"))
	require.Zero(t, c.Len())
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	c.Set("short", 1, testConfig(20*time.Millisecond))
	c.Set("long", 2, testConfig(time.Minute))

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())
	require.True(t, c.Has("long"))
}

func TestStats_RunningRates(t *testing.T) {
	c := New[int](Options{MaxSize: 10})
	cfg := testConfig(time.Minute)
	c.Set("k", 1, cfg)

	_, _, _ = c.Get(context.Background(), "k", nil, cfg)    // hit
	_, _, _ = c.Get(context.Background(), "k", nil, cfg)    // hit
	_, _, _ = c.Get(context.Background(), "miss", nil, cfg) // miss

	s := c.Stats()
	require.Equal(t, int64(3), s.TotalRequests)
	require.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
	require.InDelta(t, 1.0/3.0, s.MissRate, 1e-9)
	require.Equal(t, 1, s.Size)
}

func TestValidate_Findings(t *testing.T) {
	c := New[*string](Options{MaxSize: 10})
	cfg := testConfig(20 * time.Millisecond)

	v := "ok"
	c.Set("live", &v, testConfig(time.Minute))
	c.Set("expired", &v, cfg)
	c.Set("nil", nil, testConfig(time.Minute))

	time.Sleep(40 * time.Millisecond)
	res := c.Validate()
	require.False(t, res.Healthy)
	require.Len(t, res.Errors, 1, "nil payload is an error")
	require.Len(t, res.Warnings, 1, "expired-but-unswept is a warning")
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	c := New[int](Options{MaxSize: 10, SweepInterval: 10 * time.Millisecond})
	c.Set("short", 1, testConfig(15*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunSweeper(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
