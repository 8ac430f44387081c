package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis, *fixedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(rdb, time.Minute, zap.NewNop(), WithClock(clock.Now)), mr, clock
}

func TestPutThenGet(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`{"a":1}`), time.Hour))

	got, hit, err := c.Get(ctx, "h1", "0")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"a":1}`, string(got))

	_, hit, err = c.Get(ctx, "h1", "1")
	require.NoError(t, err)
	assert.False(t, hit, "page key is part of the identity")
}

func TestZeroTTLRemovesEntry(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`[1]`), time.Hour))
	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`[2]`), 0))

	_, hit, err := c.Get(ctx, "h1", "0")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestExpiredEntryMisses(t *testing.T) {
	c, _, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`"v"`), 30*time.Second))

	clock.Advance(30 * time.Second)
	_, hit, err := c.Get(ctx, "h1", "0")
	require.NoError(t, err)
	assert.False(t, hit, "a read exactly at expiresAt is a miss")
}

func TestRedisTierServesAfterLocalExpiry(t *testing.T) {
	c, _, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`"v"`), time.Hour))
	c.local.Flush()
	clock.Advance(10 * time.Minute)

	got, hit, err := c.Get(ctx, "h1", "0")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `"v"`, string(got))
}

func TestGetOrLoadHitSkipsLoader(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "h1", "0", []byte(`"cached"`), time.Hour))

	got, cached, err := c.GetOrLoad(ctx, "h1", "0", time.Hour, func(context.Context) ([]byte, bool, error) {
		t.Fatal("loader must not run on a hit")
		return nil, false, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, `"cached"`, string(got))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := c.GetOrLoad(ctx, "h1", "0", time.Hour, func(context.Context) ([]byte, bool, error) {
		return nil, false, boom
	})
	assert.ErrorIs(t, err, boom)

	got, cached, err := c.GetOrLoad(ctx, "h1", "0", time.Hour, func(context.Context) ([]byte, bool, error) {
		return []byte(`"fresh"`), true, nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `"fresh"`, string(got))
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, bool, error) {
		calls.Add(1)
		<-release
		return []byte(`"loaded"`), true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrLoad(ctx, "h1", "0", time.Hour, load)
			assert.NoError(t, err)
			assert.Equal(t, `"loaded"`, string(got))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadJSON(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	load := func(context.Context) ([]string, bool, error) { return []string{"Axon", "Motorola"}, true, nil }

	got, cached, err := GetOrLoadJSON(ctx, c, "h2", "competitors", time.Hour, load)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []string{"Axon", "Motorola"}, got)

	got, cached, err = GetOrLoadJSON(ctx, c, "h2", "competitors", time.Hour, load)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []string{"Axon", "Motorola"}, got)
}

func TestGetOrLoadSkipsStoreWhenNotKept(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, _, err := c.GetOrLoad(ctx, "h3", "0", time.Hour, func(context.Context) ([]byte, bool, error) {
		return []byte(`[]`), false, nil
	})
	require.NoError(t, err)

	_, hit, err := c.Get(ctx, "h3", "0")
	require.NoError(t, err)
	assert.False(t, hit)
}
