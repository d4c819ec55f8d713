package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svg(body string) Artifact {
	return Artifact{ContentType: "image/svg+xml", Body: []byte(body)}
}

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", svg("value_a"))
	c.Set("b", svg("value_b"))
	c.Set("c", svg("value_c"))

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", string(val.Body))
	assert.Equal(t, "image/svg+xml", val.ContentType)

	_, found = c.Get("z")
	assert.False(t, found)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ Artifact) { evicted = append(evicted, key) }})

	c.Set("a", svg("value_a"))
	c.Set("b", svg("value_b"))
	c.Set("c", svg("value_c"))

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", svg("value_d"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
}

func TestLRUCache_MaxBytes(t *testing.T) {
	c := New(Options{MaxBytes: 30})

	c.Set("a", Artifact{Body: make([]byte, 10)})
	c.Set("b", Artifact{Body: make([]byte, 10)})
	c.Set("c", Artifact{Body: make([]byte, 10)})
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(30), c.Stats().CurrentBytes)

	c.Set("d", Artifact{Body: make([]byte, 15)})
	_, found := c.Get("a")
	assert.False(t, found)
	_, found = c.Get("b")
	assert.False(t, found)
	assert.Equal(t, int64(25), c.Stats().CurrentBytes)

	// an oversized entry is kept alone
	c.Set("big", Artifact{Body: make([]byte, 100)})
	assert.Equal(t, 1, c.Len())
	_, found = c.Get("big")
	assert.True(t, found)
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options{MaxSize: 2})
	c.Set("a", svg("1"))
	c.Set("b", svg("2"))
	c.Set("a", svg("333"))

	// 'a' was refreshed, so 'b' goes first
	c.Set("c", svg("4"))
	_, found := c.Get("b")
	assert.False(t, found)

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "333", string(val.Body))
}

func TestLRUCache_Clear(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", svg("value_a"))
	c.Set("b", svg("value_b"))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().CurrentBytes)
}

func TestLRUCache_Stats(t *testing.T) {
	c := New(Options{})
	c.Set("a", svg("x"))
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)

	c.ResetStats()
	assert.Equal(t, int64(0), c.Stats().HitCount)
	assert.Equal(t, 0.0, c.Stats().HitRate)
}

func TestGetOrCreate(t *testing.T) {
	c := New(Options{})
	var calls int32
	create := func() (Artifact, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return svg("<svg/>"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := c.GetOrCreate("k", create)
			assert.NoError(t, err)
			assert.Equal(t, "<svg/>", string(a.Body))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err := c.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrCreateError(t *testing.T) {
	c := New(Options{})
	boom := errors.New("boom")

	_, err := c.GetOrCreate("k", func() (Artifact, error) { return Artifact{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	a, err := c.GetOrCreate("k", func() (Artifact, error) { return svg("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", string(a.Body))
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key("function", "1", "3"), Key("function", "13"))
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
}
