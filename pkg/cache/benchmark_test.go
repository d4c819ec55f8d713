package cache

import (
	"strconv"
	"testing"
)

func rendering(n int) Artifact {
	return Artifact{ContentType: "image/svg+xml", Body: make([]byte, n)}
}

// BenchmarkGetOrCreateHit measures concurrent readers of a warm function
// view, the common case when a page is reloaded.
func BenchmarkGetOrCreateHit(b *testing.B) {
	c := New(Options{MaxSize: 256})
	keys := make([]string, 64)
	for i := range keys {
		keys[i] = Key("function", strconv.Itoa(i), "disassembly", "", "ipet-total_time", "svg")
		c.Set(keys[i], rendering(4096))
	}
	create := func() (Artifact, error) { return rendering(4096), nil }

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := c.GetOrCreate(keys[i%len(keys)], create); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}

// BenchmarkSetEvicting fills a byte-limited cache so that every store
// evicts an older rendering.
func BenchmarkSetEvicting(b *testing.B) {
	c := New(Options{MaxBytes: 1 << 20})
	a := rendering(16 << 10)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(Key("source", "main.c", strconv.Itoa(i)), a)
	}
}
