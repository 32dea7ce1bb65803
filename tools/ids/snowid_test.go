package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Monotonic(t *testing.T) {
	g := NewGenerator(7)
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, int64(7), (prev>>12)&0x3FF)
}

func TestGenerator_ClockBackwards(t *testing.T) {
	g := NewGenerator(1)
	base := time.Now()
	g.now = func() time.Time { return base }
	first := g.Next()

	g.now = func() time.Time { return base.Add(-time.Second) }
	assert.Greater(t, g.Next(), first)
}

func TestGenerator_ConcurrentUnique(t *testing.T) {
	g := NewGenerator(3)
	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := g.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8000)
}
